package risk

import (
	"context"
	"fmt"
	"sort"

	"github.com/intellidevice/engine/engine/domain"
)

// Each rule walks the snapshot index independently and checks the context
// between entities so a long analysis can be abandoned without corrupting
// signals already collected by earlier rules.

func severeClusterRule(ctx context.Context, idx *snapshotIndex) []Signal {
	byDevice := make(map[string][]string)
	for _, r := range idx.reports {
		if r.severity != domain.SeveritySevere && r.severity != domain.SeverityDeath {
			continue
		}
		for _, d := range r.devices {
			byDevice[d] = append(byDevice[d], r.id)
		}
	}

	var signals []Signal
	for _, device := range sortedKeys(byDevice) {
		if ctx.Err() != nil {
			return signals
		}
		ids := byDevice[device]
		if len(ids) < SevereClusterMinReports {
			continue
		}
		score := capScore(float64(len(ids)) * SevereClusterScoreStep)
		signals = append(signals, Signal{
			Type:      RuleSevereCluster,
			EntityKey: device,
			Description: fmt.Sprintf("设备'%s'存在%d个严重伤害事件", device, len(ids)),
			Score:     score,
			Level:     levelFor(score),
			Evidence:  Evidence{ReportIDs: ids, NodeIDs: []string{device}, Count: len(ids)},
			Recommendation: fmt.Sprintf("建议对%s进行重点监测和质量评估", device),
		})
	}
	return signals
}

func frequentFailureRule(ctx context.Context, idx *snapshotIndex) []Signal {
	byFailure := make(map[string]map[string]struct{})
	for _, r := range idx.reports {
		for _, f := range r.failures {
			if byFailure[f] == nil {
				byFailure[f] = make(map[string]struct{})
			}
			byFailure[f][r.id] = struct{}{}
		}
	}

	var signals []Signal
	for _, failure := range sortedKeys(byFailure) {
		if ctx.Err() != nil {
			return signals
		}
		reports := byFailure[failure]
		if len(reports) < FrequentFailureMinReports {
			continue
		}
		score := capScore(float64(len(reports)) * FrequentFailureScoreStep)
		signals = append(signals, Signal{
			Type:      RuleFrequentFailure,
			EntityKey: failure,
			Description: fmt.Sprintf("故障模式'%s'频繁出现，共%d次", failure, len(reports)),
			Score:     score,
			Level:     levelFor(score),
			Evidence:  Evidence{ReportIDs: sortedSet(reports), NodeIDs: []string{failure}, Count: len(reports)},
			Recommendation: fmt.Sprintf("建议分析%s的根本原因并制定预防措施", failure),
		})
	}
	return signals
}

func deviceModelRule(ctx context.Context, idx *snapshotIndex) []Signal {
	type group struct {
		reports []string
		weight  float64
	}
	byModel := make(map[string]*group)
	for _, r := range idx.reports {
		for _, d := range r.devices {
			dev, ok := idx.devices[d]
			if !ok || dev.model == "" {
				continue
			}
			key := dev.manufacturer + "/" + dev.model
			g := byModel[key]
			if g == nil {
				g = &group{}
				byModel[key] = g
			}
			g.reports = append(g.reports, r.id)
			g.weight += r.severity.Weight()
		}
	}

	var signals []Signal
	for _, key := range sortedKeys(byModel) {
		if ctx.Err() != nil {
			return signals
		}
		g := byModel[key]
		score := g.weight / float64(len(g.reports))
		if score < DeviceModelMinScore {
			continue
		}
		score = capScore(score)
		signals = append(signals, Signal{
			Type:      RuleDeviceModel,
			EntityKey: key,
			Description: fmt.Sprintf("设备型号'%s'风险评分%.2f，共%d个事件", key, score, len(g.reports)),
			Score:     score,
			Level:     levelFor(score),
			Evidence:  Evidence{ReportIDs: g.reports, Count: len(g.reports)},
			Recommendation: fmt.Sprintf("建议对%s型号设备进行重点检查或召回评估", key),
		})
	}
	return signals
}

func manufacturerRule(ctx context.Context, idx *snapshotIndex) []Signal {
	type group struct {
		reports []string
		weight  float64
	}
	byMaker := make(map[string]*group)
	for _, r := range idx.reports {
		seen := map[string]struct{}{}
		for _, d := range r.devices {
			dev, ok := idx.devices[d]
			if !ok || dev.manufacturer == "" {
				continue
			}
			if _, dup := seen[dev.manufacturer]; dup {
				continue
			}
			seen[dev.manufacturer] = struct{}{}
			g := byMaker[dev.manufacturer]
			if g == nil {
				g = &group{}
				byMaker[dev.manufacturer] = g
			}
			g.reports = append(g.reports, r.id)
			g.weight += r.severity.Weight()
		}
	}

	var signals []Signal
	for _, maker := range sortedKeys(byMaker) {
		if ctx.Err() != nil {
			return signals
		}
		g := byMaker[maker]
		if len(g.reports) < ManufacturerMinEvents {
			continue
		}
		score := capScore(g.weight / float64(len(g.reports)))
		signals = append(signals, Signal{
			Type:      RuleManufacturer,
			EntityKey: maker,
			Description: fmt.Sprintf("制造商'%s'聚集%d个事件，平均严重度%.2f", maker, len(g.reports), score),
			Score:     score,
			Level:     levelFor(score),
			Evidence:  Evidence{ReportIDs: g.reports, Count: len(g.reports)},
			Recommendation: fmt.Sprintf("建议对%s的产品质量进行全面审查", maker),
		})
	}
	return signals
}

func deviceInjuryRule(ctx context.Context, idx *snapshotIndex) []Signal {
	type group struct {
		reports []string
		weight  float64
	}
	byPair := make(map[string]*group)
	for _, r := range idx.reports {
		for _, d := range r.devices {
			dev, ok := idx.devices[d]
			if !ok || dev.name == "" {
				continue
			}
			for _, inj := range r.injuries {
				key := dev.name + "→" + inj
				g := byPair[key]
				if g == nil {
					g = &group{}
					byPair[key] = g
				}
				g.reports = append(g.reports, r.id)
				g.weight += r.severity.Weight()
			}
		}
	}

	var signals []Signal
	for _, key := range sortedKeys(byPair) {
		if ctx.Err() != nil {
			return signals
		}
		g := byPair[key]
		if len(g.reports) < AssociationMinCount {
			continue
		}
		avg := g.weight / float64(len(g.reports))
		strength := capScore(avg * float64(len(g.reports)) / 3)
		if strength < AssociationMinStrength {
			continue
		}
		signals = append(signals, Signal{
			Type:      RuleDeviceInjury,
			EntityKey: key,
			Description: fmt.Sprintf("设备与伤害'%s'存在强关联（强度%.2f）", key, strength),
			Score:     strength,
			Level:     levelFor(strength),
			Evidence:  Evidence{ReportIDs: g.reports, Count: len(g.reports)},
			Recommendation: fmt.Sprintf("建议重点关注%s的关联机制研究", key),
		})
	}
	return signals
}

func capScore(s float64) float64 {
	if s > 1 {
		return 1
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
