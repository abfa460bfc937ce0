package domain

import "strings"

// Severity keyword sets. The Chinese keyword taxonomy is configuration data
// inherited from the regulatory reporting domain; confirm changes with
// domain experts before editing.
var (
	deathKeywords = []string{
		"死亡", "无生命体征", "心跳停止", "呼吸停止", "去世",
	}
	severeKeywords = []string{
		"危重", "重度", "休克", "呼吸衰竭", "心衰", "昏迷", "骨折",
		"脊髓损伤", "窒息", "截瘫",
	}
	moderateKeywords = []string{
		"中度", "住院", "手术", "严重不适", "加护", "监护", "输血", "明显疼痛",
	}
	mildKeywords = []string{
		"轻度", "轻微", "皮肤红肿", "轻度疼痛", "短暂不适", "轻度不适",
	}
	noneKeywords = []string{
		"无伤害", "未造成伤害", "未受影响", "无不适",
	}

	// Secondary hints applied only when no primary keyword matched.
	riskSevereHints   = []string{"危", "衰竭", "休克", "窒息"}
	riskModerateHints = []string{"监护", "手术", "住院", "加护"}
)

// SeverityEvidence records a keyword hit backing a severity classification.
type SeverityEvidence struct {
	Keyword string   `json:"keyword"`
	Level   Severity `json:"level"`
}

// ClassifySeverity derives an injury severity from narrative text by keyword
// matching, most severe level first. Unknown text classifies as none.
func ClassifySeverity(text string) Severity {
	s, _ := ClassifySeverityEvidence(text)
	return s
}

// ClassifySeverityEvidence is ClassifySeverity plus the keyword hits that
// support the decision.
func ClassifySeverityEvidence(text string) (Severity, []SeverityEvidence) {
	t := strings.ToLower(text)
	var evidence []SeverityEvidence

	levels := []struct {
		level    Severity
		keywords []string
	}{
		{SeverityDeath, deathKeywords},
		{SeveritySevere, severeKeywords},
		{SeverityModerate, moderateKeywords},
		{SeverityMild, mildKeywords},
		{SeverityNone, noneKeywords},
	}

	result := Severity("")
	for _, lv := range levels {
		for _, kw := range lv.keywords {
			if strings.Contains(t, kw) {
				evidence = append(evidence, SeverityEvidence{Keyword: kw, Level: lv.level})
				if result == "" {
					result = lv.level
				}
			}
		}
	}
	if result != "" {
		return result, evidence
	}

	for _, kw := range riskSevereHints {
		if strings.Contains(t, kw) {
			evidence = append(evidence, SeverityEvidence{Keyword: kw, Level: SeveritySevere})
		}
	}
	if len(evidence) > 0 {
		return SeveritySevere, evidence
	}
	for _, kw := range riskModerateHints {
		if strings.Contains(t, kw) {
			evidence = append(evidence, SeverityEvidence{Keyword: kw, Level: SeverityModerate})
		}
	}
	if len(evidence) > 0 {
		return SeverityModerate, evidence
	}
	return SeverityNone, nil
}
