package terminology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/intellidevice/engine/engine/domain"
)

// fileEntry is the on-disk shape of one vocabulary term.
type fileEntry struct {
	Code       string   `json:"code"`
	Label      string   `json:"label"`
	Definition string   `json:"definition"`
	Aliases    []string `json:"aliases"`
	Hierarchy  string   `json:"hierarchy"`
}

// LoadFile parses one vocabulary JSON file shaped as
// {"A": [{code,label,definition,aliases}], "E": [...], ...}.
func LoadFile(path string) (Vocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("terminology: read %s: %w: %v", path, domain.ErrVocabularyLoad, err)
	}
	var byCategory map[string][]fileEntry
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		return nil, fmt.Errorf("terminology: parse %s: %w: %v", path, domain.ErrVocabularyLoad, err)
	}

	vocab := make(Vocabulary, len(byCategory))
	for category, entries := range byCategory {
		category = strings.ToUpper(strings.TrimSpace(category))
		if category == "" {
			return nil, fmt.Errorf("terminology: %s: empty category key: %w", path, domain.ErrVocabularyLoad)
		}
		for _, e := range entries {
			label := strings.TrimSpace(e.Label)
			if label == "" {
				return nil, fmt.Errorf("terminology: %s: category %s has a term without a label: %w",
					path, category, domain.ErrVocabularyLoad)
			}
			vocab[category] = append(vocab[category], Term{
				Category:   category,
				Code:       strings.TrimSpace(e.Code),
				Label:      label,
				Definition: strings.TrimSpace(e.Definition),
				Aliases:    cleanAliases(label, e.Aliases),
				Hierarchy:  strings.TrimSpace(e.Hierarchy),
			})
		}
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("terminology: %s: no categories: %w", path, domain.ErrVocabularyLoad)
	}
	return vocab, nil
}

// LoadDir merges every *.json file in dir into one vocabulary. Files are
// visited in name order so repeated loads build identical indices.
func LoadDir(dir string) (Vocabulary, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("terminology: scan %s: %w: %v", dir, domain.ErrVocabularyLoad, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("terminology: %s: no vocabulary files: %w", dir, domain.ErrVocabularyLoad)
	}
	sort.Strings(paths)

	merged := make(Vocabulary)
	for _, p := range paths {
		vocab, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		for category, terms := range vocab {
			merged[category] = append(merged[category], terms...)
		}
	}
	return merged, nil
}

// cleanAliases normalizes the alias list: trimmed, deduplicated, label words
// added as implicit aliases for multi-part labels.
func cleanAliases(label string, aliases []string) []string {
	parts := strings.Fields(strings.NewReplacer("/", " ", "、", " ").Replace(label))
	all := make([]string, 0, len(parts)+len(aliases))
	if len(parts) > 1 {
		all = append(all, parts...)
	}
	for _, a := range aliases {
		if a = strings.TrimSpace(a); a != "" && a != label {
			all = append(all, a)
		}
	}
	return dedupe(all)
}
