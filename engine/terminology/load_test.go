package terminology

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/intellidevice/engine/engine/domain"
)

func writeVocabFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeVocabFile(t, dir, "terms.json", `{
		"a": [
			{"code": "A01", "label": "显示故障", "aliases": ["黑屏", " 花屏 ", ""], "hierarchy": "ROOT|A|A01"},
			{"code": "A02", "label": "报警系统故障"}
		],
		"F": [
			{"code": "F01", "label": "死亡"}
		]
	}`)

	vocab, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(vocab["A"]) != 2 {
		t.Fatalf("category a should be uppercased and hold 2 terms, got %v", vocab)
	}
	term := vocab["A"][0]
	if term.Code != "A01" || term.Hierarchy != "ROOT|A|A01" {
		t.Errorf("term = %+v", term)
	}
	// Aliases trimmed with empties dropped.
	if len(term.Aliases) != 2 {
		t.Errorf("aliases = %v", term.Aliases)
	}
}

func TestLoadFileRejectsMissingLabel(t *testing.T) {
	dir := t.TempDir()
	path := writeVocabFile(t, dir, "bad.json", `{"A": [{"code": "A01", "label": "  "}]}`)

	_, err := LoadFile(path)
	if !errors.Is(err, domain.ErrVocabularyLoad) {
		t.Fatalf("want ErrVocabularyLoad, got %v", err)
	}
}

func TestLoadFileRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := writeVocabFile(t, dir, "empty.json", `{}`)
	if _, err := LoadFile(path); !errors.Is(err, domain.ErrVocabularyLoad) {
		t.Fatalf("want ErrVocabularyLoad, got %v", err)
	}

	path = writeVocabFile(t, dir, "garbage.json", `not json`)
	if _, err := LoadFile(path); !errors.Is(err, domain.ErrVocabularyLoad) {
		t.Fatalf("want ErrVocabularyLoad, got %v", err)
	}
}

func TestLoadDirMerges(t *testing.T) {
	dir := t.TempDir()
	writeVocabFile(t, dir, "01-faults.json", `{"A": [{"code": "A01", "label": "显示故障"}]}`)
	writeVocabFile(t, dir, "02-impacts.json", `{"F": [{"code": "F01", "label": "死亡"}], "A": [{"code": "A09", "label": "电源故障"}]}`)
	writeVocabFile(t, dir, "notes.txt", `ignored`)

	vocab, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(vocab["A"]) != 2 || len(vocab["F"]) != 1 {
		t.Fatalf("merged vocab = %v", vocab)
	}
}

func TestLoadDirEmpty(t *testing.T) {
	if _, err := LoadDir(t.TempDir()); !errors.Is(err, domain.ErrVocabularyLoad) {
		t.Fatalf("want ErrVocabularyLoad, got %v", err)
	}
}

func TestCleanAliases(t *testing.T) {
	got := cleanAliases("显示/指示故障", []string{"黑屏", "显示/指示故障", "黑屏"})
	// Multi-part label contributes its parts; duplicates and the label itself
	// are dropped.
	want := map[string]bool{"显示": true, "指示故障": true, "黑屏": true}
	if len(got) != len(want) {
		t.Fatalf("aliases = %v", got)
	}
	for _, a := range got {
		if !want[a] {
			t.Errorf("unexpected alias %q", a)
		}
	}
}
