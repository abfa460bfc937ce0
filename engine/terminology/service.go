package terminology

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/intellidevice/engine/engine/domain"
)

// Loader produces a vocabulary, typically from disk via LoadDir or LoadFile.
type Loader func() (Vocabulary, error)

// Service serves similarity search against the current vocabulary index.
// Reload builds a fresh index off to the side and swaps it in atomically, so
// readers see either the old or the new index, never a mix.
type Service struct {
	loader Loader
	log    *slog.Logger
	idx    atomic.Pointer[Index]
}

// NewService wires a service around a vocabulary loader. Call Load before
// serving searches.
func NewService(loader Loader, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{loader: loader, log: log}
}

// Load builds and installs a fresh index. On failure the previous index, if
// any, stays in place.
func (s *Service) Load(ctx context.Context) error {
	vocab, err := s.loader()
	if err != nil {
		return fmt.Errorf("terminology: load: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("terminology: load: %w", err)
	}
	idx := NewIndex(vocab)
	s.idx.Store(idx)

	s.log.InfoContext(ctx, "vocabulary loaded",
		"categories", len(idx.Categories()),
		"terms", idx.TotalTerms())
	return nil
}

// Reload rebuilds the index from the loader. Alias for Load; named separately
// at call sites that trigger it administratively.
func (s *Service) Reload(ctx context.Context) error { return s.Load(ctx) }

// Index returns the current index, or nil before the first successful Load.
func (s *Service) Index() *Index { return s.idx.Load() }

// Search runs similarity search against the current index.
func (s *Service) Search(text string, categories []string, topK int, threshold float64) (map[string][]Match, error) {
	idx := s.idx.Load()
	if idx == nil {
		return nil, fmt.Errorf("terminology: search before load: %w", domain.ErrVocabularyLoad)
	}
	return idx.Search(text, categories, topK, threshold)
}

// Categories lists the categories of the current index.
func (s *Service) Categories() []string {
	idx := s.idx.Load()
	if idx == nil {
		return nil
	}
	return idx.Categories()
}
