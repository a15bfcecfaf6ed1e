// Package knowledge serves per-category reference content from the
// knowledge base and imports it from disk.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ayush/medical-report-worker/internal/models"
)

// Source is the read side of the knowledge base.
type Source interface {
	FindKnowledge(ctx context.Context, category, status string) ([]models.KnowledgeEntry, error)
	DistinctCategories(ctx context.Context, status string) ([]string, error)
}

// Lookup concatenates knowledge entries into prompt content.
type Lookup struct {
	src Source
	log zerolog.Logger
}

func NewLookup(src Source, log zerolog.Logger) *Lookup {
	return &Lookup{src: src, log: log.With().Str("component", "knowledge").Logger()}
}

// ContentForCategory returns every entry for the category rendered as a
// markdown section, in store order. Unknown categories and lookup failures
// both yield "".
func (l *Lookup) ContentForCategory(ctx context.Context, category string) string {
	entries, err := l.src.FindKnowledge(ctx, category, models.KnowledgeStatusDraft)
	if err != nil {
		l.log.Error().Err(err).Str("category", category).Msg("knowledge lookup failed")
		return ""
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "# %s\n\nSource: %s\n\n%s\n\n---\n\n", e.Title, e.SourceURL, e.Content)
	}
	return b.String()
}

// Categories lists the distinct categories that have content.
func (l *Lookup) Categories(ctx context.Context) ([]string, error) {
	return l.src.DistinctCategories(ctx, models.KnowledgeStatusDraft)
}
