package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog"

	"github.com/ayush/medical-report-worker/internal/models"
)

// MetadataFile lists the entries of a knowledge base directory.
const MetadataFile = "metadata.json"

// Sink is the write side of the knowledge base.
type Sink interface {
	UpsertKnowledgeEntry(ctx context.Context, e *models.KnowledgeEntry) (bool, error)
}

// ImportResult counts what an import did.
type ImportResult struct {
	Inserted int
	Updated  int
}

func (r ImportResult) Total() int { return r.Inserted + r.Updated }

// Importer loads metadata.json and the markdown files it names.
type Importer struct {
	sink Sink
	log  zerolog.Logger
}

func NewImporter(sink Sink, log zerolog.Logger) *Importer {
	return &Importer{sink: sink, log: log.With().Str("component", "kb-import").Logger()}
}

// Import upserts every entry in fsys/metadata.json by id, with its markdown
// body as content. Entries without a status are imported as drafts. A
// missing markdown file aborts the import.
func (im *Importer) Import(ctx context.Context, fsys fs.FS) (ImportResult, error) {
	var res ImportResult

	raw, err := fs.ReadFile(fsys, MetadataFile)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", MetadataFile, err)
	}
	var entries []models.KnowledgeEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return res, fmt.Errorf("parse %s: %w", MetadataFile, err)
	}

	for i := range entries {
		e := &entries[i]
		if e.ID == "" || e.FileName == "" {
			return res, fmt.Errorf("%s entry %d: id and file_name are required", MetadataFile, i)
		}
		body, err := fs.ReadFile(fsys, e.FileName)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", e.FileName, err)
		}
		e.Content = string(body)
		if e.Status == "" {
			e.Status = models.KnowledgeStatusDraft
		}

		created, err := im.sink.UpsertKnowledgeEntry(ctx, e)
		if err != nil {
			return res, err
		}
		if created {
			res.Inserted++
		} else {
			res.Updated++
		}
		im.log.Debug().Str("id", e.ID).Str("category", e.Category).Bool("created", created).Msg("imported")
	}

	im.log.Info().Int("inserted", res.Inserted).Int("updated", res.Updated).Msg("knowledge base imported")
	return res, nil
}
