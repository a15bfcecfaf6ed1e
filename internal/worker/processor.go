// Package worker turns generation requests into stored reports.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ayush/medical-report-worker/internal/apperrors"
	"github.com/ayush/medical-report-worker/internal/generation"
	"github.com/ayush/medical-report-worker/internal/models"
	"github.com/ayush/medical-report-worker/internal/report"
)

// ReportStore persists users and reports.
type ReportStore interface {
	UpsertUser(ctx context.Context, userID string, now time.Time) error
	InsertReport(ctx context.Context, rep *models.StoredReport) error
}

// ContentSource returns knowledge-base content for a category, "" if none.
type ContentSource interface {
	ContentForCategory(ctx context.Context, category string) string
}

// ReportCache holds last inputs and recent reports.
type ReportCache interface {
	GetCachedInput(ctx context.Context, userID string) ([]byte, bool)
	CacheInput(ctx context.Context, userID string, body []byte) error
	CacheReport(ctx context.Context, rep *models.StoredReport) error
}

// ArtifactStore uploads rendered report documents.
type ArtifactStore interface {
	UploadReport(ctx context.Context, userID, reportID string, files models.GeneratedFiles) (models.Artifacts, error)
	RemoveReport(ctx context.Context, a models.Artifacts) error
}

// JobLedger records request progress for polling producers.
type JobLedger interface {
	MarkProcessing(ctx context.Context, requestID, userID string) error
	MarkCompleted(ctx context.Context, requestID, reportID string) error
	MarkFailed(ctx context.Context, requestID, errMsg string) error
}

// unknownUser stands in for a missing user_id on failed responses.
const unknownUser = "unknown"

// Result is the outcome of one job. Err is nil on success.
type Result struct {
	RequestID string
	UserID    string
	ReportID  string
	Err       error
}

// Response converts the result into the message published for it.
func (r Result) Response(now time.Time) models.ResponseMessage {
	msg := models.ResponseMessage{
		RequestID: r.RequestID,
		UserID:    r.UserID,
		Status:    models.StatusSuccess,
		ReportID:  r.ReportID,
		Timestamp: now.UTC(),
	}
	if r.Err != nil {
		errMsg := r.Err.Error()
		msg.Status = models.StatusFailed
		msg.ReportID = ""
		msg.ErrorMessage = &errMsg
	}
	return msg
}

// Deps are the collaborators a Processor needs. Artifacts and Ledger may be
// nil.
type Deps struct {
	Store     ReportStore
	Content   ContentSource
	Generator generation.Generator
	Cache     ReportCache
	Artifacts ArtifactStore
	Ledger    JobLedger
	Metrics   *Metrics
}

// Processor runs the per-job steps: cache check, user upsert, content
// lookup, generation, storage and report caching.
type Processor struct {
	Deps
	costPer1K float64
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

func NewProcessor(deps Deps, costPer1K float64, log zerolog.Logger) *Processor {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Processor{
		Deps:      deps,
		costPer1K: costPer1K,
		log:       log.With().Str("component", "processor").Logger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Process decodes body and runs the job. The returned error is only set for
// requests whose request_id cannot be recovered; every other failure,
// malformed payloads included, is carried in Result.Err.
func (p *Processor) Process(ctx context.Context, body []byte) (Result, error) {
	var req models.GenerationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return p.malformed(ctx, body, apperrors.MalformedMessage("decode generation request", err))
	}
	if req.RequestID == "" || req.UserID == "" {
		return p.malformed(ctx, body, apperrors.MalformedMessage("request_id and user_id are required", nil))
	}

	start := p.now()
	log := p.log.With().Str("request_id", req.RequestID).Str("user_id", req.UserID).Logger()
	log.Info().Int("resources", len(req.ResourcesTable)).Msg("processing request")

	if p.Ledger != nil {
		if err := p.Ledger.MarkProcessing(ctx, req.RequestID, req.UserID); err != nil {
			log.Warn().Err(err).Msg("job ledger update failed")
		}
	}

	reportID, err := p.run(ctx, &req, body, start, log)
	res := Result{RequestID: req.RequestID, UserID: req.UserID, ReportID: reportID, Err: err}

	elapsed := p.now().Sub(start)
	p.Metrics.JobDuration.Observe(elapsed.Seconds())
	if err != nil {
		p.Metrics.Jobs.WithLabelValues(models.StatusFailed).Inc()
		log.Error().Err(err).Str("kind", string(apperrors.KindOf(err))).Msg("request failed")
		if p.Ledger != nil {
			if lerr := p.Ledger.MarkFailed(ctx, req.RequestID, err.Error()); lerr != nil {
				log.Warn().Err(lerr).Msg("job ledger update failed")
			}
		}
		return res, nil
	}

	p.Metrics.Jobs.WithLabelValues(models.StatusSuccess).Inc()
	log.Info().Str("report_id", reportID).Dur("elapsed", elapsed).Msg("request processed")
	if p.Ledger != nil {
		if lerr := p.Ledger.MarkCompleted(ctx, req.RequestID, reportID); lerr != nil {
			log.Warn().Err(lerr).Msg("job ledger update failed")
		}
	}
	return res, nil
}

// malformed answers a request that cannot be processed. When its request_id
// can still be read, the request fails with a Result like any other job;
// otherwise cause is returned and no response is possible.
func (p *Processor) malformed(ctx context.Context, body []byte, cause error) (Result, error) {
	var ids struct {
		RequestID string `json:"request_id"`
		UserID    string `json:"user_id"`
	}
	// Fields of the wrong type are skipped; whatever decodes is kept.
	_ = json.Unmarshal(body, &ids)
	if ids.RequestID == "" {
		p.Metrics.SkippedResponses.Inc()
		return Result{}, cause
	}
	if ids.UserID == "" {
		ids.UserID = unknownUser
	}

	log := p.log.With().Str("request_id", ids.RequestID).Str("user_id", ids.UserID).Logger()
	log.Error().Err(cause).Str("kind", string(apperrors.KindMalformedMessage)).Msg("request failed")
	p.Metrics.Jobs.WithLabelValues(models.StatusFailed).Inc()
	if p.Ledger != nil {
		if err := p.Ledger.MarkFailed(ctx, ids.RequestID, cause.Error()); err != nil {
			log.Warn().Err(err).Msg("job ledger update failed")
		}
	}
	return Result{RequestID: ids.RequestID, UserID: ids.UserID, Err: cause}, nil
}

type categoryContent struct {
	category string
	content  string
}

func (p *Processor) run(ctx context.Context, req *models.GenerationRequest, body []byte, start time.Time, log zerolog.Logger) (string, error) {
	// Cache check. The previous input is informational only.
	if _, ok := p.Cache.GetCachedInput(ctx, req.UserID); ok {
		p.Metrics.CacheOperations.WithLabelValues("get_input", "hit").Inc()
		log.Info().Msg("found cached input for user")
	} else {
		p.Metrics.CacheOperations.WithLabelValues("get_input", "miss").Inc()
	}
	if err := p.Cache.CacheInput(ctx, req.UserID, body); err != nil {
		p.Metrics.CacheOperations.WithLabelValues("set_input", "error").Inc()
		log.Warn().Err(err).Msg("caching input failed")
	}

	if err := p.Store.UpsertUser(ctx, req.UserID, p.now().UTC()); err != nil {
		return "", apperrors.Persistence("upsert user", err)
	}

	var pending []categoryContent
	for _, category := range report.UniqueCategories(req.ResourcesTable) {
		content := p.Content.ContentForCategory(ctx, category)
		if content == "" {
			log.Warn().Str("category", category).Msg("no knowledge base content, skipping category")
			continue
		}
		pending = append(pending, categoryContent{category: category, content: content})
	}

	items := make([]models.CategoryReportItem, 0, len(pending))
	var tokens int
	for _, c := range pending {
		log.Info().Str("category", c.category).Msg("generating category report")
		item, usage, err := p.Generator.GenerateCategoryReport(ctx, c.category, c.content)
		tokens += usage.TotalTokens
		p.Metrics.Tokens.Add(float64(usage.TotalTokens))
		if err != nil {
			p.Metrics.Generations.WithLabelValues("error").Inc()
			return "", apperrors.Generation(fmt.Sprintf("generate %s report", c.category), err)
		}
		p.Metrics.Generations.WithLabelValues("success").Inc()
		item.Category = c.category
		items = append(items, item)
	}

	rep := report.Assemble(req, items)
	jsonDoc, err := report.ToJSON(rep)
	if err != nil {
		return "", apperrors.Persistence("render report json", err)
	}
	files := models.GeneratedFiles{
		JSON:     jsonDoc,
		Markdown: report.ToMarkdown(rep, p.now()),
	}

	reportID := p.newID()
	var artifacts models.Artifacts
	if p.Artifacts != nil {
		artifacts, err = p.Artifacts.UploadReport(ctx, req.UserID, reportID, files)
		if err != nil {
			log.Warn().Err(err).Msg("artifact upload failed")
		}
	}

	stored := &models.StoredReport{
		ReportID:              reportID,
		UserID:                req.UserID,
		MedicalReport:         rep,
		GeneratedFiles:        files,
		Artifacts:             artifacts,
		Status:                models.ReportStatusCompleted,
		CreatedAt:             p.now().UTC(),
		GenerationTimeSeconds: p.now().Sub(start).Seconds(),
		ModelUsed:             p.Generator.Model(),
		TotalTokens:           tokens,
		CostUSD:               float64(tokens) / 1000 * p.costPer1K,
	}
	if err := p.Store.InsertReport(ctx, stored); err != nil {
		if p.Artifacts != nil && artifacts.JSONKey != "" {
			if rerr := p.Artifacts.RemoveReport(ctx, artifacts); rerr != nil {
				log.Warn().Err(rerr).Msg("removing orphaned artifacts failed")
			}
		}
		return "", apperrors.Persistence("store report", err)
	}
	log.Info().Str("report_id", reportID).Int("categories", len(items)).Msg("report stored")

	if err := p.Cache.CacheReport(ctx, stored); err != nil {
		p.Metrics.CacheOperations.WithLabelValues("set_report", "error").Inc()
		log.Warn().Err(err).Str("report_id", reportID).Msg("caching report failed")
	} else {
		p.Metrics.CacheOperations.WithLabelValues("set_report", "success").Inc()
	}
	return reportID, nil
}
