package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/ayush/medical-report-worker/internal/apperrors"
	"github.com/ayush/medical-report-worker/internal/knowledge"
	"github.com/ayush/medical-report-worker/internal/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	anonymousUser    = "anonymous"
	maxRequestBytes  = 1 << 20
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ReportStore reads stored reports.
type ReportStore interface {
	GetReport(ctx context.Context, reportID string) (*models.StoredReport, error)
	ListUserReports(ctx context.Context, userID string, limit, skip int64) ([]models.StoredReport, error)
	CountUserReports(ctx context.Context, userID string) (int64, error)
}

// ReportCache serves recently generated reports.
type ReportCache interface {
	GetCachedReport(ctx context.Context, reportID string) (*models.StoredReport, bool)
	CacheReport(ctx context.Context, rep *models.StoredReport) error
}

// RequestPublisher enqueues generation requests.
type RequestPublisher interface {
	PublishRequest(ctx context.Context, req *models.GenerationRequest) error
}

// JobStore is the job ledger.
type JobStore interface {
	MarkQueued(ctx context.Context, requestID, userID string) error
	GetJob(ctx context.Context, requestID string) (*models.JobRecord, error)
}

// CategoryLister lists knowledge base categories.
type CategoryLister interface {
	Categories(ctx context.Context) ([]string, error)
}

// KnowledgeImporter loads a knowledge base directory.
type KnowledgeImporter interface {
	Import(ctx context.Context, fsys fs.FS) (knowledge.ImportResult, error)
}

// FileStore downloads report artifacts.
type FileStore interface {
	Download(ctx context.Context, key string) ([]byte, string, error)
}

// Handler holds the report HTTP handlers. Jobs, Files and Importer are
// optional.
type Handler struct {
	Reports    ReportStore
	Cache      ReportCache
	Publisher  RequestPublisher
	Categories CategoryLister
	Jobs       JobStore
	Files      FileStore
	Importer   KnowledgeImporter
	KBDir      fs.FS
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Enqueue validates a generation request and publishes it to the request
// queue.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	var req models.GenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.UserID == "" {
		req.UserID = anonymousUser
	}
	if err := validateRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Publisher.PublishRequest(r.Context(), &req); err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("enqueue failed")
		writeError(w, http.StatusServiceUnavailable, "failed to queue request")
		return
	}
	if h.Jobs != nil {
		if err := h.Jobs.MarkQueued(r.Context(), req.RequestID, req.UserID); err != nil {
			log.Warn().Err(err).Str("request_id", req.RequestID).Msg("job ledger update failed")
		}
	}

	log.Info().Str("request_id", req.RequestID).Str("user_id", req.UserID).Msg("request queued")
	writeJSON(w, http.StatusAccepted, models.EnqueueResponse{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Status:    models.JobQueued,
	})
}

// validateRequest checks a request before it is queued.
func validateRequest(req *models.GenerationRequest) error {
	if err := validate.Struct(req); err != nil {
		return apperrors.Validation(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.StructField() == "ResourcesTable" && fe.Tag() == "min" {
			msgs = append(msgs, "resources_table must contain at least one resource")
			continue
		}
		msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}

// lookup returns a report from the cache, falling back to the store and
// refilling the cache on a miss.
func (h *Handler) lookup(ctx context.Context, log *zerolog.Logger, id string) (*models.StoredReport, bool, error) {
	if rep, ok := h.Cache.GetCachedReport(ctx, id); ok {
		return rep, true, nil
	}
	rep, err := h.Reports.GetReport(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if err := h.Cache.CacheReport(ctx, rep); err != nil {
		log.Warn().Err(err).Str("report_id", id).Msg("caching report failed")
	}
	return rep, false, nil
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.Is(err, apperrors.KindNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("report lookup failed")
	writeError(w, http.StatusInternalServerError, "database error")
}

// GetReport returns a stored report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, hit, err := h.lookup(r.Context(), hlog.FromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetMarkdown returns the rendered markdown of a report.
func (h *Handler) GetMarkdown(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rep, _, err := h.lookup(r.Context(), hlog.FromRequest(r), id)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	if rep.GeneratedFiles.Markdown == "" {
		writeError(w, http.StatusNotFound, "markdown content not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"report_id": id, "content": rep.GeneratedFiles.Markdown})
}

// DownloadArtifact streams the stored JSON or markdown document from object
// storage.
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	if h.Files == nil {
		writeError(w, http.StatusNotFound, "artifact storage disabled")
		return
	}
	rep, _, err := h.lookup(r.Context(), hlog.FromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}

	var key, filename string
	switch chi.URLParam(r, "format") {
	case "json":
		key, filename = rep.Artifacts.JSONKey, "report.json"
	case "markdown":
		key, filename = rep.Artifacts.MarkdownKey, "report.md"
	default:
		writeError(w, http.StatusBadRequest, "format must be json or markdown")
		return
	}
	if key == "" {
		writeError(w, http.StatusNotFound, "artifact not available")
		return
	}

	data, ct, err := h.Files.Download(r.Context(), key)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("key", key).Msg("artifact download failed")
		writeError(w, http.StatusInternalServerError, "download failed")
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Write(data)
}

// ListUserReports returns a user's reports, most recent first.
func (h *Handler) ListUserReports(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit < 1 || limit > maxListLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}

	reports, err := h.Reports.ListUserReports(r.Context(), userID, limit, skip)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list reports failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	total, err := h.Reports.CountUserReports(r.Context(), userID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("count reports failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"reports": reports,
		"total":   total,
		"limit":   limit,
		"skip":    skip,
	})
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// GetJob returns the ledger row for a request.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.Jobs == nil {
		writeError(w, http.StatusNotFound, "job tracking disabled")
		return
	}
	job, err := h.Jobs.GetJob(r.Context(), chi.URLParam(r, "request_id"))
	if apperrors.Is(err, apperrors.KindNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("get job failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListCategories returns the knowledge base categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Categories.Categories(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list categories failed")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": cats})
}

// ImportKnowledgeBase loads the configured knowledge base directory.
func (h *Handler) ImportKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	if h.Importer == nil || h.KBDir == nil {
		writeError(w, http.StatusNotFound, "knowledge base import disabled")
		return
	}
	res, err := h.Importer.Import(r.Context(), h.KBDir)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("knowledge base import failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"imported_count": res.Total(),
		"inserted":       res.Inserted,
		"updated":        res.Updated,
	})
}
