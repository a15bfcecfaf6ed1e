package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayush/medical-report-worker/internal/models"
)

// Reports wraps a Cache with the two entry kinds the pipeline uses: the last
// raw input per user and recently generated reports.
type Reports struct {
	backend   Cache
	reportTTL time.Duration
}

func NewReports(backend Cache, reportTTL time.Duration) *Reports {
	return &Reports{backend: backend, reportTTL: reportTTL}
}

// CacheInput remembers the raw request body for a user with the default TTL.
func (r *Reports) CacheInput(ctx context.Context, userID string, body []byte) error {
	return r.backend.Set(ctx, inputKey(userID), body, 0)
}

func (r *Reports) GetCachedInput(ctx context.Context, userID string) ([]byte, bool) {
	return r.backend.Get(ctx, inputKey(userID))
}

// CacheReport stores a copy of a persisted report with the report TTL.
func (r *Reports) CacheReport(ctx context.Context, rep *models.StoredReport) error {
	b, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", rep.ReportID, err)
	}
	return r.backend.Set(ctx, reportKey(rep.ReportID), b, r.reportTTL)
}

// GetCachedReport returns the cached copy of a report. An undecodable entry
// is treated as a miss.
func (r *Reports) GetCachedReport(ctx context.Context, reportID string) (*models.StoredReport, bool) {
	b, ok := r.backend.Get(ctx, reportKey(reportID))
	if !ok {
		return nil, false
	}
	var rep models.StoredReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, false
	}
	return &rep, true
}

func (r *Reports) EvictReport(ctx context.Context, reportID string) error {
	return r.backend.Delete(ctx, reportKey(reportID))
}
