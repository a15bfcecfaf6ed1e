// Package report assembles generated category guides and the request payload
// into a MedicalReport, and renders it as JSON and markdown. Nothing here
// does I/O.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/ayush/medical-report-worker/internal/models"
)

// UniqueCategories returns the distinct resource categories in first-seen
// order. Blank categories are ignored.
func UniqueCategories(resources []models.Resource) []string {
	seen := make(map[string]struct{}, len(resources))
	categories := make([]string, 0, len(resources))
	for _, r := range resources {
		if r.Category == "" {
			continue
		}
		if _, ok := seen[r.Category]; ok {
			continue
		}
		seen[r.Category] = struct{}{}
		categories = append(categories, r.Category)
	}
	return categories
}

// Assemble copies the request payload verbatim and appends the category
// guides. CategoryReports is never nil.
func Assemble(req *models.GenerationRequest, items []models.CategoryReportItem) models.MedicalReport {
	if items == nil {
		items = []models.CategoryReportItem{}
	}
	return models.MedicalReport{
		Patient:         req.Patient,
		Labs:            req.Labs,
		CVDSummary:      req.CVDSummary,
		Assessment:      req.Assessment,
		Plan:            req.Plan,
		RedFlags:        req.RedFlags,
		ResourcesTable:  req.ResourcesTable,
		CategoryReports: items,
		Disclaimer:      req.DisclaimerOrDefault(),
	}
}

// ToJSON returns the indented JSON form stored alongside the report.
func ToJSON(r models.MedicalReport) (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(b), nil
}

// FromJSON parses the output of ToJSON.
func FromJSON(s string) (models.MedicalReport, error) {
	var r models.MedicalReport
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return models.MedicalReport{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return r, nil
}
