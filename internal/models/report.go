package models

import "time"

// DefaultDisclaimer is attached to requests that arrive without one.
const DefaultDisclaimer = "This report is based on the provided clinical data and risk calculator outputs. " +
	"It is intended for informational purposes and should not replace professional medical advice. " +
	"Please consult your healthcare provider for personalized recommendations."

// Patient identifies who the report is written for.
type Patient struct {
	Name string `json:"name" bson:"name" validate:"required"`
	Age  int    `json:"age"  bson:"age"  validate:"gte=0"`
	Sex  string `json:"sex"  bson:"sex"`
}

// Lab is a single laboratory result.
type Lab struct {
	Category       string `json:"category"        bson:"category"`
	TestName       string `json:"test_name"       bson:"test_name"`
	Value          string `json:"value"           bson:"value"`
	Unit           string `json:"unit"            bson:"unit"`
	ReferenceRange string `json:"reference_range" bson:"reference_range"`
	Flag           string `json:"flag"            bson:"flag"`
}

// CVDSummary is the output of a cardiovascular risk calculator.
type CVDSummary struct {
	FiveYearRiskPercent   float64  `json:"five_year_risk_percent"  bson:"five_year_risk_percent"`
	RiskLevel             string   `json:"risk_level"              bson:"risk_level"`
	Interpretation        string   `json:"interpretation"          bson:"interpretation"`
	ModifiableRiskFactors []string `json:"modifiable_risk_factors" bson:"modifiable_risk_factors"`
	RiskReductionAdvice   []string `json:"risk_reduction_advice"   bson:"risk_reduction_advice"`
}

type Lifestyle struct {
	Smoking          string `json:"smoking"           bson:"smoking"`
	Alcohol          string `json:"alcohol"           bson:"alcohol"`
	Diet             string `json:"diet"              bson:"diet"`
	PhysicalActivity string `json:"physical_activity" bson:"physical_activity"`
}

type Assessment struct {
	Summary       string    `json:"summary"        bson:"summary"`
	FamilyHistory string    `json:"family_history" bson:"family_history"`
	Lifestyle     Lifestyle `json:"lifestyle"      bson:"lifestyle"`
}

type PlanItem struct {
	Advice       string `json:"advice"         bson:"advice"`
	KBResourceID string `json:"kb_resource_id" bson:"kb_resource_id"`
}

type RedFlag struct {
	Symptom string `json:"symptom" bson:"symptom"`
	Note    string `json:"note"    bson:"note"`
}

// Resource is one row of the resources table. Its category drives generation.
type Resource struct {
	Category string `json:"category" bson:"category" validate:"required"`
	Title    string `json:"title"    bson:"title"`
	URL      string `json:"url"      bson:"url"`
}

// CategoryReportItem is the generated guide for a single category.
type CategoryReportItem struct {
	Category string   `json:"category" bson:"category"`
	Text     string   `json:"text"     bson:"text"`
	Sources  []string `json:"sources"  bson:"sources"`
}

// GenerationRequest is the job carried on the request queue.
type GenerationRequest struct {
	RequestID      string      `json:"request_id"      validate:"omitempty,max=128"`
	UserID         string      `json:"user_id"         validate:"omitempty,max=128"`
	Patient        Patient     `json:"patient"`
	Labs           []Lab       `json:"labs"`
	CVDSummary     *CVDSummary `json:"cvd_summary"`
	Assessment     Assessment  `json:"assessment"`
	Plan           []PlanItem  `json:"plan"`
	RedFlags       []RedFlag   `json:"red_flags"`
	ResourcesTable []Resource  `json:"resources_table" validate:"min=1,dive"`
	Disclaimer     string      `json:"disclaimer"`
}

// DisclaimerOrDefault returns the request disclaimer, falling back to DefaultDisclaimer.
func (r *GenerationRequest) DisclaimerOrDefault() string {
	if r.Disclaimer == "" {
		return DefaultDisclaimer
	}
	return r.Disclaimer
}

// MedicalReport is the assembled report: the request payload plus generated guides.
type MedicalReport struct {
	Patient         Patient              `json:"patient"          bson:"patient"`
	Labs            []Lab                `json:"labs"             bson:"labs"`
	CVDSummary      *CVDSummary          `json:"cvd_summary"      bson:"cvd_summary"`
	Assessment      Assessment           `json:"assessment"       bson:"assessment"`
	Plan            []PlanItem           `json:"plan"             bson:"plan"`
	RedFlags        []RedFlag            `json:"red_flags"        bson:"red_flags"`
	ResourcesTable  []Resource           `json:"resources_table"  bson:"resources_table"`
	CategoryReports []CategoryReportItem `json:"category_reports" bson:"category_reports"`
	Disclaimer      string               `json:"disclaimer"       bson:"disclaimer"`
}

// GeneratedFiles holds the serialized forms of a report. PDF is always nil;
// it is reserved for on-demand rendering.
type GeneratedFiles struct {
	JSON     string  `json:"json"     bson:"json"`
	Markdown string  `json:"markdown" bson:"markdown"`
	PDF      *string `json:"pdf"      bson:"pdf"`
}

// Artifacts are object-storage keys for the uploaded copies of GeneratedFiles.
// Empty keys mean the upload was skipped or failed.
type Artifacts struct {
	JSONKey     string `json:"json_key,omitempty"     bson:"json_key,omitempty"`
	MarkdownKey string `json:"markdown_key,omitempty" bson:"markdown_key,omitempty"`
}

const ReportStatusCompleted = "completed"

// StoredReport is a generated report as persisted in MongoDB. The report
// fields are inlined into the document.
type StoredReport struct {
	ReportID              string         `json:"report_id"               bson:"report_id"`
	UserID                string         `json:"user_id"                 bson:"user_id"`
	MedicalReport         `bson:",inline"`
	GeneratedFiles        GeneratedFiles `json:"generated_files"         bson:"generated_files"`
	Artifacts             Artifacts      `json:"artifacts"               bson:"artifacts"`
	Status                string         `json:"status"                  bson:"status"`
	CreatedAt             time.Time      `json:"created_at"              bson:"created_at"`
	GenerationTimeSeconds float64        `json:"generation_time_seconds" bson:"generation_time_seconds"`
	ModelUsed             string         `json:"model_used"              bson:"model_used"`
	TotalTokens           int            `json:"total_tokens"            bson:"total_tokens"`
	CostUSD               float64        `json:"cost_usd"                bson:"cost_usd"`
}
