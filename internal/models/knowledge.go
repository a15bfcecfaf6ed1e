package models

// KnowledgeStatusDraft is the status the importer writes and lookups filter on.
const KnowledgeStatusDraft = "draft"

// KnowledgeEntry is one reference document in the knowledge base. Everything
// except Content comes from metadata.json; Content is the markdown body.
type KnowledgeEntry struct {
	ID                 string   `json:"id"                   bson:"id"`
	FileName           string   `json:"file_name"            bson:"file_name"`
	Title              string   `json:"title"                bson:"title"`
	Category           string   `json:"category"             bson:"category"`
	AppliesTo          []string `json:"applies_to"           bson:"applies_to"`
	SummaryLengthWords int      `json:"summary_length_words" bson:"summary_length_words"`
	SourceURL          string   `json:"source_url"           bson:"source_url"`
	VerifiedSource     bool     `json:"verified_source"      bson:"verified_source"`
	LastUpdated        string   `json:"last_updated"         bson:"last_updated"`
	Status             string   `json:"status"               bson:"status"`
	Content            string   `json:"content,omitempty"    bson:"content"`
}
