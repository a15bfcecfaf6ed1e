// Package generation turns knowledge-base content into a patient-facing
// summary for one category using a chat-completion model.
package generation

import (
	"context"

	"github.com/ayush/medical-report-worker/internal/models"
)

// Usage is the token accounting for one generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generator produces the report item for a single category.
type Generator interface {
	GenerateCategoryReport(ctx context.Context, category, content string) (models.CategoryReportItem, Usage, error)
	Model() string
}

const systemPrompt = `You are a helpful health information assistant.
Create a friendly, one-page report summarizing the provided content.
Keep the tone warm and encouraging.
Include inline links in the text using markdown format [text](url).
Also provide a separate list of all source URLs at the end.`

const formatInstructions = `Respond with a single JSON object with exactly these keys:
  "category": the category name,
  "text": the report body as markdown,
  "sources": an array of every source URL used.`

func userPrompt(category, content string) string {
	return "Based on the following content about " + category + ",\n" +
		"create a one-page friendly summary report.\n" +
		"Include inline source links in markdown format throughout the text.\n" +
		"Extract and list all source URLs separately.\n\n" +
		"Content:\n" + content + "\n\n" + formatInstructions
}
