package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ayush/medical-report-worker/internal/models"
)

// ToMarkdown renders the patient-facing document. Output depends only on the
// report and the date of now.
func ToMarkdown(r models.MedicalReport, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Medical Report: %s\n\n", r.Patient.Name)
	fmt.Fprintf(&b, "**Date Generated:** %s\n\n", now.Format("2006-01-02"))

	b.WriteString("## Patient Information\n\n")
	fmt.Fprintf(&b, "- **Name:** %s\n", r.Patient.Name)
	fmt.Fprintf(&b, "- **Age:** %d\n", r.Patient.Age)
	fmt.Fprintf(&b, "- **Sex:** %s\n\n", r.Patient.Sex)

	if r.CVDSummary != nil {
		writeCVD(&b, r.CVDSummary)
	}

	b.WriteString("## Assessment\n\n")
	fmt.Fprintf(&b, "%s\n\n", r.Assessment.Summary)
	b.WriteString("### Lifestyle\n\n")
	fmt.Fprintf(&b, "- **Smoking:** %s\n", r.Assessment.Lifestyle.Smoking)
	fmt.Fprintf(&b, "- **Alcohol:** %s\n", r.Assessment.Lifestyle.Alcohol)
	fmt.Fprintf(&b, "- **Diet:** %s\n", r.Assessment.Lifestyle.Diet)
	fmt.Fprintf(&b, "- **Physical Activity:** %s\n\n", r.Assessment.Lifestyle.PhysicalActivity)

	if len(r.RedFlags) > 0 {
		b.WriteString("## Red Flags\n\n")
		for _, flag := range r.RedFlags {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", flag.Symptom, flag.Note)
		}
	}

	if len(r.Plan) > 0 {
		b.WriteString("## Treatment Plan\n\n")
		for i, item := range r.Plan {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item.Advice)
		}
		b.WriteString("\n")
	}

	if len(r.CategoryReports) > 0 {
		b.WriteString("## Detailed Health Information Guides\n\n")
		for _, item := range r.CategoryReports {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", CategoryTitle(item.Category), item.Text)
			if len(item.Sources) > 0 {
				b.WriteString("**Sources:**\n\n")
				for _, src := range item.Sources {
					fmt.Fprintf(&b, "- %s\n", src)
				}
				b.WriteString("\n")
			}
			b.WriteString("---\n\n")
		}
	}

	if len(r.ResourcesTable) > 0 {
		b.WriteString("## Additional Resources\n\n")
		order, groups := groupResources(r.ResourcesTable)
		for _, category := range order {
			fmt.Fprintf(&b, "### %s\n\n", CategoryTitle(category))
			for _, res := range groups[category] {
				fmt.Fprintf(&b, "- [%s](%s)\n", res.Title, res.URL)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("---\n\n")
	b.WriteString("## Disclaimer\n\n")
	fmt.Fprintf(&b, "%s\n", r.Disclaimer)

	return b.String()
}

func writeCVD(b *strings.Builder, cvd *models.CVDSummary) {
	b.WriteString("## Cardiovascular Risk Summary\n\n")
	fmt.Fprintf(b, "**Risk Level:** %s\n\n", strings.ToUpper(cvd.RiskLevel))
	fmt.Fprintf(b, "**5-Year Risk:** %s%%\n\n", formatPercent(cvd.FiveYearRiskPercent))
	fmt.Fprintf(b, "**Interpretation:** %s\n\n", cvd.Interpretation)

	if len(cvd.ModifiableRiskFactors) > 0 {
		b.WriteString("**Modifiable Risk Factors:**\n\n")
		for _, f := range cvd.ModifiableRiskFactors {
			fmt.Fprintf(b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	if len(cvd.RiskReductionAdvice) > 0 {
		b.WriteString("**Risk Reduction Advice:**\n\n")
		for _, a := range cvd.RiskReductionAdvice {
			fmt.Fprintf(b, "- %s\n", a)
		}
		b.WriteString("\n")
	}
}

// groupResources buckets resources by category in first-seen order. Blank
// categories form their own group.
func groupResources(resources []models.Resource) ([]string, map[string][]models.Resource) {
	var order []string
	groups := make(map[string][]models.Resource)
	for _, res := range resources {
		if _, ok := groups[res.Category]; !ok {
			order = append(order, res.Category)
		}
		groups[res.Category] = append(groups[res.Category], res)
	}
	return order, groups
}

// formatPercent always keeps a decimal point: 12 renders as "12.0".
func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

// CategoryTitle turns "weight_management" into "Weight Management". A letter
// is upper-cased when it follows a non-letter, so "a1c_levels" becomes
// "A1C Levels".
func CategoryTitle(category string) string {
	words := strings.Fields(strings.ReplaceAll(category, "_", " "))
	for i, w := range words {
		runes := []rune(w)
		prevLetter := false
		for j, r := range runes {
			if prevLetter {
				runes[j] = unicode.ToLower(r)
			} else {
				runes[j] = unicode.ToUpper(r)
			}
			prevLetter = unicode.IsLetter(r)
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
