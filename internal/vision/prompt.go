package vision

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/instabids/smartscope/internal/imaging"
	"github.com/instabids/smartscope/internal/storage/models"
)

const systemPrompt = `You are SmartScope AI, an assistant that analyses property maintenance photos for a marketplace
connecting property managers with contractors. Provide detailed, standardised scopes of work
that help contractors submit accurate bids.

Your analysis should be:
- Specific and actionable for contractors
- Based on what's visible in the photos
- Realistic about time and material estimates
- Safety-conscious and code-compliant
- Clear about uncertainties and assumptions

Focus on creating scope items that contractors can easily understand and bid on accurately.`

// FallbackCategory receives requests whose category has no dedicated entry.
const FallbackCategory = "General Maintenance"

// categoryGuidance steers the model per maintenance category. The map is
// closed: every entry must also have a workflow template, checked at load.
var categoryGuidance = map[string]string{
	"Plumbing": `For plumbing issues:
- Identify the specific plumbing system affected (supply, drainage, fixtures)
- Note water damage risks and containment needs
- Assess urgency based on water flow and damage potential
- Consider code compliance requirements for repairs
- Evaluate access challenges (walls, crawl spaces, etc.)`,
	"Electrical": `For electrical issues:
- Prioritise safety - note any exposed wiring or electrical hazards
- Identify circuit types and amperage requirements
- Note compliance needs with local electrical codes
- Consider permit requirements for significant work
- Assess panel capacity for new circuits or upgrades`,
	"HVAC": `For HVAC systems:
- Identify system type (central air, heat pump, boiler, etc.)
- Note seasonal urgency and tenant comfort impact
- Assess filter access and replacement schedules
- Consider energy efficiency opportunities
- Evaluate ductwork access and condition`,
	"Roofing": `For roofing issues:
- Assess weather exposure and urgency
- Note structural integrity and safety concerns
- Identify roofing material type and age
- Consider access challenges and safety equipment needs
- Evaluate drainage and guttering systems`,
	"Flooring": `For flooring issues:
- Identify flooring material and subfloor condition
- Note safety hazards (trip risks, loose materials)
- Assess moisture damage and mold risks
- Consider tenant disruption during repairs
- Evaluate matching materials for partial replacements`,
	"Appliances": `For appliance issues:
- Identify make, model, and age of appliance
- Note safety concerns (gas leaks, electrical hazards)
- Assess repair vs replacement cost-effectiveness
- Consider warranty status and service availability
- Evaluate installation requirements and permits`,
	"General Maintenance": `For general maintenance:
- Assess overall property condition and safety
- Note any code violations or compliance issues
- Consider preventive maintenance opportunities
- Evaluate tenant impact and scheduling needs
- Identify related systems that may need attention`,
}

// categoryWorkflows holds the canonical ordered remediation outline per
// category.
var categoryWorkflows = map[string][]string{
	"Plumbing": {
		"Shut off water supply to affected area",
		"Assess extent of water damage",
		"Remove and replace damaged components",
		"Test system for leaks and proper operation",
		"Restore water service and clean up work area",
	},
	"Electrical": {
		"Turn off power at circuit breaker",
		"Test circuits and identify issues",
		"Replace or repair electrical components",
		"Install new wiring per code requirements",
		"Test system and restore power",
	},
	"HVAC": {
		"Diagnose system operation and performance",
		"Replace filters and clean components",
		"Repair or replace faulty parts",
		"Test system operation and airflow",
		"Schedule regular maintenance follow-up",
	},
	"Roofing": {
		"Inspect roof structure and materials",
		"Remove damaged roofing materials",
		"Install new roofing and flashing",
		"Seal and weatherproof installation",
		"Clean up debris and test drainage",
	},
	"Flooring": {
		"Remove damaged flooring materials",
		"Inspect and repair subfloor if needed",
		"Install new flooring materials",
		"Trim and finish installation",
		"Clean and protect new flooring",
	},
	"Appliances": {
		"Disconnect and remove old appliance",
		"Prepare installation area",
		"Install new appliance and connections",
		"Test operation and safety features",
		"Provide warranty and maintenance information",
	},
	"General Maintenance": {
		"Assess overall condition and safety",
		"Complete necessary repairs and improvements",
		"Test all affected systems",
		"Clean and restore work areas",
		"Document completed work and recommendations",
	},
}

func init() {
	// The guidance and workflow tables must stay in lockstep, and the
	// fallback entry must exist in both.
	for category := range categoryGuidance {
		if _, ok := categoryWorkflows[category]; !ok {
			panic(fmt.Sprintf("vision: category %q has guidance but no workflow template", category))
		}
	}
	for category := range categoryWorkflows {
		if _, ok := categoryGuidance[category]; !ok {
			panic(fmt.Sprintf("vision: category %q has workflow template but no guidance", category))
		}
	}
	if _, ok := categoryGuidance[FallbackCategory]; !ok {
		panic("vision: fallback category entry missing")
	}
}

// CategoryGuidance returns the guidance block for a category, falling back to
// the general maintenance entry for unrecognized categories.
func CategoryGuidance(category string) string {
	if guidance, ok := categoryGuidance[category]; ok {
		return guidance
	}
	return categoryGuidance[FallbackCategory]
}

// CategoryWorkflow returns the canonical remediation outline for a category,
// or the fallback outline when unrecognized.
func CategoryWorkflow(category string) []string {
	if workflow, ok := categoryWorkflows[category]; ok {
		return workflow
	}
	return categoryWorkflows[FallbackCategory]
}

// NormalizeCategory title-cases the request category so lookups are
// case-insensitive at ingress. HVAC keeps its canonical casing so its
// dedicated guidance stays reachable.
func NormalizeCategory(category string) string {
	words := strings.Fields(strings.TrimSpace(category))
	for i, word := range words {
		if strings.EqualFold(word, "hvac") {
			words[i] = "HVAC"
			continue
		}
		words[i] = titleWord(word)
	}
	return strings.Join(words, " ")
}

// NormalizeSeverity title-cases a severity value. Validation against the
// closed enumeration happens in the extractor.
func NormalizeSeverity(severity string) string {
	return titleWord(strings.TrimSpace(severity))
}

func titleWord(word string) string {
	if word == "" {
		return word
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// BuildUserPrompt composes the user instruction: request context, category
// guidance, the expected JSON contract, and the workflow outline.
func BuildUserPrompt(req *models.AnalysisRequest, images []imaging.ProcessedImage) string {
	scores := make([]string, 0, len(images))
	for _, img := range images {
		scores = append(scores, fmt.Sprintf("%.2f", img.QualityScore))
	}

	workflow := CategoryWorkflow(req.Category)
	outline := make([]string, 0, len(workflow))
	for _, step := range workflow {
		outline = append(outline, "- "+step)
	}

	var b strings.Builder
	b.WriteString("Analyze the following maintenance issue photos.\n")
	fmt.Fprintf(&b, "Project ID: %s\n", req.ProjectID)
	fmt.Fprintf(&b, "Property Type: %s\n", req.PropertyType)
	fmt.Fprintf(&b, "Area: %s\n", req.Area)
	fmt.Fprintf(&b, "Reported Issue: %s\n", req.ReportedIssue)
	fmt.Fprintf(&b, "Category: %s\n", req.Category)
	fmt.Fprintf(&b, "Image Quality Scores: [%s]\n", strings.Join(scores, ", "))
	b.WriteString(CategoryGuidance(req.Category))
	b.WriteString("\nRespond with JSON using this schema:\n")
	b.WriteString(`{
  "primary_issue": str,
  "severity": str (Emergency|High|Medium|Low),
  "scope_items": [
    {
      "title": str,
      "description": str,
      "trade": str,
      "materials": [str],
      "safety_notes": [str],
      "estimated_hours": float
    }
  ],
  "materials": [
    {"name": str, "quantity": str, "specifications": str}
  ],
  "estimated_hours": float,
  "safety_notes": str,
  "additional_observations": [str],
  "confidence": float
}
`)
	fmt.Fprintf(&b, "Recommended workflow outline:\n%s\n", strings.Join(outline, "\n"))
	b.WriteString("Ensure numbers are realistic and cite uncertainties.")

	return b.String()
}
