package aisvc

import (
	"fmt"
	"strings"

	"github.com/mawazo/studytrack/core/roadmap"
)

// BuildPrompt renders the user message sent to the model. The output
// instructions mirror what (*roadmap.GeneratedRoadmap).Validate accepts.
func BuildPrompt(req roadmap.GenerationRequest) string {
	b := new(strings.Builder)

	fmt.Fprintf(b, "You are an expert GCSE tutor. Create a personalised study roadmap for a student preparing for GCSE %s.\n\n", req.SubjectName)
	fmt.Fprintf(b, "Student context:\n")
	fmt.Fprintf(b, "- Current level: %s\n", req.CurrentLevel)
	fmt.Fprintf(b, "- Target level: %s\n", req.TargetLevel)
	fmt.Fprintf(b, "- Deadline: %s (%d days away)\n", req.Deadline.Format("2 January 2006"), req.Deadline.DaysUntil())
	fmt.Fprintf(b, "- Hours of study logged so far: %.1f\n", req.HoursLogged)

	writeBullets(b, "Teacher-identified strengths", req.Strengths)
	writeBullets(b, "Teacher-identified weaknesses", req.Weaknesses)
	writeBullets(b, "Areas the teacher wants improved", req.AreasToImprove)

	b.WriteString(`
Respond with ONLY a JSON object, no prose before or after, matching this shape:
{
  "title": "roadmap title",
  "overview": "2-3 sentence overview of the plan",
  "steps": [
    {
      "order": 1,
      "title": "step title",
      "description": "what to do and why",
      "category": "weakness" | "strength" | "level_up",
      "difficulty": "easy" | "medium" | "hard",
      "estimated_hours": 5,
      "checklist": ["concrete task", "..."],
      "resources": [
        {"type": "video" | "article" | "exercise" | "ai_generated", "title": "...", "description": "...", "url": ""}
      ]
    }
  ]
}

Rules:
- 4 to 6 steps, ordered from foundations to exam readiness.
- 3 to 5 checklist items per step, each a concrete, checkable task.
- Address the weaknesses first, then build on strengths, then level up.
- estimated_hours must be realistic for the days remaining.
`)
	return b.String()
}

func writeBullets(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
