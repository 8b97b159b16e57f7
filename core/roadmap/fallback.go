package roadmap

import "fmt"

// FallbackRoadmap builds a deterministic template roadmap used when AI
// generation fails or returns an unusable payload. It always satisfies
// (*GeneratedRoadmap).Validate().
func FallbackRoadmap(req GenerationRequest) *GeneratedRoadmap {
	weakness := "the topics you find hardest"
	if len(req.Weaknesses) > 0 {
		weakness = req.Weaknesses[0]
	}
	strength := "your strongest topics"
	if len(req.Strengths) > 0 {
		strength = req.Strengths[0]
	}

	return &GeneratedRoadmap{
		Title: fmt.Sprintf("%s: from %s to %s", req.SubjectName, req.CurrentLevel, req.TargetLevel),
		Overview: fmt.Sprintf(
			"A structured plan to move your %s from %s to %s by %s. "+
				"Work through the steps in order, ticking off each task as you go.",
			req.SubjectName, req.CurrentLevel, req.TargetLevel, req.Deadline.Format("2 January 2006"),
		),
		Steps: []GeneratedStep{
			{
				Order:          1,
				Title:          fmt.Sprintf("Review the %s syllabus", req.SubjectName),
				Description:    "Go through the full syllabus and mark every topic as confident, unsure or weak. This map drives the rest of the plan.",
				Category:       CategoryWeakness,
				Difficulty:     DifficultyEasy,
				EstimatedHours: 3,
				Checklist: []string{
					"Download or print the exam board syllabus",
					"Rate every topic as confident, unsure or weak",
					"List your three weakest topics",
				},
			},
			{
				Order:          2,
				Title:          "Target your weakest areas",
				Description:    fmt.Sprintf("Focus revision on %s. Use worked examples first, then attempt questions unaided.", weakness),
				Category:       CategoryWeakness,
				Difficulty:     DifficultyMedium,
				EstimatedHours: 8,
				Checklist: []string{
					"Re-read class notes on your weakest topics",
					"Work through five example questions per topic",
					"Attempt a topic test without notes",
					"Review every mistake and note why it happened",
				},
			},
			{
				Order:          3,
				Title:          "Consolidate your strengths",
				Description:    fmt.Sprintf("Keep %s sharp with regular short practice so easy marks stay easy.", strength),
				Category:       CategoryStrength,
				Difficulty:     DifficultyEasy,
				EstimatedHours: 4,
				Checklist: []string{
					"Do a 20 minute mixed practice set twice a week",
					"Create flashcards for key facts and formulas",
					"Teach one topic to a friend or family member",
				},
			},
			{
				Order:          4,
				Title:          "Exam technique and past papers",
				Description:    fmt.Sprintf("Sit timed past papers to push towards %s. Mark strictly against the official scheme.", req.TargetLevel),
				Category:       CategoryLevelUp,
				Difficulty:     DifficultyHard,
				EstimatedHours: 10,
				Checklist: []string{
					"Complete two past papers under timed conditions",
					"Mark them with the official mark scheme",
					"Keep an error log of recurring mistakes",
					"Redo every question you dropped marks on",
				},
			},
		},
	}
}
