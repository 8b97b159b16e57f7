package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
)

// milestones are checked highest first so only the top uncelebrated one fires.
var milestones = []int{100, 75, 50, 25}

// Run evaluates every alert rule for every parent/student link and creates
// the alerts that are due. A rule failure for one student is logged and does
// not abort the run. Returns the number of alerts created.
func (svc *Service) Run(ctx context.Context) (int, error) {
	parents, err := svc.parents(ctx)
	if err != nil {
		return 0, err
	}

	var created int
	for _, parent := range parents {
		students, err := svc.userSvc.Students(ctx, parent.ID)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("alert: querying students of %s: %v", parent.Username, err), err)
			continue
		}
		for _, student := range students {
			n, err := svc.runStudent(ctx, parent, student)
			if err != nil {
				svc.logger.Error(fmt.Sprintf("alert: rules for %s/%s: %v", parent.Username, student.Username, err), err)
				continue
			}
			created += n
		}
	}
	return created, nil
}

func (svc *Service) runStudent(ctx context.Context, parent, student user.User) (int, error) {
	prefs := parent.AlertPrefs
	rules := []struct {
		enabled bool
		run     func(context.Context, user.User, user.User) (int, error)
	}{
		{prefs.LowActivity, svc.checkLowActivity},
		{prefs.GoalAtRisk, svc.checkGoalAtRisk},
		{prefs.Milestones, svc.checkMilestones},
		{prefs.RoadmapCompleted, svc.checkRoadmapCompleted},
		{prefs.StreakBroken, svc.checkStreakBroken},
		{prefs.NewFeedback, svc.checkNewFeedback},
	}

	var created int
	for _, rule := range rules {
		if !rule.enabled {
			continue
		}
		n, err := rule.run(ctx, parent, student)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

// checkLowActivity fires when the student has not logged a session for at
// least the parent's threshold days. Never having studied counts as stale.
func (svc *Service) checkLowActivity(ctx context.Context, parent, student user.User) (int, error) {
	threshold := parent.AlertPrefs.LowActivityDays
	last, ok, err := svc.studySvc.LastSessionDate(ctx, student.ID)
	if err != nil {
		return 0, err
	}
	days := threshold // never studied
	if ok {
		days = -last.DaysUntil()
	}
	if days < threshold {
		return 0, nil
	}

	dup, err := svc.repo.HasAlert(ctx, Match{
		ParentID:  parent.ID,
		StudentID: student.ID,
		Kind:      KindLowActivity,
		Since:     time.Now().UTC().Add(-24 * time.Hour),
	})
	if err != nil || dup {
		return 0, err
	}

	msg := fmt.Sprintf("%s has not logged a study session in %d days.", student.Name, days)
	if !ok {
		msg = fmt.Sprintf("%s has not logged any study sessions yet.", student.Name)
	}
	return svc.create(ctx, ProgressAlert{
		ParentID:  parent.ID,
		StudentID: student.ID,
		Kind:      KindLowActivity,
		Severity:  SeverityWarning,
		Title:     fmt.Sprintf("%s hasn't studied recently", student.Name),
		Message:   msg,
	})
}

// checkGoalAtRisk fires for goals whose deadline is within the parent's
// threshold while the subject's active roadmap is under half done.
func (svc *Service) checkGoalAtRisk(ctx context.Context, parent, student user.User) (int, error) {
	goals, err := svc.studySvc.QueryOpenTermGoals(ctx, student.ID)
	if err != nil {
		return 0, err
	}

	var created int
	for _, goal := range goals {
		days := goal.DaysRemaining()
		// a deadline hitting today is overdue territory, not at-risk
		if days <= 0 || days > parent.AlertPrefs.GoalAtRiskDays {
			continue
		}
		progress, err := svc.roadmapSvc.ActiveProgress(ctx, goal.SubjectID)
		if err != nil {
			return created, err
		}
		if progress >= 50 {
			continue
		}

		dup, err := svc.repo.HasAlert(ctx, Match{
			ParentID:  parent.ID,
			StudentID: student.ID,
			Kind:      KindGoalAtRisk,
			SubjectID: goal.SubjectID,
			Since:     time.Now().UTC().Add(-48 * time.Hour),
		})
		if err != nil {
			return created, err
		}
		if dup {
			continue
		}

		sub, err := svc.studySvc.GetSubject(ctx, goal.SubjectID)
		if err != nil {
			return created, err
		}
		n, err := svc.create(ctx, ProgressAlert{
			ParentID:  parent.ID,
			StudentID: student.ID,
			Kind:      KindGoalAtRisk,
			Severity:  SeverityWarning,
			Title:     fmt.Sprintf("%s goal at risk", sub.DisplayName()),
			Message: fmt.Sprintf(
				"%s's %s goal for %s (%s to %s) is due in %d days but the roadmap is only %.0f%% complete.",
				student.Name, study.TermDisplayName(goal.Term), sub.DisplayName(),
				goal.CurrentLevel, goal.TargetLevel, days, progress,
			),
			SubjectID: null.StringFrom(goal.SubjectID),
		})
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

// checkMilestones fires when an active roadmap crosses 25/50/75/100%. Only
// the highest uncelebrated milestone per roadmap fires, and never twice.
func (svc *Service) checkMilestones(ctx context.Context, parent, student user.User) (int, error) {
	roadmaps, err := svc.roadmapSvc.QueryActive(ctx, student.ID)
	if err != nil {
		return 0, err
	}

	var created int
	for _, rm := range roadmaps {
		progress, err := svc.roadmapSvc.RoadmapProgress(ctx, rm.ID)
		if err != nil {
			return created, err
		}
		for _, m := range milestones {
			if progress < float64(m) {
				continue
			}
			title := fmt.Sprintf("%d%% milestone: %s", m, rm.Title)
			dup, err := svc.repo.HasAlert(ctx, Match{
				ParentID:  parent.ID,
				StudentID: student.ID,
				Kind:      KindMilestone,
				RoadmapID: rm.ID,
				Title:     title,
			})
			if err != nil {
				return created, err
			}
			if !dup {
				n, err := svc.create(ctx, ProgressAlert{
					ParentID:  parent.ID,
					StudentID: student.ID,
					Kind:      KindMilestone,
					Severity:  SeveritySuccess,
					Title:     title,
					Message:   fmt.Sprintf("%s is %d%% of the way through \"%s\".", student.Name, m, rm.Title),
					SubjectID: null.StringFrom(rm.SubjectID),
					RoadmapID: null.StringFrom(rm.ID),
				})
				if err != nil {
					return created, err
				}
				created += n
			}
			break // highest crossed milestone only
		}
	}
	return created, nil
}

// checkRoadmapCompleted fires once per roadmap when it reaches 100%.
func (svc *Service) checkRoadmapCompleted(ctx context.Context, parent, student user.User) (int, error) {
	roadmaps, err := svc.roadmapSvc.QueryActive(ctx, student.ID)
	if err != nil {
		return 0, err
	}

	var created int
	for _, rm := range roadmaps {
		progress, err := svc.roadmapSvc.RoadmapProgress(ctx, rm.ID)
		if err != nil {
			return created, err
		}
		if progress < 100 {
			continue
		}

		dup, err := svc.repo.HasAlert(ctx, Match{
			ParentID:  parent.ID,
			StudentID: student.ID,
			Kind:      KindRoadmapCompleted,
			RoadmapID: rm.ID,
		})
		if err != nil {
			return created, err
		}
		if dup {
			continue
		}
		n, err := svc.create(ctx, ProgressAlert{
			ParentID:  parent.ID,
			StudentID: student.ID,
			Kind:      KindRoadmapCompleted,
			Severity:  SeveritySuccess,
			Title:     fmt.Sprintf("Roadmap completed: %s", rm.Title),
			Message:   fmt.Sprintf("%s has completed every step of \"%s\". Time to celebrate!", student.Name, rm.Title),
			SubjectID: null.StringFrom(rm.SubjectID),
			RoadmapID: null.StringFrom(rm.ID),
		})
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

// checkStreakBroken fires when the student studied yesterday but not today.
func (svc *Service) checkStreakBroken(ctx context.Context, parent, student user.User) (int, error) {
	today := study.Today()
	studiedToday, err := svc.studySvc.StudiedOn(ctx, student.ID, today)
	if err != nil {
		return 0, err
	}
	if studiedToday {
		return 0, nil
	}
	studiedYesterday, err := svc.studySvc.StudiedOn(ctx, student.ID, today.AddDays(-1))
	if err != nil {
		return 0, err
	}
	if !studiedYesterday {
		return 0, nil
	}

	dup, err := svc.repo.HasAlert(ctx, Match{
		ParentID:  parent.ID,
		StudentID: student.ID,
		Kind:      KindStreakBroken,
		Since:     today.Time,
	})
	if err != nil || dup {
		return 0, err
	}
	return svc.create(ctx, ProgressAlert{
		ParentID:  parent.ID,
		StudentID: student.ID,
		Kind:      KindStreakBroken,
		Severity:  SeverityWarning,
		Title:     fmt.Sprintf("%s's study streak is at risk", student.Name),
		Message:   fmt.Sprintf("%s studied yesterday but hasn't logged anything today. A short session keeps the streak alive.", student.Name),
	})
}

// checkNewFeedback fires for teacher feedback recorded in the last 24 hours.
func (svc *Service) checkNewFeedback(ctx context.Context, parent, student user.User) (int, error) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	feedbacks, err := svc.studySvc.RecentFeedback(ctx, student.ID, since, 0)
	if err != nil {
		return 0, err
	}

	var created int
	for _, fb := range feedbacks {
		dup, err := svc.repo.HasAlert(ctx, Match{
			ParentID:  parent.ID,
			StudentID: student.ID,
			Kind:      KindNewFeedback,
			SubjectID: fb.SubjectID,
			Since:     since,
		})
		if err != nil {
			return created, err
		}
		if dup {
			continue
		}

		sub, err := svc.studySvc.GetSubject(ctx, fb.SubjectID)
		if err != nil {
			return created, err
		}
		n, err := svc.create(ctx, ProgressAlert{
			ParentID:  parent.ID,
			StudentID: student.ID,
			Kind:      KindNewFeedback,
			Severity:  SeverityInfo,
			Title:     fmt.Sprintf("New %s feedback for %s", sub.DisplayName(), student.Name),
			Message:   fmt.Sprintf("A teacher recorded new %s feedback for %s. Strengths: %s", sub.DisplayName(), student.Name, fb.Strengths),
			SubjectID: null.StringFrom(fb.SubjectID),
		})
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func (svc *Service) create(ctx context.Context, al ProgressAlert) (int, error) {
	al.CreatedAt = time.Now().UTC()
	if _, err := svc.repo.CreateAlert(ctx, al); err != nil {
		return 0, errors.Wrap(err, "creating alert")
	}
	return 1, nil
}
