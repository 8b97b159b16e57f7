package study

import (
	"context"
	"math"
)

const maxStreakDays = 365

type (
	// WeekSeries is a 7-day hours chart series, oldest day first.
	WeekSeries struct {
		Labels []string  `json:"labels"` // weekday abbreviations
		Hours  []float64 `json:"hours"`
	}

	SubjectHours struct {
		SubjectID   string  `json:"subject_id"`
		Name        string  `json:"name"`
		DisplayName string  `json:"display_name"`
		Hours       float64 `json:"hours"`
	}

	// Analytics is the student dashboard summary.
	Analytics struct {
		TotalHours    float64        `json:"total_hours"`
		StudyStreak   int            `json:"study_streak"`
		AvgDailyHours float64        `json:"avg_daily_hours"` // last 30 days
		Weekly        WeekSeries     `json:"weekly"`
		SubjectHours  []SubjectHours `json:"subject_hours"`
		MostStudied   string         `json:"most_studied"`
	}
)

// Streak counts consecutive days (ending today) with at least one session.
func (svc *Service) Streak(ctx context.Context, studentID string) (int, error) {
	var streak int
	day := Today()
	for streak <= maxStreakDays {
		has, err := svc.repo.HasSessionOn(ctx, studentID, day)
		if err != nil {
			return 0, err
		}
		if !has {
			break
		}
		streak++
		day = day.AddDays(-1)
	}
	return streak, nil
}

// WeeklyHours returns hours studied per day over the last 7 days, oldest first.
func (svc *Service) WeeklyHours(ctx context.Context, studentID string) (WeekSeries, error) {
	series := WeekSeries{
		Labels: make([]string, 0, 7),
		Hours:  make([]float64, 0, 7),
	}
	today := Today()
	for i := 6; i >= 0; i-- {
		day := today.AddDays(-i)
		hours, err := svc.repo.HoursOn(ctx, studentID, day)
		if err != nil {
			return WeekSeries{}, err
		}
		series.Labels = append(series.Labels, day.Format("Mon"))
		series.Hours = append(series.Hours, hours)
	}
	return series, nil
}

// Analytics aggregates the student's dashboard metrics.
func (svc *Service) Analytics(ctx context.Context, studentID string) (Analytics, error) {
	total, err := svc.repo.TotalHours(ctx, studentID)
	if err != nil {
		return Analytics{}, err
	}

	streak, err := svc.Streak(ctx, studentID)
	if err != nil {
		return Analytics{}, err
	}

	last30, err := svc.repo.HoursSince(ctx, studentID, Today().AddDays(-30))
	if err != nil {
		return Analytics{}, err
	}

	weekly, err := svc.WeeklyHours(ctx, studentID)
	if err != nil {
		return Analytics{}, err
	}

	subjects, err := svc.repo.QuerySubjectsByStudent(ctx, studentID)
	if err != nil {
		return Analytics{}, err
	}
	subjectHours := make([]SubjectHours, 0, len(subjects))
	var mostStudied string
	var maxHours float64
	for _, sub := range subjects {
		hours, err := svc.repo.TotalHoursBySubject(ctx, sub.ID)
		if err != nil {
			return Analytics{}, err
		}
		if hours <= 0 {
			continue
		}
		subjectHours = append(subjectHours, SubjectHours{
			SubjectID:   sub.ID,
			Name:        sub.Name,
			DisplayName: sub.DisplayName(),
			Hours:       hours,
		})
		if hours > maxHours {
			maxHours = hours
			mostStudied = sub.DisplayName()
		}
	}

	return Analytics{
		TotalHours:    round1(total),
		StudyStreak:   streak,
		AvgDailyHours: round1(last30 / 30),
		Weekly:        weekly,
		SubjectHours:  subjectHours,
		MostStudied:   mostStudied,
	}, nil
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
