package alert_test

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/alert"
	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
	emailsvc "github.com/mawazo/studytrack/services/email"
	logsvc "github.com/mawazo/studytrack/services/logger"
	inmemdb "github.com/mawazo/studytrack/storage/database/inmem"
	testutil "github.com/mawazo/studytrack/tests"
)

type fixture struct {
	conf       *core.Config
	alertSvc   *alert.Service
	userSvc    *user.Service
	studySvc   *study.Service
	roadmapSvc *roadmap.Service
	userRepo   user.Repository
	studyRepo  study.Repository
	alertRepo  alert.Repository

	parent  user.User
	student user.User
}

// failingGenerator forces roadmap generation onto the template path so
// tests control progress via checklist toggles alone.
type failingGenerator struct{}

func (failingGenerator) GenerateRoadmap(_ context.Context, _ roadmap.GenerationRequest) (*roadmap.GeneratedRoadmap, error) {
	return nil, assert.AnError
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conf := &core.Config{
		TestMode:        true,
		AppName:         "StudyTrack",
		FrontendBaseURL: "http://localhost:3000",
		WorkDir:         core.Getwd(),
	}
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)

	db := inmemdb.NewDB()
	userRepo := inmemdb.NewUserRepository(db)
	studyRepo := inmemdb.NewStudyRepository(db)

	emailsvc.ClearSentMessages()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	userSvc := user.NewService(conf, userRepo, mailSvc)
	studySvc := study.NewService(studyRepo)
	roadmapSvc := roadmap.NewService(inmemdb.NewRoadmapRepository(db), studySvc, failingGenerator{}, logger)
	alertRepo := inmemdb.NewAlertRepository(db)
	alertSvc := alert.NewService(conf, alertRepo, userSvc, studySvc, roadmapSvc, mailSvc, logger)

	f := &fixture{
		conf:       conf,
		alertSvc:   alertSvc,
		userSvc:    userSvc,
		studySvc:   studySvc,
		roadmapSvc: roadmapSvc,
		userRepo:   userRepo,
		studyRepo:  studyRepo,
		alertRepo:  alertRepo,
	}
	f.parent = testutil.CreateUser(t, userRepo, "Papa Mwa", "papa", "papa@test.cd", "", []string{user.RoleParent}, true)
	f.student = testutil.CreateUser(t, userRepo, "Awe Mwa", "awe", "awe@test.cd", "", []string{user.RoleStudent}, true)
	require.NoError(t, userSvc.LinkStudent(context.Background(), f.parent, f.student.Username))
	return f
}

// setPrefs replaces the parent's alert prefs and refreshes the fixture copy.
func (f *fixture) setPrefs(t *testing.T, mutate func(*user.AlertPrefs)) {
	t.Helper()
	prefs := f.parent.AlertPrefs
	mutate(&prefs)
	updated, err := f.userSvc.SetAlertPrefs(context.Background(), f.parent, user.UpdateAlertPrefs{AlertPrefs: &prefs})
	require.NoError(t, err)
	f.parent = updated
}

// onlyRule disables every rule except the given toggle.
func onlyRule(enable func(*user.AlertPrefs)) func(*user.AlertPrefs) {
	return func(p *user.AlertPrefs) {
		p.LowActivity = false
		p.GoalAtRisk = false
		p.Milestones = false
		p.RoadmapCompleted = false
		p.StreakBroken = false
		p.NewFeedback = false
		enable(p)
	}
}

func (f *fixture) alerts(t *testing.T) []alert.ProgressAlert {
	t.Helper()
	alerts, err := f.alertSvc.Query(context.Background(), f.parent.ID, alert.QueryFilter{})
	require.NoError(t, err)
	return alerts
}

func TestRunLowActivity(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.LowActivity = true; p.LowActivityDays = 3 }))

	t.Run("never studied", func(t *testing.T) {
		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		alerts := f.alerts(t)
		require.Len(t, alerts, 1)
		assert.Equal(t, alert.KindLowActivity, alerts[0].Kind)
		assert.Equal(t, alert.SeverityWarning, alerts[0].Severity)
		assert.Contains(t, alerts[0].Message, "any study sessions yet")
	})

	t.Run("deduped within 24h", func(t *testing.T) {
		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("recent session silences the rule", func(t *testing.T) {
		f2 := setup(t)
		f2.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.LowActivity = true; p.LowActivityDays = 3 }))
		sub2 := testutil.CreateSubject(t, f2.studyRepo, f2.student.ID, study.SubjectMaths)
		testutil.CreateSession(t, f2.studyRepo, f2.student.ID, sub2.ID, 1, study.Today().AddDays(-1))

		created, err := f2.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("stale session trips the threshold", func(t *testing.T) {
		f3 := setup(t)
		f3.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.LowActivity = true; p.LowActivityDays = 3 }))
		sub3 := testutil.CreateSubject(t, f3.studyRepo, f3.student.ID, study.SubjectMaths)
		testutil.CreateSession(t, f3.studyRepo, f3.student.ID, sub3.ID, 1, study.Today().AddDays(-4))

		created, err := f3.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, created)
		assert.Contains(t, f3.alerts(t)[0].Message, "4 days")
	})
}

func TestRunGoalAtRisk(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.GoalAtRisk = true; p.GoalAtRiskDays = 14 }))

	sub := testutil.CreateSubject(t, f.studyRepo, f.student.ID, study.SubjectMaths)
	testutil.CreateTermGoal(t, f.studyRepo, sub.ID, study.Today().AddDays(7))

	// roadmap starts at 0% so the goal is at risk
	_, err := f.roadmapSvc.Generate(ctx, sub)
	require.NoError(t, err)

	created, err := f.alertSvc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	alerts := f.alerts(t)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.KindGoalAtRisk, alerts[0].Kind)
	assert.Equal(t, sub.ID, alerts[0].SubjectID.String)
	assert.Contains(t, alerts[0].Title, "Mathematics")
	assert.Contains(t, alerts[0].Message, "Summer 2026 goal")

	t.Run("deduped within 48h", func(t *testing.T) {
		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("distant deadline does not fire", func(t *testing.T) {
		f2 := setup(t)
		f2.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.GoalAtRisk = true; p.GoalAtRiskDays = 14 }))
		sub2 := testutil.CreateSubject(t, f2.studyRepo, f2.student.ID, study.SubjectMaths)
		testutil.CreateTermGoal(t, f2.studyRepo, sub2.ID, study.Today().AddDays(60))

		created, err := f2.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("deadline today does not fire", func(t *testing.T) {
		f3 := setup(t)
		f3.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.GoalAtRisk = true; p.GoalAtRiskDays = 14 }))
		sub3 := testutil.CreateSubject(t, f3.studyRepo, f3.student.ID, study.SubjectMaths)
		testutil.CreateTermGoal(t, f3.studyRepo, sub3.ID, study.Today())

		created, err := f3.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})
}

func TestRunMilestones(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.Milestones = true }))

	sub := testutil.CreateSubject(t, f.studyRepo, f.student.ID, study.SubjectScience)
	testutil.CreateTermGoal(t, f.studyRepo, sub.ID, study.Today().AddDays(90))
	rm, err := f.roadmapSvc.Generate(ctx, sub)
	require.NoError(t, err)

	// no milestone at 0%
	created, err := f.alertSvc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	// tick enough items to cross 25% but stay under 50%
	for _, step := range []int{0, 2} {
		for _, item := range rm.Steps[step].ChecklistItems {
			_, err := f.roadmapSvc.ToggleChecklistItem(ctx, item.ID)
			require.NoError(t, err)
		}
	}
	progress, err := f.roadmapSvc.RoadmapProgress(ctx, rm.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, progress, 25.0)
	require.Less(t, progress, 50.0)

	created, err = f.alertSvc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	alerts := f.alerts(t)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.KindMilestone, alerts[0].Kind)
	assert.Equal(t, alert.SeveritySuccess, alerts[0].Severity)
	assert.Contains(t, alerts[0].Title, "25% milestone")

	t.Run("never fires twice for the same milestone", func(t *testing.T) {
		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("only the highest crossed milestone fires", func(t *testing.T) {
		full, err := f.roadmapSvc.Get(ctx, rm.ID)
		require.NoError(t, err)
		for _, step := range full.Steps {
			for _, item := range step.ChecklistItems {
				if !item.IsCompleted {
					_, err := f.roadmapSvc.ToggleChecklistItem(ctx, item.ID)
					require.NoError(t, err)
				}
			}
		}

		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, created)
		assert.Contains(t, f.alerts(t)[0].Title, "100% milestone")
	})
}

func TestRunRoadmapCompleted(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.RoadmapCompleted = true }))

	sub := testutil.CreateSubject(t, f.studyRepo, f.student.ID, study.SubjectEnglish)
	testutil.CreateTermGoal(t, f.studyRepo, sub.ID, study.Today().AddDays(90))
	rm, err := f.roadmapSvc.Generate(ctx, sub)
	require.NoError(t, err)

	created, err := f.alertSvc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	for _, step := range rm.Steps {
		for _, item := range step.ChecklistItems {
			_, err := f.roadmapSvc.ToggleChecklistItem(ctx, item.ID)
			require.NoError(t, err)
		}
	}

	created, err = f.alertSvc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	alerts := f.alerts(t)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.KindRoadmapCompleted, alerts[0].Kind)
	assert.Equal(t, rm.ID, alerts[0].RoadmapID.String)

	t.Run("fires once per roadmap", func(t *testing.T) {
		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})
}

func TestRunStreakBroken(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.StreakBroken = true }))
	sub := testutil.CreateSubject(t, f.studyRepo, f.student.ID, study.SubjectMandarin)

	t.Run("no streak, no alert", func(t *testing.T) {
		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("studied yesterday but not today", func(t *testing.T) {
		testutil.CreateSession(t, f.studyRepo, f.student.ID, sub.ID, 1, study.Today().AddDays(-1))

		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, created)
		alerts := f.alerts(t)
		assert.Equal(t, alert.KindStreakBroken, alerts[0].Kind)
		assert.Equal(t, alert.SeverityWarning, alerts[0].Severity)
	})

	t.Run("deduped for the day", func(t *testing.T) {
		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})

	t.Run("studying today silences it", func(t *testing.T) {
		f2 := setup(t)
		f2.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.StreakBroken = true }))
		sub2 := testutil.CreateSubject(t, f2.studyRepo, f2.student.ID, study.SubjectMandarin)
		testutil.CreateSession(t, f2.studyRepo, f2.student.ID, sub2.ID, 1, study.Today().AddDays(-1))
		testutil.CreateSession(t, f2.studyRepo, f2.student.ID, sub2.ID, 1, study.Today())

		created, err := f2.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})
}

func TestRunNewFeedback(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.setPrefs(t, onlyRule(func(p *user.AlertPrefs) { p.NewFeedback = true }))

	sub := testutil.CreateSubject(t, f.studyRepo, f.student.ID, study.SubjectMaths)
	_, err := f.studySvc.CreateFeedback(ctx, sub.ID, study.NewFeedback{
		Strengths:      "mental arithmetic",
		Weaknesses:     "long division",
		AreasToImprove: "show working",
		FeedbackDate:   study.Today(),
	})
	require.NoError(t, err)

	created, err := f.alertSvc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	alerts := f.alerts(t)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.KindNewFeedback, alerts[0].Kind)
	assert.Contains(t, alerts[0].Message, "mental arithmetic")

	t.Run("deduped per subject", func(t *testing.T) {
		created, err := f.alertSvc.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
	})
}

func TestRunSkipsDisabledRules(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	// everything off
	f.setPrefs(t, onlyRule(func(p *user.AlertPrefs) {}))
	testutil.CreateSubject(t, f.studyRepo, f.student.ID, study.SubjectMaths)

	created, err := f.alertSvc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Empty(t, f.alerts(t))
}
