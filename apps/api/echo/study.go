package echoapi

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
)

const (
	contextSubjectKey = "subject"

	defaultSessionLimit = 20
	activityFeedSize    = 10
)

type studyApi struct {
	svc        *study.Service
	roadmapSvc *roadmap.Service
}

func registerStudyAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *study.Service, roadmapSvc *roadmap.Service) {
	api := studyApi{svc: svc, roadmapSvc: roadmapSvc}

	sg := g.Group("/subjects", jwt, studentMiddleware())
	sg.GET("", api.querySubjects)
	sg.POST("", api.createSubject)

	// detail endpoints; the middleware loads the subject and enforces ownership
	dg := sg.Group("/:id", subjectMiddleware(api.svc))
	dg.GET("", api.retrieveSubject)
	dg.PUT("", api.updateSubject)
	dg.DELETE("", api.destroySubject)

	dg.GET("/goals", api.queryGoals)
	dg.POST("/goals", api.createGoal)
	dg.GET("/feedback", api.queryFeedback)
	dg.POST("/feedback", api.createFeedback)
	dg.GET("/sessions", api.querySessions)
	dg.POST("/sessions", api.createSession)

	gg := g.Group("/goals/:id", jwt, studentMiddleware())
	gg.PUT("", api.updateGoal)
	gg.DELETE("", api.destroyGoal)

	fg := g.Group("/feedback/:id", jwt, studentMiddleware())
	fg.PUT("", api.updateFeedback)
	fg.DELETE("", api.destroyFeedback)

	ssg := g.Group("/sessions/:id", jwt, studentMiddleware())
	ssg.PUT("", api.updateSession)
	ssg.DELETE("", api.destroySession)

	g.GET("/dashboard", api.dashboard, jwt, studentMiddleware())
}

// subjectMiddleware loads the subject in the `id` path param into the context
// and makes sure it belongs to the logged-in student.
func subjectMiddleware(svc *study.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			sub, err := svc.GetSubject(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == study.ErrSubjectNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding subject by ID")
			}
			if sub.StudentID != claims.Subject && !claims.IsAdmin {
				return errHttpNotFound
			}
			ctx.Set(contextSubjectKey, sub)
			return next(ctx)
		}
	}
}

func getContextSubject(ctx echo.Context) (study.Subject, error) {
	if sub, ok := ctx.Get(contextSubjectKey).(study.Subject); ok {
		return sub, nil
	}
	return study.Subject{}, errors.New("subject object not found in echo.Context")
}

// ownedSubject loads a subject and enforces ownership outside the
// subjectMiddleware route tree (goal/feedback/session detail routes).
func ownedSubject(ctx echo.Context, svc *study.Service, subjectID string) (study.Subject, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return study.Subject{}, errors.Wrap(err, "getting context claims")
	}
	sub, err := svc.GetSubject(ctx.Request().Context(), subjectID)
	if err != nil {
		if errors.Cause(err) == study.ErrSubjectNotFound {
			return study.Subject{}, errHttpNotFound
		}
		return study.Subject{}, errors.Wrap(err, "finding subject by ID")
	}
	if sub.StudentID != claims.Subject && !claims.IsAdmin {
		return study.Subject{}, errHttpNotFound
	}
	return sub, nil
}

// Subject handlers

func (api *studyApi) querySubjects(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	subs, err := api.svc.QuerySubjects(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subs == nil {
		subs = []study.Subject{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *studyApi) createSubject(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data study.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.svc, claims.Subject); err != nil {
		return err
	}

	sub, err := api.svc.CreateSubject(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *studyApi) retrieveSubject(ctx echo.Context) error {
	sub, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *studyApi) updateSubject(ctx echo.Context) error {
	sub, err := getContextSubject(ctx)
	if err != nil {
		return err
	}

	var data study.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.svc, sub.StudentID, sub.ID); err != nil {
		return err
	}

	sub, err = api.svc.UpdateSubject(ctx.Request().Context(), sub, data)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *studyApi) destroySubject(ctx echo.Context) error {
	sub, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteSubject(ctx.Request().Context(), sub.ID); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Term goal handlers

func (api *studyApi) queryGoals(ctx echo.Context) error {
	sub, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	goals, err := api.svc.QueryTermGoals(ctx.Request().Context(), sub.ID)
	if err != nil {
		return errors.Wrap(err, "querying term goals")
	}
	if goals == nil {
		goals = []study.TermGoal{}
	}
	return ctx.JSON(http.StatusOK, goals)
}

func (api *studyApi) createGoal(ctx echo.Context) error {
	sub, err := getContextSubject(ctx)
	if err != nil {
		return err
	}

	var data study.NewTermGoal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTermGoal")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	goal, err := api.svc.CreateTermGoal(ctx.Request().Context(), sub.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating term goal")
	}
	return ctx.JSON(http.StatusCreated, goal)
}

func (api *studyApi) updateGoal(ctx echo.Context) error {
	goal, err := api.svc.GetTermGoal(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == study.ErrGoalNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding term goal by ID")
	}
	if _, err = ownedSubject(ctx, api.svc, goal.SubjectID); err != nil {
		return err
	}

	var data study.NewTermGoal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTermGoal")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	goal, err = api.svc.UpdateTermGoal(ctx.Request().Context(), goal, data)
	if err != nil {
		return errors.Wrap(err, "updating term goal")
	}
	return ctx.JSON(http.StatusOK, goal)
}

func (api *studyApi) destroyGoal(ctx echo.Context) error {
	goal, err := api.svc.GetTermGoal(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == study.ErrGoalNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding term goal by ID")
	}
	if _, err = ownedSubject(ctx, api.svc, goal.SubjectID); err != nil {
		return err
	}

	if err := api.svc.DeleteTermGoal(ctx.Request().Context(), goal.ID); err != nil {
		return errors.Wrap(err, "deleting term goal")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Feedback handlers

func (api *studyApi) queryFeedback(ctx echo.Context) error {
	sub, err := getContextSubject(ctx)
	if err != nil {
		return err
	}
	fbs, err := api.svc.QueryFeedback(ctx.Request().Context(), sub.ID)
	if err != nil {
		return errors.Wrap(err, "querying feedback")
	}
	if fbs == nil {
		fbs = []study.Feedback{}
	}
	return ctx.JSON(http.StatusOK, fbs)
}

func (api *studyApi) createFeedback(ctx echo.Context) error {
	sub, err := getContextSubject(ctx)
	if err != nil {
		return err
	}

	var data study.NewFeedback
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeedback")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	fb, err := api.svc.CreateFeedback(ctx.Request().Context(), sub.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating feedback")
	}
	return ctx.JSON(http.StatusCreated, fb)
}

func (api *studyApi) updateFeedback(ctx echo.Context) error {
	fb, err := api.svc.GetFeedback(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == study.ErrFeedbackNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding feedback by ID")
	}
	if _, err = ownedSubject(ctx, api.svc, fb.SubjectID); err != nil {
		return err
	}

	var data study.NewFeedback
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeedback")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	fb, err = api.svc.UpdateFeedback(ctx.Request().Context(), fb, data)
	if err != nil {
		return errors.Wrap(err, "updating feedback")
	}
	return ctx.JSON(http.StatusOK, fb)
}

func (api *studyApi) destroyFeedback(ctx echo.Context) error {
	fb, err := api.svc.GetFeedback(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == study.ErrFeedbackNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding feedback by ID")
	}
	if _, err = ownedSubject(ctx, api.svc, fb.SubjectID); err != nil {
		return err
	}

	if err := api.svc.DeleteFeedback(ctx.Request().Context(), fb.ID); err != nil {
		return errors.Wrap(err, "deleting feedback")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Study session handlers

func (api *studyApi) querySessions(ctx echo.Context) error {
	sub, err := getContextSubject(ctx)
	if err != nil {
		return err
	}

	limit := defaultSessionLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := api.svc.QuerySessions(ctx.Request().Context(), sub.ID, limit)
	if err != nil {
		return errors.Wrap(err, "querying study sessions")
	}
	if sessions == nil {
		sessions = []study.StudySession{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *studyApi) createSession(ctx echo.Context) error {
	sub, err := getContextSubject(ctx)
	if err != nil {
		return err
	}

	var data study.NewStudySession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudySession")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err := api.svc.CreateSession(ctx.Request().Context(), sub.StudentID, sub.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating study session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *studyApi) updateSession(ctx echo.Context) error {
	sess, err := api.svc.GetSession(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == study.ErrSessionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding study session by ID")
	}
	if _, err = ownedSubject(ctx, api.svc, sess.SubjectID); err != nil {
		return err
	}

	var data study.NewStudySession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudySession")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err = api.svc.UpdateSession(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "updating study session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *studyApi) destroySession(ctx echo.Context) error {
	sess, err := api.svc.GetSession(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == study.ErrSessionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding study session by ID")
	}
	if _, err = ownedSubject(ctx, api.svc, sess.SubjectID); err != nil {
		return err
	}

	if err := api.svc.DeleteSession(ctx.Request().Context(), sess.ID); err != nil {
		return errors.Wrap(err, "deleting study session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Dashboard

type (
	ActivityItem struct {
		Type        string    `json:"type"` // session | feedback | item_completed
		Description string    `json:"description"`
		Timestamp   time.Time `json:"timestamp"`
	}

	DashboardResponse struct {
		Analytics      study.Analytics  `json:"analytics"`
		CompletedTasks int              `json:"completed_tasks"`
		TotalTasks     int              `json:"total_tasks"`
		CompletionPct  float64          `json:"completion_pct"` // across all roadmaps
		OpenGoals      []study.TermGoal `json:"open_goals"`
		RecentActivity []ActivityItem   `json:"recent_activity"`
	}
)

func (api *studyApi) dashboard(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	rctx := ctx.Request().Context()
	studentID := claims.Subject

	analytics, err := api.svc.Analytics(rctx, studentID)
	if err != nil {
		return errors.Wrap(err, "building analytics")
	}
	completed, total, err := api.roadmapSvc.StudentCompletion(rctx, studentID)
	if err != nil {
		return errors.Wrap(err, "counting checklist items")
	}
	goals, err := api.svc.QueryOpenTermGoals(rctx, studentID)
	if err != nil {
		return errors.Wrap(err, "querying open term goals")
	}
	if goals == nil {
		goals = []study.TermGoal{}
	}

	activity, err := api.recentActivity(ctx, studentID)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, DashboardResponse{
		Analytics:      analytics,
		CompletedTasks: completed,
		TotalTasks:     total,
		CompletionPct:  roadmap.Percentage(completed, total),
		OpenGoals:      goals,
		RecentActivity: activity,
	})
}

// recentActivity merges the latest sessions, feedback entries and checklist
// completions into a single feed, newest first.
func (api *studyApi) recentActivity(ctx echo.Context, studentID string) ([]ActivityItem, error) {
	rctx := ctx.Request().Context()

	sessions, err := api.svc.RecentSessions(rctx, studentID, activityFeedSize)
	if err != nil {
		return nil, errors.Wrap(err, "querying recent sessions")
	}
	feedback, err := api.svc.RecentFeedback(rctx, studentID, time.Time{}, activityFeedSize)
	if err != nil {
		return nil, errors.Wrap(err, "querying recent feedback")
	}
	completions, err := api.roadmapSvc.RecentCompletions(rctx, studentID, activityFeedSize)
	if err != nil {
		return nil, errors.Wrap(err, "querying recent completions")
	}

	items := make([]ActivityItem, 0, len(sessions)+len(feedback)+len(completions))
	for _, sess := range sessions {
		items = append(items, ActivityItem{
			Type:        "session",
			Description: "Logged " + strconv.FormatFloat(sess.HoursSpent, 'f', -1, 64) + "h of study",
			Timestamp:   sess.CreatedAt,
		})
	}
	for _, fb := range feedback {
		items = append(items, ActivityItem{
			Type:        "feedback",
			Description: "Teacher feedback recorded",
			Timestamp:   fb.CreatedAt,
		})
	}
	for _, item := range completions {
		items = append(items, ActivityItem{
			Type:        "item_completed",
			Description: "Completed: " + item.TaskDescription,
			Timestamp:   item.CompletedAt,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if len(items) > activityFeedSize {
		items = items[:activityFeedSize]
	}
	return items, nil
}
