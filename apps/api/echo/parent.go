package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/alert"
	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
)

type parentApi struct {
	userSvc    *user.Service
	studySvc   *study.Service
	roadmapSvc *roadmap.Service
	alertSvc   *alert.Service
}

func registerParentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	userSvc *user.Service,
	studySvc *study.Service,
	roadmapSvc *roadmap.Service,
	alertSvc *alert.Service,
) {
	api := parentApi{userSvc: userSvc, studySvc: studySvc, roadmapSvc: roadmapSvc, alertSvc: alertSvc}

	pg := g.Group("/parent", jwt, parentMiddleware())
	pg.GET("/dashboard", api.dashboard)
	pg.POST("/students", api.linkStudent)
	pg.GET("/students/:id", api.retrieveStudent)
	pg.GET("/alerts", api.queryAlerts)
	pg.GET("/alerts/unread-count", api.unreadCount)
	pg.POST("/alerts/:id/read", api.markAlertRead)
	pg.POST("/alerts/read-all", api.markAllAlertsRead)
}

type (
	// RoadmapSummary is an active roadmap with its completion figures.
	RoadmapSummary struct {
		Roadmap   roadmap.Roadmap `json:"roadmap"`
		Progress  float64         `json:"progress"`
		Completed int             `json:"completed"`
		Total     int             `json:"total"`
	}

	// ChildSummary aggregates a linked student's headline numbers.
	ChildSummary struct {
		Student        user.User        `json:"student"`
		TotalHours     float64          `json:"total_hours"`
		StudyStreak    int              `json:"study_streak"`
		OpenGoals      []study.TermGoal `json:"open_goals"`
		ActiveRoadmaps []RoadmapSummary `json:"active_roadmaps"`
	}

	ParentDashboardResponse struct {
		Children     []ChildSummary `json:"children"`
		UnreadAlerts int            `json:"unread_alerts"`
	}

	// ChildDetailResponse is the full view of one linked student.
	ChildDetailResponse struct {
		Student        user.User        `json:"student"`
		Analytics      study.Analytics  `json:"analytics"`
		Subjects       []study.Subject  `json:"subjects"`
		OpenGoals      []study.TermGoal `json:"open_goals"`
		ActiveRoadmaps []RoadmapSummary `json:"active_roadmaps"`
	}

	LinkStudentRequest struct {
		Username string `json:"username" validate:"required"`
	}
)

func (lr *LinkStudentRequest) Validate() error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return core.Validate.Struct(lr)
}

// Handlers

func (api *parentApi) dashboard(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	rctx := ctx.Request().Context()

	students, err := api.userSvc.Students(rctx, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying linked students")
	}

	children := make([]ChildSummary, 0, len(students))
	for _, student := range students {
		summary, err := api.childSummary(ctx, student)
		if err != nil {
			return err
		}
		children = append(children, summary)
	}

	unread, err := api.alertSvc.UnreadCount(rctx, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "counting unread alerts")
	}

	return ctx.JSON(http.StatusOK, ParentDashboardResponse{
		Children:     children,
		UnreadAlerts: unread,
	})
}

func (api *parentApi) childSummary(ctx echo.Context, student user.User) (ChildSummary, error) {
	rctx := ctx.Request().Context()

	total, err := api.studySvc.TotalHours(rctx, student.ID)
	if err != nil {
		return ChildSummary{}, errors.Wrap(err, "summing study hours")
	}
	streak, err := api.studySvc.Streak(rctx, student.ID)
	if err != nil {
		return ChildSummary{}, errors.Wrap(err, "computing study streak")
	}
	goals, err := api.studySvc.QueryOpenTermGoals(rctx, student.ID)
	if err != nil {
		return ChildSummary{}, errors.Wrap(err, "querying open term goals")
	}
	if goals == nil {
		goals = []study.TermGoal{}
	}
	roadmaps, err := api.roadmapSummaries(ctx, student.ID)
	if err != nil {
		return ChildSummary{}, err
	}

	return ChildSummary{
		Student:        student,
		TotalHours:     total,
		StudyStreak:    streak,
		OpenGoals:      goals,
		ActiveRoadmaps: roadmaps,
	}, nil
}

func (api *parentApi) roadmapSummaries(ctx echo.Context, studentID string) ([]RoadmapSummary, error) {
	rctx := ctx.Request().Context()

	active, err := api.roadmapSvc.QueryActive(rctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying active roadmaps")
	}

	summaries := make([]RoadmapSummary, 0, len(active))
	for _, rm := range active {
		completed, total, err := api.roadmapSvc.Completion(rctx, rm.ID)
		if err != nil {
			return nil, errors.Wrap(err, "counting roadmap items")
		}
		summaries = append(summaries, RoadmapSummary{
			Roadmap:   rm,
			Progress:  roadmap.Percentage(completed, total),
			Completed: completed,
			Total:     total,
		})
	}
	return summaries, nil
}

func (api *parentApi) linkStudent(ctx echo.Context) error {
	var data LinkStudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkStudentRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	parent, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.userSvc.LinkStudent(ctx.Request().Context(), parent, data.Username); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "username", Error: "no such student"})
		}
		return errors.Wrap(err, "linking student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *parentApi) retrieveStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	rctx := ctx.Request().Context()
	studentID := ctx.Param("id")

	linked, err := api.userSvc.IsLinked(rctx, claims.Subject, studentID)
	if err != nil {
		return errors.Wrap(err, "checking parent link")
	}
	if !linked && !claims.IsAdmin {
		return errHttpNotFound
	}

	student, err := api.userSvc.GetByID(rctx, studentID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding student by ID")
	}

	analytics, err := api.studySvc.Analytics(rctx, studentID)
	if err != nil {
		return errors.Wrap(err, "building analytics")
	}
	subjects, err := api.studySvc.QuerySubjects(rctx, studentID)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []study.Subject{}
	}
	goals, err := api.studySvc.QueryOpenTermGoals(rctx, studentID)
	if err != nil {
		return errors.Wrap(err, "querying open term goals")
	}
	if goals == nil {
		goals = []study.TermGoal{}
	}
	roadmaps, err := api.roadmapSummaries(ctx, studentID)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, ChildDetailResponse{
		Student:        student,
		Analytics:      analytics,
		Subjects:       subjects,
		OpenGoals:      goals,
		ActiveRoadmaps: roadmaps,
	})
}

func (api *parentApi) queryAlerts(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(alert.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []alert.ProgressAlert{})
	}

	alerts, err := api.alertSvc.Query(ctx.Request().Context(), claims.Subject, *filter)
	if err != nil {
		return err
	}
	if alerts == nil {
		alerts = []alert.ProgressAlert{}
	}
	return ctx.JSON(http.StatusOK, alerts)
}

func (api *parentApi) unreadCount(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	count, err := api.alertSvc.UnreadCount(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "counting unread alerts")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"unread": count})
}

func (api *parentApi) markAlertRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	rctx := ctx.Request().Context()

	alrt, err := api.alertSvc.Get(rctx, ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == alert.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding alert by ID")
	}
	if alrt.ParentID != claims.Subject && !claims.IsAdmin {
		return errHttpNotFound
	}

	if err := api.alertSvc.MarkRead(rctx, alrt.ID); err != nil {
		if errors.Cause(err) == alert.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "marking alert read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *parentApi) markAllAlertsRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.alertSvc.MarkAllRead(ctx.Request().Context(), claims.Subject); err != nil {
		return errors.Wrap(err, "marking alerts read")
	}
	return ctx.NoContent(http.StatusNoContent)
}
