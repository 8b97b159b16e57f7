package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
)

type roadmapApi struct {
	svc      *roadmap.Service
	studySvc *study.Service
}

func registerRoadmapAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *roadmap.Service, studySvc *study.Service) {
	api := roadmapApi{svc: svc, studySvc: studySvc}

	sg := g.Group("/subjects/:id", jwt, studentMiddleware())
	sg.POST("/roadmap", api.generate)
	sg.GET("/roadmaps", api.queryBySubject)

	rg := g.Group("/roadmaps/:id", jwt, studentMiddleware())
	rg.GET("", api.retrieve)
	rg.DELETE("", api.destroy)

	g.GET("/roadmap-steps/:id", api.retrieveStep, jwt, studentMiddleware())
	g.POST("/checklist-items/:id/toggle", api.toggleItem, jwt, studentMiddleware())
}

// ownedRoadmap loads a roadmap (with its full step tree) and makes sure it
// belongs to the logged-in student.
func (api *roadmapApi) ownedRoadmap(ctx echo.Context, id string) (roadmap.Roadmap, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return roadmap.Roadmap{}, errors.Wrap(err, "getting context claims")
	}
	rm, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == roadmap.ErrNotFound {
			return roadmap.Roadmap{}, errHttpNotFound
		}
		return roadmap.Roadmap{}, errors.Wrap(err, "finding roadmap by ID")
	}
	if rm.StudentID != claims.Subject && !claims.IsAdmin {
		return roadmap.Roadmap{}, errHttpNotFound
	}
	return rm, nil
}

// Handlers

func (api *roadmapApi) generate(ctx echo.Context) error {
	sub, err := ownedSubject(ctx, api.studySvc, ctx.Param("id"))
	if err != nil {
		return err
	}

	rm, err := api.svc.Generate(ctx.Request().Context(), sub)
	if err != nil {
		return errors.Wrap(err, "generating roadmap")
	}
	return ctx.JSON(http.StatusCreated, rm)
}

func (api *roadmapApi) queryBySubject(ctx echo.Context) error {
	sub, err := ownedSubject(ctx, api.studySvc, ctx.Param("id"))
	if err != nil {
		return err
	}

	rms, err := api.svc.QueryBySubject(ctx.Request().Context(), sub.ID)
	if err != nil {
		return errors.Wrap(err, "querying roadmaps")
	}
	if rms == nil {
		rms = []roadmap.Roadmap{}
	}
	return ctx.JSON(http.StatusOK, rms)
}

type (
	RoadmapDetailResponse struct {
		roadmap.Roadmap
		Progress float64 `json:"progress"`
	}

	StepDetailResponse struct {
		roadmap.Step
		CategoryDisplay string  `json:"category_display"`
		Progress        float64 `json:"progress"`
		Completed       bool    `json:"completed"`
	}
)

func (api *roadmapApi) retrieve(ctx echo.Context) error {
	rm, err := api.ownedRoadmap(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, RoadmapDetailResponse{
		Roadmap:  rm,
		Progress: rm.Progress(),
	})
}

func (api *roadmapApi) destroy(ctx echo.Context) error {
	rm, err := api.ownedRoadmap(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), rm.ID); err != nil {
		return errors.Wrap(err, "deleting roadmap")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *roadmapApi) retrieveStep(ctx echo.Context) error {
	step, err := api.svc.GetStep(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == roadmap.ErrStepNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding roadmap step by ID")
	}
	if _, err = api.ownedRoadmap(ctx, step.RoadmapID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, StepDetailResponse{
		Step:            step,
		CategoryDisplay: roadmap.CategoryDisplayName(step.Category),
		Progress:        step.Progress(),
		Completed:       step.IsCompleted(),
	})
}

func (api *roadmapApi) toggleItem(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	rctx := ctx.Request().Context()

	studentID, err := api.svc.ItemOwner(rctx, ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == roadmap.ErrItemNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "resolving checklist item owner")
	}
	if studentID != claims.Subject && !claims.IsAdmin {
		return errHttpNotFound
	}

	res, err := api.svc.ToggleChecklistItem(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling checklist item")
	}
	return ctx.JSON(http.StatusOK, res)
}
