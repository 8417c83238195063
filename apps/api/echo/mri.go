package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/telecom-etude/erp/core/mri"
	"github.com/telecom-etude/erp/core/user"
)

type mriApi struct {
	svc     *mri.Service
	userSvc user.ServiceInterface
}

func registerMRIAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *mri.Service, userSvc user.ServiceInterface) {
	api := mriApi{svc: svc, userSvc: userSvc}

	mg := g.Group("/mris", jwt)
	mg.GET("", api.query)
	mg.GET("/to-validate", api.queryToValidate)
	mg.GET("/:id", api.retrieve)
	mg.PUT("/:id/fields/:field", api.setField)
	mg.POST("/:id/validate", api.validate)
	mg.POST("/:id/finish", api.finish)
	mg.POST("/:id/send", api.send)

	sg := g.Group("/studies/:code/mris", jwt)
	sg.GET("", api.queryStudy)
	sg.POST("", api.create)
}

// Handlers

func (api *mriApi) viewer(ctx echo.Context) (user.User, error) {
	viewer, err := getContextUser(ctx, api.userSvc)
	return viewer, errors.Wrap(err, "getting context user")
}

func (api *mriApi) query(ctx echo.Context) error {
	viewer, err := api.viewer(ctx)
	if err != nil {
		return err
	}

	mris, err := api.svc.QueryPublic(ctx.Request().Context(), viewer)
	if err != nil {
		return errors.Wrap(err, "querying mris")
	}
	if mris == nil {
		mris = []mri.PublicMRI{}
	}
	return ctx.JSON(http.StatusOK, mris)
}

func (api *mriApi) queryToValidate(ctx echo.Context) error {
	viewer, err := api.viewer(ctx)
	if err != nil {
		return err
	}

	mris, err := api.svc.QueryToValidate(ctx.Request().Context(), viewer)
	if err != nil {
		return errors.Wrap(err, "querying mris to validate")
	}
	if mris == nil {
		mris = []mri.StudyMRIListItem{}
	}
	return ctx.JSON(http.StatusOK, mris)
}

func (api *mriApi) queryStudy(ctx echo.Context) error {
	viewer, err := api.viewer(ctx)
	if err != nil {
		return err
	}

	mris, err := api.svc.QueryStudyMRIs(ctx.Request().Context(), viewer, ctx.Param("code"))
	if err != nil {
		return errors.Wrap(err, "querying study mris")
	}
	if mris == nil {
		mris = []mri.StudyMRIListItem{}
	}
	return ctx.JSON(http.StatusOK, mris)
}

func (api *mriApi) create(ctx echo.Context) error {
	viewer, err := api.viewer(ctx)
	if err != nil {
		return err
	}

	item, err := api.svc.CreateEmpty(ctx.Request().Context(), viewer, ctx.Param("code"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *mriApi) retrieve(ctx echo.Context) error {
	viewer, err := api.viewer(ctx)
	if err != nil {
		return err
	}

	m, err := api.svc.Get(ctx.Request().Context(), viewer, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *mriApi) setField(ctx echo.Context) error {
	viewer, err := api.viewer(ctx)
	if err != nil {
		return err
	}

	var data SetFieldRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetFieldRequest")
	}

	field := mri.Field(ctx.Param("field"))
	if err := api.svc.SetField(ctx.Request().Context(), viewer, ctx.Param("id"), field, data.Value); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *mriApi) validate(ctx echo.Context) error {
	viewer, err := api.viewer(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Validate(ctx.Request().Context(), viewer, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *mriApi) finish(ctx echo.Context) error {
	viewer, err := api.viewer(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Finish(ctx.Request().Context(), viewer, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *mriApi) send(ctx echo.Context) error {
	viewer, err := api.viewer(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Send(ctx.Request().Context(), viewer, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type SetFieldRequest struct {
	Value string `json:"value"`
}
