package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/telecom-etude/erp/core"
	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
)

type studyApi struct {
	svc      *study.Service
	userSvc  user.ServiceInterface
	validate *validator.Validate
}

func registerStudyAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *study.Service,
	userSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := studyApi{svc: svc, userSvc: userSvc, validate: validate}

	sg := g.Group("/studies", jwt)
	sg.GET("", api.queryMine)
	sg.POST("", api.create, adminMiddleware())
	sg.GET("/:code", api.retrieve)
	sg.POST("/:code/cdps", api.assignCDP, adminMiddleware())
}

func (api *studyApi) queryMine(ctx echo.Context) error {
	viewer, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	studies, err := api.svc.QueryViewerStudies(ctx.Request().Context(), viewer)
	if err != nil {
		return errors.Wrap(err, "querying studies")
	}
	if studies == nil {
		studies = []study.WithCode{}
	}
	return ctx.JSON(http.StatusOK, studies)
}

func (api *studyApi) create(ctx echo.Context) error {
	var data study.NewStudy
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudy")
	}
	data.Code = core.CleanString(data.Code)
	data.Title = core.CleanString(data.Title)
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating study")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studyApi) retrieve(ctx echo.Context) error {
	viewer, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	s, err := api.svc.GetByCode(ctx.Request().Context(), viewer, ctx.Param("code"))
	if err != nil {
		if errors.Cause(err) == study.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting study")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studyApi) assignCDP(ctx echo.Context) error {
	viewer, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data AssignCDPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignCDPRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	s, err := api.svc.GetByCode(ctx.Request().Context(), viewer, ctx.Param("code"))
	if err != nil {
		if errors.Cause(err) == study.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting study")
	}

	if err := api.svc.AssignCDP(ctx.Request().Context(), s.ID, data.UserID); err != nil {
		return errors.Wrap(err, "assigning CDP")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type AssignCDPRequest struct {
	UserID string `json:"user_id" validate:"required"`
}
