package pharmacy

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/prescriptions")
	g.POST("", h.Create, auth.RequireRole(auth.RoleDoctor))
	g.GET("", h.List, auth.RequireRole(auth.RolePharmacy))
	g.GET("/unclaimed", h.ListUnclaimed, auth.RequireRole(auth.RolePharmacy))
	g.GET("/mine", h.Mine, auth.RequireRole(auth.RolePharmacy))
	g.PUT("/:id/claim", h.Claim, auth.RequireRole(auth.RolePharmacy))
	g.PUT("/:id/verify", h.Verify, auth.RequireRole(auth.RolePharmacy))
	g.PUT("/:id/dispense", h.Dispense, auth.RequireRole(auth.RolePharmacy))
	g.GET("/patient/:patient_id", h.ListForPatient, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	g.GET("/doctor/:doctor_id", h.ListForDoctor, auth.RequireRole(auth.RoleDoctor))
	g.DELETE("/:id", h.Delete, auth.RequireRole(auth.RoleDoctor))
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.Create(ctx, auth.IdentityFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListUnclaimed(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUnclaimed(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Mine(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Mine(ctx, auth.IdentityFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Claim(c echo.Context) error {
	return h.transition(c, h.svc.Claim)
}

func (h *Handler) Verify(c echo.Context) error {
	return h.transition(c, h.svc.Verify)
}

func (h *Handler) Dispense(c echo.Context) error {
	return h.transition(c, h.svc.Dispense)
}

func (h *Handler) transition(c echo.Context, fn func(context.Context, auth.Identity, uuid.UUID) (*Prescription, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, err := fn(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(ctx, auth.IdentityFromContext(ctx), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForDoctor(ctx, auth.IdentityFromContext(ctx), doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, auth.IdentityFromContext(ctx), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
