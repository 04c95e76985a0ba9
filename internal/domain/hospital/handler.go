package hospital

import (
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
	g := api.Group("/hospitals")
	g.GET("", h.List, auth.RequireRole(auth.RoleSuperAdmin))
	g.GET("/mine", h.Mine, auth.RequireRole(auth.RoleHospitalAdmin))
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update, auth.RequireRole(auth.RoleHospitalAdmin))
	g.PUT("/:id/sign-agreement", h.SignAgreement, auth.RequireRole(auth.RoleHospitalAdmin))
	g.DELETE("/:id", h.Delete, auth.RequireRole(auth.RoleSuperAdmin))
	g.GET("/:id/staff", h.Staff, auth.RequireRole(auth.RoleHospitalAdmin))
	g.GET("/:id/doctors", h.Doctors, auth.RequireRole(auth.RoleHospitalAdmin))
	g.GET("/:id/labtechs", h.Technicians, auth.RequireRole(auth.RoleHospitalAdmin))
	g.GET("/:id/pharmacists", h.Pharmacies, auth.RequireRole(auth.RoleHospitalAdmin))
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Mine(c echo.Context) error {
	ctx := c.Request().Context()
	hosp, err := h.svc.Mine(ctx, auth.IdentityFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	hosp, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	hosp, err := h.svc.Update(ctx, auth.IdentityFromContext(ctx), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) SignAgreement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	hosp, err := h.svc.SignAgreement(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Staff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	staff, err := h.svc.Staff(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, staff)
}

func (h *Handler) Doctors(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	items, err := h.svc.Doctors(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Technicians(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	items, err := h.svc.Technicians(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Pharmacies(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	items, err := h.svc.Pharmacies(ctx, auth.IdentityFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}
