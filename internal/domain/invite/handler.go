package invite

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/pkg/pagination"
)

// HospitalGuard checks that the caller may act for a hospital before
// staff invitations are issued in its name.
type HospitalGuard interface {
	RequireOwnership(ctx context.Context, caller auth.Identity, id uuid.UUID) error
}

type Handler struct {
	svc   *Service
	guard HospitalGuard
}

func NewHandler(svc *Service, guard HospitalGuard) *Handler {
	return &Handler{svc: svc, guard: guard}
}

func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.GET("/auth/setup-password/:token", h.Preview)
	public.POST("/auth/setup-password/:token", h.Activate)

	g := api.Group("/invites")
	g.POST("", h.Create, auth.RequireRole(auth.RoleSuperAdmin))
	g.GET("", h.ListPending, auth.RequireRole(auth.RoleSuperAdmin))
	g.POST("/:id/resend", h.Resend, auth.RequireRole(auth.RoleSuperAdmin))
	g.DELETE("/:id", h.Revoke, auth.RequireRole(auth.RoleSuperAdmin))

	api.POST("/hospitals/:id/invites", h.CreateForHospital, auth.RequireRole(auth.RoleHospitalAdmin))
	api.POST("/hospitals/:id/upload-staff", h.UploadStaff, auth.RequireRole(auth.RoleHospitalAdmin))
}

func (h *Handler) Preview(c echo.Context) error {
	p, err := h.svc.Preview(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Activate(c echo.Context) error {
	var in ActivateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	user, token, err := h.svc.Activate(c.Request().Context(), c.Param("token"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"token": token, "user": user})
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// CreateForHospital lets a hospital_admin invite staff into their own
// hospital. The path pins the hospital and only staff roles pass.
func (h *Handler) CreateForHospital(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if err := h.guard.RequireOwnership(ctx, auth.IdentityFromContext(ctx), hospitalID); err != nil {
		return err
	}
	if in.Role == auth.RoleHospitalAdmin {
		return apperror.Forbidden("hospital admins cannot invite other hospital admins")
	}
	in.HospitalID = &hospitalID

	res, err := h.svc.Create(ctx, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) UploadStaff(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	ctx := c.Request().Context()
	if err := h.guard.RequireOwnership(ctx, auth.IdentityFromContext(ctx), hospitalID); err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file upload is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer src.Close()

	res, err := h.svc.BulkUpload(ctx, hospitalID, src)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPending(c.Request().Context(), c.QueryParam("role"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Resend(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.svc.Resend(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Revoke(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Revoke(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
