package admin

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbeta/medbeta/internal/domain/invite"
	"github.com/medbeta/medbeta/internal/domain/records"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/pkg/pagination"
)

// InviteConsole is the slice of the invitation service the admin console
// drives: issuing, listing, re-sending and withdrawing invitations.
type InviteConsole interface {
	Create(ctx context.Context, in invite.CreateInput) (*invite.InviteResult, error)
	BulkUpload(ctx context.Context, hospitalID uuid.UUID, r io.Reader) (*invite.BulkResult, error)
	ListPending(ctx context.Context, role string, limit, offset int) ([]*invite.PendingUser, int, error)
	Resend(ctx context.Context, id uuid.UUID) (*invite.InviteResult, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}

// AccessLogSource exposes the platform-wide audit trail.
type AccessLogSource interface {
	ListAccessLogs(ctx context.Context, limit, offset int) ([]*records.AccessLog, int, error)
}

type Handler struct {
	svc     *Service
	invites InviteConsole
	logs    AccessLogSource
}

func NewHandler(svc *Service, invites InviteConsole, logs AccessLogSource) *Handler {
	return &Handler{svc: svc, invites: invites, logs: logs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin", auth.RequireRole(auth.RoleSuperAdmin))
	g.GET("/overview", h.Overview)
	g.GET("/users", h.ListUsers)
	g.GET("/hospitals", h.ListHospitals)
	g.GET("/access-logs", h.ListAccessLogs)

	g.POST("/invite-user", h.InviteUser)
	g.POST("/upload-staff", h.UploadStaff)
	g.GET("/pending-invites", h.PendingInvites)
	g.GET("/pending-staff", h.PendingStaff)
	g.GET("/pending-doctors", h.pendingByRole(auth.RoleDoctor))
	g.GET("/pending-hospitals", h.pendingByRole(auth.RoleHospitalAdmin))
	g.PUT("/approve-hospital/:id", h.Approve)
	g.PUT("/approve-doctor/:id", h.Approve)
	g.PUT("/reject-doctor/:id", h.Reject)
}

func (h *Handler) Overview(c echo.Context) error {
	o, err := h.svc.Overview(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUsers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListHospitals(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListHospitals(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAccessLogs(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.logs.ListAccessLogs(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) InviteUser(c echo.Context) error {
	var in invite.CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.invites.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// UploadStaff bulk-invites a roster into any hospital. The hospital is
// named by a hospital_id form field alongside the file.
func (h *Handler) UploadStaff(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.FormValue("hospital_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "hospital_id form field is required")
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

	res, err := h.invites.BulkUpload(c.Request().Context(), hospitalID, src)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) PendingInvites(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.invites.ListPending(c.Request().Context(), c.QueryParam("role"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// PendingStaff lists open invitations excluding hospital admins, which
// have their own listing.
func (h *Handler) PendingStaff(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, _, err := h.invites.ListPending(c.Request().Context(), "", pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	staff := make([]*invite.PendingUser, 0, len(items))
	for _, p := range items {
		if p.Role != auth.RoleHospitalAdmin {
			staff = append(staff, p)
		}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(staff, len(staff), pg.Limit, pg.Offset))
}

func (h *Handler) pendingByRole(role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		pg := pagination.FromContext(c)
		items, total, err := h.invites.ListPending(c.Request().Context(), role, pg.Limit, pg.Offset)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
}

// Approve re-sends an invitation with a fresh token and expiry.
func (h *Handler) Approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.invites.Resend(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Reject withdraws an open invitation.
func (h *Handler) Reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.invites.Revoke(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
