package review

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

// RegisterRoutes puts the read endpoints on the public group so review
// scores are browsable without an account.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	api.POST("/reviews", h.Create, auth.RequireRole(auth.RolePatient))
	public.GET("/reviews/doctor/:id", h.ForDoctor)
	public.GET("/reviews/hospital/:id", h.ForHospital)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	rv, err := h.svc.Create(ctx, auth.IdentityFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rv)
}

func (h *Handler) ForDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	pg := pagination.FromContext(c)
	sum, err := h.svc.ForDoctor(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) ForHospital(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital id")
	}
	pg := pagination.FromContext(c)
	sum, err := h.svc.ForHospital(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}
