package identity

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbeta/medbeta/internal/platform/auth"
)

// AppointmentDirectory answers which patients a doctor has actually seen.
// The scheduling domain provides the implementation.
type AppointmentDirectory interface {
	PatientIDsSeen(ctx context.Context, doctorID uuid.UUID) ([]uuid.UUID, error)
}

type Handler struct {
	svc   *Service
	appts AppointmentDirectory
}

func NewHandler(svc *Service, appts AppointmentDirectory) *Handler {
	return &Handler{svc: svc, appts: appts}
}

// RegisterRoutes mounts auth endpoints on the public group and profile
// endpoints on the authenticated group.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/register", h.Register)
	public.POST("/auth/login", h.Login)
	public.PUT("/auth/reset-password", h.RequestPasswordReset)
	public.POST("/auth/reset-password/complete", h.CompletePasswordReset)

	api.POST("/auth/logout", h.Logout)
	api.PUT("/auth/change-password", h.ChangePassword)

	patientGroup := api.Group("/patients", auth.RequireRole(auth.RolePatient))
	patientGroup.GET("/profile", h.GetPatientProfile)
	patientGroup.PUT("/profile", h.UpdatePatientProfile)

	doctorGroup := api.Group("/doctors", auth.RequireRole(auth.RoleDoctor))
	doctorGroup.GET("/profile", h.GetDoctorProfile)
	doctorGroup.PUT("/profile", h.UpdateDoctorProfile)
	doctorGroup.GET("/patients", h.ListDoctorPatients)

	pharmacyGroup := api.Group("/pharmacies", auth.RequireRole(auth.RolePharmacy))
	pharmacyGroup.GET("/profile", h.GetPharmacyProfile)
}

type authResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	user, token, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *Handler) Login(c echo.Context) error {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	user, token, err := h.svc.Login(c.Request().Context(), in.Email, in.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

// Logout acknowledges the client discarding its token. Tokens are stateless,
// so there is nothing to revoke server-side.
func (h *Handler) Logout(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var in struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	userID := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.ChangePassword(c.Request().Context(), userID, in.OldPassword, in.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password changed"})
}

func (h *Handler) RequestPasswordReset(c echo.Context) error {
	var in struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.RequestPasswordReset(c.Request().Context(), in.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "reset email sent"})
}

func (h *Handler) CompletePasswordReset(c echo.Context) error {
	var in struct {
		Email       string `json:"email"`
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CompletePasswordReset(c.Request().Context(), in.Email, in.Token, in.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password reset"})
}

func (h *Handler) GetPatientProfile(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.PatientProfile(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatientProfile(c echo.Context) error {
	var in PatientProfileUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.UpdatePatientProfile(ctx, auth.UserIDFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetDoctorProfile(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.svc.DoctorProfile(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctorProfile(c echo.Context) error {
	var in DoctorProfileUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	d, err := h.svc.UpdateDoctorProfile(ctx, auth.UserIDFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// ListDoctorPatients returns the distinct patients the calling doctor has
// seen through appointments.
func (h *Handler) ListDoctorPatients(c echo.Context) error {
	ctx := c.Request().Context()
	doctor, err := h.svc.DoctorProfile(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}

	ids, err := h.appts.PatientIDsSeen(ctx, doctor.ID)
	if err != nil {
		return err
	}

	patients := make([]*Patient, 0, len(ids))
	for _, id := range ids {
		p, err := h.svc.patients.GetByID(ctx, id)
		if err != nil {
			continue
		}
		patients = append(patients, p)
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) GetPharmacyProfile(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.PharmacyProfile(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
