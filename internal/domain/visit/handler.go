package visit

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

var staffRoles = []string{
	auth.RoleAdmin, auth.RoleReceptionist, auth.RoleNurse, auth.RoleDoctor,
	auth.RoleLabTechnician, auth.RoleRadiologist, auth.RolePharmacist, auth.RoleCashier,
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(staffRoles...))
	readGroup.GET("/visits", h.ListVisits)
	readGroup.GET("/visits/:id", h.GetVisit)
	readGroup.GET("/visits/:id/timeline", h.GetTimeline)
	readGroup.GET("/visits/:id/status-events", h.GetStatusEvents)
	readGroup.GET("/visits/:id/wait", h.GetCurrentWait)

	// Stage-level authorization happens in the service against the
	// visit's current stage; the route gate only keeps non-staff out.
	writeGroup := api.Group("", auth.RequireRole(staffRoles...))
	writeGroup.POST("/visits", h.RegisterVisit, auth.RequireRole(auth.RoleReceptionist, auth.RoleAdmin))
	writeGroup.POST("/visits/:id/advance", h.AdvanceStage)
	writeGroup.POST("/visits/:id/cancel", h.CancelVisit, auth.RequireRole(auth.RoleReceptionist, auth.RoleAdmin))
}

type registerRequest struct {
	PatientID          uuid.UUID `json:"patient_id"`
	FacilityID         uuid.UUID `json:"facility_id"`
	PaymentArrangement string    `json:"payment_arrangement"`
}

func (h *Handler) RegisterVisit(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	v, err := h.svc.Register(c.Request().Context(), req.PatientID, req.FacilityID, req.PaymentArrangement, actor)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	pg := pagination.FromContext(c)

	if patientID := c.QueryParam("patient_id"); patientID != "" {
		pid, err := uuid.Parse(patientID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		visits, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(visits, total, pg.Limit, pg.Offset))
	}

	facilityID, err := uuid.Parse(c.QueryParam("facility_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "facility_id is required")
	}
	activeOnly := c.QueryParam("active") == "true"
	visits, total, err := h.svc.List(c.Request().Context(), facilityID, activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(visits, total, pg.Limit, pg.Offset))
}

type advanceRequest struct {
	Stage Stage `json:"stage"`
}

func (h *Handler) AdvanceStage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req advanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	previous, current, err := h.svc.AdvanceStage(c.Request().Context(), id, req.Stage, actor)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]Stage{
		"previous_stage": previous,
		"current_stage":  current,
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.Cancel(c.Request().Context(), id, req.Reason, actor); err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]Stage{"current_stage": StageCancelled})
}

func (h *Handler) GetTimeline(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.Timeline(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetStatusEvents(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	events, err := h.svc.StatusEvents(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) GetCurrentWait(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	minutes, err := h.svc.CurrentWaitMinutes(c.Request().Context(), id, v.CurrentStage)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"stage":        v.CurrentStage,
		"wait_minutes": minutes,
	})
}

// domainHTTPError maps domain sentinels to transport statuses.
func domainHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrTerminalState), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
