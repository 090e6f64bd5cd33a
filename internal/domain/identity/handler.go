package identity

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(
		auth.RoleAdmin, auth.RoleReceptionist, auth.RoleCashier, auth.RoleDoctor, auth.RoleNurse,
		auth.RoleLabTechnician, auth.RoleRadiologist, auth.RolePharmacist))
	staff.GET("/patients", h.ListPatients)
	staff.GET("/patients/:id", h.GetPatient)

	frontdesk := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist))
	frontdesk.POST("/patients", h.RegisterPatient)
	frontdesk.PUT("/patients/:id", h.UpdatePatient)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/staff", h.CreateStaffUser)
	admin.GET("/staff", h.ListStaffUsers)
	admin.GET("/staff/:id", h.GetStaffUser)
	admin.PUT("/staff/:id", h.UpdateStaffUser)
	admin.DELETE("/staff/:id", h.DeactivateStaffUser)
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RegisterPatient(c.Request().Context(), &p); err != nil {
		return identityHTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// MRN lookup as a fallback keeps board deep links working.
		p, mrnErr := h.svc.GetPatientByMRN(c.Request().Context(), c.Param("id"))
		if mrnErr != nil {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return c.JSON(http.StatusOK, p)
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return identityHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return identityHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateStaffUser(c echo.Context) error {
	var u StaffUser
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateStaffUser(c.Request().Context(), &u); err != nil {
		return identityHTTPError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetStaffUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetStaffUser(c.Request().Context(), id)
	if err != nil {
		return identityHTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateStaffUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var u StaffUser
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u.ID = id
	if err := h.svc.UpdateStaffUser(c.Request().Context(), &u); err != nil {
		return identityHTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeactivateStaffUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeactivateStaffUser(c.Request().Context(), id); err != nil {
		return identityHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListStaffUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListStaffUsers(c.Request().Context(), c.QueryParam("role"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func identityHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateMRN):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
