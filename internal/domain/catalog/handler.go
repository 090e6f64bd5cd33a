package catalog

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(
		auth.RoleAdmin, auth.RoleReceptionist, auth.RoleCashier, auth.RoleDoctor, auth.RoleNurse,
		auth.RoleLabTechnician, auth.RoleRadiologist, auth.RolePharmacist))
	read.GET("/facilities", h.ListFacilities)
	read.GET("/facilities/:id", h.GetFacility)
	read.GET("/facilities/:id/pricing", h.GetActivePricingRule)
	read.GET("/facilities/:id/services", h.ListServiceDefinitions)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/facilities", h.CreateFacility)
	write.PUT("/facilities/:id", h.UpdateFacility)
	write.POST("/facilities/:id/pricing", h.SetPricingRule)
	write.GET("/facilities/:id/pricing/history", h.ListPricingRules)
	write.POST("/facilities/:id/services", h.CreateServiceDefinition)
	write.PUT("/services/:serviceID", h.UpdateServiceDefinition)
}

func (h *Handler) CreateFacility(c echo.Context) error {
	var f Facility
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateFacility(c.Request().Context(), &f); err != nil {
		return catalogHTTPError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetFacility(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.svc.GetFacility(c.Request().Context(), id)
	if err != nil {
		return catalogHTTPError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) UpdateFacility(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var f Facility
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.ID = id
	if err := h.svc.UpdateFacility(c.Request().Context(), &f); err != nil {
		return catalogHTTPError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) ListFacilities(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	items, err := h.svc.ListFacilities(c.Request().Context(), activeOnly)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) SetPricingRule(c echo.Context) error {
	facilityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid facility id")
	}
	var rule ConsultationPricingRule
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rule.FacilityID = facilityID
	if err := h.svc.SetPricingRule(c.Request().Context(), &rule); err != nil {
		return catalogHTTPError(err)
	}
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) GetActivePricingRule(c echo.Context) error {
	facilityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid facility id")
	}
	rule, err := h.svc.ActivePricingRule(c.Request().Context(), facilityID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if rule == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active pricing rule")
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) ListPricingRules(c echo.Context) error {
	facilityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid facility id")
	}
	rules, err := h.svc.ListPricingRules(c.Request().Context(), facilityID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rules)
}

func (h *Handler) CreateServiceDefinition(c echo.Context) error {
	facilityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid facility id")
	}
	var sd ServiceDefinition
	if err := c.Bind(&sd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sd.FacilityID = facilityID
	if err := h.svc.CreateServiceDefinition(c.Request().Context(), &sd); err != nil {
		return catalogHTTPError(err)
	}
	return c.JSON(http.StatusCreated, sd)
}

func (h *Handler) UpdateServiceDefinition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("serviceID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid service id")
	}
	var sd ServiceDefinition
	if err := c.Bind(&sd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sd.ID = id
	if err := h.svc.UpdateServiceDefinition(c.Request().Context(), &sd); err != nil {
		return catalogHTTPError(err)
	}
	return c.JSON(http.StatusOK, sd)
}

func (h *Handler) ListServiceDefinitions(c echo.Context) error {
	facilityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid facility id")
	}
	activeOnly := c.QueryParam("active") != "false"
	items, err := h.svc.ListServiceDefinitions(c.Request().Context(), facilityID, c.QueryParam("category"), activeOnly)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func catalogHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateCode):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
