package orders

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
	clinical := api.Group("", auth.RequireRole(
		auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse,
		auth.RoleLabTechnician, auth.RoleRadiologist, auth.RolePharmacist, auth.RoleCashier))
	clinical.GET("/visits/:id/orders", h.ListByVisit)
	clinical.GET("/orders/:id", h.Get)
	clinical.GET("/orders", h.Worklist)

	write := api.Group("", auth.RequireRole(
		auth.RoleAdmin, auth.RoleDoctor,
		auth.RoleLabTechnician, auth.RoleRadiologist, auth.RolePharmacist))
	write.POST("/orders", h.PlaceOrder)
	write.POST("/orders/:id/status", h.UpdateStatus)
}

func (h *Handler) PlaceOrder(c echo.Context) error {
	var in PlaceOrderInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	order, err := h.svc.PlaceOrder(c.Request().Context(), in, actor)
	if err != nil {
		return ordersHTTPError(err)
	}
	return c.JSON(http.StatusCreated, order)
}

type updateStatusRequest struct {
	Status        OrderStatus `json:"status"`
	ResultSummary *string     `json:"result_summary,omitempty"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	order, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status, req.ResultSummary, actor)
	if err != nil {
		return ordersHTTPError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	order, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return ordersHTTPError(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) ListByVisit(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	items, err := h.svc.ListByVisit(c.Request().Context(), visitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Worklist(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.Worklist(c.Request().Context(),
		OrderType(c.QueryParam("type")), OrderStatus(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func ordersHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidStatusChange):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
