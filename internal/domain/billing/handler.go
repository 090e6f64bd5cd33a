package billing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/domain/visit"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	visits *visit.Service
}

func NewHandler(svc *Service, visits *visit.Service) *Handler {
	return &Handler{svc: svc, visits: visits}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(
		auth.RoleAdmin, auth.RoleCashier, auth.RoleReceptionist, auth.RoleDoctor, auth.RoleNurse))
	readGroup.GET("/visits/:id/billing/items", h.ListItems)
	readGroup.GET("/visits/:id/billing/rollup", h.GetRollup)
	readGroup.GET("/visits/:id/billing/payments", h.GetPaymentSummary)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleCashier))
	writeGroup.POST("/visits/:id/billing/items", h.CreateItem)
	writeGroup.POST("/visits/:id/billing/payments", h.RecordPayment)
	writeGroup.POST("/billing/items/:itemID/void", h.VoidItem)
}

type createItemRequest struct {
	ItemType       ItemType   `json:"item_type"`
	ReferenceID    *uuid.UUID `json:"reference_id,omitempty"`
	Description    *string    `json:"description,omitempty"`
	UnitPrice      float64    `json:"unit_price"`
	Quantity       int        `json:"quantity"`
	DiscountAmount float64    `json:"discount_amount"`
}

func (h *Handler) CreateItem(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	var req createItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item := &BillableItem{
		VisitID:        visitID,
		ItemType:       req.ItemType,
		ReferenceID:    req.ReferenceID,
		Description:    req.Description,
		UnitPrice:      req.UnitPrice,
		Quantity:       req.Quantity,
		DiscountAmount: req.DiscountAmount,
	}
	if err := h.svc.CreateItem(c.Request().Context(), item); err != nil {
		return billingHTTPError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) ListItems(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	items, err := h.svc.ListItems(c.Request().Context(), visitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

type recordPaymentRequest struct {
	Lines     []PaymentLine `json:"lines"`
	Tendered  float64       `json:"tendered"`
	Method    string        `json:"method"`
	Reference *string       `json:"reference,omitempty"`
}

func (h *Handler) RecordPayment(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	var req recordPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	rec, err := h.svc.RecordPayment(c.Request().Context(), visitID, req.Lines, req.Tendered, req.Method, req.Reference, actor)
	if err != nil {
		return billingHTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// GetRollup reports the visit-level payment verdict plus the separately
// computed consultation status.
func (h *Handler) GetRollup(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	v, err := h.visits.Get(c.Request().Context(), visitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	overall, err := h.svc.RollupPaymentStatus(c.Request().Context(), v)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	consultation, err := h.svc.ConsultationPaymentStatus(c.Request().Context(), v)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"visit_id":                    v.ID,
		"overall_payment_status":      overall,
		"consultation_payment_status": consultation,
	})
}

func (h *Handler) GetPaymentSummary(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	summary, err := h.svc.PaymentSummary(c.Request().Context(), visitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) VoidItem(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	if err := h.svc.VoidItem(c.Request().Context(), itemID); err != nil {
		return billingHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func billingHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrItemNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateBillableItem), errors.Is(err, ErrItemAlreadyPaid):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoConsultationServiceConfigured),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrPartialPaymentMismatch):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
