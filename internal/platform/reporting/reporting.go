package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/platform/auth"
)

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"sql"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "visit-stage-distribution",
		Name:        "Visit Stage Distribution",
		Description: "Count of non-terminal visits grouped by current stage",
		SQL: `SELECT current_stage, COUNT(*) AS total FROM visit
			WHERE current_stage NOT IN ('discharged', 'cancelled')
			GROUP BY current_stage ORDER BY total DESC`,
		Parameters: []string{},
	},
	{
		ID:          "average-wait-by-stage",
		Name:        "Average Wait by Stage",
		Description: "Average completed wait time per stage over the last 7 days, in minutes",
		SQL: `SELECT stage, ROUND(AVG(wait_time_minutes), 1) AS avg_wait_minutes, COUNT(*) AS samples
			FROM visit_timeline
			WHERE completed_at IS NOT NULL AND arrived_at > NOW() - INTERVAL '7 days'
			GROUP BY stage ORDER BY avg_wait_minutes DESC`,
		Parameters: []string{},
	},
	{
		ID:          "daily-collections",
		Name:        "Daily Collections",
		Description: "Funds collected per day over the last 30 days, by payment method",
		SQL: `SELECT DATE(created_at) AS day, method, SUM(amount) AS collected
			FROM payment_transaction
			WHERE created_at > NOW() - INTERVAL '30 days'
			GROUP BY day, method ORDER BY day DESC, collected DESC`,
		Parameters: []string{},
	},
	{
		ID:          "outstanding-balances",
		Name:        "Outstanding Balances",
		Description: "Unpaid, non-voided billable items grouped by item type",
		SQL: `SELECT item_type, COUNT(*) AS items, SUM(subtotal) AS outstanding
			FROM billable_item
			WHERE payment_status = 'unpaid' AND NOT voided
			GROUP BY item_type ORDER BY outstanding DESC`,
		Parameters: []string{},
	},
	{
		ID:          "order-turnaround",
		Name:        "Order Turnaround",
		Description: "Average time from order to completion per order type, last 7 days",
		SQL: `SELECT order_type,
			ROUND(AVG(EXTRACT(EPOCH FROM (completed_at - created_at)) / 60), 1) AS avg_minutes,
			COUNT(*) AS completed
			FROM clinical_order
			WHERE status = 'completed' AND created_at > NOW() - INTERVAL '7 days'
			GROUP BY order_type ORDER BY avg_minutes DESC`,
		Parameters: []string{},
	},
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	pool  *pgxpool.Pool
	board *Board
}

// NewHandler creates a new reporting handler.
func NewHandler(pool *pgxpool.Pool, board *Board) *Handler {
	return &Handler{pool: pool, board: board}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleCashier))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)

	boardGroup := api.Group("/board", auth.RequireRole(
		auth.RoleAdmin, auth.RoleReceptionist, auth.RoleCashier, auth.RoleDoctor, auth.RoleNurse,
		auth.RoleLabTechnician, auth.RoleRadiologist, auth.RolePharmacist))
	boardGroup.GET("", h.GetBoard)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	params := map[string]string{}
	for _, p := range measure.Parameters {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now(),
		Results:     results,
		Parameters:  params,
	})
}

// GetBoard renders the live patient-flow board for a facility.
func (h *Handler) GetBoard(c echo.Context) error {
	if h.board == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "board not configured")
	}
	facilityID := c.QueryParam("facility_id")
	rows, err := h.board.Snapshot(c.Request().Context(), facilityID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows, err := h.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]interface{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[string(fd.Name)] = values[i]
		}
		results = append(results, row)
	}

	if results == nil {
		results = []map[string]interface{}{}
	}

	return results, nil
}

// FindMeasure looks up a measure by ID, useful for testing.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
