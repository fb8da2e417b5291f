/*
scenarios_test.go - Tests for the demo scenarios

PURPOSE:
	Loads each scenario through the HTTP API and checks the resulting
	stock, so the scenarios double as end-to-end tests of the pipeline
	and the closing flow.
*/
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) loadScenario(id string) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
}

func (s *testServer) itemByCode(code string) ItemDTO {
	s.t.Helper()
	items := decodeAs[[]ItemDTO](s.t, s.do(http.MethodGet, "/api/items", nil))
	for _, it := range items {
		if it.Code == code {
			return it
		}
	}
	s.t.Fatalf("item %s not found", code)
	return ItemDTO{}
}

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAs[[]ScenarioDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "press-weld-paint", list[0].ID)
}

func TestScenario_PressWeldPaint(t *testing.T) {
	// GIVEN: An empty database
	// WHEN: Loading the production scenario
	// THEN: Stock at month end follows receipts, BOM consumption and the shipment
	s := newTestServer(t)

	rec := s.loadScenario("press-weld-paint")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	expected := map[string]string{
		"RM-SPCC-16": "1519.5", // 2000 received, 480.5 pressed
		"RM-NUT-M8":  "400",    // 1000 received, 150 x 4 welded
		"P-100":      "100",    // 400 pressed, 150 x 2 welded
		"W-100":      "30",     // 150 welded, 120 painted
		"PT-100":     "20",     // 120 painted, 100 shipped
	}
	for code, want := range expected {
		item := s.itemByCode(code)
		got := s.stock(item.ID, "2025-09-30")
		assert.True(t, decimal.RequireFromString(want).Equal(got), "%s: want %s, got %s", code, want, got)
	}

	txs := decodeAs[[]TransactionDTO](t, s.do(http.MethodGet, "/api/transactions", nil))
	assert.Len(t, txs, 5)

	status := decodeAs[PriceStatusDTO](t, s.do(http.MethodGet, "/api/monthly-prices/status/2025-09", nil))
	assert.True(t, status.IsFixed)
}

func TestScenario_MonthClosing(t *testing.T) {
	// GIVEN: The closing scenario, with brackets counted at 96 against 100
	// WHEN: Closing September
	// THEN: A -4 adjustment is created and October opens at the counted stock
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.loadScenario("month-closing").Code)

	ready := decodeAs[ReadinessDTO](t, s.do(http.MethodGet, "/api/closing/2025-09/readiness", nil))
	assert.Equal(t, "VARIANCE", ready.State)
	assert.Equal(t, 0, ready.UnresolvedDifferences, "the difference carries a reason")
	assert.True(t, ready.Ready)

	rec := s.do(http.MethodPost, "/api/snapshots/2025-09/close", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeAs[CloseMonthResponse](t, rec).AdjustmentCreated)

	bracket := s.itemByCode("P-100")
	assert.True(t, decimal.NewFromInt(96).Equal(s.stock(bracket.ID, "2025-10-01")))
	steel := s.itemByCode("RM-SPCC-16")
	assert.True(t, decimal.RequireFromString("1519.5").Equal(s.stock(steel.ID, "2025-10-01")))
}

func TestScenario_RefusesNonEmptyDatabase(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.loadScenario("press-weld-paint").Code)

	rec := s.loadScenario("month-closing")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeAs[ErrorResponse](t, rec).Code)
}

func TestScenario_UnknownID(t *testing.T) {
	s := newTestServer(t)

	rec := s.loadScenario("year-end")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
