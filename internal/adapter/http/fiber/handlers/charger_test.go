package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/mocks"
)

func newChargerApp(devices *mocks.MockDeviceService, transactions *mocks.MockTransactionService) *fiber.App {
	app := fiber.New()
	h := NewChargerHandler(devices, transactions, zap.NewNop())
	app.Get("/chargers", h.List)
	app.Get("/chargers/:id", h.Get)
	app.Get("/chargers/:id/transactions/active", h.ActiveTransaction)
	app.Get("/transactions/:txid", h.GetTransaction)
	return app
}

func TestListChargersAppliesFilters(t *testing.T) {
	var gotFilter map[string]interface{}
	devices := &mocks.MockDeviceService{
		ListChargersFunc: func(ctx context.Context, filter map[string]interface{}) ([]domain.Charger, error) {
			gotFilter = filter
			return []domain.Charger{{ID: "CP-1"}, {ID: "CP-2"}}, nil
		},
	}
	app := newChargerApp(devices, &mocks.MockTransactionService{})

	resp, err := app.Test(httptest.NewRequest("GET", "/chargers?status=Available&connected=true", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Available", gotFilter["status"])
	assert.Equal(t, true, gotFilter["connected"])

	body, _ := io.ReadAll(resp.Body)
	var chargers []domain.Charger
	assert.NoError(t, json.Unmarshal(body, &chargers))
	assert.Len(t, chargers, 2)
}

func TestGetChargerNotFound(t *testing.T) {
	devices := &mocks.MockDeviceService{
		GetChargerFunc: func(ctx context.Context, id string) (*domain.Charger, error) {
			return nil, nil
		},
	}
	app := newChargerApp(devices, &mocks.MockTransactionService{})

	resp, err := app.Test(httptest.NewRequest("GET", "/chargers/CP-404", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestActiveTransactionDefaultsConnector(t *testing.T) {
	var gotConnector int
	transactions := &mocks.MockTransactionService{
		GetActiveFunc: func(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error) {
			gotConnector = connector
			return &domain.Transaction{ID: "tx-1", ChargerID: chargerID}, nil
		},
	}
	app := newChargerApp(&mocks.MockDeviceService{}, transactions)

	resp, err := app.Test(httptest.NewRequest("GET", "/chargers/CP-1/transactions/active", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, gotConnector)
}

func TestGetTransactionNotFound(t *testing.T) {
	transactions := &mocks.MockTransactionService{
		GetTransactionFunc: func(ctx context.Context, id string) (*domain.Transaction, error) {
			return nil, nil
		},
	}
	app := newChargerApp(&mocks.MockDeviceService{}, transactions)

	resp, err := app.Test(httptest.NewRequest("GET", "/transactions/nope", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
