package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/ocpp"
)

type fakeDispatcher struct {
	DispatchActionFunc func(ctx context.Context, serial string, connector int, action string, params json.RawMessage) (ocpp.CallOutcome, error)
}

func (f *fakeDispatcher) DispatchAction(ctx context.Context, serial string, connector int, action string, params json.RawMessage) (ocpp.CallOutcome, error) {
	return f.DispatchActionFunc(ctx, serial, connector, action, params)
}

func newCommandApp(dispatcher *fakeDispatcher) *fiber.App {
	app := fiber.New()
	h := NewCommandHandler(dispatcher, zap.NewNop())
	app.Post("/chargers/:id/commands", h.Dispatch)
	app.Post("/chargers/:id/remote-start", h.RemoteStart)
	app.Post("/chargers/:id/remote-stop", h.RemoteStop)
	app.Post("/chargers/:id/reset", h.Reset)
	return app
}

func TestCommandDispatch(t *testing.T) {
	testCases := []struct {
		name           string
		body           string
		outcome        ocpp.CallOutcome
		dispatchErr    error
		expectedStatus int
		expectedAction string
	}{
		{
			name:           "accepted_command",
			body:           `{"action":"ClearCache"}`,
			outcome:        ocpp.CallOutcome{Success: true, StatusCode: "Accepted"},
			expectedStatus: fiber.StatusOK,
			expectedAction: "ClearCache",
		},
		{
			name:           "rejected_by_device",
			body:           `{"action":"Reset","params":{"type":"Hard"}}`,
			outcome:        ocpp.CallOutcome{Success: false, Detail: "Rejected"},
			expectedStatus: fiber.StatusBadGateway,
			expectedAction: "Reset",
		},
		{
			name:           "charger_offline",
			body:           `{"action":"ClearCache"}`,
			dispatchErr:    ocpp.ErrNotConnected,
			expectedStatus: fiber.StatusServiceUnavailable,
			expectedAction: "ClearCache",
		},
		{
			name:           "missing_action",
			body:           `{"connector":1}`,
			expectedStatus: fiber.StatusBadRequest,
		},
		{
			name:           "engine_failure",
			body:           `{"action":"ClearCache"}`,
			dispatchErr:    errors.New("pending registry full"),
			expectedStatus: fiber.StatusInternalServerError,
			expectedAction: "ClearCache",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var gotAction string
			dispatcher := &fakeDispatcher{
				DispatchActionFunc: func(ctx context.Context, serial string, connector int, action string, params json.RawMessage) (ocpp.CallOutcome, error) {
					gotAction = action
					assert.Equal(t, "CP-7", serial)
					return tc.outcome, tc.dispatchErr
				},
			}
			app := newCommandApp(dispatcher)

			req := httptest.NewRequest("POST", "/chargers/CP-7/commands", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedStatus, resp.StatusCode)
			if tc.expectedAction != "" {
				assert.Equal(t, tc.expectedAction, gotAction)
			}
		})
	}
}

func TestRemoteStartForwardsIDTag(t *testing.T) {
	var gotAction string
	var gotParams json.RawMessage
	dispatcher := &fakeDispatcher{
		DispatchActionFunc: func(ctx context.Context, serial string, connector int, action string, params json.RawMessage) (ocpp.CallOutcome, error) {
			gotAction = action
			gotParams = params
			assert.Equal(t, 2, connector)
			return ocpp.CallOutcome{Success: true, StatusCode: "Accepted"}, nil
		},
	}
	app := newCommandApp(dispatcher)

	req := httptest.NewRequest("POST", "/chargers/CP-7/remote-start",
		bytes.NewBufferString(`{"id_tag":"TAG-42","connector":2}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "RemoteStartTransaction", gotAction)

	var params map[string]interface{}
	assert.NoError(t, json.Unmarshal(gotParams, &params))
	assert.Equal(t, "TAG-42", params["idTag"])
	assert.Equal(t, float64(2), params["connectorId"])
}

func TestRemoteStopRequiresTransactionID(t *testing.T) {
	dispatcher := &fakeDispatcher{
		DispatchActionFunc: func(ctx context.Context, serial string, connector int, action string, params json.RawMessage) (ocpp.CallOutcome, error) {
			t.Fatal("dispatch should not be called")
			return ocpp.CallOutcome{}, nil
		},
	}
	app := newCommandApp(dispatcher)

	req := httptest.NewRequest("POST", "/chargers/CP-7/remote-stop", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestResetDefaultsToSoft(t *testing.T) {
	var gotParams json.RawMessage
	dispatcher := &fakeDispatcher{
		DispatchActionFunc: func(ctx context.Context, serial string, connector int, action string, params json.RawMessage) (ocpp.CallOutcome, error) {
			gotParams = params
			return ocpp.CallOutcome{Success: true, StatusCode: "Accepted"}, nil
		},
	}
	app := newCommandApp(dispatcher)

	req := httptest.NewRequest("POST", "/chargers/CP-7/reset", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var params map[string]string
	assert.NoError(t, json.Unmarshal(gotParams, &params))
	assert.Equal(t, "Soft", params["type"])

	body, _ := io.ReadAll(resp.Body)
	var outcome ocpp.CallOutcome
	assert.NoError(t, json.Unmarshal(body, &outcome))
	assert.True(t, outcome.Success)
}
