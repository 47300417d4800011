package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/ocpp"
)

type commandDispatcher interface {
	DispatchAction(ctx context.Context, serial string, connector int, action string, params json.RawMessage) (ocpp.CallOutcome, error)
}

// CommandHandler exposes the raw command surface: any CS-initiated
// OCPP action can be pushed to a connected charge point.
type CommandHandler struct {
	gateway commandDispatcher
	log     *zap.Logger
}

func NewCommandHandler(gateway commandDispatcher, log *zap.Logger) *CommandHandler {
	return &CommandHandler{
		gateway: gateway,
		log:     log,
	}
}

// DispatchRequest is the generic command envelope.
type DispatchRequest struct {
	Action    string          `json:"action"`
	Connector int             `json:"connector,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Dispatch handles POST /api/v1/chargers/:id/commands
func (h *CommandHandler) Dispatch(c *fiber.Ctx) error {
	serial := c.Params("id")

	var req DispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "action is required"})
	}

	outcome, err := h.gateway.DispatchAction(c.Context(), serial, req.Connector, req.Action, req.Params)
	if err != nil {
		if errors.Is(err, ocpp.ErrNotConnected) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Charger is not connected"})
		}
		h.log.Error("Command dispatch failed",
			zap.String("charger_id", serial),
			zap.String("action", req.Action),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	status := fiber.StatusOK
	if !outcome.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(outcome)
}

// RemoteStartRequest represents a remote start request
type RemoteStartRequest struct {
	IDTag     string `json:"id_tag"`
	Connector int    `json:"connector,omitempty"`
}

// RemoteStart handles POST /api/v1/chargers/:id/remote-start
func (h *CommandHandler) RemoteStart(c *fiber.Ctx) error {
	serial := c.Params("id")

	var req RemoteStartRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.IDTag == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id_tag is required"})
	}

	params := fiber.Map{"idTag": req.IDTag}
	if req.Connector > 0 {
		params["connectorId"] = req.Connector
	}
	return h.forward(c, serial, req.Connector, string(ocpp.ActionRemoteStartTransaction), params)
}

// RemoteStopRequest represents a remote stop request
type RemoteStopRequest struct {
	TransactionID int `json:"transaction_id"`
}

// RemoteStop handles POST /api/v1/chargers/:id/remote-stop
func (h *CommandHandler) RemoteStop(c *fiber.Ctx) error {
	serial := c.Params("id")

	var req RemoteStopRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TransactionID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "transaction_id is required"})
	}

	return h.forward(c, serial, 0, string(ocpp.ActionRemoteStopTransaction),
		fiber.Map{"transactionId": req.TransactionID})
}

// Reset handles POST /api/v1/chargers/:id/reset
func (h *CommandHandler) Reset(c *fiber.Ctx) error {
	serial := c.Params("id")

	var req struct {
		Type string `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil || req.Type == "" {
		req.Type = "Soft"
	}

	return h.forward(c, serial, 0, string(ocpp.ActionReset), fiber.Map{"type": req.Type})
}

// UnlockConnector handles POST /api/v1/chargers/:id/unlock
func (h *CommandHandler) UnlockConnector(c *fiber.Ctx) error {
	serial := c.Params("id")

	var req struct {
		Connector int `json:"connector"`
	}
	if err := c.BodyParser(&req); err != nil || req.Connector == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "connector is required"})
	}

	return h.forward(c, serial, req.Connector, string(ocpp.ActionUnlockConnector),
		fiber.Map{"connectorId": req.Connector})
}

// ChangeConfiguration handles POST /api/v1/chargers/:id/configuration
func (h *CommandHandler) ChangeConfiguration(c *fiber.Ctx) error {
	serial := c.Params("id")

	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil || req.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key is required"})
	}

	return h.forward(c, serial, 0, string(ocpp.ActionChangeConfiguration),
		fiber.Map{"key": req.Key, "value": req.Value})
}

func (h *CommandHandler) forward(c *fiber.Ctx, serial string, connector int, action string, params fiber.Map) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	outcome, err := h.gateway.DispatchAction(c.Context(), serial, connector, action, raw)
	if err != nil {
		if errors.Is(err, ocpp.ErrNotConnected) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Charger is not connected"})
		}
		h.log.Error("Command dispatch failed",
			zap.String("charger_id", serial),
			zap.String("action", action),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	status := fiber.StatusOK
	if !outcome.Success {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(outcome)
}
