package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/ports"
)

type ChargerHandler struct {
	devices      ports.DeviceService
	transactions ports.TransactionService
	log          *zap.Logger
}

func NewChargerHandler(devices ports.DeviceService, transactions ports.TransactionService, log *zap.Logger) *ChargerHandler {
	return &ChargerHandler{
		devices:      devices,
		transactions: transactions,
		log:          log,
	}
}

func (h *ChargerHandler) List(c *fiber.Ctx) error {
	filter := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}
	if connected := c.Query("connected"); connected != "" {
		filter["connected"] = connected == "true"
	}

	chargers, err := h.devices.ListChargers(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(chargers)
}

func (h *ChargerHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	charger, err := h.devices.GetCharger(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if charger == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Charger not found"})
	}
	return c.JSON(charger)
}

func (h *ChargerHandler) ActiveTransaction(c *fiber.Ctx) error {
	id := c.Params("id")
	connector, _ := strconv.Atoi(c.Query("connector", "1"))

	tx, err := h.transactions.GetActive(c.Context(), id, connector)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if tx == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No active transaction"})
	}
	return c.JSON(tx)
}

func (h *ChargerHandler) GetTransaction(c *fiber.Ctx) error {
	tx, err := h.transactions.GetTransaction(c.Context(), c.Params("txid"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if tx == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
	}
	return c.JSON(tx)
}
