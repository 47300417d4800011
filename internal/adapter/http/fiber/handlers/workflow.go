package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/service/certs"
	"github.com/gridfleet/gateway/internal/service/diagnostics"
	"github.com/gridfleet/gateway/internal/service/firmware"
	"github.com/gridfleet/gateway/internal/service/locallist"
	"github.com/gridfleet/gateway/internal/service/profile"
	"github.com/gridfleet/gateway/internal/service/reservation"
)

// WorkflowHandler fronts the long-running device operations: firmware
// rollouts, diagnostics pulls, reservations, charging profiles, local
// auth lists and certificate management.
type WorkflowHandler struct {
	firmware     *firmware.Service
	diagnostics  *diagnostics.Service
	reservations *reservation.Service
	profiles     *profile.Service
	locallist    *locallist.Service
	certs        *certs.Service
	log          *zap.Logger
}

func NewWorkflowHandler(
	fw *firmware.Service,
	diag *diagnostics.Service,
	res *reservation.Service,
	prof *profile.Service,
	list *locallist.Service,
	cert *certs.Service,
	log *zap.Logger,
) *WorkflowHandler {
	return &WorkflowHandler{
		firmware:     fw,
		diagnostics:  diag,
		reservations: res,
		profiles:     prof,
		locallist:    list,
		certs:        cert,
		log:          log,
	}
}

// --- Firmware ---

type deployFirmwareRequest struct {
	Location   string     `json:"location"`
	RetrieveAt *time.Time `json:"retrieve_at,omitempty"`
	Retries    int        `json:"retries,omitempty"`
}

// DeployFirmware handles POST /api/v1/chargers/:id/firmware
func (h *WorkflowHandler) DeployFirmware(c *fiber.Ctx) error {
	var req deployFirmwareRequest
	if err := c.BodyParser(&req); err != nil || req.Location == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "location is required"})
	}

	retrieveAt := time.Now()
	if req.RetrieveAt != nil {
		retrieveAt = *req.RetrieveAt
	}

	rec, err := h.firmware.Deploy(c.Context(), c.Params("id"), req.Location, retrieveAt, req.Retries)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(rec)
}

// FirmwareStatus handles GET /api/v1/chargers/:id/firmware
func (h *WorkflowHandler) FirmwareStatus(c *fiber.Ctx) error {
	recs, err := h.firmware.Status(c.Context(), c.Params("id"), queryLimit(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(recs)
}

type publishFirmwareRequest struct {
	Location string `json:"location"`
	Checksum string `json:"checksum"`
	Retries  int    `json:"retries,omitempty"`
}

// PublishFirmware handles POST /api/v1/chargers/:id/firmware/publish
func (h *WorkflowHandler) PublishFirmware(c *fiber.Ctx) error {
	var req publishFirmwareRequest
	if err := c.BodyParser(&req); err != nil || req.Location == "" || req.Checksum == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "location and checksum are required"})
	}

	rec, err := h.firmware.Publish(c.Context(), c.Params("id"), req.Location, req.Checksum, req.Retries)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(rec)
}

// UnpublishFirmware handles DELETE /api/v1/chargers/:id/firmware/publish
func (h *WorkflowHandler) UnpublishFirmware(c *fiber.Ctx) error {
	checksum := c.Query("checksum")
	if checksum == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "checksum is required"})
	}

	rec, err := h.firmware.Unpublish(c.Context(), c.Params("id"), checksum)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(rec)
}

// --- Diagnostics ---

type diagnosticsRequest struct {
	Location string     `json:"location,omitempty"`
	Start    *time.Time `json:"start,omitempty"`
	Stop     *time.Time `json:"stop,omitempty"`
}

// RequestDiagnostics handles POST /api/v1/chargers/:id/diagnostics
func (h *WorkflowHandler) RequestDiagnostics(c *fiber.Ctx) error {
	var req diagnosticsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	rec, err := h.diagnostics.Request(c.Context(), c.Params("id"), req.Location, req.Start, req.Stop)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(rec)
}

type logRequest struct {
	Type   string     `json:"type,omitempty"`
	Oldest *time.Time `json:"oldest,omitempty"`
	Latest *time.Time `json:"latest,omitempty"`
}

// RequestLog handles POST /api/v1/chargers/:id/logs
func (h *WorkflowHandler) RequestLog(c *fiber.Ctx) error {
	var req logRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Type == "" {
		req.Type = "DiagnosticsLog"
	}

	rec, err := h.diagnostics.RequestLog(c.Context(), c.Params("id"), req.Type, req.Oldest, req.Latest)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(rec)
}

// DiagnosticsStatus handles GET /api/v1/chargers/:id/diagnostics
func (h *WorkflowHandler) DiagnosticsStatus(c *fiber.Ctx) error {
	recs, err := h.diagnostics.Status(c.Context(), c.Params("id"), queryLimit(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(recs)
}

type triggerRequest struct {
	Message   string `json:"message"`
	Connector int    `json:"connector,omitempty"`
}

// TriggerMessage handles POST /api/v1/chargers/:id/trigger
func (h *WorkflowHandler) TriggerMessage(c *fiber.Ctx) error {
	var req triggerRequest
	if err := c.BodyParser(&req); err != nil || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	rec, err := h.diagnostics.Trigger(c.Context(), c.Params("id"), req.Message, req.Connector)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(rec)
}

// --- Reservations ---

type reserveRequest struct {
	Connector int       `json:"connector"`
	IDTag     string    `json:"id_tag"`
	Expiry    time.Time `json:"expiry"`
}

// Reserve handles POST /api/v1/chargers/:id/reservations
func (h *WorkflowHandler) Reserve(c *fiber.Ctx) error {
	var req reserveRequest
	if err := c.BodyParser(&req); err != nil || req.IDTag == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id_tag is required"})
	}
	if req.Expiry.IsZero() {
		req.Expiry = time.Now().Add(time.Hour)
	}

	rec, err := h.reservations.Reserve(c.Context(), c.Params("id"), req.Connector, req.IDTag, req.Expiry)
	if err != nil {
		if errors.Is(err, reservation.ErrRejected) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "workflow": rec})
		}
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// CancelReservation handles DELETE /api/v1/chargers/:id/reservations/:rid
func (h *WorkflowHandler) CancelReservation(c *fiber.Ctx) error {
	rid, err := strconv.Atoi(c.Params("rid"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reservation id"})
	}

	if err := h.reservations.Cancel(c.Context(), c.Params("id"), rid); err != nil {
		if errors.Is(err, reservation.ErrRejected) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return h.workflowError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListReservations handles GET /api/v1/chargers/:id/reservations
func (h *WorkflowHandler) ListReservations(c *fiber.Ctx) error {
	recs, err := h.reservations.List(c.Context(), c.Params("id"), queryLimit(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(recs)
}

// --- Charging profiles ---

type applyProfileRequest struct {
	Connector int             `json:"connector"`
	ProfileID int             `json:"profile_id"`
	Profile   json.RawMessage `json:"profile"`
}

// ApplyProfile handles POST /api/v1/chargers/:id/profiles
func (h *WorkflowHandler) ApplyProfile(c *fiber.Ctx) error {
	var req applyProfileRequest
	if err := c.BodyParser(&req); err != nil || len(req.Profile) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "profile is required"})
	}

	rec, err := h.profiles.Apply(c.Context(), c.Params("id"), req.Connector, req.ProfileID, req.Profile)
	if err != nil {
		if errors.Is(err, profile.ErrRejected) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "workflow": rec})
		}
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// ClearProfiles handles DELETE /api/v1/chargers/:id/profiles
func (h *WorkflowHandler) ClearProfiles(c *fiber.Ctx) error {
	var profileID, connector *int
	if v, err := strconv.Atoi(c.Query("profile_id")); err == nil {
		profileID = &v
	}
	if v, err := strconv.Atoi(c.Query("connector")); err == nil {
		connector = &v
	}

	if err := h.profiles.Clear(c.Context(), c.Params("id"), profileID, connector); err != nil {
		if errors.Is(err, profile.ErrRejected) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return h.workflowError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CompositeSchedule handles GET /api/v1/chargers/:id/schedule
func (h *WorkflowHandler) CompositeSchedule(c *fiber.Ctx) error {
	connector, _ := strconv.Atoi(c.Query("connector", "1"))
	duration, _ := strconv.Atoi(c.Query("duration", "86400"))

	schedule, err := h.profiles.CompositeSchedule(c.Context(), c.Params("id"), connector, duration)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.JSON(schedule)
}

// --- Local authorization list ---

type pushListRequest struct {
	Version    int                            `json:"version"`
	UpdateType string                         `json:"update_type,omitempty"`
	Entries    []locallist.AuthorizationEntry `json:"entries"`
}

// PushLocalList handles POST /api/v1/chargers/:id/locallist
func (h *WorkflowHandler) PushLocalList(c *fiber.Ctx) error {
	var req pushListRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	rec, err := h.locallist.Push(c.Context(), c.Params("id"), req.Version, req.Entries, req.UpdateType)
	if err != nil {
		if errors.Is(err, locallist.ErrRejected) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "workflow": rec})
		}
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// LocalListVersion handles GET /api/v1/chargers/:id/locallist/version
func (h *WorkflowHandler) LocalListVersion(c *fiber.Ctx) error {
	version, err := h.locallist.Version(c.Context(), c.Params("id"))
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.JSON(fiber.Map{"list_version": version})
}

// --- Certificates ---

type installCertificateRequest struct {
	CertificateType string `json:"certificate_type"`
	Certificate     string `json:"certificate"`
}

// InstallCertificate handles POST /api/v1/chargers/:id/certificates
func (h *WorkflowHandler) InstallCertificate(c *fiber.Ctx) error {
	var req installCertificateRequest
	if err := c.BodyParser(&req); err != nil || req.Certificate == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "certificate is required"})
	}

	rec, err := h.certs.Install(c.Context(), c.Params("id"), req.CertificateType, req.Certificate)
	if err != nil {
		if errors.Is(err, certs.ErrRejected) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "workflow": rec})
		}
		return h.workflowError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// DeleteCertificate handles DELETE /api/v1/chargers/:id/certificates
func (h *WorkflowHandler) DeleteCertificate(c *fiber.Ctx) error {
	var hash certs.CertificateHashData
	if err := c.BodyParser(&hash); err != nil || hash.SerialNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "certificate hash data is required"})
	}

	rec, err := h.certs.Delete(c.Context(), c.Params("id"), hash)
	if err != nil {
		if errors.Is(err, certs.ErrRejected) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "workflow": rec})
		}
		return h.workflowError(c, err)
	}
	return c.JSON(rec)
}

// ListCertificates handles GET /api/v1/chargers/:id/certificates
func (h *WorkflowHandler) ListCertificates(c *fiber.Ctx) error {
	installed, err := h.certs.ListInstalled(c.Context(), c.Params("id"), nil)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.JSON(installed)
}

// CertificateHistory handles GET /api/v1/chargers/:id/certificates/history
func (h *WorkflowHandler) CertificateHistory(c *fiber.Ctx) error {
	recs, err := h.certs.History(c.Context(), c.Params("id"), queryLimit(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(recs)
}

func (h *WorkflowHandler) workflowError(c *fiber.Ctx, err error) error {
	h.log.Error("Workflow request failed",
		zap.String("charger_id", c.Params("id")),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
}

func queryLimit(c *fiber.Ctx) int {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 {
		return 20
	}
	return limit
}
