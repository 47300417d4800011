package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TransferHandler serves the file exchange surface chargers use out of
// band: diagnostics archives are uploaded here, firmware images are
// downloaded from here. Everything lives under a single base directory
// on local disk.
type TransferHandler struct {
	baseDir string
	log     *zap.Logger
}

func NewTransferHandler(baseDir string, log *zap.Logger) *TransferHandler {
	return &TransferHandler{
		baseDir: baseDir,
		log:     log,
	}
}

// UploadDiagnostics handles PUT /transfer/diagnostics/:serial. Chargers
// typically upload via plain HTTP PUT with the archive as the body.
func (h *TransferHandler) UploadDiagnostics(c *fiber.Ctx) error {
	serial := sanitizeSegment(c.Params("serial"))
	if serial == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid serial"})
	}

	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Empty upload"})
	}

	dir := filepath.Join(h.baseDir, "diagnostics", serial)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.log.Error("Failed to create diagnostics directory", zap.String("dir", dir), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Storage unavailable"})
	}

	name := fmt.Sprintf("%s.tar.gz", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		h.log.Error("Failed to persist diagnostics upload", zap.String("path", path), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Storage unavailable"})
	}

	h.log.Info("Diagnostics archive received",
		zap.String("charger_id", serial),
		zap.String("file", name),
		zap.Int("bytes", len(body)),
	)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"file": name, "bytes": len(body)})
}

// ListDiagnostics handles GET /transfer/diagnostics/:serial
func (h *TransferHandler) ListDiagnostics(c *fiber.Ctx) error {
	serial := sanitizeSegment(c.Params("serial"))
	if serial == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid serial"})
	}

	dir := filepath.Join(h.baseDir, "diagnostics", serial)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return c.JSON([]fiber.Map{})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Storage unavailable"})
	}

	files := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fiber.Map{
			"file":     e.Name(),
			"bytes":    info.Size(),
			"modified": info.ModTime().UTC(),
		})
	}
	return c.JSON(files)
}

// DownloadDiagnostics handles GET /transfer/diagnostics/:serial/:file
func (h *TransferHandler) DownloadDiagnostics(c *fiber.Ctx) error {
	serial := sanitizeSegment(c.Params("serial"))
	file := sanitizeSegment(c.Params("file"))
	if serial == "" || file == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid path"})
	}
	return h.sendFile(c, filepath.Join(h.baseDir, "diagnostics", serial, file))
}

// DownloadFirmware handles GET /transfer/firmware/:file. Firmware
// images are staged under the base directory by operators and referenced
// by URL in UpdateFirmware requests.
func (h *TransferHandler) DownloadFirmware(c *fiber.Ctx) error {
	file := sanitizeSegment(c.Params("file"))
	if file == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid path"})
	}
	return h.sendFile(c, filepath.Join(h.baseDir, "firmware", file))
}

// UploadFirmware handles PUT /transfer/firmware/:file, used by operators
// to stage an image before a rollout.
func (h *TransferHandler) UploadFirmware(c *fiber.Ctx) error {
	file := sanitizeSegment(c.Params("file"))
	if file == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid path"})
	}

	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Empty upload"})
	}

	dir := filepath.Join(h.baseDir, "firmware")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Storage unavailable"})
	}
	if err := os.WriteFile(filepath.Join(dir, file), body, 0o644); err != nil {
		h.log.Error("Failed to persist firmware image", zap.String("file", file), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Storage unavailable"})
	}

	h.log.Info("Firmware image staged", zap.String("file", file), zap.Int("bytes", len(body)))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"file": file, "bytes": len(body)})
}

func (h *TransferHandler) sendFile(c *fiber.Ctx, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "File not found"})
	}
	return c.SendFile(path)
}

// sanitizeSegment rejects path segments that could escape the base
// directory.
func sanitizeSegment(s string) string {
	if s == "" || s == "." || s == ".." {
		return ""
	}
	if strings.ContainsAny(s, "/\\") || strings.Contains(s, "..") {
		return ""
	}
	return s
}
