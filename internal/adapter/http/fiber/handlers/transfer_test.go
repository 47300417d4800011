package handlers

import (
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTransferApp(baseDir string) *fiber.App {
	app := fiber.New()
	h := NewTransferHandler(baseDir, zap.NewNop())
	app.Put("/transfer/diagnostics/:serial", h.UploadDiagnostics)
	app.Get("/transfer/diagnostics/:serial", h.ListDiagnostics)
	app.Get("/transfer/diagnostics/:serial/:file", h.DownloadDiagnostics)
	app.Get("/transfer/firmware/:file", h.DownloadFirmware)
	app.Put("/transfer/firmware/:file", h.UploadFirmware)
	return app
}

func TestDiagnosticsUploadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	app := newTransferApp(dir)

	payload := []byte("diagnostic archive bytes")
	req := httptest.NewRequest("PUT", "/transfer/diagnostics/CP-1", bytes.NewBuffer(payload))
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	entries, err := os.ReadDir(filepath.Join(dir, "diagnostics", "CP-1"))
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	listResp, err := app.Test(httptest.NewRequest("GET", "/transfer/diagnostics/CP-1", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, listResp.StatusCode)

	dlResp, err := app.Test(httptest.NewRequest("GET", "/transfer/diagnostics/CP-1/"+entries[0].Name(), nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, dlResp.StatusCode)
	body, _ := io.ReadAll(dlResp.Body)
	assert.Equal(t, payload, body)
}

func TestEmptyDiagnosticsUploadRejected(t *testing.T) {
	app := newTransferApp(t.TempDir())

	resp, err := app.Test(httptest.NewRequest("PUT", "/transfer/diagnostics/CP-1", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestFirmwareStageAndDownload(t *testing.T) {
	app := newTransferApp(t.TempDir())

	image := []byte{0x7f, 0x45, 0x4c, 0x46}
	req := httptest.NewRequest("PUT", "/transfer/firmware/fw-2.1.0.bin", bytes.NewBuffer(image))
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	dlResp, err := app.Test(httptest.NewRequest("GET", "/transfer/firmware/fw-2.1.0.bin", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, dlResp.StatusCode)
	body, _ := io.ReadAll(dlResp.Body)
	assert.Equal(t, image, body)
}

func TestMissingFirmwareIs404(t *testing.T) {
	app := newTransferApp(t.TempDir())

	resp, err := app.Test(httptest.NewRequest("GET", "/transfer/firmware/nope.bin", nil))
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSanitizeSegmentRejectsTraversal(t *testing.T) {
	assert.Equal(t, "", sanitizeSegment(".."))
	assert.Equal(t, "", sanitizeSegment("a/../b"))
	assert.Equal(t, "", sanitizeSegment("a\\b"))
	assert.Equal(t, "CP-1", sanitizeSegment("CP-1"))
}
