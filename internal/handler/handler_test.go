package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"urbanvision/internal/config"
	"urbanvision/internal/dto"
	"urbanvision/internal/logger"
	"urbanvision/internal/model"
	"urbanvision/internal/registry"
	"urbanvision/internal/repository/sqlite"
	"urbanvision/internal/service"
	"urbanvision/internal/service/ai"
	"urbanvision/internal/service/storage"
)

// ========================================
// Test Setup Helpers
// ========================================

type stubDetector struct {
	output []model.RawDetection
}

func (s *stubDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]model.RawDetection, error) {
	return s.output, nil
}

func setupTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DefaultConfidence: 0.5,
		MaxUploadMB:       1,
		ImageDirectory:    filepath.Join(t.TempDir(), "images"),
		LogDirectory:      t.TempDir(),
		ArchiveLimit:      10,
		FlushInterval:     30,
	}
}

func setupManager(t *testing.T, cfg *config.Config, output []model.RawDetection, loadErr error, archive *storage.ArchiveService) *service.Manager {
	t.Helper()
	detector := ai.NewDetectorService("stub", func() (ai.Detector, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return &stubDetector{output: output}, nil
	}, logger.NewNop())
	return service.NewManager(registry.Default(), detector, archive, nil, 0, logger.NewNop())
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, data []byte, confidence string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if data != nil {
		part, err := writer.CreateFormFile("file", "street.png")
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		part.Write(data)
	}
	if confidence != "" {
		writer.WriteField("confidence", confidence)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/detect", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

var carAndPeople = []model.RawDetection{
	{ClassID: registry.Car, Confidence: 0.91, Box: model.Box{X1: 5, Y1: 20, X2: 40, Y2: 50}},
	{ClassID: registry.Person, Confidence: 0.8, Box: model.Box{X1: 42, Y1: 10, X2: 50, Y2: 40}},
	{ClassID: registry.Person, Confidence: 0.7, Box: model.Box{X1: 52, Y1: 10, X2: 60, Y2: 40}},
	{ClassID: 999, Confidence: 0.95, Box: model.Box{X1: 0, Y1: 0, X2: 4, Y2: 4}},
}

// ========================================
// Detect Handler Tests
// ========================================

func TestDetectHandler_Success(t *testing.T) {
	cfg := setupTestConfig(t)
	handler := DetectHandler(setupManager(t, cfg, carAndPeople, nil, nil), cfg, logger.NewNop())

	rec := httptest.NewRecorder()
	handler(rec, uploadRequest(t, pngBytes(t), "0.6"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.DetectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp.Summary != "Detected: 1 Car, 2 Persons" {
		t.Errorf("Summary = %q", resp.Summary)
	}
	if resp.Threshold != 0.6 {
		t.Errorf("Threshold = %v, expected 0.6", resp.Threshold)
	}
	if len(resp.Rows) != 3 || resp.Rows[2].Object != "Person" || resp.Rows[2].Index != 2 {
		t.Errorf("Unexpected rows: %+v", resp.Rows)
	}
}

func TestDetectHandler_DefaultConfidence(t *testing.T) {
	cfg := setupTestConfig(t)
	handler := DetectHandler(setupManager(t, cfg, nil, nil, nil), cfg, logger.NewNop())

	rec := httptest.NewRecorder()
	handler(rec, uploadRequest(t, pngBytes(t), ""))

	var resp dto.DetectResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp.Threshold != 0.5 {
		t.Errorf("Expected 200 with default threshold, got %d, %v", rec.Code, resp.Threshold)
	}
	if !resp.Empty {
		t.Error("Expected empty result")
	}
}

func TestDetectHandler_ErrorMapping(t *testing.T) {
	cfg := setupTestConfig(t)

	tests := []struct {
		name       string
		loadErr    error
		data       []byte
		confidence string
		method     string
		expected   int
	}{
		{"model load failure", errors.New("no weights"), pngBytes(t), "", http.MethodPost, http.StatusServiceUnavailable},
		{"undecodable file", nil, []byte("plain text"), "", http.MethodPost, http.StatusBadRequest},
		{"confidence above one", nil, pngBytes(t), "1.5", http.MethodPost, http.StatusBadRequest},
		{"confidence not a number", nil, pngBytes(t), "high", http.MethodPost, http.StatusBadRequest},
		{"missing file", nil, nil, "0.5", http.MethodPost, http.StatusBadRequest},
		{"too large", nil, bytes.Repeat([]byte{0xFF}, (1<<20)+10), "", http.MethodPost, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := DetectHandler(setupManager(t, cfg, nil, tt.loadErr, nil), cfg, logger.NewNop())

			rec := httptest.NewRecorder()
			handler(rec, uploadRequest(t, tt.data, tt.confidence))

			if rec.Code != tt.expected {
				t.Errorf("Expected %d, got %d: %s", tt.expected, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("Expected JSON error body, got %s", rec.Body.String())
			}
		})
	}
}

func TestDetectHandler_MethodNotAllowed(t *testing.T) {
	cfg := setupTestConfig(t)
	handler := DetectHandler(setupManager(t, cfg, nil, nil, nil), cfg, logger.NewNop())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/detect", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"", 0.5, false},
		{"0", 0, false},
		{"1", 1, false},
		{" 0.25 ", 0.25, false},
		{"-0.1", 0, true},
		{"NaN", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := parseConfidence(tt.input, 0.5)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseConfidence(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.expected {
			t.Errorf("parseConfidence(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

// ========================================
// History Handler Tests
// ========================================

func setupHistory(t *testing.T) (*config.Config, *service.Manager, *sqlite.RunRepository, *sqlite.DetectionRepository) {
	t.Helper()

	cfg := setupTestConfig(t)
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	runs := sqlite.NewRunRepository(db)
	detections := sqlite.NewDetectionRepository(db)
	archive := storage.NewArchiveService(cfg, logger.NewNop(), runs, detections)

	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, name := range []string{"Car", "Person", "Car"} {
		archive.AddRun(dto.BufferedRun{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Source:     "upload.jpg",
			Threshold:  0.5,
			Summary:    "Detected: 1 " + name,
			Detections: []dto.DetectionRecord{{Name: name, Confidence: 0.9}},
			Data:       []byte("jpeg"),
		})
	}
	if archive.FlushRuns() != 3 {
		t.Fatal("Failed to seed archive")
	}

	return cfg, setupManager(t, cfg, nil, nil, archive), runs, detections
}

func TestGetHistoryHandler_Pagination(t *testing.T) {
	cfg, _, runs, detections := setupHistory(t)
	handler := GetHistoryHandler(cfg, logger.NewNop(), runs, detections)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/history?page=2&limit=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var data struct {
		Runs       []map[string]interface{} `json:"runs"`
		Length     int                      `json:"length"`
		TotalPages int                      `json:"totalPages"`
		Objects    []string                 `json:"objects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if data.Length != 3 || data.TotalPages != 2 || len(data.Runs) != 1 {
		t.Errorf("Unexpected pagination: length=%d pages=%d runs=%d", data.Length, data.TotalPages, len(data.Runs))
	}
	if len(data.Objects) != 2 {
		t.Errorf("Expected 2 object names, got %v", data.Objects)
	}
	if len(data.Runs) == 1 && data.Runs[0]["date"] != "01-05-2025" {
		t.Errorf("Unexpected date format: %v", data.Runs[0]["date"])
	}
}

func TestGetHistoryHandler_ObjectFilter(t *testing.T) {
	cfg, _, runs, detections := setupHistory(t)
	handler := GetHistoryHandler(cfg, logger.NewNop(), runs, detections)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/history?object=Car", nil))

	var data struct {
		Length int `json:"length"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if data.Length != 2 {
		t.Errorf("Expected 2 Car runs, got %d", data.Length)
	}
}

func TestDeleteAndClearHistory(t *testing.T) {
	cfg, manager, runs, _ := setupHistory(t)
	all, _ := runs.GetAll(nil)

	rec := httptest.NewRecorder()
	DeleteRunHandler(manager, logger.NewNop())(rec, httptest.NewRequest(http.MethodPost, "/api/history/delete?filename="+all[0].Filename, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if count, _ := runs.GetTotalCount(nil); count != 2 {
		t.Errorf("Expected 2 runs left, got %d", count)
	}

	rec = httptest.NewRecorder()
	DeleteRunHandler(manager, logger.NewNop())(rec, httptest.NewRequest(http.MethodPost, "/api/history/delete?filename=..%2Fconfig", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for traversal, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ClearHistoryHandler(manager, logger.NewNop())(rec, httptest.NewRequest(http.MethodPost, "/api/history/clear", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if count, _ := runs.GetTotalCount(nil); count != 0 {
		t.Errorf("Expected no runs, got %d", count)
	}
	entries, _ := os.ReadDir(cfg.ImageDirectory)
	if len(entries) != 0 {
		t.Errorf("Expected empty image directory, got %d files", len(entries))
	}
}

func TestViewRunImageHandler(t *testing.T) {
	cfg := setupTestConfig(t)
	os.MkdirAll(cfg.ImageDirectory, 0755)
	os.WriteFile(filepath.Join(cfg.ImageDirectory, "run.jpg"), []byte("jpeg"), 0644)
	handler := ViewRunImageHandler(cfg)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/history/view?image=run.jpg", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "jpeg" {
		t.Errorf("Expected image body, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/history/view?image=..%2F..%2Fetc%2Fpasswd", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

// ========================================
// Auth, Logs and Status Tests
// ========================================

func TestLoginHandler(t *testing.T) {
	cfg := setupTestConfig(t)
	cfg.Password = "secret"
	handler := LoginHandler(cfg, logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("password=secret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("Expected 303, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AuthCookie || cookies[0].Value != "true" {
		t.Errorf("Expected auth cookie, got %+v", cookies)
	}
}

func TestLogsHandlers(t *testing.T) {
	cfg := setupTestConfig(t)
	log := logger.NewLogger(cfg)
	defer log.Close()

	rec := httptest.NewRecorder()
	ShowLogsHandler(cfg, "missing.log")(rec, httptest.NewRequest(http.MethodGet, "/logs/x", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing log, got %d", rec.Code)
	}

	log.Warning("disk almost full")

	rec = httptest.NewRecorder()
	ClearLogsHandler(log, logger.WarningFile)(rec, httptest.NewRequest(http.MethodPost, "/logs/warning/clear", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ShowLogsHandler(cfg, logger.WarningFile)(rec, httptest.NewRequest(http.MethodGet, "/logs/warning", nil))
	if strings.Contains(rec.Body.String(), "disk almost full") {
		t.Error("Expected warning log to be cleared")
	}
}

func TestClassesAndHealth(t *testing.T) {
	cfg := setupTestConfig(t)
	manager := setupManager(t, cfg, nil, nil, nil)

	rec := httptest.NewRecorder()
	ClassesHandler(manager, logger.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/api/classes", nil))
	var classes []classInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &classes); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(classes) != registry.Default().Len() {
		t.Errorf("Expected %d classes, got %d", registry.Default().Len(), len(classes))
	}

	rec = httptest.NewRecorder()
	HealthHandler(manager)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"modelLoaded":false`) {
		t.Errorf("Unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestIsValidFilename(t *testing.T) {
	valid := []string{"image.jpg", "2025-01-04_14-30-00.000_Car.jpg", "Camión.jpg"}
	invalid := []string{"", ".", "..", "../secret.jpg", "/etc/passwd", "a\\b.jpg", "file\x00name.jpg"}

	for _, name := range valid {
		if !isValidFilename(name) {
			t.Errorf("Expected %q to be valid", name)
		}
	}
	for _, name := range invalid {
		if isValidFilename(name) {
			t.Errorf("Expected %q to be invalid", name)
		}
	}
}

func TestAtoiDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"10", 5, 10},
		{"", 5, 5},
		{"abc", 10, 10},
		{"-1", 5, 5},
		{"0", 5, 5},
	}

	for _, tt := range tests {
		if got := atoiDefault(tt.input, tt.def); got != tt.expected {
			t.Errorf("atoiDefault(%q, %d) = %d, expected %d", tt.input, tt.def, got, tt.expected)
		}
	}
}
