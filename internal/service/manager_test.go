package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"urbanvision/internal/config"
	"urbanvision/internal/logger"
	"urbanvision/internal/model"
	"urbanvision/internal/registry"
	"urbanvision/internal/service/ai"
	"urbanvision/internal/service/analysis"
	"urbanvision/internal/service/render"
	"urbanvision/internal/service/storage"
	"urbanvision/internal/service/websocket"
)

type stubDetector struct {
	output []model.RawDetection
}

func (s *stubDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]model.RawDetection, error) {
	return s.output, nil
}

func newTestManager(t *testing.T, output []model.RawDetection, loadErr error, archive *storage.ArchiveService, hub *websocket.HubService) *Manager {
	t.Helper()
	detector := ai.NewDetectorService("stub", func() (ai.Detector, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return &stubDetector{output: output}, nil
	}, logger.NewNop())
	return NewManager(registry.Default(), detector, archive, hub, 0, logger.NewNop())
}

func pngUpload(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

var streetScene = []model.RawDetection{
	{ClassID: registry.Car, Confidence: 0.91, Box: model.Box{X1: 10, Y1: 20, X2: 60, Y2: 70}},
	{ClassID: registry.Person, Confidence: 0.8, Box: model.Box{X1: 70, Y1: 30, X2: 90, Y2: 90}},
	{ClassID: 999, Confidence: 0.99, Box: model.Box{X1: 0, Y1: 0, X2: 5, Y2: 5}},
	{ClassID: registry.Person, Confidence: 0.4, Box: model.Box{X1: 1, Y1: 1, X2: 9, Y2: 9}},
}

func TestProcess_BuildsResponse(t *testing.T) {
	mgr := newTestManager(t, streetScene, nil, nil, nil)

	resp, err := mgr.Process(context.Background(), pngUpload(t, 100, 100), "street.png", 0.5)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !resp.Success || resp.Empty {
		t.Errorf("Unexpected flags: success=%v empty=%v", resp.Success, resp.Empty)
	}
	if resp.Summary != "Detected: 1 Car, 1 Person" {
		t.Errorf("Summary = %q", resp.Summary)
	}
	if len(resp.Counts) != 2 || resp.Counts[0].Name != "Car" || resp.Counts[0].Color != "#ff0000" {
		t.Errorf("Unexpected counts: %+v", resp.Counts)
	}
	if len(resp.Rows) != 2 || resp.Rows[0].Confidence != "91.00%" {
		t.Errorf("Unexpected rows: %+v", resp.Rows)
	}
	if !strings.HasPrefix(resp.Original, "data:image/png;base64,") {
		t.Errorf("Original is not a PNG data URL")
	}
	if !strings.HasPrefix(resp.Annotated, "data:image/jpeg;base64,") {
		t.Errorf("Annotated is not a JPEG data URL")
	}
}

func TestProcess_EmptyResultIsNotAnError(t *testing.T) {
	mgr := newTestManager(t, nil, nil, nil, nil)

	resp, err := mgr.Process(context.Background(), pngUpload(t, 32, 32), "empty.png", 0.5)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !resp.Empty || resp.Message != analysis.EmptyMessage {
		t.Errorf("Expected empty response, got %+v", resp)
	}
	if len(resp.Counts) != 0 || len(resp.Rows) != 0 {
		t.Errorf("Expected no counts or rows")
	}
}

func TestProcess_DecodeError(t *testing.T) {
	mgr := newTestManager(t, nil, nil, nil, nil)

	var buf bytes.Buffer
	if err := gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black}), nil); err != nil {
		t.Fatalf("gif.Encode failed: %v", err)
	}

	for _, data := range [][]byte{[]byte("not an image"), buf.Bytes()} {
		_, err := mgr.Process(context.Background(), data, "bad", 0.5)
		var decodeErr *render.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("Expected DecodeError, got %v", err)
		}
	}
}

func TestProcess_ModelLoadError(t *testing.T) {
	mgr := newTestManager(t, nil, errors.New("missing weights"), nil, nil)

	for i := 0; i < 2; i++ {
		_, err := mgr.Process(context.Background(), pngUpload(t, 16, 16), "x.png", 0.5)
		var loadErr *ai.ModelLoadError
		if !errors.As(err, &loadErr) {
			t.Errorf("Expected ModelLoadError, got %v", err)
		}
	}
}

func TestAnalyze_ThresholdRaisedRemovesDetection(t *testing.T) {
	car := []model.RawDetection{{ClassID: registry.Car, Confidence: 0.5, Box: model.Box{X1: 2, Y1: 2, X2: 20, Y2: 20}}}
	mgr := newTestManager(t, car, nil, nil, nil)
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))

	low, err := mgr.Analyze(context.Background(), img, 0.25)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if low.Result.Total() != 1 {
		t.Errorf("Expected 1 car at 0.25, got %d", low.Result.Total())
	}

	high, err := mgr.Analyze(context.Background(), img, 0.9)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !high.Summary.Empty {
		t.Errorf("Expected empty summary at 0.9, got %q", high.Summary.Text)
	}
}

func TestAnalyze_InvalidThreshold(t *testing.T) {
	mgr := newTestManager(t, nil, nil, nil, nil)

	_, err := mgr.Analyze(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), 1.2)
	var inputErr *ai.InputError
	if !errors.As(err, &inputErr) {
		t.Errorf("Expected InputError, got %v", err)
	}

	_, err = mgr.Analyze(context.Background(), nil, 0.5)
	if !errors.As(err, &inputErr) {
		t.Errorf("Expected InputError for nil image, got %v", err)
	}
}

func TestProcess_ArchivesAndBroadcasts(t *testing.T) {
	cfg := &config.Config{ImageDirectory: filepath.Join(t.TempDir(), "images"), ArchiveLimit: 5, FlushInterval: 30}
	archive := storage.NewArchiveService(cfg, logger.NewNop(), nil, nil)
	hub := websocket.NewHubService(logger.NewNop())
	mgr := newTestManager(t, streetScene, nil, archive, hub)

	if _, err := mgr.Process(context.Background(), pngUpload(t, 100, 100), "street.png", 0.5); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if archive.Pending() != 1 {
		t.Errorf("Expected 1 pending archived run, got %d", archive.Pending())
	}
	if archive.FlushRuns() != 1 {
		t.Error("Expected archived run to flush")
	}
}
