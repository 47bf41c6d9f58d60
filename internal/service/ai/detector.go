package ai

import (
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"urbanvision/internal/logger"
	"urbanvision/internal/model"
)

const (
	// DetectionThreshold is the default minimum confidence for detections.
	DetectionThreshold = 0.5
)

// Detector runs object detection on a single image. Implementations must not
// return detections with a confidence below threshold, but callers should not
// rely on that: DetectorService re-applies the threshold.
type Detector interface {
	Detect(ctx context.Context, img image.Image, threshold float64) ([]model.RawDetection, error)
}

// Loader builds a Detector. It is called at most once per DetectorService.
type Loader func() (Detector, error)

// DetectorService loads its backend lazily and serializes access to it.
type DetectorService struct {
	name   string
	load   Loader
	logger *logger.Logger

	once    sync.Once
	backend Detector
	loadErr error
	ready   atomic.Bool

	mu sync.Mutex // backend is not safe for concurrent use
}

// NewDetectorService creates a service around a backend loader. name identifies
// the model in logs and errors.
func NewDetectorService(name string, load Loader, log *logger.Logger) *DetectorService {
	if log == nil {
		log = logger.NewNop()
	}
	return &DetectorService{
		name:   name,
		load:   load,
		logger: log,
	}
}

// Load initializes the backend if it has not been initialized yet. A failed
// load is cached and never retried.
func (s *DetectorService) Load() error {
	s.once.Do(func() {
		backend, err := s.load()
		if err == nil && backend == nil {
			err = fmt.Errorf("loader returned no detector")
		}
		if err != nil {
			s.loadErr = &ModelLoadError{Model: s.name, Err: err}
			s.logger.Error("Detection model %s failed to load: %v", s.name, err)
			return
		}
		s.backend = backend
		s.ready.Store(true)
		s.logger.Info("Detection model %s initialized successfully", s.name)
	})
	return s.loadErr
}

// Ready reports whether the backend has been loaded. It never triggers a load.
func (s *DetectorService) Ready() bool {
	return s.ready.Load()
}

// Name returns the model identifier.
func (s *DetectorService) Name() string {
	return s.name
}

// Detect validates the input, loads the backend on first use and returns the
// detections at or above threshold with normalized boxes.
func (s *DetectorService) Detect(ctx context.Context, img image.Image, threshold float64) ([]model.RawDetection, error) {
	if err := validateInput(img, threshold); err != nil {
		return nil, err
	}

	if err := s.Load(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := s.backend.Detect(ctx, img, threshold)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return FilterByConfidence(raw, threshold), nil
}

// Close releases the backend if it holds native resources.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FilterByConfidence drops detections below threshold and orders box corners.
func FilterByConfidence(in []model.RawDetection, threshold float64) []model.RawDetection {
	out := make([]model.RawDetection, 0, len(in))
	for _, d := range in {
		if math.IsNaN(d.Confidence) || d.Confidence < threshold {
			continue
		}
		d.Box = d.Box.Normalized()
		out = append(out, d)
	}
	return out
}

// isNilPointer catches typed nils such as (*image.RGBA)(nil), which compare
// unequal to a nil interface but panic on Bounds.
func isNilPointer(img image.Image) bool {
	v := reflect.ValueOf(img)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func validateInput(img image.Image, threshold float64) error {
	if img == nil || isNilPointer(img) {
		return &InputError{Reason: "image is nil"}
	}
	if img.Bounds().Empty() {
		return &InputError{Reason: "image has no pixels"}
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return &InputError{Reason: fmt.Sprintf("confidence threshold %v outside [0,1]", threshold)}
	}
	return nil
}
