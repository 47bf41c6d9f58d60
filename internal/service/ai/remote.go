package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"urbanvision/internal/model"
	"urbanvision/internal/service/render"
)

// RemoteDetector runs inference through an external HTTP service.
type RemoteDetector struct {
	inferenceURL string
	client       *http.Client
}

type remoteDetection struct {
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

// NewRemoteDetector validates the inference URL and returns a detector for it.
func NewRemoteDetector(inferenceURL string, client *http.Client) (*RemoteDetector, error) {
	u, err := url.Parse(inferenceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid inference url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid inference url %q: expected http(s)://host/path", inferenceURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &RemoteDetector{inferenceURL: inferenceURL, client: client}, nil
}

// RemoteLoader returns a Loader for DetectorService.
func RemoteLoader(inferenceURL string) Loader {
	return func() (Detector, error) {
		return NewRemoteDetector(inferenceURL, nil)
	}
}

// Detect posts the image as multipart "file" with the threshold as "confidence".
func (m *RemoteDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]model.RawDetection, error) {
	imageData, err := render.EncodeJPEG(img, 95)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.WriteField("confidence", strconv.FormatFloat(threshold, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("write confidence field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.inferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Detections []remoteDetection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	detections := make([]model.RawDetection, 0, len(result.Detections))
	for i, d := range result.Detections {
		if len(d.Box) != 4 {
			return nil, fmt.Errorf("detection %d: expected 4 box coordinates, got %d", i, len(d.Box))
		}
		detections = append(detections, model.RawDetection{
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			Box:        model.Box{X1: d.Box[0], Y1: d.Box[1], X2: d.Box[2], Y2: d.Box[3]},
		})
	}

	return detections, nil
}

// CheckHealth checks that the inference service answers on <url>/health.
func (m *RemoteDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(m.inferenceURL, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode)
	}

	return nil
}
