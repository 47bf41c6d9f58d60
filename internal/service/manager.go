package service

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"time"

	"urbanvision/internal/dto"
	"urbanvision/internal/logger"
	"urbanvision/internal/model"
	"urbanvision/internal/registry"
	"urbanvision/internal/service/ai"
	"urbanvision/internal/service/analysis"
	"urbanvision/internal/service/render"
	"urbanvision/internal/service/storage"
	"urbanvision/internal/service/websocket"
)

// Manager runs the detection pipeline and hands finished runs to the archive
// and the live hub.
type Manager struct {
	registry         *registry.Registry
	detectorService  *ai.DetectorService
	archiveService   *storage.ArchiveService
	websocketService *websocket.HubService
	displayMaxWidth  int
	logger           *logger.Logger
}

// Outcome is the result of analyzing one image.
type Outcome struct {
	Result    model.AggregatedResult
	Summary   analysis.Summary
	Original  *image.RGBA
	Annotated *image.RGBA
	Threshold float64
}

// NewManager wires the pipeline. archive and hub may be nil.
func NewManager(reg *registry.Registry, detector *ai.DetectorService, archive *storage.ArchiveService,
	hub *websocket.HubService, displayMaxWidth int, logger *logger.Logger) *Manager {
	return &Manager{
		registry:         reg,
		detectorService:  detector,
		archiveService:   archive,
		websocketService: hub,
		displayMaxWidth:  displayMaxWidth,
		logger:           logger,
	}
}

// Analyze detects, filters, annotates and summarizes an already decoded image.
// An empty result is not an error.
func (m *Manager) Analyze(ctx context.Context, img *image.RGBA, threshold float64) (*Outcome, error) {
	if img == nil {
		return nil, &ai.InputError{Reason: "image is nil"}
	}

	raw, err := m.detectorService.Detect(ctx, img, threshold)
	if err != nil {
		return nil, err
	}

	result := analysis.Aggregate(m.registry, raw)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	annotated, err := render.Annotate(img, result.Details, m.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to annotate image: %w", err)
	}

	return &Outcome{
		Result:    result,
		Summary:   analysis.Format(result),
		Original:  img,
		Annotated: annotated,
		Threshold: threshold,
	}, nil
}

// Process runs the whole pipeline on an uploaded file and builds the response
// payload. The run is archived and broadcast on success.
func (m *Manager) Process(ctx context.Context, data []byte, source string, threshold float64) (*dto.DetectResponse, error) {
	img, format, err := render.Decode(data)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Decoded %s (%s, %dx%d)", source, format, img.Bounds().Dx(), img.Bounds().Dy())

	outcome, err := m.Analyze(ctx, img, threshold)
	if err != nil {
		return nil, err
	}

	response, annotatedJPEG, err := m.buildResponse(outcome)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Run for %s at threshold %.2f: %s", source, threshold, outcome.Summary.Text)

	m.archive(outcome, source, annotatedJPEG)
	m.notifyViewers(response, source)

	return response, nil
}

func (m *Manager) buildResponse(outcome *Outcome) (*dto.DetectResponse, []byte, error) {
	originalPNG, err := render.EncodePNG(render.FitWidth(outcome.Original, m.displayMaxWidth))
	if err != nil {
		return nil, nil, err
	}

	annotatedJPEG, err := render.EncodeJPEG(outcome.Annotated, render.JPEGQuality)
	if err != nil {
		return nil, nil, err
	}

	displayJPEG := annotatedJPEG
	if m.displayMaxWidth > 0 && outcome.Annotated.Bounds().Dx() > m.displayMaxWidth {
		displayJPEG, err = render.EncodeJPEG(render.FitWidth(outcome.Annotated, m.displayMaxWidth), render.JPEGQuality)
		if err != nil {
			return nil, nil, err
		}
	}

	response := &dto.DetectResponse{
		Success:   true,
		Empty:     outcome.Summary.Empty,
		Summary:   outcome.Summary.Text,
		Counts:    m.countInfos(outcome.Result),
		Rows:      make([]dto.RowInfo, 0, len(outcome.Summary.Rows)),
		Original:  render.DataURL("image/png", originalPNG),
		Annotated: render.DataURL("image/jpeg", displayJPEG),
		Threshold: outcome.Threshold,
	}
	if outcome.Summary.Empty {
		response.Message = analysis.EmptyMessage
	}
	for _, row := range outcome.Summary.Rows {
		response.Rows = append(response.Rows, dto.RowInfo{
			Object:     row.Object,
			Index:      row.Index,
			Confidence: row.Confidence,
		})
	}

	return response, annotatedJPEG, nil
}

func (m *Manager) countInfos(result model.AggregatedResult) []dto.CountInfo {
	counts := make([]dto.CountInfo, 0, len(result.Counts))
	for _, c := range result.Counts {
		info := dto.CountInfo{Name: c.Name, Count: c.Count}
		if entry, ok := m.registry.ByName(c.Name); ok {
			info.Color = entry.Hex()
		}
		counts = append(counts, info)
	}
	return counts
}

func (m *Manager) archive(outcome *Outcome, source string, annotatedJPEG []byte) {
	if m.archiveService == nil {
		return
	}

	records := make([]dto.DetectionRecord, 0, len(outcome.Result.Details))
	for _, d := range outcome.Result.Details {
		records = append(records, dto.DetectionRecord{
			Name:       d.Name,
			Confidence: d.Confidence,
			X1:         d.Box.X1,
			Y1:         d.Box.Y1,
			X2:         d.Box.X2,
			Y2:         d.Box.Y2,
		})
	}

	m.archiveService.AddRun(dto.BufferedRun{
		Timestamp:  time.Now(),
		Source:     source,
		Threshold:  outcome.Threshold,
		Summary:    outcome.Summary.Text,
		Detections: records,
		Data:       annotatedJPEG,
	})
}

func (m *Manager) notifyViewers(response *dto.DetectResponse, source string) {
	if m.websocketService == nil {
		return
	}

	msg, err := json.Marshal(dto.RunEvent{
		Type:      "run",
		Source:    source,
		Summary:   response.Summary,
		Counts:    response.Counts,
		Threshold: response.Threshold,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		m.logger.Error("Error encoding run event: %v", err)
		return
	}

	m.websocketService.Broadcast(msg)
}

func (m *Manager) GetRegistry() *registry.Registry {
	return m.registry
}

func (m *Manager) GetDetectorService() *ai.DetectorService {
	return m.detectorService
}

func (m *Manager) GetArchiveService() *storage.ArchiveService {
	return m.archiveService
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}
