// Package opencv runs YOLO ONNX checkpoints through the OpenCV DNN module.
package opencv

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"sort"
	"urbanvision/internal/model"
	"urbanvision/internal/service/ai"

	"gocv.io/x/gocv"
)

const (
	// InputSize is the square network input used by YOLOv8/YOLO11 exports.
	InputSize = 640
	// NMSThreshold is the default IoU threshold for non-maximum suppression.
	NMSThreshold = 0.45
)

// Detector wraps a gocv.Net loaded from an ONNX checkpoint. Not safe for
// concurrent use.
type Detector struct {
	net          gocv.Net
	modelPath    string
	nmsThreshold float32
}

// Load reads the network from modelPath and sets CPU backend/target.
func Load(modelPath string, nmsThreshold float64) (*Detector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	if nmsThreshold <= 0 || nmsThreshold > 1 {
		nmsThreshold = NMSThreshold
	}

	return &Detector{
		net:          net,
		modelPath:    modelPath,
		nmsThreshold: float32(nmsThreshold),
	}, nil
}

// Loader returns an ai.Loader for the checkpoint at modelPath.
func Loader(modelPath string, nmsThreshold float64) ai.Loader {
	return func() (ai.Detector, error) {
		return Load(modelPath, nmsThreshold)
	}
}

// Close releases the network.
func (d *Detector) Close() error {
	return d.net.Close()
}

// Detect runs one forward pass and returns detections in image pixel
// coordinates after class-wise best score selection and NMS.
func (d *Detector) Detect(ctx context.Context, img image.Image, threshold float64) ([]model.RawDetection, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image to Mat: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("converted image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(InputSize, InputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sizes := output.Size()
	attrs, candidates, transposed, err := outputLayout(sizes)
	if err != nil {
		return nil, err
	}

	table := output.Reshape(1, sizes[1])
	defer table.Close()

	at := func(attr, i int) float32 {
		if transposed {
			return table.GetFloatAt(i, attr)
		}
		return table.GetFloatAt(attr, i)
	}

	found := decodeCandidates(at, attrs, candidates, mat.Cols(), mat.Rows(), threshold)
	if len(found) == 0 {
		return []model.RawDetection{}, nil
	}

	keep := suppressPerClass(found, func(rects []image.Rectangle, scores []float32) []int {
		return gocv.NMSBoxes(rects, scores, float32(threshold), d.nmsThreshold)
	})

	results := make([]model.RawDetection, 0, len(keep))
	for _, idx := range keep {
		results = append(results, found[idx])
	}
	return results, nil
}

// outputLayout reads the attribute and candidate counts from a 3D output shape.
// Standard exports are [1, 4+classes, candidates]; some are transposed.
func outputLayout(sizes []int) (attrs, candidates int, transposed bool, err error) {
	if len(sizes) != 3 {
		return 0, 0, false, fmt.Errorf("unexpected output shape %v", sizes)
	}

	transposed = sizes[1] > sizes[2]
	attrs, candidates = sizes[1], sizes[2]
	if transposed {
		attrs, candidates = sizes[2], sizes[1]
	}
	if attrs <= 4 {
		return 0, 0, false, fmt.Errorf("unexpected output shape %v", sizes)
	}
	return attrs, candidates, transposed, nil
}

// decodeCandidates turns raw YOLO output into boxes in image pixels. at(attr, i)
// reads attribute attr (cx, cy, w, h, then one score per class) of candidate i
// in 640x640 network coordinates. Candidates whose best class score is below
// threshold are skipped.
func decodeCandidates(at func(attr, i int) float32, attrs, candidates, width, height int, threshold float64) []model.RawDetection {
	scaleX := float64(width) / InputSize
	scaleY := float64(height) / InputSize

	found := []model.RawDetection{}
	for i := 0; i < candidates; i++ {
		classID, score := -1, float32(0)
		for c := 4; c < attrs; c++ {
			if s := at(c, i); s > score {
				classID, score = c-4, s
			}
		}
		if classID < 0 || float64(score) < threshold {
			continue
		}

		cx, cy := float64(at(0, i))*scaleX, float64(at(1, i))*scaleY
		w, h := float64(at(2, i))*scaleX, float64(at(3, i))*scaleY
		box := clampBox(model.Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}, width, height)

		found = append(found, model.RawDetection{ClassID: classID, Confidence: float64(score), Box: box})
	}
	return found
}

// suppressPerClass runs nms separately for every class id, so overlapping
// boxes of different classes never suppress each other. The returned indices
// into found are in ascending order.
func suppressPerClass(found []model.RawDetection, nms func(rects []image.Rectangle, scores []float32) []int) []int {
	byClass := make(map[int][]int)
	var order []int
	for i, d := range found {
		if _, ok := byClass[d.ClassID]; !ok {
			order = append(order, d.ClassID)
		}
		byClass[d.ClassID] = append(byClass[d.ClassID], i)
	}

	var keep []int
	for _, classID := range order {
		members := byClass[classID]
		rects := make([]image.Rectangle, len(members))
		scores := make([]float32, len(members))
		for j, idx := range members {
			b := found[idx].Box
			rects[j] = image.Rect(int(b.X1), int(b.Y1), int(math.Ceil(b.X2)), int(math.Ceil(b.Y2)))
			scores[j] = float32(found[idx].Confidence)
		}
		for _, j := range nms(rects, scores) {
			if j >= 0 && j < len(members) {
				keep = append(keep, members[j])
			}
		}
	}

	sort.Ints(keep)
	return keep
}

func clampBox(b model.Box, width, height int) model.Box {
	clamp := func(v float64, hi int) float64 {
		return math.Min(math.Max(v, 0), float64(hi))
	}
	return model.Box{
		X1: clamp(b.X1, width),
		Y1: clamp(b.Y1, height),
		X2: clamp(b.X2, width),
		Y2: clamp(b.Y2, height),
	}
}
