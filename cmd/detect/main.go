package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"urbanvision/internal/app"
	"urbanvision/internal/config"
	"urbanvision/internal/logger"
	"urbanvision/internal/registry"
	"urbanvision/internal/service"
	"urbanvision/internal/service/analysis"
	"urbanvision/internal/service/render"
)

func main() {
	cfg := config.Load()

	imagePath := flag.String("image", "", "Image to analyze (JPEG, PNG or BMP)")
	outPath := flag.String("out", "", "Where to write the annotated image (default <image>_annotated.jpg)")
	confidence := flag.Float64("confidence", cfg.DefaultConfidence, "Minimum confidence in [0,1]")
	classSet := flag.String("classes", cfg.ClassSet, "Class name set: "+strings.Join(registry.ClassSets(), ", "))
	flag.Parse()

	if *imagePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	cfg.ClassSet = *classSet

	reg, err := registry.ForClassSet(cfg.ClassSet)
	if err != nil {
		log.Fatalf("Invalid class set: %v", err)
	}

	detector, err := app.NewDetectorService(cfg, logger.NewNop())
	if err != nil {
		log.Fatalf("Failed to configure detector: %v", err)
	}
	defer detector.Close()

	data, err := os.ReadFile(*imagePath)
	if err != nil {
		log.Fatalf("Failed to read image: %v", err)
	}

	img, _, err := render.Decode(data)
	if err != nil {
		log.Fatalf("Failed to decode %s: %v", *imagePath, err)
	}

	manager := service.NewManager(reg, detector, nil, nil, 0, logger.NewNop())
	outcome, err := manager.Analyze(context.Background(), img, *confidence)
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}

	fmt.Println(outcome.Summary.Text)
	if !outcome.Summary.Empty {
		fmt.Println(analysis.RenderTable(outcome.Summary.Rows))
	}

	target := *outPath
	if target == "" {
		ext := filepath.Ext(*imagePath)
		target = strings.TrimSuffix(*imagePath, ext) + "_annotated.jpg"
	}

	if err := writeImage(target, outcome); err != nil {
		log.Fatalf("Failed to write annotated image: %v", err)
	}
	fmt.Printf("Annotated image written to %s\n", target)
}

// writeImage encodes the annotated image as PNG or JPEG depending on the extension.
func writeImage(path string, outcome *service.Outcome) error {
	var (
		encoded []byte
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		encoded, err = render.EncodePNG(outcome.Annotated)
	default:
		encoded, err = render.EncodeJPEG(outcome.Annotated, render.JPEGQuality)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0644)
}
