package config

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// BackendOpenCV runs the ONNX checkpoint in-process through OpenCV DNN.
	BackendOpenCV = "opencv"
	// BackendHTTP forwards images to an external inference service.
	BackendHTTP = "http"
)

type Config struct {
	Port              int
	Password          string
	ModelPath         string
	DetectorBackend   string
	InferenceURL      string
	ClassSet          string
	DefaultConfidence float64
	NMSThreshold      float64
	MaxUploadMB       int64
	DisplayMaxWidth   int // 0 keeps full resolution in responses
	ImageDirectory    string
	DatabasePath      string
	ArchiveEnabled    bool
	ArchiveLimit      int // runs kept in memory between flushes
	FlushInterval     int // seconds
	LogDirectory      string
	PreloadModel      bool
}

// Load reads configuration from the environment. Values from a .env file in the
// working directory are applied first; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		Password:          getEnv("PASSWORD", ""),
		ModelPath:         getEnv("MODEL_PATH", "yolov8n.onnx"),
		DetectorBackend:   strings.ToLower(getEnv("DETECTOR_BACKEND", BackendOpenCV)),
		InferenceURL:      getEnv("INFERENCE_URL", "http://localhost:5000/predict"),
		ClassSet:          strings.ToLower(getEnv("CLASS_SET", "en")),
		DefaultConfidence: getEnvAsUnitFloat("DEFAULT_CONFIDENCE", 0.5),
		NMSThreshold:      getEnvAsFloat("NMS_THRESHOLD", 0.45),
		MaxUploadMB:       getEnvAsInt64("MAX_UPLOAD_MB", 20),
		DisplayMaxWidth:   getEnvAsInt("DISPLAY_MAX_WIDTH", 1280),
		ImageDirectory:    getEnv("IMAGE_DIR", filepath.Join(".", "images")),
		DatabasePath:      getEnv("DB_PATH", filepath.Join(".", "data", "urbanvision.db")),
		ArchiveEnabled:    getEnvAsBool("ARCHIVE_ENABLED", true),
		ArchiveLimit:      getEnvAsInt("ARCHIVE_LIMIT", 50),
		FlushInterval:     getEnvAsInt("FLUSH_INTERVAL", 30),
		LogDirectory:      getEnv("LOG_DIR", filepath.Join(".", "logs")),
		PreloadModel:      getEnvAsBool("PRELOAD_MODEL", false),
	}
}

// AuthEnabled reports whether the login cookie is required.
func (c *Config) AuthEnabled() bool {
	return c.Password != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsUnitFloat is getEnvAsFloat restricted to [0,1].
func getEnvAsUnitFloat(key string, defaultValue float64) float64 {
	value := getEnvAsFloat(key, defaultValue)
	if math.IsNaN(value) || value < 0 || value > 1 {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
