package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"urbanvision/internal/config"
	"urbanvision/internal/logger"
	"urbanvision/internal/service"
	"urbanvision/internal/service/ai"
	"urbanvision/internal/service/render"
)

// multipartOverhead leaves room for form fields and boundaries next to the file.
const multipartOverhead = 1 << 20

// DetectHandler handles POST /api/detect: a multipart upload with a "file" field
// and an optional "confidence" field in [0,1].
func DetectHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		maxBytes := cfg.MaxUploadMB << 20
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d MB", cfg.MaxUploadMB))
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		threshold, err := parseConfidence(r.FormValue("confidence"), cfg.DefaultConfidence)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "An image file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			logger.Error("Error reading upload %s: %v", header.Filename, err)
			writeError(w, http.StatusBadRequest, "Could not read upload")
			return
		}
		if int64(len(data)) > maxBytes {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d MB", cfg.MaxUploadMB))
			return
		}

		response, err := manager.Process(r.Context(), data, header.Filename, threshold)
		if err != nil {
			status, message := classifyError(err)
			if status >= http.StatusInternalServerError {
				logger.Error("Detection failed for %s: %v", header.Filename, err)
			} else {
				logger.Warning("Rejected upload %s: %v", header.Filename, err)
			}
			writeError(w, status, message)
			return
		}

		if err := writeJSON(w, http.StatusOK, response); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// parseConfidence reads the confidence form value. Empty means def.
func parseConfidence(value string, def float64) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}

	threshold, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return 0, fmt.Errorf("confidence must be a number between 0 and 1, got %q", value)
	}
	return threshold, nil
}

// classifyError maps pipeline errors to an HTTP status and a user-facing message.
func classifyError(err error) (int, string) {
	var loadErr *ai.ModelLoadError
	var decodeErr *render.DecodeError
	var inputErr *ai.InputError

	switch {
	case errors.As(err, &loadErr):
		return http.StatusServiceUnavailable, loadErr.Error()
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, "could not decode image"
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, inputErr.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusInternalServerError, "detection failed"
	}
}
