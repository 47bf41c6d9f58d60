package handler

import (
	"net/http"

	"urbanvision/internal/logger"
	"urbanvision/internal/service"
)

type classInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ClassesHandler lists the registered object classes with their box colors.
func ClassesHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := manager.GetRegistry().Entries()
		classes := make([]classInfo, 0, len(entries))
		for _, e := range entries {
			classes = append(classes, classInfo{ID: e.ID, Name: e.Name, Color: e.Hex()})
		}

		if err := writeJSON(w, http.StatusOK, classes); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// HealthHandler reports whether the server is up and the detector is loaded.
func HealthHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detector := manager.GetDetectorService()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"model":       detector.Name(),
			"modelLoaded": detector.Ready(),
		})
	}
}
