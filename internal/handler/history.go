package handler

import (
	"net/http"
	"path/filepath"

	"urbanvision/internal/config"
	"urbanvision/internal/dto"
	"urbanvision/internal/logger"
	"urbanvision/internal/repository"
	"urbanvision/internal/service"
)

// GetHistoryHandler returns a paginated, optionally object-filtered list of archived runs.
func GetHistoryHandler(cfg *config.Config, logger *logger.Logger,
	runRepo repository.RunRepository, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &dto.RunFilters{
			Object:     q.Get("object"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		runs, err := runRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying runs from database: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		totalSize, err := runRepo.GetDirectorySize()
		if err != nil {
			logger.Error("Error getting archive size: %v", err)
			totalSize = 0
		}

		totalCount, err := runRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting runs: %v", err)
			totalCount = len(runs)
		}

		objects, err := detectionRepo.GetAllObjectNames()
		if err != nil {
			logger.Error("Error listing object names: %v", err)
			objects = []string{}
		}

		infos := make([]dto.RunInfo, 0, len(runs))
		for _, run := range runs {
			names, err := detectionRepo.GetObjectNamesByRunID(run.ID)
			if err != nil {
				logger.Error("Error getting objects for run %d: %v", run.ID, err)
				names = []string{}
			}

			infos = append(infos, dto.RunInfo{
				Name:      run.Filename,
				Source:    run.Source,
				Date:      run.Timestamp,
				TimeOfDay: run.Timestamp,
				Threshold: run.Threshold,
				Summary:   run.Summary,
				Objects:   names,
			})
		}

		data := dto.RunsData{
			Runs:        infos,
			ImagesDir:   cfg.ImageDirectory,
			Size:        totalSize,
			Objects:     objects,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}

		if err := writeJSON(w, http.StatusOK, data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// ViewRunImageHandler serves a single archived image named by the "image" query parameter.
func ViewRunImageHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		image := r.URL.Query().Get("image")
		if image == "" {
			http.Error(w, "Image parameter is required", http.StatusBadRequest)
			return
		}
		if !isValidFilename(image) {
			http.Error(w, "Invalid image name", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.ImageDirectory, image))
	}
}

// DeleteRunHandler removes one archived run from disk and database.
func DeleteRunHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		filename := r.URL.Query().Get("filename")
		if filename == "" {
			writeError(w, http.StatusBadRequest, "Filename required")
			return
		}
		if !isValidFilename(filename) {
			writeError(w, http.StatusBadRequest, "Invalid filename")
			return
		}

		if err := manager.GetArchiveService().Delete(filename); err != nil {
			logger.Error("Failed to delete run %s: %v", filename, err)
			writeError(w, http.StatusInternalServerError, "Failed to delete run")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": filename})
	}
}

// ClearHistoryHandler deletes every archived image and clears the database.
func ClearHistoryHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		if err := manager.GetArchiveService().Clear(); err != nil {
			logger.Error("Error clearing history: %v", err)
			writeError(w, http.StatusInternalServerError, "Unable to clear history")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
