package route

import (
	"net/http"
	"os"
	"path/filepath"

	"urbanvision/internal/config"
	"urbanvision/internal/handler"
	"urbanvision/internal/logger"
	"urbanvision/internal/middleware"
	"urbanvision/internal/repository"
	"urbanvision/internal/service"
)

// StaticDir holds the HTML pages and assets.
const StaticDir = "static"

// dynamicHTMLHandler serves /path as <dir>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(dir, filepath.Clean(path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers HTTP routes, static file serving and API endpoints,
// and wraps the mux with the authentication middleware. History routes are
// only registered when the repositories are available.
func SetupRoutes(manager *service.Manager, cfg *config.Config, log *logger.Logger,
	runRepo repository.RunRepository, detectionRepo repository.DetectionRepository) http.Handler {
	return setupRoutes(manager, cfg, log, runRepo, detectionRepo, StaticDir)
}

func setupRoutes(manager *service.Manager, cfg *config.Config, log *logger.Logger,
	runRepo repository.RunRepository, detectionRepo repository.DetectionRepository, staticDir string) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	// API endpoints
	mux.HandleFunc("/api/detect", handler.DetectHandler(manager, cfg, log))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(manager, log))
	mux.HandleFunc("/api/classes", handler.ClassesHandler(manager, log))
	mux.HandleFunc("/health", handler.HealthHandler(manager))

	if runRepo != nil && detectionRepo != nil && manager.GetArchiveService() != nil {
		mux.HandleFunc("/api/history", handler.GetHistoryHandler(cfg, log, runRepo, detectionRepo))
		mux.HandleFunc("/api/history/view", handler.ViewRunImageHandler(cfg))
		mux.HandleFunc("/api/history/delete", handler.DeleteRunHandler(manager, log))
		mux.HandleFunc("/api/history/clear", handler.ClearHistoryHandler(manager, log))
	}

	// Log endpoints
	mux.HandleFunc("/logs/info", handler.ShowLogsHandler(cfg, logger.InfoFile))
	mux.HandleFunc("/logs/warning", handler.ShowLogsHandler(cfg, logger.WarningFile))
	mux.HandleFunc("/logs/error", handler.ShowLogsHandler(cfg, logger.ErrorFile))

	mux.HandleFunc("/logs/info/clear", handler.ClearLogsHandler(log, logger.InfoFile))
	mux.HandleFunc("/logs/warning/clear", handler.ClearLogsHandler(log, logger.WarningFile))
	mux.HandleFunc("/logs/error/clear", handler.ClearLogsHandler(log, logger.ErrorFile))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /login -> /static/login.html
	mux.HandleFunc("/", dynamicHTMLHandler(staticDir))

	return middleware.AuthMiddleware(cfg, mux)
}
