package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(authHandler *AuthHandler, fileHandler *FileHandler, transferHandler *TransferHandler, progressHandler *ProgressHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/auth/login", authHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(authHandler.jwtManager))

		r.Get("/api/files", fileHandler.List)
		r.Get("/api/storage", fileHandler.Storage)

		r.Get("/api/files/content", fileHandler.ReadContent)
		r.Put("/api/files/content", fileHandler.WriteContent)

		r.Post("/api/files/folders", fileHandler.CreateFolder)
		r.Post("/api/files/rename", fileHandler.Rename)
		r.Post("/api/files/delete", fileHandler.Delete)

		r.Post("/api/files/upload", transferHandler.Upload)
		r.Get("/api/files/download", transferHandler.Download)

		r.Get("/api/transfers", transferHandler.ListJobs)
		r.Get("/api/transfers/{id}", transferHandler.GetJob)
		r.Delete("/api/transfers/{id}", transferHandler.DeleteJob)

		r.Get("/api/progress", progressHandler.Events)
	})

	return r
}
