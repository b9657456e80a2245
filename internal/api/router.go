package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and returns the control-surface HTTP router.
func NewRouter(ctrl Controller, fw FirmwareLoader, bus EventBus) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.CleanPath)

	h := &Handlers{ctrl: ctrl, fw: fw, events: bus}

	r.Get("/api/state", h.getState)

	// Knobs: GET reads, POST writes raw ASCII values.
	r.Get("/api/enable", h.getEnable)
	r.Post("/api/enable", h.setEnable)
	r.Get("/api/flash_enable", h.getFlashEnable)
	r.Post("/api/flash_enable", h.setFlashEnable)
	r.Get("/api/mode", h.getMode)
	r.Post("/api/mode", h.setMode)
	r.Get("/api/baud", h.getBaud)
	r.Post("/api/baud", h.setBaud)
	r.Get("/api/log", h.getLog)
	r.Post("/api/flash_partition", h.flashPartition)
	r.Post("/api/erase_partition", h.erasePartition)
	r.Post("/api/apbe_power", h.apbePower)

	// SSE
	r.Get("/api/subscribe", h.sseEvents)

	return r
}
