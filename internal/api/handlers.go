package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/samstone86/apba-go/internal/controller"
	"github.com/samstone86/apba-go/internal/models"
)

// getState returns the full controller state snapshot as JSON.
func (h *Handlers) getState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.ctrl.State())
}

func (h *Handlers) getEnable(w http.ResponseWriter, r *http.Request) {
	v := 0
	if h.ctrl.DesiredOn() {
		v = 1
	}
	writeValue(w, v)
}

func (h *Handlers) setEnable(w http.ResponseWriter, r *http.Request) {
	body, appErr := readBody(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	on, appErr := parseBool01(body)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	if on {
		if err := h.ctrl.Enable(); err != nil {
			writeError(w, models.ErrInternal(err.Error()))
			return
		}
	} else {
		h.ctrl.Disable()
	}
	writeOK(w)
}

func (h *Handlers) getFlashEnable(w http.ResponseWriter, r *http.Request) {
	v := 0
	if h.ctrl.FlashEnabled() {
		v = 1
	}
	writeValue(w, v)
}

func (h *Handlers) setFlashEnable(w http.ResponseWriter, r *http.Request) {
	body, appErr := readBody(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	on, appErr := parseBool01(body)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	h.ctrl.SetFlashEnable(on)
	writeOK(w)
}

func (h *Handlers) getMode(w http.ResponseWriter, r *http.Request) {
	writeValue(w, h.ctrl.Mode())
}

// setMode forwards a mode change request. The write is acknowledged even
// when the request times out; the committed mode only moves on an ack, so a
// subsequent read reports whether the change took.
func (h *Handlers) setMode(w http.ResponseWriter, r *http.Request) {
	body, appErr := readBody(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	v, err := strconv.ParseUint(body, 10, 8)
	if err != nil {
		writeError(w, models.ErrBadRequest("mode must be an integer 0-255"))
		return
	}
	if err := h.ctrl.SetMode(uint8(v)); err != nil {
		if errors.Is(err, controller.ErrBusy) {
			writeError(w, models.ErrConflict(err.Error()))
			return
		}
		slog.Warn("api: mode request unacknowledged", "mode", v, "err", err)
	}
	writeOK(w)
}

func (h *Handlers) getBaud(w http.ResponseWriter, r *http.Request) {
	writeValue(w, h.ctrl.Baud())
}

func (h *Handlers) setBaud(w http.ResponseWriter, r *http.Request) {
	body, appErr := readBody(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	v, err := strconv.ParseUint(body, 10, 32)
	if err != nil || v == 0 {
		writeError(w, models.ErrBadRequest("baud must be a positive integer"))
		return
	}
	switch err := h.ctrl.SetBaud(uint32(v)); {
	case err == nil:
		writeOK(w)
	case errors.Is(err, controller.ErrTimeout):
		writeError(w, models.ErrTimeout(err.Error()))
	case errors.Is(err, controller.ErrBusy):
		writeError(w, models.ErrConflict(err.Error()))
	default:
		writeError(w, models.ErrInternal(err.Error()))
	}
}

// getLog triggers a log-request round trip and returns the drained buffer.
// Logs are best-effort; the response may be empty.
func (h *Handlers) getLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(h.ctrl.ReadLog())
}

func (h *Handlers) partitionName(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, appErr := readBody(r)
	if appErr != nil {
		writeError(w, appErr)
		return "", false
	}
	if body == "" || len(body) > controller.MaxPartitionName {
		writeError(w, models.ErrBadRequest("partition name must be 1-16 characters"))
		return "", false
	}
	return body, true
}

func (h *Handlers) flashPartition(w http.ResponseWriter, r *http.Request) {
	name, ok := h.partitionName(w, r)
	if !ok {
		return
	}
	img, err := h.fw.Load(name)
	if err != nil {
		writeError(w, models.ErrNotFound("no firmware image for "+name))
		return
	}
	if err := h.ctrl.FlashPartition(name, img); err != nil {
		writeFlashError(w, err)
		return
	}
	writeOK(w)
}

func (h *Handlers) erasePartition(w http.ResponseWriter, r *http.Request) {
	name, ok := h.partitionName(w, r)
	if !ok {
		return
	}
	if err := h.ctrl.ErasePartition(name); err != nil {
		writeFlashError(w, err)
		return
	}
	writeOK(w)
}

func writeFlashError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrDeviceNotFound):
		writeError(w, models.ErrNotFound(err.Error()))
	case errors.Is(err, controller.ErrInvalidInput):
		writeError(w, models.ErrBadRequest(err.Error()))
	default:
		writeError(w, models.ErrInternal(err.Error()))
	}
}

func (h *Handlers) apbePower(w http.ResponseWriter, r *http.Request) {
	body, appErr := readBody(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	on, appErr := parseBool01(body)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	if err := h.ctrl.ApbePower(on); err != nil {
		if errors.Is(err, controller.ErrNoMasterIntf) {
			writeError(w, models.ErrBadRequest(err.Error()))
			return
		}
		writeError(w, models.ErrInternal(err.Error()))
		return
	}
	writeOK(w)
}
