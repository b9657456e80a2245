// Package api implements the HTTP control surface for the APBA controller.
// Knobs follow a sysfs-like convention: values are newline-terminated ASCII,
// reads are GET, writes are POST with the raw value as the request body.
package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/samstone86/apba-go/internal/models"
)

// maxBodyLen bounds control-surface write bodies; no knob takes more than a
// short token.
const maxBodyLen = 64

// Controller is the interface the handlers use to drive the hardware.
type Controller interface {
	State() models.State
	DesiredOn() bool
	Enable() error
	Disable()
	Mode() uint8
	SetMode(mode uint8) error
	Baud() int
	SetBaud(baud uint32) error
	ReadLog() []byte
	FlashEnabled() bool
	SetFlashEnable(on bool)
	FlashPartition(partition string, image []byte) error
	ErasePartition(partition string) error
	ApbePower(on bool) error
}

// FirmwareLoader resolves a partition name to firmware image bytes.
type FirmwareLoader interface {
	Load(name string) ([]byte, error)
}

// EventBus is the interface for subscribing to state change events.
type EventBus interface {
	Subscribe(id string) <-chan models.State
	Unsubscribe(id string)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctrl   Controller
	fw     FirmwareLoader
	events EventBus
}

// writeValue writes a knob value as newline-terminated plain text.
func writeValue(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "%v\n", v)
}

// writeOK acknowledges a successful knob write.
func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	appErr, ok := err.(*models.AppError)
	if !ok {
		appErr = models.ErrInternal(err.Error())
	}
	w.WriteHeader(appErr.Status)
	_, _ = fmt.Fprintf(w, `{"error":%q,"message":%q}`+"\n", appErr.Code, appErr.Message)
}

// readBody reads a knob write body and strips the trailing newline, if any.
func readBody(r *http.Request) (string, *models.AppError) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyLen+1))
	if err != nil {
		return "", models.ErrBadRequest("cannot read request body")
	}
	if len(data) > maxBodyLen {
		return "", models.ErrBadRequest("value too long")
	}
	s := string(data)
	s = strings.TrimSuffix(s, "\n")
	return s, nil
}

// parseBool01 parses a strict "0"/"1" knob value.
func parseBool01(s string) (bool, *models.AppError) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || (v != 0 && v != 1) {
		return false, models.ErrBadRequest(fmt.Sprintf("expected 0 or 1, got %q", s))
	}
	return v == 1, nil
}
