package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/samstone86/apba-go/internal/api"
	"github.com/samstone86/apba-go/internal/controller"
	"github.com/samstone86/apba-go/internal/models"
)

// stubController is a scriptable api.Controller.
type stubController struct {
	enabled   bool
	mode      uint8
	baud      int
	flashOn   bool
	log       []byte
	enableErr error
	modeErr   error
	baudErr   error
	flashErr  error
	eraseErr  error
	apbeErr   error
	flashed   []string
	erased    []string
	apbeOn    []bool
}

func (s *stubController) State() models.State {
	return models.State{Enabled: s.enabled, Mode: s.mode, Baud: s.baud, FlashEnabled: s.flashOn}
}

func (s *stubController) DesiredOn() bool { return s.enabled }

func (s *stubController) Enable() error {
	if s.enableErr != nil {
		return s.enableErr
	}
	s.enabled = true
	return nil
}

func (s *stubController) Disable() { s.enabled = false }

func (s *stubController) Mode() uint8 { return s.mode }

func (s *stubController) SetMode(mode uint8) error {
	if s.modeErr != nil {
		return s.modeErr
	}
	s.mode = mode
	return nil
}

func (s *stubController) Baud() int { return s.baud }

func (s *stubController) SetBaud(baud uint32) error {
	if s.baudErr != nil {
		return s.baudErr
	}
	s.baud = int(baud)
	return nil
}

func (s *stubController) ReadLog() []byte { return s.log }

func (s *stubController) FlashEnabled() bool { return s.flashOn }

func (s *stubController) SetFlashEnable(on bool) { s.flashOn = on }

func (s *stubController) FlashPartition(partition string, image []byte) error {
	if s.flashErr != nil {
		return s.flashErr
	}
	s.flashed = append(s.flashed, partition)
	return nil
}

func (s *stubController) ErasePartition(partition string) error {
	if s.eraseErr != nil {
		return s.eraseErr
	}
	s.erased = append(s.erased, partition)
	return nil
}

func (s *stubController) ApbePower(on bool) error {
	if s.apbeErr != nil {
		return s.apbeErr
	}
	s.apbeOn = append(s.apbeOn, on)
	return nil
}

// stubFirmware maps partition names to images.
type stubFirmware map[string][]byte

func (s stubFirmware) Load(name string) ([]byte, error) {
	img, ok := s[name]
	if !ok {
		return nil, controller.ErrDeviceNotFound
	}
	return img, nil
}

// stubBus satisfies api.EventBus; the SSE path is not exercised here.
type stubBus struct{}

func (stubBus) Subscribe(id string) <-chan models.State { return make(chan models.State) }
func (stubBus) Unsubscribe(id string)                   {}

func newTestRouter(ctrl *stubController, fw stubFirmware) http.Handler {
	return api.NewRouter(ctrl, fw, stubBus{})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetState(t *testing.T) {
	ctrl := &stubController{enabled: true, mode: 2, baud: 115200}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st models.State
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !st.Enabled || st.Mode != 2 || st.Baud != 115200 {
		t.Errorf("state = %+v", st)
	}
}

func TestEnableKnob(t *testing.T) {
	ctrl := &stubController{}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/enable", "1\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %q", rec.Code, rec.Body)
	}
	if !ctrl.enabled {
		t.Error("controller not enabled")
	}

	rec = do(t, h, http.MethodGet, "/api/enable", "")
	if got := rec.Body.String(); got != "1\n" {
		t.Errorf("read = %q, want %q", got, "1\n")
	}

	rec = do(t, h, http.MethodPost, "/api/enable", "0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ctrl.enabled {
		t.Error("controller not disabled")
	}
}

func TestEnableKnobRejectsBadValues(t *testing.T) {
	h := newTestRouter(&stubController{}, stubFirmware{})

	for _, body := range []string{"2", "x", "-1", ""} {
		rec := do(t, h, http.MethodPost, "/api/enable", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestKnobBodyTooLong(t *testing.T) {
	h := newTestRouter(&stubController{}, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/enable", strings.Repeat("1", 100))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestModeKnob(t *testing.T) {
	ctrl := &stubController{}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/mode", "7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ctrl.mode != 7 {
		t.Errorf("mode = %d, want 7", ctrl.mode)
	}

	rec = do(t, h, http.MethodGet, "/api/mode", "")
	if got := rec.Body.String(); got != "7\n" {
		t.Errorf("read = %q, want %q", got, "7\n")
	}
}

func TestModeKnobRejectsBadValues(t *testing.T) {
	h := newTestRouter(&stubController{}, stubFirmware{})

	for _, body := range []string{"abc", "300", "-1", ""} {
		rec := do(t, h, http.MethodPost, "/api/mode", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

// A mode request that times out is still acknowledged; only the committed
// mode stays put.
func TestModeKnobAcceptsUnacknowledgedWrite(t *testing.T) {
	ctrl := &stubController{modeErr: controller.ErrTimeout}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/mode", "3")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ctrl.mode != 0 {
		t.Errorf("mode = %d, want 0", ctrl.mode)
	}
}

func TestModeKnobBusyConflicts(t *testing.T) {
	ctrl := &stubController{modeErr: controller.ErrBusy}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/mode", "3")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestBaudKnob(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"timeout", controller.ErrTimeout, http.StatusGatewayTimeout},
		{"busy", controller.ErrBusy, http.StatusConflict},
		{"transmit", controller.ErrTransmit, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &stubController{baudErr: tt.err}
			h := newTestRouter(ctrl, stubFirmware{})

			rec := do(t, h, http.MethodPost, "/api/baud", "921600")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestBaudKnobRejectsBadValues(t *testing.T) {
	h := newTestRouter(&stubController{}, stubFirmware{})

	for _, body := range []string{"0", "abc", "-9600", ""} {
		rec := do(t, h, http.MethodPost, "/api/baud", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestLogKnob(t *testing.T) {
	ctrl := &stubController{log: []byte("boot ok\n")}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodGet, "/api/log", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "boot ok\n" {
		t.Errorf("log = %q, want %q", got, "boot ok\n")
	}
}

func TestFlashPartitionKnob(t *testing.T) {
	ctrl := &stubController{}
	fw := stubFirmware{"boot": []byte("image")}
	h := newTestRouter(ctrl, fw)

	rec := do(t, h, http.MethodPost, "/api/flash_partition", "boot\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %q", rec.Code, rec.Body)
	}
	if len(ctrl.flashed) != 1 || ctrl.flashed[0] != "boot" {
		t.Errorf("flashed = %v, want [boot]", ctrl.flashed)
	}
}

func TestFlashPartitionKnobMissingImage(t *testing.T) {
	h := newTestRouter(&stubController{}, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/flash_partition", "boot")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestFlashPartitionKnobDeviceNotFound(t *testing.T) {
	ctrl := &stubController{flashErr: controller.ErrDeviceNotFound}
	fw := stubFirmware{"boot": []byte("image")}
	h := newTestRouter(ctrl, fw)

	rec := do(t, h, http.MethodPost, "/api/flash_partition", "boot")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestFlashPartitionKnobNameValidation(t *testing.T) {
	h := newTestRouter(&stubController{}, stubFirmware{})

	for _, body := range []string{"", strings.Repeat("p", controller.MaxPartitionName+1)} {
		rec := do(t, h, http.MethodPost, "/api/flash_partition", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestErasePartitionKnob(t *testing.T) {
	ctrl := &stubController{}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/erase_partition", "boot")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ctrl.erased) != 1 || ctrl.erased[0] != "boot" {
		t.Errorf("erased = %v, want [boot]", ctrl.erased)
	}
}

func TestFlashEnableKnob(t *testing.T) {
	ctrl := &stubController{}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/flash_enable", "1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !ctrl.flashOn {
		t.Error("flash not enabled")
	}

	rec = do(t, h, http.MethodGet, "/api/flash_enable", "")
	if got := rec.Body.String(); got != "1\n" {
		t.Errorf("read = %q, want %q", got, "1\n")
	}
}

func TestApbePowerKnob(t *testing.T) {
	ctrl := &stubController{}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/apbe_power", "1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ctrl.apbeOn) != 1 || !ctrl.apbeOn[0] {
		t.Errorf("apbe power calls = %v, want [true]", ctrl.apbeOn)
	}
}

func TestApbePowerKnobWithoutMasterIntf(t *testing.T) {
	ctrl := &stubController{apbeErr: controller.ErrNoMasterIntf}
	h := newTestRouter(ctrl, stubFirmware{})

	rec := do(t, h, http.MethodPost, "/api/apbe_power", "1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
