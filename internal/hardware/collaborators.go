package hardware

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// fileClock toggles a clock through a sysfs-style enable attribute.
type fileClock struct {
	path string
}

// NewClock returns a Clock writing "1"/"0" to the given attribute path. An
// empty path yields a no-op clock for boards with an always-on reference.
func NewClock(path string) Clock {
	if path == "" {
		return nopClock{}
	}
	return &fileClock{path: path}
}

func (c *fileClock) Enable() error {
	if err := os.WriteFile(c.path, []byte("1\n"), 0644); err != nil {
		return fmt.Errorf("clock: enable %s: %w", c.path, err)
	}
	return nil
}

func (c *fileClock) Disable() {
	if err := os.WriteFile(c.path, []byte("0\n"), 0644); err != nil {
		slog.Warn("clock: disable failed", "path", c.path, "err", err)
	}
}

type nopClock struct{}

func (nopClock) Enable() error { return nil }
func (nopClock) Disable()      {}

// filePinMux selects named pin states by writing the state name to a pinmux
// select attribute. The active (flash) state is optional.
type filePinMux struct {
	path    string
	defName string
	actName string
}

// NewFilePinMux returns a PinMux over the given select attribute. An empty
// activeState means the board has no dedicated flash pin configuration; an
// empty path yields a no-op mux.
func NewFilePinMux(path, defaultState, activeState string) PinMux {
	return &filePinMux{path: path, defName: defaultState, actName: activeState}
}

func (m *filePinMux) selectState(name string) error {
	if m.path == "" {
		return nil
	}
	if err := os.WriteFile(m.path, []byte(name+"\n"), 0644); err != nil {
		return fmt.Errorf("pinmux: select %s: %w", name, err)
	}
	return nil
}

func (m *filePinMux) SelectDefault() error { return m.selectState(m.defName) }
func (m *filePinMux) SelectActive() error  { return m.selectState(m.actName) }
func (m *filePinMux) HasActive() bool      { return m.path != "" && m.actName != "" }

// sysfsFlashBus binds and unbinds the shared SPI flash device on its kernel
// driver, attaching the flash part to the host while the module is held in
// its flash pin configuration.
type sysfsFlashBus struct {
	driverDir string // e.g. /sys/bus/spi/drivers/spi-nor
	device    string // e.g. spi1.0
}

// NewSysfsFlashBus returns a FlashBus over the kernel driver bind/unbind
// attributes. An empty driver directory yields a no-op bus.
func NewSysfsFlashBus(driverDir, device string) FlashBus {
	return &sysfsFlashBus{driverDir: driverDir, device: device}
}

func (b *sysfsFlashBus) Attach() error {
	if b.driverDir == "" {
		return nil
	}
	path := filepath.Join(b.driverDir, "bind")
	if err := os.WriteFile(path, []byte(b.device), 0200); err != nil {
		return fmt.Errorf("flashbus: bind %s: %w", b.device, err)
	}
	return nil
}

func (b *sysfsFlashBus) Detach() {
	if b.driverDir == "" {
		return
	}
	path := filepath.Join(b.driverDir, "unbind")
	if err := os.WriteFile(path, []byte(b.device), 0200); err != nil {
		slog.Warn("flashbus: unbind failed", "device", b.device, "err", err)
	}
}

// uartPM is a minimal UART power-management layer: it pulses the wake line
// toward the APBA on wake conditions and tracks whether wake handling is
// enabled. Protocol PM events are acknowledged by logging; the handshake
// details live on the APBA side.
type uartPM struct {
	mu         sync.Mutex
	on         bool
	wakeAssert func(assert bool)
}

// NewUartPM returns a PowerManager that drives the wake line through the
// given assert function.
func NewUartPM(wakeAssert func(assert bool)) PowerManager {
	return &uartPM{wakeAssert: wakeAssert}
}

func (p *uartPM) SetWakeHandling(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = on
}

func (p *uartPM) HandleWakeInterrupt() {
	p.mu.Lock()
	on := p.on
	fn := p.wakeAssert
	p.mu.Unlock()
	if !on || fn == nil {
		return
	}
	fn(true)
	fn(false)
}

func (p *uartPM) HandleEvent(msgType uint16) {
	slog.Debug("uartpm: event", "type", msgType)
}

// logSlaveControl is a stand-in bus core for boards where the downstream
// control path is not wired up: power and attach requests are logged and
// acknowledged.
type logSlaveControl struct {
	mu     sync.Mutex
	notify SlaveNotifyFunc
}

// NewLogSlaveControl returns a SlaveControl that records requests in the log.
func NewLogSlaveControl() SlaveControl { return &logSlaveControl{} }

func (s *logSlaveControl) Power(masterIntf uint8, on bool) error {
	slog.Info("slave: power request", "master_intf", masterIntf, "on", on)
	return nil
}

func (s *logSlaveControl) NotifyAttach(present bool) {
	slog.Info("slave: attach notification", "present", present)
}

func (s *logSlaveControl) RegisterNotify(fn SlaveNotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}
