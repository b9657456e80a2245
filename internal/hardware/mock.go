package hardware

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTxLocked is returned by Transport.Send while transmit is locked out.
var ErrTxLocked = errors.New("hardware: transmit locked")

// PinSet records one pin write applied to MockPins.
type PinSet struct {
	Index int
	Value int
}

// MockPins is a thread-safe in-memory GPIO bank for testing and --mock runs.
type MockPins struct {
	mu      sync.Mutex
	levels  []int
	sets    []PinSet
	watches map[int]func()
}

// NewMockPins creates a mock bank with n pins, all low.
func NewMockPins(n int) *MockPins {
	return &MockPins{
		levels:  make([]int, n),
		watches: make(map[int]func()),
	}
}

func (m *MockPins) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.levels)
}

func (m *MockPins) Set(i, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.levels) {
		return fmt.Errorf("mock: pin %d out of range", i)
	}
	m.levels[i] = value
	m.sets = append(m.sets, PinSet{Index: i, Value: value})
	return nil
}

func (m *MockPins) Get(i int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.levels) {
		return 0, fmt.Errorf("mock: pin %d out of range", i)
	}
	return m.levels[i], nil
}

func (m *MockPins) Watch(i int, fn func()) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.levels) {
		return nil, fmt.Errorf("mock: pin %d out of range", i)
	}
	m.watches[i] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watches, i)
	}, nil
}

func (m *MockPins) Close() error { return nil }

// Trigger simulates a falling edge on pin i.
func (m *MockPins) Trigger(i int) {
	m.mu.Lock()
	fn := m.watches[i]
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Sets returns a copy of all pin writes applied so far, in order.
func (m *MockPins) Sets() []PinSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PinSet, len(m.sets))
	copy(out, m.sets)
	return out
}

// MockClock is an in-memory Clock.
type MockClock struct {
	mu         sync.Mutex
	enabled    bool
	FailEnable bool
	Enables    int
	Disables   int
}

func (c *MockClock) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailEnable {
		return errors.New("mock: clock enable failure configured")
	}
	c.enabled = true
	c.Enables++
	return nil
}

func (c *MockClock) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	c.Disables++
}

// Enabled reports the current clock state.
func (c *MockClock) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// MockPinMux is an in-memory PinMux that records state selections.
type MockPinMux struct {
	mu          sync.Mutex
	Active      bool // whether an active state exists
	FailDefault bool
	States      []string // "default" / "active" in selection order
}

func (m *MockPinMux) SelectDefault() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDefault {
		return errors.New("mock: pinmux default failure configured")
	}
	m.States = append(m.States, "default")
	return nil
}

func (m *MockPinMux) SelectActive() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.States = append(m.States, "active")
	return nil
}

func (m *MockPinMux) HasActive() bool { return m.Active }

// Selected returns a copy of the selection history.
func (m *MockPinMux) Selected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.States))
	copy(out, m.States)
	return out
}

// MockFlashDevice is a byte-slice backed FlashDevice.
type MockFlashDevice struct {
	mu         sync.Mutex
	name       string
	data       []byte
	present    bool
	FailErase  bool
	FailRead   bool
	FailWrite  bool
	EraseCalls int
	WriteCalls int
	CloseCalls int
}

// NewMockFlashDevice creates a present device with the given name and size.
func NewMockFlashDevice(name string, size int) *MockFlashDevice {
	return &MockFlashDevice{name: name, data: make([]byte, size), present: true}
}

// SetAbsent marks the device's media as missing.
func (d *MockFlashDevice) SetAbsent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.present = false
}

// Preload copies p into the device contents starting at offset 0.
func (d *MockFlashDevice) Preload(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data, p)
}

// Contents returns a copy of the device contents.
func (d *MockFlashDevice) Contents() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.data))
	copy(out, d.data)
	return out
}

func (d *MockFlashDevice) Name() string { return d.name }

func (d *MockFlashDevice) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.data))
}

func (d *MockFlashDevice) Present() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.present
}

func (d *MockFlashDevice) Erase(off, length int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.EraseCalls++
	if d.FailErase {
		return errors.New("mock: erase failure configured")
	}
	for i := off; i < off+length && i < int64(len(d.data)); i++ {
		d.data[i] = 0xFF
	}
	return nil
}

func (d *MockFlashDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailRead {
		return 0, errors.New("mock: read failure configured")
	}
	if off >= int64(len(d.data)) {
		return 0, errors.New("mock: read past end")
	}
	n := copy(p, d.data[off:])
	return n, nil
}

func (d *MockFlashDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WriteCalls++
	if d.FailWrite {
		return 0, errors.New("mock: write failure configured")
	}
	if off >= int64(len(d.data)) {
		return 0, errors.New("mock: write past end")
	}
	n := copy(d.data[off:], p)
	return n, nil
}

func (d *MockFlashDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCalls++
	return nil
}

// MockFlashRegistry maps slot numbers to mock devices.
type MockFlashRegistry struct {
	mu      sync.Mutex
	Devices map[int]*MockFlashDevice
}

func NewMockFlashRegistry() *MockFlashRegistry {
	return &MockFlashRegistry{Devices: make(map[int]*MockFlashDevice)}
}

func (r *MockFlashRegistry) Open(slot int) (FlashDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.Devices[slot]
	if !ok {
		return nil, fmt.Errorf("mock: no device in slot %d", slot)
	}
	return d, nil
}

// MockFlashBus is an in-memory FlashBus.
type MockFlashBus struct {
	mu         sync.Mutex
	attached   bool
	FailAttach bool
	Attaches   int
	Detaches   int
}

func (b *MockFlashBus) Attach() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailAttach {
		return errors.New("mock: flash bus attach failure configured")
	}
	b.attached = true
	b.Attaches++
	return nil
}

func (b *MockFlashBus) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = false
	b.Detaches++
}

// Attached reports the current bus state.
func (b *MockFlashBus) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached
}

// SentFrame records one frame transmitted through MockTransport.
type SentFrame struct {
	Data []byte
	At   time.Time
}

// MockTransport is an in-memory Transport. An optional AutoReply function
// synthesizes inbound messages in response to each transmitted frame.
type MockTransport struct {
	mu        sync.Mutex
	open      bool
	locked    bool
	baud      int
	rx        func(p []byte)
	frames    []SentFrame
	FailSend  bool
	AutoReply func(sent []byte) [][]byte
}

// NewMockTransport creates a closed mock transport at the given baud rate.
func NewMockTransport(baud int) *MockTransport {
	return &MockTransport{baud: baud}
}

func (t *MockTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = true
	return nil
}

func (t *MockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = false
	return nil
}

func (t *MockTransport) Send(p []byte) error {
	t.mu.Lock()
	if t.FailSend {
		t.mu.Unlock()
		return errors.New("mock: send failure configured")
	}
	if t.locked {
		t.mu.Unlock()
		return ErrTxLocked
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	t.frames = append(t.frames, SentFrame{Data: cp, At: time.Now()})
	reply := t.AutoReply
	rx := t.rx
	t.mu.Unlock()

	if reply != nil && rx != nil {
		// Deliver replies off the sender's goroutine, as a real
		// transport's read loop would.
		go func() {
			for _, msg := range reply(cp) {
				rx(msg)
			}
		}()
	}
	return nil
}

func (t *MockTransport) Baud() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baud
}

func (t *MockTransport) SetBaud(rate int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baud = rate
	return nil
}

func (t *MockTransport) LockTx(lock bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locked = lock
}

func (t *MockTransport) OnReceive(fn func(p []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = fn
}

// Deliver injects one inbound message as if it arrived on the wire.
func (t *MockTransport) Deliver(p []byte) {
	t.mu.Lock()
	rx := t.rx
	t.mu.Unlock()
	if rx != nil {
		rx(p)
	}
}

// Frames returns a copy of all transmitted frames, in order.
func (t *MockTransport) Frames() []SentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SentFrame, len(t.frames))
	copy(out, t.frames)
	return out
}

// IsOpen reports whether the transport is open.
func (t *MockTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// MockPowerManager records PM interactions.
type MockPowerManager struct {
	mu       sync.Mutex
	wakeOn   bool
	wakeInts int
	events   []uint16
}

func (p *MockPowerManager) SetWakeHandling(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wakeOn = on
}

func (p *MockPowerManager) HandleWakeInterrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wakeInts++
}

func (p *MockPowerManager) HandleEvent(msgType uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msgType)
}

// WakeHandling reports whether low-power wake handling is armed.
func (p *MockPowerManager) WakeHandling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wakeOn
}

// WakeInterrupts returns the number of forwarded wake interrupts.
func (p *MockPowerManager) WakeInterrupts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wakeInts
}

// PMEvents returns a copy of the forwarded PM event types.
func (p *MockPowerManager) PMEvents() []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint16, len(p.events))
	copy(out, p.events)
	return out
}

// PowerCall records one downstream power request.
type PowerCall struct {
	MasterIntf uint8
	On         bool
	At         time.Time
}

// AttachCall records one attach announcement.
type AttachCall struct {
	Present bool
	At      time.Time
}

// MockSlaveControl records downstream power and attach traffic.
type MockSlaveControl struct {
	mu        sync.Mutex
	powers    []PowerCall
	attaches  []AttachCall
	notify    SlaveNotifyFunc
	FailPower bool
}

func (s *MockSlaveControl) Power(masterIntf uint8, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPower {
		return errors.New("mock: slave power failure configured")
	}
	s.powers = append(s.powers, PowerCall{MasterIntf: masterIntf, On: on, At: time.Now()})
	return nil
}

func (s *MockSlaveControl) NotifyAttach(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attaches = append(s.attaches, AttachCall{Present: present, At: time.Now()})
}

func (s *MockSlaveControl) RegisterNotify(fn SlaveNotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// Notify invokes the registered slave-notification callback, simulating the
// bus core reporting a slave presence change.
func (s *MockSlaveControl) Notify(masterIntf uint8, mask, state uint32) {
	s.mu.Lock()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(masterIntf, mask, state)
	}
}

// Powers returns a copy of the recorded power requests, in order.
func (s *MockSlaveControl) Powers() []PowerCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PowerCall, len(s.powers))
	copy(out, s.powers)
	return out
}

// Attaches returns a copy of the recorded attach announcements, in order.
func (s *MockSlaveControl) Attaches() []AttachCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AttachCall, len(s.attaches))
	copy(out, s.attaches)
	return out
}
