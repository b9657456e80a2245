// Package hardware defines the collaborator interfaces the APBA controller
// drives (GPIO bank, reference clock, NOR flash, UART transport, and the
// downstream APBE power-notification hooks) together with real Linux
// drivers and in-memory mocks. Real drivers are selected by the daemon's
// --mock flag.
package hardware

// Pins drives the bank of GPIOs assigned to the module.
type Pins interface {
	// Count returns the number of configured pins.
	Count() int

	// Set drives pin i to the given level (nonzero = high). Out-of-range
	// indices are the caller's concern; drivers return an error.
	Set(i, value int) error

	// Get reads the current level of pin i.
	Get(i int) (int, error)

	// Watch registers fn to run on every falling edge of pin i. The
	// returned stop function cancels the watch.
	Watch(i int, fn func()) (stop func(), err error)

	// Close releases the pins.
	Close() error
}

// Clock is the module reference clock.
type Clock interface {
	Enable() error
	Disable()
}

// PinMux selects the electrical pin configuration. The default state routes
// the flash bus to the APBA; the active state routes it to the host. The
// active state is optional on boards where the host owns the bus statically.
type PinMux interface {
	SelectDefault() error
	SelectActive() error
	HasActive() bool
}

// FlashDevice is an open handle to one NOR flash partition. Handles must be
// closed exactly once.
type FlashDevice interface {
	Name() string
	Size() int64
	// Present reports whether backing media actually exists in this slot.
	Present() bool
	Erase(off, length int64) error
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Close() error
}

// FlashRegistry enumerates flash partitions by slot number. Slots may be
// empty.
type FlashRegistry interface {
	Open(slot int) (FlashDevice, error)
}

// FlashBus attaches and detaches the shared flash transport (the SPI link
// between host and flash part). Attach is only meaningful while the module
// is held in its flash electrical configuration.
type FlashBus interface {
	Attach() error
	Detach()
}

// Transport is the byte link to the APBA control processor. Inbound traffic
// is delivered one complete message per callback.
type Transport interface {
	Open() error
	Close() error

	// Send transmits one encoded message. It fails immediately when the
	// transport is closed or transmit is locked out by LockTx.
	Send(p []byte) error

	Baud() int
	SetBaud(rate int) error

	// LockTx suppresses (true) or resumes (false) outbound traffic.
	LockTx(lock bool)

	// OnReceive registers the delivery callback for inbound messages.
	// Must be set before Open.
	OnReceive(fn func(p []byte))
}

// PowerManager is the transport's low-power handshake layer. The controller
// forwards wake interrupts and PM protocol events to it verbatim.
type PowerManager interface {
	// SetWakeHandling enables or disables low-power wake handling.
	SetWakeHandling(on bool)

	// HandleWakeInterrupt is called from the wake-line edge handler.
	HandleWakeInterrupt()

	// HandleEvent receives PM wake/sleep acks and sleep indications by
	// protocol message type.
	HandleEvent(msgType uint16)
}

// SlaveControl reaches the downstream (APBE) module through the bus core:
// power requests addressed via the master interface, attach announcements
// toward the rest of the system, and slave-presence notifications back from
// the bus.
type SlaveControl interface {
	// Power requests downstream power on or off via the given master
	// interface.
	Power(masterIntf uint8, on bool) error

	// NotifyAttach announces downstream attach or detach to the system.
	// May take non-trivial time; never called from an edge handler.
	NotifyAttach(present bool)

	// RegisterNotify installs the callback invoked when the bus observes
	// a slave presence change.
	RegisterNotify(fn SlaveNotifyFunc)
}

// Slave presence states reported through SlaveNotifyFunc.
const (
	SlaveStateDisabled uint32 = 0
	SlaveStateEnabled  uint32 = 1
)

// MaskAPBE identifies the APBE in slave-notification masks.
const MaskAPBE uint32 = 1 << 0

// SlaveNotifyFunc receives slave presence changes from the bus core.
type SlaveNotifyFunc func(masterIntf uint8, slaveMask, slaveState uint32)
