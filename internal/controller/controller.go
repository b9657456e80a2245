// Package controller implements the APBA hardware lifecycle and
// control-protocol engine: GPIO pin sequencing, the firmware flash pipeline,
// request/response correlation over the UART transport, the APBE
// attach/power cascade, and the diagnostic log ring.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samstone86/apba-go/internal/config"
	"github.com/samstone86/apba-go/internal/events"
	"github.com/samstone86/apba-go/internal/hardware"
	"github.com/samstone86/apba-go/internal/models"
	"github.com/samstone86/apba-go/internal/protocol"
)

// FirmwarePartition is the partition flashed with the boot firmware image.
const FirmwarePartition = "apba"

// FirmwareLoader resolves a partition name to firmware image bytes.
type FirmwareLoader interface {
	Load(name string) ([]byte, error)
}

// Deps bundles the hardware collaborators the controller drives. Pins,
// Clock, PinMux, FlashReg, FlashBus, Slave and PM are required; Bus,
// Firmware and DetectGate are optional.
type Deps struct {
	Pins     hardware.Pins
	Clock    hardware.Clock
	PinMux   hardware.PinMux
	FlashReg hardware.FlashRegistry
	FlashBus hardware.FlashBus
	Slave    hardware.SlaveControl
	PM       hardware.PowerManager

	// Bus receives state snapshots after observable changes.
	Bus *events.Bus

	// Firmware, when set, triggers an asynchronous initial flash of
	// FirmwarePartition right after bring-up.
	Firmware FirmwareLoader

	// DetectGate is invoked once the initial firmware attempt finishes,
	// success or not, releasing whoever defers downstream detection on
	// the flash outcome.
	DetectGate func()
}

type sequences struct {
	enable       Sequence
	disable      Sequence
	wakeAssert   Sequence
	wakeDeassert Sequence
	flashStart   Sequence
	flashEnd     Sequence
}

// Controller is the single live hardware-session object. Callers obtain it
// from New and must not construct a second one concurrently; all
// hardware-mutating operations are serialized internally on one mutex.
type Controller struct {
	cfg  *config.Config
	hw   Deps
	seqs sequences

	// opMu serializes hardware-mutating operations: power, flash, mode
	// and baud transitions.
	opMu sync.Mutex

	mu             sync.Mutex // guards the mutable state below
	tr             hardware.Transport
	desiredOn      bool
	mode           uint8
	masterIntf     uint8
	flashPopulated bool
	apbeAttached   bool
	disableTimer   *time.Timer

	logs               *logRing
	logW, modeW, baudW waiter

	inbound chan []byte
	stopIrq func()
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires the controller and brings the hardware to a known state. Bring-up
// fails closed: any error unwinds everything acquired so far and no
// controller is returned. The module is left physically off; Enable turns it
// on.
func New(cfg *config.Config, deps Deps) (*Controller, error) {
	switch {
	case deps.Pins == nil, deps.Clock == nil, deps.PinMux == nil,
		deps.FlashReg == nil, deps.FlashBus == nil, deps.Slave == nil,
		deps.PM == nil:
		return nil, fmt.Errorf("controller: missing hardware collaborator")
	}
	if len(cfg.GPIOs) > deps.Pins.Count() {
		return nil, fmt.Errorf("controller: %d gpios configured, %d available",
			len(cfg.GPIOs), deps.Pins.Count())
	}

	c := &Controller{
		cfg:     cfg,
		hw:      deps,
		logs:    newLogRing(LogCapacity, protocol.MaxPayload),
		inbound: make(chan []byte, inboundDepth),
	}

	var err error
	for _, s := range []struct {
		name string
		raw  []uint32
		dst  *Sequence
	}{
		{"enable-seq", cfg.EnableSeq, &c.seqs.enable},
		{"disable-seq", cfg.DisableSeq, &c.seqs.disable},
		{"wake-assert-seq", cfg.WakeAssertSeq, &c.seqs.wakeAssert},
		{"wake-deassert-seq", cfg.WakeDeassertSeq, &c.seqs.wakeDeassert},
		{"flash-start-seq", cfg.FlashStartSeq, &c.seqs.flashStart},
		{"flash-end-seq", cfg.FlashEndSeq, &c.seqs.flashEnd},
	} {
		if *s.dst, err = ParseSequence(s.name, s.raw); err != nil {
			return nil, err
		}
	}

	c.stopIrq, err = deps.Pins.Watch(cfg.IntIndex, c.onWakeInterrupt)
	if err != nil {
		return nil, fmt.Errorf("controller: interrupt setup: %w", err)
	}

	// The default pin configuration must resolve; the flash-active one is
	// optional.
	if err := deps.PinMux.SelectDefault(); err != nil {
		c.stopIrq()
		return nil, fmt.Errorf("controller: pinmux default: %w", err)
	}
	if !deps.PinMux.HasActive() {
		slog.Warn("controller: no flash-active pin configuration")
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go c.dispatchLoop()

	// Start with the module turned off.
	c.powerOff()

	deps.Slave.RegisterNotify(c.SlaveNotify)

	if deps.Firmware != nil {
		c.wg.Add(1)
		go c.initialFirmware()
	} else if deps.DetectGate != nil {
		deps.DetectGate()
	}

	return c, nil
}

// AttachTransport installs the UART transport once the link layer is ready.
// Protocol traffic before this point is skipped, not fatal.
func (c *Controller) AttachTransport(tr hardware.Transport) {
	tr.OnReceive(c.onReceive)
	c.mu.Lock()
	c.tr = tr
	c.mu.Unlock()
}

// Enable acquires the module clock, marks the module desired-on and powers
// it up. Duplicate enables are not special-cased beyond the state flags.
func (c *Controller) Enable() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.hw.Clock.Enable(); err != nil {
		return fmt.Errorf("controller: clock enable: %w", err)
	}
	c.mu.Lock()
	c.desiredOn = true
	c.mu.Unlock()

	c.powerOn()
	c.publish()
	return nil
}

// Disable powers the module down: downstream off, detach announced, clock
// released, disable sequence run. A no-op when not desired-on.
func (c *Controller) Disable() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if !c.desiredOn {
		c.mu.Unlock()
		return
	}
	c.desiredOn = false
	mi := c.masterIntf
	tr := c.tr
	c.apbeAttached = false
	c.mu.Unlock()

	c.slavePower(mi, false)
	if tr != nil {
		c.hw.Slave.NotifyAttach(false)
	}
	c.hw.Clock.Disable()
	c.powerOff()
	c.publish()
}

// WakeAssert drives the wake line toward the APBA through the configured
// wake sequences.
func (c *Controller) WakeAssert(assert bool) {
	if assert {
		c.runSeq(c.seqs.wakeAssert)
	} else {
		c.runSeq(c.seqs.wakeDeassert)
	}
}

// powerOn opens the transport, runs the enable sequence and arms low-power
// wake handling. Caller holds opMu.
func (c *Controller) powerOn() {
	slog.Info("apba: on")
	tr := c.transport()
	if tr != nil {
		if err := tr.Open(); err != nil {
			slog.Error("apba: transport open failed", "err", err)
		}
	}
	c.runSeq(c.seqs.enable)
	if tr != nil {
		c.hw.PM.SetWakeHandling(true)
	}
}

// powerOff resets the committed mode, runs the disable sequence and closes
// the transport. Caller holds opMu.
func (c *Controller) powerOff() {
	slog.Info("apba: off")
	c.mu.Lock()
	c.mode = 0
	tr := c.tr
	c.mu.Unlock()

	c.runSeq(c.seqs.disable)
	if tr != nil {
		c.hw.PM.SetWakeHandling(false)
		if err := tr.Close(); err != nil {
			slog.Warn("apba: transport close failed", "err", err)
		}
	}
}

// initialFirmware loads and flashes the boot firmware image, then releases
// the detection gate whatever the outcome. Missing firmware is not fatal:
// the flash bracket is released and power restored.
func (c *Controller) initialFirmware() {
	defer c.wg.Done()
	if c.hw.DetectGate != nil {
		defer c.hw.DetectGate()
	}

	img, err := c.hw.Firmware.Load(FirmwarePartition)
	if err != nil {
		slog.Warn("controller: no firmware available", "err", err)
		c.opMu.Lock()
		c.flashOn(false)
		if c.DesiredOn() {
			c.powerOn()
		}
		c.opMu.Unlock()
		return
	}

	slog.Debug("controller: firmware loaded", "size", len(img))
	if err := c.FlashPartition(FirmwarePartition, img); err != nil {
		slog.Error("controller: initial flash failed", "err", err)
	}
}

// Close tears the controller down: pending debounce cancelled, interrupt
// watch stopped, module disabled, dispatch drained.
func (c *Controller) Close() {
	c.mu.Lock()
	t := c.disableTimer
	c.disableTimer = nil
	c.mu.Unlock()
	if t != nil {
		t.Stop()
	}

	if c.stopIrq != nil {
		c.stopIrq()
	}
	c.Disable()
	c.cancel()
	c.wg.Wait()
}

// DesiredOn reports the desired-on power flag.
func (c *Controller) DesiredOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desiredOn
}

// Mode reports the last committed operating mode.
func (c *Controller) Mode() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// MasterIntf reports the bus interface toward the APBE; zero means unknown.
func (c *Controller) MasterIntf() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masterIntf
}

// FlashEnabled reports whether the flash transport is populated.
func (c *Controller) FlashEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flashPopulated
}

// Baud reports the current transport baud rate, falling back to the
// configured default while no transport is attached.
func (c *Controller) Baud() int {
	if tr := c.transport(); tr != nil {
		return tr.Baud()
	}
	return c.cfg.UARTBaud
}

// State returns a snapshot for the control surface and event bus.
func (c *Controller) State() models.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	baud := c.cfg.UARTBaud
	if c.tr != nil {
		baud = c.tr.Baud()
	}
	return models.State{
		Enabled:      c.desiredOn,
		Mode:         c.mode,
		Baud:         baud,
		FlashEnabled: c.flashPopulated,
		ApbeAttached: c.apbeAttached,
		MasterIntf:   c.masterIntf,
	}
}

func (c *Controller) publish() {
	if c.hw.Bus != nil {
		c.hw.Bus.Publish(c.State())
	}
}
