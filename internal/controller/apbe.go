package controller

import (
	"log/slog"
	"time"

	"github.com/samstone86/apba-go/internal/hardware"
)

// Interrupt reasons reported by the APBA about the downstream APBE.
const (
	ReasonNone uint16 = iota
	ReasonApbeOn
	ReasonApbeReset
	ReasonApbeConnected
	ReasonApbeDisconnected
)

const (
	// apbeResetDelay is the settle time between the power-off and
	// power-on halves of a hard reset pulse.
	apbeResetDelay = 250 * time.Millisecond

	// disableDebounce delays a bus-requested disable so rapid
	// slave-state transitions do not tear the controller down while the
	// triggering bus message is still being handled.
	disableDebounce = time.Second
)

// handleIntReason reacts to one interrupt-reason notification. Each reason
// is a one-shot transition with side effects; there is no persisted state
// machine field. Runs on the dispatch goroutine, so the reset settle delay
// may block here.
func (c *Controller) handleIntReason(reason uint16) {
	slog.Info("apbe: interrupt reason", "reason", reason)

	mi := c.MasterIntf()
	if mi == 0 {
		return
	}

	switch reason {
	case ReasonApbeOn:
		c.slavePower(mi, true)

	case ReasonApbeReset:
		// Hard reset pulse: off, settle, on.
		c.slavePower(mi, false)
		time.Sleep(apbeResetDelay)
		c.slavePower(mi, true)

	case ReasonApbeConnected:
		c.notifyAttachAsync(true)

	case ReasonApbeDisconnected:
		c.slavePower(mi, false)
		c.notifyAttachAsync(false)

	default:
		slog.Debug("apbe: unknown interrupt reason", "reason", reason)
	}
}

func (c *Controller) slavePower(masterIntf uint8, on bool) {
	if err := c.hw.Slave.Power(masterIntf, on); err != nil {
		slog.Error("apbe: downstream power request failed", "on", on, "err", err)
	}
}

// notifyAttachAsync announces APBE attach or detach off the dispatch path.
// Attach notification may take non-trivial time downstream, so it runs on
// its own goroutine carrying its own copy of the state.
func (c *Controller) notifyAttachAsync(present bool) {
	c.mu.Lock()
	c.apbeAttached = present
	tr := c.tr
	c.mu.Unlock()

	if tr == nil || c.ctx.Err() != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hw.Slave.NotifyAttach(present)
	}()
	c.publish()
}

// SlaveNotify is the bus core's slave-presence callback. A newly enabled
// APBE enables the controller immediately; a disabled one schedules a
// debounced disable.
func (c *Controller) SlaveNotify(masterIntf uint8, slaveMask, slaveState uint32) {
	slog.Debug("apbe: slave notify",
		"master_intf", masterIntf, "mask", slaveMask, "state", slaveState)

	if slaveMask != hardware.MaskAPBE {
		return
	}

	c.mu.Lock()
	c.masterIntf = masterIntf
	c.mu.Unlock()

	switch slaveState {
	case hardware.SlaveStateDisabled:
		c.scheduleDisable()
	case hardware.SlaveStateEnabled:
		if err := c.Enable(); err != nil {
			slog.Error("apbe: enable failed", "err", err)
		}
	default:
		slog.Error("apbe: invalid slave state", "state", slaveState)
	}
}

func (c *Controller) scheduleDisable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disableTimer != nil {
		c.disableTimer.Stop()
	}
	c.disableTimer = time.AfterFunc(disableDebounce, c.Disable)
}

// onWakeInterrupt runs on the interrupt watch goroutine. The edge carries no
// payload; it only signals a wake condition, which is forwarded to the UART
// power-management layer. No blocking work happens here.
func (c *Controller) onWakeInterrupt() {
	c.mu.Lock()
	on := c.desiredOn
	tr := c.tr
	c.mu.Unlock()

	if !on || tr == nil {
		slog.Debug("apba: wake interrupt ignored")
		return
	}
	c.hw.PM.HandleWakeInterrupt()
}

// ApbePower forwards an explicit downstream power request. It fails until
// the bus has reported a master interface.
func (c *Controller) ApbePower(on bool) error {
	mi := c.MasterIntf()
	if mi == 0 {
		return ErrNoMasterIntf
	}
	return c.hw.Slave.Power(mi, on)
}
