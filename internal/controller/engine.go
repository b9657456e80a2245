package controller

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samstone86/apba-go/internal/hardware"
	"github.com/samstone86/apba-go/internal/protocol"
)

const (
	// requestTimeout bounds every request/ack round trip.
	requestTimeout = 1000 * time.Millisecond

	// logDrainMax is the most log bytes returned per retrieval.
	logDrainMax = 4096 - 1

	// inboundDepth bounds the channel between the transport's delivery
	// callback and the dispatch goroutine.
	inboundDepth = 32
)

// waiter is a single-slot completion correlating one outbound request with
// its asynchronous acknowledgment. At most one request per waiter may be
// outstanding; arm enforces the guard.
type waiter struct {
	mu sync.Mutex
	ch chan struct{}
}

func (w *waiter) arm() (<-chan struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ch != nil {
		return nil, ErrBusy
	}
	w.ch = make(chan struct{}, 1)
	return w.ch, nil
}

func (w *waiter) complete() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ch != nil {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

func (w *waiter) disarm() {
	w.mu.Lock()
	w.ch = nil
	w.mu.Unlock()
}

// sendAndWait transmits frame and blocks until the waiter completes or the
// timeout elapses. The wait always happens from a regular goroutine, never
// from the edge handler.
func (c *Controller) sendAndWait(frame []byte, w *waiter, timeout time.Duration) error {
	tr := c.transport()
	if tr == nil {
		return ErrNoTransport
	}
	ch, err := w.arm()
	if err != nil {
		return err
	}
	defer w.disarm()

	if err := tr.Send(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransmit, err)
	}
	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// SetMode sends a mode change request and commits the new mode only when the
// APBA echoes it back within the budget. On timeout the committed mode is
// left unchanged and the error is returned; reading the mode back tells the
// caller whether the change took.
func (c *Controller) SetMode(mode uint8) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.sendAndWait(protocol.EncodeModeRequest(mode), &c.modeW, requestTimeout); err != nil {
		return fmt.Errorf("mode request: %w", err)
	}
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	c.publish()
	return nil
}

// SetBaud negotiates a new UART baud rate. Outbound traffic is locked from
// the moment the request is on the wire until the ack or timeout resolves,
// so nothing else races the in-flight rate change. The rate itself is
// applied by the dispatch path when the ack arrives.
func (c *Controller) SetBaud(baud uint32) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	tr := c.transport()
	if tr == nil {
		return ErrNoTransport
	}
	ch, err := c.baudW.arm()
	if err != nil {
		return err
	}
	defer c.baudW.disarm()

	if err := tr.Send(protocol.EncodeBaudRequest(baud)); err != nil {
		return fmt.Errorf("%w: %v", ErrTransmit, err)
	}

	tr.LockTx(true)
	defer tr.LockTx(false)
	select {
	case <-ch:
	case <-time.After(requestTimeout):
		return fmt.Errorf("baud request: %w", ErrTimeout)
	}
	c.publish()
	return nil
}

// ReadLog requests a log flush from the APBA and drains the ring. Logs are
// best-effort: send failures and timeouts return an empty result, never an
// error.
func (c *Controller) ReadLog() []byte {
	err := c.sendAndWait(protocol.EncodeHeaderOnly(protocol.TypeLogRequest), &c.logW, requestTimeout)
	if err != nil {
		slog.Warn("engine: log request failed", "err", err)
		return nil
	}
	return c.logs.Read(logDrainMax)
}

// onReceive is the transport delivery callback. It must never block: the
// message is copied onto the bounded inbound channel and all blocking work
// happens on the dispatch goroutine.
func (c *Controller) onReceive(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case c.inbound <- cp:
	default:
		slog.Warn("engine: inbound queue full, message dropped")
	}
}

func (c *Controller) dispatchLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case buf := <-c.inbound:
			c.dispatch(buf)
		}
	}
}

// dispatch decodes one inbound message and acts on its type. Unknown or
// malformed messages are logged and discarded; nothing inbound is fatal.
func (c *Controller) dispatch(buf []byte) {
	msg, err := protocol.Decode(buf)
	if err != nil {
		slog.Warn("engine: invalid message received", "err", err)
		return
	}

	switch msg.Type {
	case protocol.TypeIntReason:
		reason, err := msg.IntReason()
		if err != nil {
			slog.Warn("engine: bad int-reason payload", "err", err)
			return
		}
		c.handleIntReason(reason)

	case protocol.TypePMWakeAck, protocol.TypePMSleepAck, protocol.TypePMSleepInd:
		c.hw.PM.HandleEvent(msg.Type)

	case protocol.TypeLogInd:
		c.logs.Write(msg.Payload)

	case protocol.TypeLogRequest:
		c.logW.complete()

	case protocol.TypeBaudAck:
		ack, err := msg.BaudAck()
		if err != nil {
			slog.Warn("engine: bad baud-ack payload", "err", err)
			return
		}
		slog.Debug("engine: baud ack", "baud", ack.Baud, "accepted", ack.Accepted)
		if ack.Accepted {
			if tr := c.transport(); tr != nil {
				if err := tr.SetBaud(int(ack.Baud)); err != nil {
					slog.Error("engine: baud update failed", "baud", ack.Baud, "err", err)
				}
			}
		}
		c.baudW.complete()

	case protocol.TypeModeRequest:
		c.modeW.complete()

	default:
		slog.Warn("engine: unknown message received", "type", msg.Type)
	}
}

func (c *Controller) transport() hardware.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr
}
