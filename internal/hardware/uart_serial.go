package hardware

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// msgHeaderLen matches the control protocol's {type:u16, size:u16} header.
// The transport reassembles one full message per delivery.
const msgHeaderLen = 4

// serialTransport is the real UART link to the APBA, framed by the control
// protocol's length-prefixed header.
type serialTransport struct {
	device string

	mu     sync.Mutex
	port   serial.Port
	baud   int
	locked bool
	rx     func(p []byte)
	done   chan struct{}
}

// NewSerialTransport creates a closed transport on the given serial device.
func NewSerialTransport(device string, baud int) Transport {
	return &serialTransport{device: device, baud: baud}
}

func (t *serialTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	port, err := serial.Open(t.device, &serial.Mode{BaudRate: t.baud})
	if err != nil {
		return fmt.Errorf("uart: open %s: %w", t.device, err)
	}
	t.port = port
	t.done = make(chan struct{})
	go t.readLoop(port, t.done)
	slog.Info("uart: opened", "device", t.device, "baud", t.baud)
	return nil
}

func (t *serialTransport) Close() error {
	t.mu.Lock()
	port := t.port
	done := t.done
	t.port = nil
	t.done = nil
	t.mu.Unlock()
	if port == nil {
		return nil
	}
	err := port.Close()
	if done != nil {
		<-done
	}
	return err
}

// readLoop reassembles messages: a 4-byte little-endian header, then the
// declared payload. Each complete message is handed to the receive callback.
func (t *serialTransport) readLoop(port serial.Port, done chan struct{}) {
	defer close(done)
	hdr := make([]byte, msgHeaderLen)
	for {
		if _, err := io.ReadFull(port, hdr); err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("uart: read loop ended", "err", err)
			}
			return
		}
		size := int(binary.LittleEndian.Uint16(hdr[2:]))
		msg := make([]byte, msgHeaderLen+size)
		copy(msg, hdr)
		if _, err := io.ReadFull(port, msg[msgHeaderLen:]); err != nil {
			slog.Warn("uart: short payload read", "err", err)
			return
		}
		t.mu.Lock()
		rx := t.rx
		t.mu.Unlock()
		if rx != nil {
			rx(msg)
		}
	}
}

func (t *serialTransport) Send(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locked {
		return ErrTxLocked
	}
	if t.port == nil {
		return errors.New("uart: not open")
	}
	if _, err := t.port.Write(p); err != nil {
		return fmt.Errorf("uart: write: %w", err)
	}
	return nil
}

func (t *serialTransport) Baud() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baud
}

func (t *serialTransport) SetBaud(rate int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		if err := t.port.SetMode(&serial.Mode{BaudRate: rate}); err != nil {
			return fmt.Errorf("uart: set baud %d: %w", rate, err)
		}
	}
	t.baud = rate
	slog.Info("uart: baud updated", "baud", rate)
	return nil
}

func (t *serialTransport) LockTx(lock bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locked = lock
}

func (t *serialTransport) OnReceive(fn func(p []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = fn
}
