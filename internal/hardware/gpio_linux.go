//go:build linux

package hardware

import (
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/samstone86/apba-go/internal/config"
)

// gpioPins drives the APBA GPIO bank through periph.io.
type gpioPins struct {
	pins   []gpio.PinIO
	labels []string
}

// NewGPIOPins opens every configured pin. All pins must resolve cleanly or
// the whole bank fails; a partially configured bank must not be handed to
// the controller.
func NewGPIOPins(cfg *config.Config) (Pins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: host init failed: %w", err)
	}

	g := &gpioPins{}
	for _, p := range cfg.GPIOs {
		pin := gpioreg.ByName(p.Name)
		if pin == nil {
			return nil, fmt.Errorf("gpio: failed to open %s (%s)", p.Name, p.Label)
		}
		g.pins = append(g.pins, pin)
		g.labels = append(g.labels, p.Label)
		slog.Debug("gpio: configured pin", "name", p.Name, "label", p.Label)
	}
	return g, nil
}

func (g *gpioPins) Count() int { return len(g.pins) }

func (g *gpioPins) Set(i, value int) error {
	if i < 0 || i >= len(g.pins) {
		return fmt.Errorf("gpio: pin %d out of range", i)
	}
	level := gpio.Low
	if value != 0 {
		level = gpio.High
	}
	if err := g.pins[i].Out(level); err != nil {
		return fmt.Errorf("gpio: set %s: %w", g.labels[i], err)
	}
	return nil
}

func (g *gpioPins) Get(i int) (int, error) {
	if i < 0 || i >= len(g.pins) {
		return 0, fmt.Errorf("gpio: pin %d out of range", i)
	}
	if g.pins[i].Read() == gpio.High {
		return 1, nil
	}
	return 0, nil
}

// Watch configures pin i as a falling-edge input and runs fn on every edge
// from a dedicated goroutine. WaitForEdge uses a short timeout so the
// goroutine notices stop requests.
func (g *gpioPins) Watch(i int, fn func()) (func(), error) {
	if i < 0 || i >= len(g.pins) {
		return nil, fmt.Errorf("gpio: pin %d out of range", i)
	}
	pin := g.pins[i]
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("gpio: watch %s: %w", g.labels[i], err)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if pin.WaitForEdge(time.Second) {
				fn()
			}
		}
	}()
	return func() { close(stop) }, nil
}

func (g *gpioPins) Close() error {
	for _, p := range g.pins {
		p.Halt()
	}
	return nil
}
