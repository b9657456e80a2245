// Command apbad is the APBA companion-module control daemon. It owns the
// module's power sequencing, firmware flashing, and the binary UART control
// protocol, and exposes the control surface over HTTP.
// Run with --mock to use simulated hardware (no GPIO/UART/flash required).
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/samstone86/apba-go/internal/api"
	"github.com/samstone86/apba-go/internal/config"
	"github.com/samstone86/apba-go/internal/controller"
	"github.com/samstone86/apba-go/internal/events"
	"github.com/samstone86/apba-go/internal/firmware"
	"github.com/samstone86/apba-go/internal/hardware"
	"github.com/samstone86/apba-go/internal/zeroconf"
)

func main() {
	var (
		mock   = flag.Bool("mock", false, "use mock hardware (no GPIO/UART/flash required)")
		addr   = flag.String("addr", ":8090", "HTTP listen address")
		cfgDir = flag.String("config-dir", "", "config directory (default: ~/.config/apbad)")
		debug  = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Resolve config directory
	if *cfgDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("cannot determine home directory", "err", err)
			os.Exit(1)
		}
		*cfgDir = filepath.Join(home, ".config", "apbad")
	}

	cfg, err := config.Load(*cfgDir)
	if err != nil {
		slog.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Hardware collaborators
	var (
		pins     hardware.Pins
		clock    hardware.Clock
		mux      hardware.PinMux
		flashReg hardware.FlashRegistry
		flashBus hardware.FlashBus
		slave    hardware.SlaveControl
		tr       hardware.Transport
	)
	if *mock {
		slog.Info("using mock hardware")
		pins = hardware.NewMockPins(len(cfg.GPIOs))
		clock = &hardware.MockClock{}
		mux = &hardware.MockPinMux{Active: true}
		reg := hardware.NewMockFlashRegistry()
		reg.Devices[0] = hardware.NewMockFlashDevice(controller.FirmwarePartition, 2<<20)
		flashReg = reg
		flashBus = &hardware.MockFlashBus{}
		slave = &hardware.MockSlaveControl{}
		tr = hardware.NewMockTransport(cfg.UARTBaud)
	} else {
		slog.Info("using real hardware",
			"uart", cfg.UARTDevice, "gpios", len(cfg.GPIOs))
		pins, err = hardware.NewGPIOPins(cfg)
		if err != nil {
			slog.Error("gpio setup failed", "err", err)
			os.Exit(1)
		}
		clock = hardware.NewClock(cfg.ClockPath)
		mux = hardware.NewFilePinMux(cfg.PinMuxPath, cfg.PinMuxDefault, cfg.PinMuxActive)
		flashReg = hardware.NewMTDRegistry()
		flashBus = hardware.NewSysfsFlashBus(cfg.FlashBusDriver, cfg.FlashBusDevice)
		slave = hardware.NewLogSlaveControl()
		tr = hardware.NewSerialTransport(cfg.UARTDevice, cfg.UARTBaud)
	}

	bus := events.NewBus()
	fwLoader := firmware.NewLoader(cfg.FirmwareDir)

	// ctrlRef lets the PM wake callback reach the controller; it is set
	// right after controller creation and wake events only fire once the
	// module has been enabled.
	var ctrlRef *controller.Controller
	pm := hardware.NewUartPM(func(assert bool) {
		if ctrlRef != nil {
			ctrlRef.WakeAssert(assert)
		}
	})

	ctrl, err := controller.New(cfg, controller.Deps{
		Pins:     pins,
		Clock:    clock,
		PinMux:   mux,
		FlashReg: flashReg,
		FlashBus: flashBus,
		Slave:    slave,
		PM:       pm,
		Bus:      bus,
		Firmware: fwLoader,
		DetectGate: func() {
			slog.Info("initial firmware handled, downstream detection released")
		},
	})
	if err != nil {
		slog.Error("controller initialization failed", "err", err)
		os.Exit(1)
	}
	ctrlRef = ctrl
	ctrl.AttachTransport(tr)

	// Zeroconf mDNS registration
	hostname, _ := os.Hostname()
	port := 8090
	if parts := strings.SplitN(*addr, ":", 2); len(parts) == 2 && parts[1] != "" {
		if p, err := strconv.Atoi(parts[1]); err == nil {
			port = p
		}
	}
	zc := zeroconf.New(hostname, port)
	go func() {
		if err := zc.Start(ctx); err != nil {
			slog.Warn("zeroconf failed", "err", err)
		}
	}()

	// HTTP control surface
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.NewRouter(ctrl, fwLoader, bus),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("apbad listening", "addr", *addr, "mock", *mock, "config", *cfgDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	ctrl.Close()
	if err := pins.Close(); err != nil {
		slog.Warn("gpio release error", "err", err)
	}

	slog.Info("shutdown complete")
}
