// Package config loads the apbad hardware configuration: GPIO assignments,
// power sequences, UART and flash settings. The configuration mirrors what
// the board's device tree would carry and is treated as immutable once
// loaded.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const configFileName = "apba.json"

// MaxGPIOs is the size of the controller's GPIO bank.
const MaxGPIOs = 8

// Pin describes one GPIO in the bank.
type Pin struct {
	Name  string `json:"name"`  // pin name understood by the GPIO driver, e.g. "GPIO17"
	Label string `json:"label"` // role label, e.g. "apba_1p8_en"
}

// Config is the full apbad configuration.
type Config struct {
	// GPIO bank and the index of the wake-interrupt line within it.
	GPIOs    []Pin `json:"gpios"`
	IntIndex int   `json:"int_index"`

	// Pin sequences as flat (index, value, delay-ms) word triples.
	EnableSeq       []uint32 `json:"enable_seq"`
	DisableSeq      []uint32 `json:"disable_seq"`
	WakeAssertSeq   []uint32 `json:"wake_assert_seq"`
	WakeDeassertSeq []uint32 `json:"wake_deassert_seq"`
	FlashStartSeq   []uint32 `json:"flash_start_seq"`
	FlashEndSeq     []uint32 `json:"flash_end_seq"`

	// Module reference clock. Empty path means no controllable clock.
	ClockPath string `json:"clock_path"`

	// Pinmux select attribute and the named electrical states. An empty
	// path yields a fixed pin configuration; an empty active state means
	// the board has no dedicated flash configuration.
	PinMuxPath    string `json:"pinmux_path"`
	PinMuxDefault string `json:"pinmux_default"`
	PinMuxActive  string `json:"pinmux_active"`

	// Shared SPI flash transport bind point (kernel driver dir + device).
	FlashBusDriver string `json:"flash_bus_driver"`
	FlashBusDevice string `json:"flash_bus_device"`

	// UART link to the APBA control processor.
	UARTDevice string `json:"uart_device"`
	UARTBaud   int    `json:"uart_baud"`

	// Flash device scan bound and firmware image directory.
	FlashSlots  int    `json:"flash_slots"`
	FirmwareDir string `json:"firmware_dir"`
}

// Default returns the configuration used when no config file exists. The pin
// set matches the reference carrier board layout.
func Default() *Config {
	return &Config{
		GPIOs: []Pin{
			{Name: "GPIO16", Label: "apba_1p1_en"},
			{Name: "GPIO17", Label: "apba_1p8_en"},
			{Name: "GPIO22", Label: "apba_boot_en"},
			{Name: "GPIO23", Label: "apba_reset_n"},
			{Name: "GPIO24", Label: "apba_wake_n"},
			{Name: "GPIO25", Label: "apba_int_n"},
		},
		IntIndex: 5,
		// Bring rails up LSB first with settle time, release reset last.
		EnableSeq:       []uint32{0, 1, 1, 1, 1, 2, 3, 1, 10},
		DisableSeq:      []uint32{3, 0, 0, 1, 0, 1, 0, 0, 1},
		WakeAssertSeq:   []uint32{4, 0, 0},
		WakeDeassertSeq: []uint32{4, 1, 0},
		FlashStartSeq:   []uint32{2, 1, 1, 3, 1, 10},
		FlashEndSeq:     []uint32{2, 0, 0, 3, 0, 1},
		PinMuxDefault:   "default",
		PinMuxActive:    "spi_active",
		UARTDevice:      "/dev/ttyAMA1",
		UARTBaud:        115200,
		FlashSlots:      16,
		FirmwareDir:     "/lib/firmware",
	}
}

// Load reads the configuration from dir. A missing file yields Default; a
// present but invalid file is an error (bring-up must fail closed on a
// malformed hardware description).
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("config: no config file, using defaults", "path", path)
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural invariants that the controller depends on.
// Sequence contents are validated separately when they are parsed.
func (c *Config) Validate() error {
	if len(c.GPIOs) == 0 {
		return errors.New("config: no gpios defined")
	}
	if len(c.GPIOs) > MaxGPIOs {
		return fmt.Errorf("config: gpio count %d exceeds %d", len(c.GPIOs), MaxGPIOs)
	}
	for i, p := range c.GPIOs {
		if p.Name == "" || p.Label == "" {
			return fmt.Errorf("config: gpio %d missing name or label", i)
		}
	}
	if c.IntIndex < 0 || c.IntIndex >= len(c.GPIOs) {
		return fmt.Errorf("config: int_index %d out of range", c.IntIndex)
	}
	if c.UARTBaud <= 0 {
		return fmt.Errorf("config: invalid uart_baud %d", c.UARTBaud)
	}
	if c.FlashSlots <= 0 {
		return fmt.Errorf("config: invalid flash_slots %d", c.FlashSlots)
	}
	return nil
}
