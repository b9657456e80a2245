//go:build !linux

package hardware

import (
	"errors"

	"github.com/samstone86/apba-go/internal/config"
)

var errLinuxOnly = errors.New("hardware: real drivers require linux")

// NewGPIOPins is unavailable off-Linux; use --mock.
func NewGPIOPins(cfg *config.Config) (Pins, error) { return nil, errLinuxOnly }

// NewMTDRegistry is unavailable off-Linux; use --mock.
func NewMTDRegistry() FlashRegistry { return stubRegistry{} }

type stubRegistry struct{}

func (stubRegistry) Open(slot int) (FlashDevice, error) { return nil, errLinuxOnly }
