package controller

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/samstone86/apba-go/internal/hardware"
)

const (
	// MaxPartitionName caps partition names on the control surface.
	MaxPartitionName = 16

	// comparePage is how much of the device is compared against the
	// candidate image before deciding to erase.
	comparePage = 4096
)

// FlashPartition erases, compares and conditionally rewrites the named flash
// partition with the candidate image. The module is powered off for the
// duration so it cannot contend for the flash bus; its desired-on power
// state is restored on every exit path.
func (c *Controller) FlashPartition(partition string, image []byte) error {
	if partition == "" || len(partition) > MaxPartitionName || len(image) == 0 {
		return ErrInvalidInput
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	wasOn := c.DesiredOn()
	c.powerOff()
	c.flashOn(true)
	defer func() {
		c.flashOn(false)
		if wasOn {
			c.powerOn()
		}
	}()

	dev, err := c.openPartition(partition)
	if err != nil {
		return err
	}
	defer dev.Close()

	// If the on-device first page already matches the image, skip the
	// erase/write entirely. A failed comparison counts as different:
	// never let a read error block a re-flash.
	if partitionMatches(dev, image) {
		slog.Info("flash: firmware unchanged, skipping", "partition", partition)
		return nil
	}

	if err := dev.Erase(0, dev.Size()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEraseFailed, partition, err)
	}
	if _, err := dev.WriteAt(image, 0); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, partition, err)
	}
	slog.Info("flash: complete", "partition", partition, "size", len(image))
	return nil
}

// ErasePartition wipes the named flash partition under the same power and
// bus bracket as FlashPartition, without the compare/write steps.
func (c *Controller) ErasePartition(partition string) error {
	if partition == "" || len(partition) > MaxPartitionName {
		return ErrInvalidInput
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	wasOn := c.DesiredOn()
	c.powerOff()
	c.flashOn(true)
	defer func() {
		c.flashOn(false)
		if wasOn {
			c.powerOn()
		}
	}()

	dev, err := c.openPartition(partition)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.Erase(0, dev.Size()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEraseFailed, partition, err)
	}
	slog.Info("flash: erase complete", "partition", partition)
	return nil
}

// SetFlashEnable toggles the flash bus bracket directly, without any
// firmware operation. Exposed for manual bring-up through the control
// surface.
func (c *Controller) SetFlashEnable(on bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.flashOn(on)
}

// flashOn switches the flash electrical configuration and the shared flash
// transport. Caller holds opMu.
//
// On: select the flash pin configuration, run the flash-start sequence, and
// attach the flash transport so the host can reach the part. Off: reverse,
// always ending back in the default pin configuration.
func (c *Controller) flashOn(on bool) {
	if on {
		if c.hw.PinMux.HasActive() {
			if err := c.hw.PinMux.SelectActive(); err != nil {
				slog.Error("flash: pinmux active select failed", "err", err)
			}
		}
		c.runSeq(c.seqs.flashStart)
		if err := c.hw.FlashBus.Attach(); err != nil {
			slog.Warn("flash: transport attach failed", "err", err)
		} else {
			c.mu.Lock()
			c.flashPopulated = true
			c.mu.Unlock()
		}
	} else {
		c.mu.Lock()
		populated := c.flashPopulated
		c.flashPopulated = false
		c.mu.Unlock()
		if populated {
			c.hw.FlashBus.Detach()
		}
		c.runSeq(c.seqs.flashEnd)
		if err := c.hw.PinMux.SelectDefault(); err != nil {
			slog.Error("flash: pinmux default select failed", "err", err)
		}
	}
	c.publish()
}

// openPartition scans the bounded slot range for a present device with the
// requested name. Empty slots and absent media are skipped.
func (c *Controller) openPartition(partition string) (hardware.FlashDevice, error) {
	for slot := 0; slot < c.cfg.FlashSlots; slot++ {
		dev, err := c.hw.FlashReg.Open(slot)
		if err != nil {
			continue
		}
		if !dev.Present() || dev.Name() != partition {
			dev.Close()
			continue
		}
		slog.Debug("flash: device found", "partition", partition, "slot", slot, "size", dev.Size())
		return dev, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, partition)
}

// partitionMatches reports whether the first page of the device equals the
// first page of the image. Any read error or short read reports false.
func partitionMatches(dev hardware.FlashDevice, image []byte) bool {
	if len(image) < comparePage {
		return false
	}
	buf := make([]byte, comparePage)
	n, err := dev.ReadAt(buf, 0)
	if err != nil || n < comparePage {
		return false
	}
	return bytes.Equal(buf, image[:comparePage])
}
