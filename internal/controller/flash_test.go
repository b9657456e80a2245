package controller_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/samstone86/apba-go/internal/controller"
	"github.com/samstone86/apba-go/internal/hardware"
)

// testImage returns a deterministic n-byte firmware image.
func testImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i * 7)
	}
	return img
}

func TestFlashPartitionWritesImage(t *testing.T) {
	f := newFixture(t)
	dev := hardware.NewMockFlashDevice("boot", 64*1024)
	f.reg.Devices[1] = dev
	img := testImage(8 * 1024)

	if err := f.ctrl.FlashPartition("boot", img); err != nil {
		t.Fatalf("FlashPartition: %v", err)
	}

	if dev.EraseCalls != 1 {
		t.Errorf("erase calls = %d, want 1", dev.EraseCalls)
	}
	if dev.WriteCalls != 1 {
		t.Errorf("write calls = %d, want 1", dev.WriteCalls)
	}
	if !bytes.Equal(dev.Contents()[:len(img)], img) {
		t.Error("device contents do not match the image")
	}
	if dev.CloseCalls != 1 {
		t.Errorf("close calls = %d, want 1", dev.CloseCalls)
	}

	// The flash bus bracket must be fully released afterwards.
	if f.fbus.Attaches != 1 || f.fbus.Detaches != 1 {
		t.Errorf("bus attach/detach = %d/%d, want 1/1", f.fbus.Attaches, f.fbus.Detaches)
	}
	if f.fbus.Attached() {
		t.Error("flash bus still attached")
	}
	if states := f.mux.Selected(); len(states) == 0 || states[len(states)-1] != "default" {
		t.Errorf("pinmux did not end on default: %v", states)
	}
	if f.ctrl.FlashEnabled() {
		t.Error("flash still reported enabled")
	}
}

func TestFlashPartitionSkipsWhenUnchanged(t *testing.T) {
	f := newFixture(t)
	dev := hardware.NewMockFlashDevice("boot", 64*1024)
	img := testImage(8 * 1024)
	dev.Preload(img)
	f.reg.Devices[0] = dev

	if err := f.ctrl.FlashPartition("boot", img); err != nil {
		t.Fatalf("FlashPartition: %v", err)
	}
	if dev.EraseCalls != 0 || dev.WriteCalls != 0 {
		t.Errorf("erase/write = %d/%d on unchanged image, want 0/0",
			dev.EraseCalls, dev.WriteCalls)
	}
}

func TestFlashPartitionShortImageAlwaysWrites(t *testing.T) {
	f := newFixture(t)
	dev := hardware.NewMockFlashDevice("boot", 64*1024)
	img := testImage(100) // shorter than one compare page
	dev.Preload(img)
	f.reg.Devices[0] = dev

	if err := f.ctrl.FlashPartition("boot", img); err != nil {
		t.Fatalf("FlashPartition: %v", err)
	}
	if dev.EraseCalls != 1 || dev.WriteCalls != 1 {
		t.Errorf("erase/write = %d/%d, want 1/1", dev.EraseCalls, dev.WriteCalls)
	}
}

func TestFlashPartitionReadFailureStillWrites(t *testing.T) {
	f := newFixture(t)
	dev := hardware.NewMockFlashDevice("boot", 64*1024)
	dev.FailRead = true
	f.reg.Devices[0] = dev

	if err := f.ctrl.FlashPartition("boot", testImage(8*1024)); err != nil {
		t.Fatalf("FlashPartition: %v", err)
	}
	if dev.WriteCalls != 1 {
		t.Errorf("write calls = %d, want 1", dev.WriteCalls)
	}
}

func TestFlashPartitionRestoresPower(t *testing.T) {
	f := newFixture(t)
	dev := hardware.NewMockFlashDevice("boot", 64*1024)
	f.reg.Devices[0] = dev
	if err := f.ctrl.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	if err := f.ctrl.FlashPartition("boot", testImage(8*1024)); err != nil {
		t.Fatalf("FlashPartition: %v", err)
	}

	if !f.ctrl.DesiredOn() {
		t.Error("DesiredOn lost across flash")
	}
	if !f.tr.IsOpen() {
		t.Error("transport not reopened after flash")
	}
}

func TestFlashPartitionRestoresPowerOnFailure(t *testing.T) {
	f := newFixture(t)
	dev := hardware.NewMockFlashDevice("boot", 64*1024)
	dev.FailErase = true
	f.reg.Devices[0] = dev
	if err := f.ctrl.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	err := f.ctrl.FlashPartition("boot", testImage(8*1024))
	if !errors.Is(err, controller.ErrEraseFailed) {
		t.Fatalf("FlashPartition = %v, want ErrEraseFailed", err)
	}

	if !f.ctrl.DesiredOn() {
		t.Error("DesiredOn lost after failed flash")
	}
	if !f.tr.IsOpen() {
		t.Error("transport not reopened after failed flash")
	}
	if f.fbus.Attached() {
		t.Error("flash bus left attached after failed flash")
	}
}

func TestFlashPartitionWriteFailure(t *testing.T) {
	f := newFixture(t)
	dev := hardware.NewMockFlashDevice("boot", 64*1024)
	dev.FailWrite = true
	f.reg.Devices[0] = dev

	err := f.ctrl.FlashPartition("boot", testImage(8*1024))
	if !errors.Is(err, controller.ErrWriteFailed) {
		t.Errorf("FlashPartition = %v, want ErrWriteFailed", err)
	}
}

func TestFlashPartitionValidation(t *testing.T) {
	f := newFixture(t)
	img := testImage(16)

	tests := []struct {
		name      string
		partition string
		image     []byte
	}{
		{"empty name", "", img},
		{"name too long", strings.Repeat("x", controller.MaxPartitionName+1), img},
		{"empty image", "boot", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ctrl.FlashPartition(tt.partition, tt.image)
			if !errors.Is(err, controller.ErrInvalidInput) {
				t.Errorf("FlashPartition = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestFlashPartitionNotFound(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.FlashPartition("boot", testImage(16))
	if !errors.Is(err, controller.ErrDeviceNotFound) {
		t.Errorf("FlashPartition = %v, want ErrDeviceNotFound", err)
	}
}

func TestFlashPartitionSkipsMismatchedDevices(t *testing.T) {
	f := newFixture(t)
	other := hardware.NewMockFlashDevice("other", 4*1024)
	absent := hardware.NewMockFlashDevice("boot", 4*1024)
	absent.SetAbsent()
	target := hardware.NewMockFlashDevice("boot", 64*1024)
	f.reg.Devices[0] = other
	f.reg.Devices[1] = absent
	f.reg.Devices[2] = target

	if err := f.ctrl.FlashPartition("boot", testImage(8*1024)); err != nil {
		t.Fatalf("FlashPartition: %v", err)
	}
	if target.WriteCalls != 1 {
		t.Errorf("target write calls = %d, want 1", target.WriteCalls)
	}
	// Skipped devices are closed again during the scan.
	if other.CloseCalls != 1 || absent.CloseCalls != 1 {
		t.Errorf("skipped device closes = %d/%d, want 1/1",
			other.CloseCalls, absent.CloseCalls)
	}
}

func TestErasePartition(t *testing.T) {
	f := newFixture(t)
	dev := hardware.NewMockFlashDevice("boot", 4*1024)
	dev.Preload(testImage(4 * 1024))
	f.reg.Devices[0] = dev

	if err := f.ctrl.ErasePartition("boot"); err != nil {
		t.Fatalf("ErasePartition: %v", err)
	}
	if dev.EraseCalls != 1 || dev.WriteCalls != 0 {
		t.Errorf("erase/write = %d/%d, want 1/0", dev.EraseCalls, dev.WriteCalls)
	}
	for i, b := range dev.Contents() {
		if b != 0xFF {
			t.Fatalf("byte %d = %#x after erase, want 0xFF", i, b)
		}
	}
}

func TestErasePartitionValidation(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.ErasePartition(""); !errors.Is(err, controller.ErrInvalidInput) {
		t.Errorf("ErasePartition = %v, want ErrInvalidInput", err)
	}
}

func TestSetFlashEnable(t *testing.T) {
	f := newFixture(t)

	f.ctrl.SetFlashEnable(true)
	if !f.ctrl.FlashEnabled() {
		t.Error("FlashEnabled = false after enable")
	}
	if !f.fbus.Attached() {
		t.Error("flash bus not attached")
	}
	if states := f.mux.Selected(); len(states) == 0 || states[len(states)-1] != "active" {
		t.Errorf("pinmux states = %v, want active last", states)
	}

	f.ctrl.SetFlashEnable(false)
	if f.ctrl.FlashEnabled() {
		t.Error("FlashEnabled = true after disable")
	}
	if f.fbus.Attached() {
		t.Error("flash bus still attached")
	}
	if states := f.mux.Selected(); states[len(states)-1] != "default" {
		t.Errorf("pinmux states = %v, want default last", states)
	}
}

func TestSetFlashEnableAttachFailure(t *testing.T) {
	f := newFixture(t)
	f.fbus.FailAttach = true

	f.ctrl.SetFlashEnable(true)
	if f.ctrl.FlashEnabled() {
		t.Error("FlashEnabled = true despite attach failure")
	}
}
