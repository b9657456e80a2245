//go:build linux

package hardware

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// memErase is the MTD MEMERASE ioctl request (_IOW('M', 2, erase_info_user)).
const memErase = 0x40084D02

// eraseInfoUser mirrors struct erase_info_user from <mtd/mtd-abi.h>.
type eraseInfoUser struct {
	Start  uint32
	Length uint32
}

// mtdRegistry enumerates MTD partitions by char-device number.
type mtdRegistry struct{}

// NewMTDRegistry returns a FlashRegistry over the kernel's /dev/mtdN devices.
func NewMTDRegistry() FlashRegistry { return mtdRegistry{} }

func sysfsAttr(slot int, attr string) (string, error) {
	b, err := os.ReadFile(fmt.Sprintf("/sys/class/mtd/mtd%d/%s", slot, attr))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (mtdRegistry) Open(slot int) (FlashDevice, error) {
	name, err := sysfsAttr(slot, "name")
	if err != nil {
		return nil, fmt.Errorf("mtd: no device in slot %d: %w", slot, err)
	}
	typ, err := sysfsAttr(slot, "type")
	if err != nil {
		return nil, fmt.Errorf("mtd: slot %d type: %w", slot, err)
	}
	sizeStr, err := sysfsAttr(slot, "size")
	if err != nil {
		return nil, fmt.Errorf("mtd: slot %d size: %w", slot, err)
	}
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("mtd: slot %d size %q: %w", slot, sizeStr, err)
	}

	f, err := os.OpenFile(fmt.Sprintf("/dev/mtd%d", slot), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mtd: open slot %d: %w", slot, err)
	}
	return &mtdDevice{f: f, name: name, typ: typ, size: size}, nil
}

// mtdDevice is one open MTD partition.
type mtdDevice struct {
	f    *os.File
	name string
	typ  string
	size int64
}

func (d *mtdDevice) Name() string  { return d.name }
func (d *mtdDevice) Size() int64   { return d.size }
func (d *mtdDevice) Present() bool { return d.typ != "absent" }

func (d *mtdDevice) Erase(off, length int64) error {
	ei := eraseInfoUser{Start: uint32(off), Length: uint32(length)}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), memErase,
		uintptr(unsafe.Pointer(&ei)))
	if errno != 0 {
		return fmt.Errorf("mtd: erase %s [%d+%d]: %w", d.name, off, length, errno)
	}
	return nil
}

func (d *mtdDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *mtdDevice) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

func (d *mtdDevice) Close() error { return d.f.Close() }
