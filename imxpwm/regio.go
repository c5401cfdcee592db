package imxpwm

/*
	regio.go: low-level register transport. Production access goes through
	an mmap of /dev/mem covering the peripheral's register block; tests
	substitute their own RegIO.
*/

import (
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// RegIO reads and writes 32-bit registers at byte offsets from a
// peripheral base address. Accesses are atomic, ordered and free of side
// effects beyond the addressed register. The relaxed forms skip the
// ordering guarantee and exist only for the time-critical sample-register
// sequence, where minimizing the interval between writes matters.
type RegIO interface {
	Read32(off uint32) uint32
	Write32(off, val uint32)
	Read32Relaxed(off uint32) uint32
	Write32Relaxed(off, val uint32)
	Close() error
}

// regBlockSize covers all registers of one PWM instance.
const regBlockSize = 0x18

const devMemPath = "/dev/mem"

var lockMemOnce sync.Once

type devMemRegIO struct {
	f      *os.File
	window mmap.MMap
	// offset of the register block within the mapped window, nonzero when
	// the physical base is not page-aligned
	delta int
}

// OpenRegIO maps the register block of a PWM instance at the given
// physical address through /dev/mem.
func OpenRegIO(physAddr uint64) (RegIO, error) {
	f, err := os.OpenFile(devMemPath, os.O_RDWR|os.O_SYNC, 0o660)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s (root required)", devMemPath)
	}

	pageSize := uint64(os.Getpagesize())
	alignedBase := physAddr &^ (pageSize - 1)
	delta := int(physAddr - alignedBase)

	length := delta + regBlockSize
	if rem := length % int(pageSize); rem != 0 {
		length += int(pageSize) - rem
	}

	window, err := mmap.MapRegion(f, length, mmap.RDWR, 0, int64(alignedBase))
	if err != nil {
		err = errors.Wrapf(err, "mapping PWM registers at %#x", physAddr)
		return nil, multierr.Append(err, f.Close())
	}

	// Keep the mapping (and everything else) resident so the sample
	// register write sequence cannot page-fault mid-way.
	lockMemOnce.Do(lockProcessMemory)

	return &devMemRegIO{f: f, window: window, delta: delta}, nil
}

func (d *devMemRegIO) reg(off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&d.window[d.delta+int(off)]))
}

func (d *devMemRegIO) Read32(off uint32) uint32 {
	return atomic.LoadUint32(d.reg(off))
}

func (d *devMemRegIO) Write32(off, val uint32) {
	atomic.StoreUint32(d.reg(off), val)
}

func (d *devMemRegIO) Read32Relaxed(off uint32) uint32 {
	return *d.reg(off)
}

func (d *devMemRegIO) Write32Relaxed(off, val uint32) {
	*d.reg(off) = val
}

func (d *devMemRegIO) Close() error {
	return multierr.Combine(d.window.Unmap(), d.f.Close())
}
