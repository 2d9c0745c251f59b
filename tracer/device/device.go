// Package device implements a compute device on top of a pool of CPU
// lanes. Kernels operate on named buffers and are dispatched over 1D or 2D
// ranges that are split into workgroups.
package device

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/fzbRun/Bidirectional-Instant-Radiosity/log"
)

// Buffer access flags.
type MemFlags uint8

const (
	MemReadWrite MemFlags = 1 << iota

	// Read-only buffers are written once when they are allocated.
	MemReadOnly

	MemWriteOnly
)

func (f MemFlags) String() string {
	switch f {
	case MemReadWrite:
		return "rw"
	case MemReadOnly:
		return "ro"
	case MemWriteOnly:
		return "wo"
	}
	return "unknown"
}

var (
	ErrReadOnlyBuffer     = errors.New("device: buffer is read-only")
	ErrBufferNotAllocated = errors.New("device: buffer not allocated")
	ErrTypeMismatch       = errors.New("device: buffer element type mismatch")
	ErrInvalidWorkSize    = errors.New("device: invalid work size")
)

// A compute device.
type Device struct {
	Name string

	logger log.Logger
	lanes  int

	mutex   sync.Mutex
	buffers map[string]*Buffer
}

// Create a device with the given number of lanes. If lanes is <= 0 then one
// lane per available CPU is used.
func NewDevice(name string, lanes int) *Device {
	if lanes <= 0 {
		lanes = runtime.NumCPU()
	}
	return &Device{
		Name:    name,
		logger:  log.New(fmt.Sprintf("device (%s)", name)),
		lanes:   lanes,
		buffers: make(map[string]*Buffer),
	}
}

// Implements Stringer.
func (d *Device) String() string {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	names := make([]string, 0, len(d.buffers))
	for name := range d.buffers {
		names = append(names, name)
	}
	sort.Strings(names)

	return fmt.Sprintf("Name: %s\nLanes: %d\nBuffers: %s", d.Name, d.lanes, strings.Join(names, ", "))
}

// Get the number of lanes.
func (d *Device) Lanes() int {
	return d.lanes
}

// Get a named buffer, creating it if it does not exist.
func (d *Device) Buffer(name string) *Buffer {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if buf, exists := d.buffers[name]; exists {
		return buf
	}

	buf := &Buffer{
		device: d,
		name:   name,
	}
	d.buffers[name] = buf
	return buf
}

// Create a kernel that invokes fn for every work item of a dispatch.
func (d *Device) Kernel(name string, fn KernelFunc) *Kernel {
	return &Kernel{
		device: d,
		name:   name,
		fn:     fn,
	}
}

// Release all buffers.
func (d *Device) Close() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	for _, buf := range d.buffers {
		buf.Release()
	}
	d.buffers = make(map[string]*Buffer)
}
