// Package device is the dispatch surface the solver core runs on: build a
// kernel from source, launch it, move buffers, and synchronize on stream
// tags. Two backends implement it — OCCA (gocca) for accelerator and
// threaded CPU execution, and a pure-Go host backend used for reference
// runs and tests.
//
// Argument convention shared by both backends: element counts and other
// integer kernel parameters are passed as int32, floating-point scalars as
// float64, and buffers as Memory. Launches with a zero work count must be
// skipped by the caller; launches over disjoint memory regions need no
// synchronization between them.
package device

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unsafe"
)

// Memory is a device-resident buffer. CopyFrom fills it from host memory,
// CopyTo drains it to host memory. Both are blocking.
type Memory interface {
	CopyFrom(src unsafe.Pointer, bytes int64)
	CopyTo(dst unsafe.Pointer, bytes int64)
	Free()
}

// Kernel is a compiled compute kernel.
type Kernel interface {
	Run(args ...interface{}) error
	Free()
}

// StreamTag marks a point in the device's execution stream. A WaitFor on a
// tag guarantees every operation issued before the Tag call has completed.
type StreamTag interface{}

// Device compiles and executes kernels and manages buffers and stream
// synchronization.
type Device interface {
	Mode() string
	Malloc(bytes int64, src unsafe.Pointer) Memory
	BuildKernel(source, entry string) (Kernel, error)

	// CopyToHostAsync begins a device-to-host transfer and returns without
	// waiting for it. The transfer is complete only after WaitFor on a tag
	// taken after this call, or after Finish.
	CopyToHostAsync(dst unsafe.Pointer, src Memory, bytes int64)

	Tag() StreamTag
	WaitFor(tag StreamTag)
	Finish()
	Free()
}

// MallocFloat64 allocates a device buffer holding a copy of v.
func MallocFloat64(dev Device, v []float64) Memory {
	if len(v) == 0 {
		panic("device: MallocFloat64 on empty slice")
	}
	return dev.Malloc(int64(len(v)*8), unsafe.Pointer(&v[0]))
}

// MallocInt32 allocates a device buffer holding a copy of v.
func MallocInt32(dev Device, v []int32) Memory {
	if len(v) == 0 {
		panic("device: MallocInt32 on empty slice")
	}
	return dev.Malloc(int64(len(v)*4), unsafe.Pointer(&v[0]))
}

// ReadFloat64 copies n float64 values from device memory to a new slice.
func ReadFloat64(mem Memory, n int) []float64 {
	out := make([]float64, n)
	mem.CopyTo(unsafe.Pointer(&out[0]), int64(n*8))
	return out
}

// WriteFloat64 copies v into device memory.
func WriteFloat64(mem Memory, v []float64) {
	mem.CopyFrom(unsafe.Pointer(&v[0]), int64(len(v)*8))
}

// Defines holds the integer #define constants scanned from a kernel source
// header. The host backend hands them to registered kernel builders in
// place of compile-time constant folding.
type Defines map[string]int

// HostFunc executes one kernel launch on the host backend.
type HostFunc func(args ...interface{}) error

// HostBuilder specializes a host kernel for the defines found in the
// kernel source it was "compiled" from.
type HostBuilder func(defs Defines) HostFunc

var (
	hostRegistry   = map[string]HostBuilder{}
	hostRegistryMu sync.Mutex
)

// RegisterHostKernel registers the host implementation for a kernel entry
// point. Packages providing kernels register from init so that a host
// Device can build them by name.
func RegisterHostKernel(entry string, b HostBuilder) {
	hostRegistryMu.Lock()
	defer hostRegistryMu.Unlock()
	if _, dup := hostRegistry[entry]; dup {
		panic(fmt.Sprintf("device: duplicate host kernel %q", entry))
	}
	hostRegistry[entry] = b
}

func lookupHostKernel(entry string) (HostBuilder, bool) {
	hostRegistryMu.Lock()
	defer hostRegistryMu.Unlock()
	b, ok := hostRegistry[entry]
	return b, ok
}

// scanDefines extracts integer "#define name value" lines from a kernel
// source header.
func scanDefines(source string) Defines {
	defs := Defines{}
	for _, line := range strings.Split(source, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) != 3 || fields[0] != "#define" {
			continue
		}
		if v, err := strconv.Atoi(fields[2]); err == nil {
			defs[fields[1]] = v
		}
	}
	return defs
}
