package device

import (
	"fmt"
	"sync"
	"unsafe"
)

// Host is the pure-Go Device. Kernels are Go functions registered with
// RegisterHostKernel and selected by entry name; integer #define constants
// in the kernel source are scanned and handed to the builder. Device-to-host
// copies issued through CopyToHostAsync really do run concurrently with
// later launches, so the solver's overlap contract is exercised even
// without an accelerator.
type Host struct {
	mu      sync.Mutex
	pending []chan struct{}
}

// NewHostDevice creates the host reference device.
func NewHostDevice() *Host { return &Host{} }

func (d *Host) Mode() string { return "Host" }

func (d *Host) Malloc(bytes int64, src unsafe.Pointer) Memory {
	m := &HostMemory{buf: make([]byte, bytes)}
	if src != nil {
		copy(m.buf, unsafe.Slice((*byte)(src), bytes))
	}
	return m
}

func (d *Host) BuildKernel(source, entry string) (Kernel, error) {
	b, ok := lookupHostKernel(entry)
	if !ok {
		return nil, fmt.Errorf("no host kernel registered for %s", entry)
	}
	return &hostKernel{fn: b(scanDefines(source))}, nil
}

func (d *Host) CopyToHostAsync(dst unsafe.Pointer, src Memory, bytes int64) {
	m := src.(*HostMemory)
	out := unsafe.Slice((*byte)(dst), bytes)
	done := make(chan struct{})
	d.mu.Lock()
	d.pending = append(d.pending, done)
	d.mu.Unlock()
	go func() {
		copy(out, m.buf[:bytes])
		close(done)
	}()
}

// Tag snapshots the transfers in flight at this point in the stream.
func (d *Host) Tag() StreamTag {
	d.mu.Lock()
	tag := make([]chan struct{}, len(d.pending))
	copy(tag, d.pending)
	d.mu.Unlock()
	return hostTag(tag)
}

func (d *Host) WaitFor(tag StreamTag) {
	for _, done := range tag.(hostTag) {
		<-done
	}
}

func (d *Host) Finish() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, done := range pending {
		<-done
	}
}

func (d *Host) Free() { d.Finish() }

type hostTag []chan struct{}

// HostMemory is a host-backend buffer. Host kernels view it through
// Float64s or Int32s.
type HostMemory struct {
	buf []byte
}

func (m *HostMemory) CopyFrom(src unsafe.Pointer, bytes int64) {
	copy(m.buf[:bytes], unsafe.Slice((*byte)(src), bytes))
}

func (m *HostMemory) CopyTo(dst unsafe.Pointer, bytes int64) {
	copy(unsafe.Slice((*byte)(dst), bytes), m.buf[:bytes])
}

func (m *HostMemory) Free() { m.buf = nil }

// Float64s views the buffer as float64 values.
func (m *HostMemory) Float64s() []float64 {
	if len(m.buf) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&m.buf[0])), len(m.buf)/8)
}

// Int32s views the buffer as int32 values.
func (m *HostMemory) Int32s() []int32 {
	if len(m.buf) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&m.buf[0])), len(m.buf)/4)
}

type hostKernel struct {
	fn HostFunc
}

func (k *hostKernel) Run(args ...interface{}) error { return k.fn(args...) }
func (k *hostKernel) Free()                         {}
