// Package linalg provides the small set of device vector operations the
// solver iterates on: set, axpy, and globally reduced inner products.
// Reductions run as block partial sums on the device, are summed on the
// host, then sum-reduced across ranks; float64 is used throughout.
package linalg

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/notargets/hexbone/comm"
	"github.com/notargets/hexbone/device"
)

// DefaultBlockSize matches the reduction kernels' work-group size.
const DefaultBlockSize = 256

// LinAlg owns the compiled vector kernels and the reduction scratch for
// one device. Scratch is allocated once; no operation allocates.
type LinAlg struct {
	dev       device.Device
	blockSize int

	setKernel       device.Kernel
	axpyKernel      device.Kernel
	innerProdKernel device.Kernel

	oPartial    device.Memory
	hostPartial []float64
}

// New compiles the vector kernels for dev. blockSize must be a power of
// two; pass DefaultBlockSize unless the backend prefers otherwise.
func New(dev device.Device, blockSize int) (*LinAlg, error) {
	if blockSize <= 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("linalg: block size %d not a power of two", blockSize)
	}
	la := &LinAlg{
		dev:         dev,
		blockSize:   blockSize,
		hostPartial: make([]float64, blockSize),
	}
	la.oPartial = dev.Malloc(int64(blockSize*8), nil)

	var err error
	if la.setKernel, err = dev.BuildKernel(withBlockSize(setSource, blockSize), "vecSet"); err != nil {
		return nil, err
	}
	if la.axpyKernel, err = dev.BuildKernel(withBlockSize(axpySource, blockSize), "vecAxpy"); err != nil {
		return nil, err
	}
	if la.innerProdKernel, err = dev.BuildKernel(withBlockSize(innerProdSource, blockSize), "vecInnerProd"); err != nil {
		return nil, err
	}
	return la, nil
}

func withBlockSize(source string, blockSize int) string {
	return fmt.Sprintf("#define p_blockSize %d\n%s", blockSize, source)
}

// BlockSize reports the reduction work-group size the kernels were
// compiled with.
func (la *LinAlg) BlockSize() int { return la.blockSize }

// Nblocks sizes a reduction launch, capped at blockSize partial entries.
func (la *LinAlg) Nblocks(n int) int {
	nb := (n + la.blockSize - 1) / la.blockSize
	if nb > la.blockSize {
		nb = la.blockSize
	}
	if nb < 1 {
		nb = 1
	}
	return nb
}

// Set fills v[0:n] with val.
func (la *LinAlg) Set(n int, val float64, v device.Memory) error {
	if n == 0 {
		return nil
	}
	return la.setKernel.Run(int32(n), val, v)
}

// Axpy computes y = alpha*x + beta*y over n entries.
func (la *LinAlg) Axpy(n int, alpha float64, x device.Memory, beta float64, y device.Memory) error {
	if n == 0 {
		return nil
	}
	return la.axpyKernel.Run(int32(n), alpha, x, beta, y)
}

// InnerProd computes the global inner product of x and y over the n
// rank-local owned entries, reduced across all ranks of c.
func (la *LinAlg) InnerProd(n int, x, y device.Memory, c comm.Comm) (float64, error) {
	local := 0.0
	if n > 0 {
		nblocks := la.Nblocks(n)
		if err := la.innerProdKernel.Run(int32(n), int32(nblocks), x, y, la.oPartial); err != nil {
			return 0, err
		}
		la.dev.Finish()
		la.oPartial.CopyTo(unsafe.Pointer(&la.hostPartial[0]), int64(nblocks*8))
		for _, p := range la.hostPartial[:nblocks] {
			local += p
		}
	}
	return comm.AllReduceScalar(c, local)
}

// Norm2 returns the global 2-norm of x over the n rank-local owned
// entries.
func (la *LinAlg) Norm2(n int, x device.Memory, c comm.Comm) (float64, error) {
	dot, err := la.InnerProd(n, x, x, c)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(dot), nil
}

// Free releases kernels and scratch.
func (la *LinAlg) Free() {
	la.setKernel.Free()
	la.axpyKernel.Free()
	la.innerProdKernel.Free()
	la.oPartial.Free()
}
