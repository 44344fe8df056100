// Package solver implements the distributed Conjugate Gradient iteration
// that drives repeated matrix-free operator applications to convergence.
// The per-iteration hot path fuses the residual update with a block
// reduction of the new residual norm, overlaps the device-to-host copy of
// the partial sum with the independent solution update, and only then
// joins the stream and performs the global reduction — device time and
// transfer time are hidden behind each other while the arithmetic result
// stays identical.
package solver

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/notargets/hexbone/comm"
	"github.com/notargets/hexbone/device"
	"github.com/notargets/hexbone/linalg"
)

// Operator is a matrix-vector product over device fields: out = A*in.
// The solver is polymorphic over this single capability.
type Operator interface {
	Operator(in, out device.Memory) error
}

// Config sizes a CG instance. N is the rank-local owned length entering
// reductions; Ntotal = N plus halo slots is the full vector length.
type Config struct {
	N      int
	Ntotal int

	Verbose bool
	Logger  zerolog.Logger
}

// Result reports a solve. Reaching the iteration cap is not an error and
// does not alter the numeric trajectory; it is observable only here.
type Result struct {
	Iterations int
	Converged  bool
	RDotR      float64 // final residual norm squared
}

// CG holds the iteration work vectors. p, Ap, and the reduction scalar
// are allocated once at construction and reused every iteration; nothing
// allocates inside the loop.
type CG struct {
	dev device.Device
	la  *linalg.LinAlg
	c   comm.Comm
	cfg Config
	log zerolog.Logger

	oP        device.Memory
	oAp       device.Memory
	oTmpRdotr device.Memory
	tmpRdotr  []float64 // pinned host landing slot for the partial sum

	updateKernel device.Kernel
}

// NewCG allocates the solver state on dev. la must belong to the same
// device.
func NewCG(dev device.Device, la *linalg.LinAlg, c comm.Comm, cfg Config) (*CG, error) {
	if cfg.N < 0 || cfg.Ntotal < cfg.N {
		return nil, fmt.Errorf("solver: invalid lengths N=%d Ntotal=%d", cfg.N, cfg.Ntotal)
	}
	log := cfg.Logger
	if !cfg.Verbose {
		log = zerolog.Nop()
	}
	cg := &CG{
		dev:      dev,
		la:       la,
		c:        c,
		cfg:      cfg,
		log:      log,
		tmpRdotr: make([]float64, 1),
	}

	vecBytes := int64(cfg.Ntotal * 8)
	if vecBytes == 0 {
		vecBytes = 8
	}
	cg.oP = dev.Malloc(vecBytes, nil)
	cg.oAp = dev.Malloc(vecBytes, nil)
	cg.oTmpRdotr = dev.Malloc(8, nil)
	if err := cg.la.Set(cfg.Ntotal, 0, cg.oP); err != nil {
		return nil, err
	}
	if err := cg.la.Set(cfg.Ntotal, 0, cg.oAp); err != nil {
		return nil, err
	}

	source := fmt.Sprintf("#define p_blockSize %d\n%s", la.BlockSize(), updateCGSource)
	kernel, err := dev.BuildKernel(source, "updateCGFused")
	if err != nil {
		return nil, err
	}
	cg.updateKernel = kernel
	return cg, nil
}

// Solve runs CG on A*x = b to relative tolerance tol, where r holds b on
// entry. x and r are caller-owned device vectors of length Ntotal,
// mutated in place; on return x holds the approximate solution and r the
// final residual. The iteration exits on convergence or after maxit
// iterations, whichever comes first; maxit = 0 performs no iterations
// and leaves x untouched.
func (cg *CG) Solve(op Operator, x, r device.Memory, tol float64, maxit int) (Result, error) {
	n := cg.cfg.N
	ntotal := cg.cfg.Ntotal
	rank := cg.c.Rank()

	var rdotr1, rdotr2, alpha, beta, pAp float64

	// r <- b - A*x
	if err := op.Operator(x, cg.oAp); err != nil {
		return Result{}, err
	}
	if err := cg.la.Axpy(ntotal, -1, cg.oAp, 1, r); err != nil {
		return Result{}, err
	}

	rnorm, err := cg.la.Norm2(n, r, cg.c)
	if err != nil {
		return Result{}, err
	}
	rdotr := rnorm * rnorm

	// Absolute floor guards the all-zero initial residual.
	tolSq := tol * tol
	TOL := math.Max(tolSq*rdotr, tolSq)

	if rank == 0 {
		cg.log.Info().Float64("rnorm", math.Sqrt(rdotr)).Msg("CG: initial residual")
	}

	iter := 0
	for ; iter < maxit; iter++ {
		if rdotr <= TOL {
			break
		}

		rdotr2 = rdotr1
		rdotr1 = rdotr

		if iter == 0 {
			beta = 0
		} else {
			beta = rdotr1 / rdotr2
		}

		// p <- r + beta*p
		if err := cg.la.Axpy(ntotal, 1, r, beta, cg.oP); err != nil {
			return Result{}, err
		}

		// Ap <- A*p
		if err := op.Operator(cg.oP, cg.oAp); err != nil {
			return Result{}, err
		}

		if pAp, err = cg.la.InnerProd(n, cg.oP, cg.oAp, cg.c); err != nil {
			return Result{}, err
		}
		alpha = rdotr1 / pAp

		// Fused: r <- r - alpha*Ap with its new norm, overlapped with
		// x <- x + alpha*p.
		if rdotr, err = cg.updateCG(alpha, x, r); err != nil {
			return Result{}, err
		}

		if rank == 0 {
			if rdotr < 0 {
				cg.log.Warn().Float64("rdotr", rdotr).Msg("CG: negative rdotr")
			}
			cg.log.Info().
				Int("iter", iter+1).
				Float64("rnorm", math.Sqrt(rdotr)).
				Float64("alpha", alpha).
				Msg("CG iteration")
		}
	}

	return Result{Iterations: iter, Converged: rdotr <= TOL, RDotR: rdotr}, nil
}

// updateCG performs the fused tail of one iteration: a single kernel
// updates the residual and block-reduces its squared norm into the
// device scalar; the scalar's device-to-host copy is issued
// asynchronously and the independent solution axpy is launched behind it
// so transfer and compute overlap; after the stream join, the host
// partial enters the global reduction.
func (cg *CG) updateCG(alpha float64, x, r device.Memory) (float64, error) {
	n := cg.cfg.N
	ntotal := cg.cfg.Ntotal
	nblocks := cg.la.Nblocks(ntotal)

	// TODO: replace the scalar zeroing with a device memset once the
	// dispatch surface grows one.
	if err := cg.la.Set(1, 0, cg.oTmpRdotr); err != nil {
		return 0, err
	}
	if err := cg.updateKernel.Run(int32(n), int32(ntotal), int32(nblocks),
		cg.oAp, alpha, r, cg.oTmpRdotr); err != nil {
		return 0, err
	}

	cg.dev.CopyToHostAsync(unsafe.Pointer(&cg.tmpRdotr[0]), cg.oTmpRdotr, 8)
	tag := cg.dev.Tag()

	// x <- x + alpha*p runs while the transfer is in flight.
	if err := cg.la.Axpy(ntotal, alpha, cg.oP, 1, x); err != nil {
		return 0, err
	}

	cg.dev.WaitFor(tag)

	return comm.AllReduceScalar(cg.c, cg.tmpRdotr[0])
}

// Free releases the solver's device state.
func (cg *CG) Free() {
	cg.updateKernel.Free()
	cg.oP.Free()
	cg.oAp.Free()
	cg.oTmpRdotr.Free()
}
