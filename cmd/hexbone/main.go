// hexbone runs the matrix-free screened-Poisson benchmark: build a box
// mesh of hexahedral spectral elements, partition it across in-process
// ranks, and drive the distributed Conjugate Gradient solve to
// convergence, reporting iteration count, residual, and throughput.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/hexbone/comm"
	"github.com/notargets/hexbone/device"
	"github.com/notargets/hexbone/elliptic"
	"github.com/notargets/hexbone/linalg"
	"github.com/notargets/hexbone/mesh"
	"github.com/notargets/hexbone/ogs"
	"github.com/notargets/hexbone/solver"
)

type options struct {
	mode   string
	nx     int
	ny     int
	nz     int
	order  int
	lambda float64
	tol    float64
	maxit  int
	ranks  int
	v      bool
}

func main() {
	var opt options
	flag.StringVar(&opt.mode, "mode", "host", "backend: host, auto, OpenMP, CUDA, Serial")
	flag.IntVar(&opt.nx, "nx", 8, "elements in x")
	flag.IntVar(&opt.ny, "ny", 8, "elements in y")
	flag.IntVar(&opt.nz, "nz", 8, "elements in z")
	flag.IntVar(&opt.order, "order", 4, "polynomial order")
	flag.Float64Var(&opt.lambda, "lambda", 1.0, "mass scaling (must be > 0)")
	flag.Float64Var(&opt.tol, "tol", 1e-8, "relative residual tolerance")
	flag.IntVar(&opt.maxit, "maxit", 1000, "iteration cap")
	flag.IntVar(&opt.ranks, "ranks", 1, "in-process ranks (z-slab partitions)")
	flag.BoolVar(&opt.v, "v", false, "log every CG iteration")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	if err := run(opt, log); err != nil {
		log.Fatal().Err(err).Msg("hexbone failed")
	}
}

func run(opt options, log zerolog.Logger) error {
	fmt.Printf("=== hexbone: matrix-free CG benchmark ===\n")
	fmt.Printf("Box: %dx%dx%d elements, order %d, %d ranks\n",
		opt.nx, opt.ny, opt.nz, opt.order, opt.ranks)

	members := comm.NewGroup(opt.ranks)

	var mu sync.Mutex
	var result solver.Result
	var elapsed time.Duration
	var nGlobal int64
	deviceMode := ""

	var g errgroup.Group
	for _, member := range members {
		c := member
		g.Go(func() error {
			dev, err := makeDevice(opt.mode)
			if err != nil {
				return err
			}
			defer dev.Free()

			m, err := mesh.NewBoxMesh(c, mesh.Config{
				NX: opt.nx, NY: opt.ny, NZ: opt.nz, Order: opt.order,
			})
			if err != nil {
				return err
			}

			gs, err := ogs.New(dev, c, m)
			if err != nil {
				return err
			}
			defer gs.Free()

			op, err := elliptic.New(dev, m, gs, opt.lambda)
			if err != nil {
				return err
			}
			defer op.Free()

			la, err := linalg.New(dev, linalg.DefaultBlockSize)
			if err != nil {
				return err
			}
			defer la.Free()

			cg, err := solver.NewCG(dev, la, c, solver.Config{
				N:       m.Nowned,
				Ntotal:  m.Ntotal,
				Verbose: opt.v,
				Logger:  log,
			})
			if err != nil {
				return err
			}
			defer cg.Free()

			oB, err := buildRHS(dev, gs, m)
			if err != nil {
				return err
			}
			defer oB.Free()

			oX := dev.Malloc(int64(m.Ntotal*8), nil)
			defer oX.Free()
			if err := la.Set(m.Ntotal, 0, oX); err != nil {
				return err
			}

			c.Barrier()
			start := time.Now()
			res, err := cg.Solve(op, oX, oB, opt.tol, opt.maxit)
			if err != nil {
				return err
			}
			c.Barrier()

			if c.Rank() == 0 {
				mu.Lock()
				result = res
				elapsed = time.Since(start)
				nGlobal = m.NGlobal
				deviceMode = dev.Mode()
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report(result, elapsed, nGlobal, deviceMode)
	return nil
}

func makeDevice(mode string) (device.Device, error) {
	switch strings.ToLower(mode) {
	case "host":
		return device.NewHostDevice(), nil
	case "auto":
		return device.NewOCCADeviceAuto()
	default:
		return device.NewOCCADevice(fmt.Sprintf(`{"mode": %q}`, mode))
	}
}

// buildRHS assembles b = M*f for a smooth positive forcing: mass-weight
// the forcing at every element-local node, gather, and exchange to rank
// consistency.
func buildRHS(dev device.Device, gs *ogs.OGS, m *mesh.Mesh) (device.Memory, error) {
	np := m.Ref.Np
	bL := make([]float64, m.K*np)
	for pos, d := range m.ElmToDof {
		e := pos / np
		node := pos % np
		wjac := m.Ggeo[(e*mesh.Nggeo+mesh.GWJID)*np+node]
		f := 1 + math.Sin(math.Pi*m.X[d])*math.Sin(math.Pi*m.Y[d])*math.Sin(math.Pi*m.Z[d])
		bL[pos] = wjac * f
	}

	oBL := device.MallocFloat64(dev, bL)
	defer oBL.Free()
	oB := dev.Malloc(int64(m.Ntotal*8), nil)
	if err := gs.AssembleLocal(oBL, oB); err != nil {
		oB.Free()
		return nil, err
	}
	if err := gs.Exchange(oB); err != nil {
		oB.Free()
		return nil, err
	}
	return oB, nil
}

func report(res solver.Result, elapsed time.Duration, nGlobal int64, mode string) {
	status := "converged"
	if !res.Converged {
		status = "NOT converged"
	}
	fmt.Printf("\nDevice: %s\n", mode)
	fmt.Printf("Global dofs: %d\n", nGlobal)
	fmt.Printf("CG %s in %d iterations, final residual %.3e\n",
		status, res.Iterations, math.Sqrt(math.Max(res.RDotR, 0)))
	fmt.Printf("Solve time: %v\n", elapsed)
	if res.Iterations > 0 && elapsed > 0 {
		perIter := elapsed / time.Duration(res.Iterations)
		rate := float64(nGlobal) * float64(res.Iterations) / elapsed.Seconds()
		fmt.Printf("Per iteration: %v (%.3g dof-iterations/s)\n", perIter, rate)
	}
}
