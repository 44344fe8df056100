package solver

import (
	"math"
	"testing"

	"github.com/notargets/hexbone/comm"
	"github.com/notargets/hexbone/device"
	"github.com/notargets/hexbone/linalg"
)

// matrixOperator applies a small dense SPD matrix through the Operator
// interface, staging through the host so it works on any backend.
type matrixOperator struct {
	n int
	a [][]float64
}

func (m *matrixOperator) Operator(in, out device.Memory) error {
	q := device.ReadFloat64(in, m.n)
	aq := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		for j := 0; j < m.n; j++ {
			aq[i] += m.a[i][j] * q[j]
		}
	}
	device.WriteFloat64(out, aq)
	return nil
}

func tridiagonal(n int) *matrixOperator {
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
		a[i][i] = 2
		if i > 0 {
			a[i][i-1] = -1
		}
		if i < n-1 {
			a[i][i+1] = -1
		}
	}
	return &matrixOperator{n: n, a: a}
}

func newTestCG(t *testing.T, n int) (*CG, *linalg.LinAlg, device.Device) {
	t.Helper()
	dev := device.NewHostDevice()
	la, err := linalg.New(dev, linalg.DefaultBlockSize)
	if err != nil {
		t.Fatalf("linalg: %v", err)
	}
	cg, err := NewCG(dev, la, comm.Self{}, Config{N: n, Ntotal: n})
	if err != nil {
		t.Fatalf("solver: %v", err)
	}
	return cg, la, dev
}

// The concrete scenario from the design: 5-point 1-D Poisson-like system,
// rhs [1,0,0,0,1], exact solution all ones in at most 5 iterations.
func TestTridiagonalPoissonScenario(t *testing.T) {
	const n = 5
	cg, la, dev := newTestCG(t, n)
	defer dev.Free()
	defer la.Free()
	defer cg.Free()

	x := device.MallocFloat64(dev, make([]float64, n))
	r := device.MallocFloat64(dev, []float64{1, 0, 0, 0, 1})
	defer x.Free()
	defer r.Free()

	res, err := cg.Solve(tridiagonal(n), x, r, 1e-10, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Errorf("not converged: rdotr = %v", res.RDotR)
	}
	if res.Iterations > n {
		t.Errorf("iterations %d > dimension %d", res.Iterations, n)
	}

	sol := device.ReadFloat64(x, n)
	for i, v := range sol {
		if math.Abs(v-1) > 1e-8 {
			t.Errorf("x[%d] = %v, want 1", i, v)
		}
	}
}

// maxit = 0 must return zero iterations without touching x.
func TestMaxitZeroLeavesXUntouched(t *testing.T) {
	const n = 5
	cg, la, dev := newTestCG(t, n)
	defer dev.Free()
	defer la.Free()
	defer cg.Free()

	x0 := []float64{3, 1, 4, 1, 5}
	x := device.MallocFloat64(dev, x0)
	r := device.MallocFloat64(dev, []float64{1, 0, 0, 0, 1})
	defer x.Free()
	defer r.Free()

	res, err := cg.Solve(tridiagonal(n), x, r, 1e-10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Iterations != 0 {
		t.Errorf("iterations = %d, want 0", res.Iterations)
	}
	if res.Converged {
		t.Error("reported converged with a nonzero residual")
	}

	got := device.ReadFloat64(x, n)
	for i := range x0 {
		if got[i] != x0[i] {
			t.Errorf("x[%d] modified: %v -> %v", i, x0[i], got[i])
		}
	}
}

// A zero right-hand side with a zero initial guess hits the absolute
// tolerance floor immediately.
func TestZeroResidualConvergesImmediately(t *testing.T) {
	const n = 4
	cg, la, dev := newTestCG(t, n)
	defer dev.Free()
	defer la.Free()
	defer cg.Free()

	x := device.MallocFloat64(dev, make([]float64, n))
	r := device.MallocFloat64(dev, make([]float64, n))
	defer x.Free()
	defer r.Free()

	res, err := cg.Solve(tridiagonal(n), x, r, 1e-10, 100)
	if err != nil {
		t.Fatal(err)
	}
	if res.Iterations != 0 || !res.Converged {
		t.Errorf("got %+v, want immediate convergence", res)
	}
}

// Residual norms are non-increasing across the CG trajectory for an SPD
// system. Restarted solves with growing iteration caps replay the same
// deterministic trajectory.
func TestResidualMonotonicity(t *testing.T) {
	const n = 10
	op := tridiagonal(n)
	b := make([]float64, n)
	for i := range b {
		b[i] = math.Sin(float64(i) + 1)
	}

	prev := math.Inf(1)
	for maxit := 1; maxit <= n; maxit++ {
		cg, la, dev := newTestCG(t, n)

		x := device.MallocFloat64(dev, make([]float64, n))
		r := device.MallocFloat64(dev, b)

		res, err := cg.Solve(op, x, r, 1e-14, maxit)
		if err != nil {
			t.Fatal(err)
		}
		if res.RDotR > prev*(1+1e-12) {
			t.Errorf("maxit %d: rdotr %v grew above %v", maxit, res.RDotR, prev)
		}
		prev = res.RDotR

		x.Free()
		r.Free()
		cg.Free()
		la.Free()
		dev.Free()
	}
}

// Classical CG bound: an N-dimensional SPD system converges within N
// iterations.
func TestExactnessWithinDimension(t *testing.T) {
	const n = 10
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
		a[i][i] = float64(i + 1) // distinct positive spectrum
	}
	op := &matrixOperator{n: n, a: a}

	cg, la, dev := newTestCG(t, n)
	defer dev.Free()
	defer la.Free()
	defer cg.Free()

	b := make([]float64, n)
	for i := range b {
		b[i] = 1
	}
	x := device.MallocFloat64(dev, make([]float64, n))
	r := device.MallocFloat64(dev, b)
	defer x.Free()
	defer r.Free()

	res, err := cg.Solve(op, x, r, 1e-12, 3*n)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Errorf("not converged: %+v", res)
	}
	if res.Iterations > n {
		t.Errorf("iterations %d exceed dimension %d", res.Iterations, n)
	}

	sol := device.ReadFloat64(x, n)
	for i := range sol {
		want := 1 / float64(i+1)
		if math.Abs(sol[i]-want) > 1e-9 {
			t.Errorf("x[%d] = %v, want %v", i, sol[i], want)
		}
	}
}

func TestNewCGRejectsBadLengths(t *testing.T) {
	dev := device.NewHostDevice()
	defer dev.Free()
	la, err := linalg.New(dev, linalg.DefaultBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	defer la.Free()

	if _, err := NewCG(dev, la, comm.Self{}, Config{N: 10, Ntotal: 5}); err == nil {
		t.Fatal("expected error for Ntotal < N")
	}
	if _, err := NewCG(dev, la, comm.Self{}, Config{N: -1, Ntotal: 5}); err == nil {
		t.Fatal("expected error for negative N")
	}
}
