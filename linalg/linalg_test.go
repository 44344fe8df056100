package linalg

import (
	"math"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/notargets/hexbone/comm"
	"github.com/notargets/hexbone/device"
)

func newTestLinAlg(t *testing.T) (*LinAlg, device.Device) {
	t.Helper()
	dev := device.NewHostDevice()
	la, err := New(dev, DefaultBlockSize)
	if err != nil {
		t.Fatalf("linalg: %v", err)
	}
	return la, dev
}

func TestNewRejectsBadBlockSize(t *testing.T) {
	dev := device.NewHostDevice()
	defer dev.Free()
	for _, bs := range []int{0, -4, 3, 100} {
		if _, err := New(dev, bs); err == nil {
			t.Errorf("block size %d: expected error", bs)
		}
	}
}

func TestSetAndAxpy(t *testing.T) {
	la, dev := newTestLinAlg(t)
	defer dev.Free()
	defer la.Free()

	const n = 1000
	x := dev.Malloc(n*8, nil)
	y := dev.Malloc(n*8, nil)
	defer x.Free()
	defer y.Free()

	if err := la.Set(n, 2, x); err != nil {
		t.Fatal(err)
	}
	if err := la.Set(n, 3, y); err != nil {
		t.Fatal(err)
	}
	// y = 0.5*x + 2*y = 1 + 6 = 7
	if err := la.Axpy(n, 0.5, x, 2, y); err != nil {
		t.Fatal(err)
	}
	out := device.ReadFloat64(y, n)
	for i, v := range out {
		if v != 7 {
			t.Fatalf("entry %d: got %v, want 7", i, v)
		}
	}
}

func TestInnerProdAgainstDirectSum(t *testing.T) {
	la, dev := newTestLinAlg(t)
	defer dev.Free()
	defer la.Free()

	// Larger than one block to exercise the strided reduction.
	const n = 3*DefaultBlockSize + 17
	xh := make([]float64, n)
	yh := make([]float64, n)
	want := 0.0
	for i := range xh {
		xh[i] = math.Sin(float64(i))
		yh[i] = math.Cos(float64(i) / 3)
		want += xh[i] * yh[i]
	}
	x := device.MallocFloat64(dev, xh)
	y := device.MallocFloat64(dev, yh)
	defer x.Free()
	defer y.Free()

	got, err := la.InnerProd(n, x, y, comm.Self{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-want) > 1e-10*math.Abs(want) {
		t.Errorf("inner product: got %v, want %v", got, want)
	}
}

func TestNorm2ZeroLength(t *testing.T) {
	la, dev := newTestLinAlg(t)
	defer dev.Free()
	defer la.Free()

	x := dev.Malloc(8, nil)
	defer x.Free()
	got, err := la.Norm2(0, x, comm.Self{})
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("zero-length norm: got %v", got)
	}
}

// Distributed inner product must equal the concatenated serial one.
func TestInnerProdAcrossRanks(t *testing.T) {
	const perRank = 100
	const size = 4

	full := make([]float64, perRank*size)
	want := 0.0
	for i := range full {
		full[i] = float64(i%13) - 6
		want += full[i] * full[i]
	}

	members := comm.NewGroup(size)
	var eg errgroup.Group
	for _, c := range members {
		eg.Go(func() error {
			dev := device.NewHostDevice()
			defer dev.Free()
			la, err := New(dev, DefaultBlockSize)
			if err != nil {
				return err
			}
			defer la.Free()

			local := full[c.Rank()*perRank : (c.Rank()+1)*perRank]
			x := device.MallocFloat64(dev, local)
			defer x.Free()

			got, err := la.InnerProd(perRank, x, x, c)
			if err != nil {
				return err
			}
			if math.Abs(got-want) > 1e-10 {
				t.Errorf("rank %d: got %v, want %v", c.Rank(), got, want)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
}
