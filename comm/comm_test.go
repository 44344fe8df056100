package comm

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestSelfAllReduce(t *testing.T) {
	c := Self{}
	if c.Rank() != 0 || c.Size() != 1 {
		t.Fatalf("self comm: rank %d size %d", c.Rank(), c.Size())
	}
	got, err := AllReduceScalar(c, 4.5)
	if err != nil {
		t.Fatal(err)
	}
	if got != 4.5 {
		t.Errorf("got %v, want 4.5", got)
	}
}

func TestGroupAllReduceSum(t *testing.T) {
	for _, size := range []int{1, 2, 4, 7} {
		members := NewGroup(size)
		var eg errgroup.Group
		for _, m := range members {
			eg.Go(func() error {
				send := []float64{float64(m.Rank()), 1.0}
				recv := make([]float64, 2)
				if err := m.AllReduceSum(send, recv); err != nil {
					return err
				}
				wantSum := float64(size*(size-1)) / 2
				if recv[0] != wantSum || recv[1] != float64(size) {
					t.Errorf("size %d rank %d: got %v, want [%v %v]",
						size, m.Rank(), recv, wantSum, float64(size))
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGroupRepeatedReductions(t *testing.T) {
	const size = 3
	const rounds = 100
	members := NewGroup(size)
	var eg errgroup.Group
	for _, m := range members {
		eg.Go(func() error {
			for r := 0; r < rounds; r++ {
				got, err := AllReduceScalar(m, float64(r))
				if err != nil {
					return err
				}
				if got != float64(r*size) {
					t.Errorf("rank %d round %d: got %v, want %v",
						m.Rank(), r, got, float64(r*size))
				}
				m.Barrier()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestAllReduceLengthMismatch(t *testing.T) {
	c := Self{}
	if err := c.AllReduceSum(make([]float64, 2), make([]float64, 3)); err == nil {
		t.Fatal("expected length-mismatch error")
	}
}
