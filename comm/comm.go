// Package comm provides the rank communicator the solver core reduces
// over: an MPI-like surface (rank, size, summed all-reduce, barrier)
// narrowed to what a distributed CG iteration needs. Every collective is
// blocking and every rank must reach it; there is no timeout path. All
// reductions use float64 throughout — no mixed precision.
package comm

import "fmt"

// Comm is one rank's handle on the communicator.
type Comm interface {
	Rank() int
	Size() int

	// AllReduceSum element-wise sums send across all ranks and stores the
	// result in recv on every rank. All ranks must pass the same length.
	AllReduceSum(send, recv []float64) error

	Barrier()
}

// AllReduceScalar sum-reduces a single value across all ranks.
func AllReduceScalar(c Comm, v float64) (float64, error) {
	send := [1]float64{v}
	var recv [1]float64
	if err := c.AllReduceSum(send[:], recv[:]); err != nil {
		return 0, err
	}
	return recv[0], nil
}

// Self is the single-rank communicator.
type Self struct{}

func (Self) Rank() int { return 0 }
func (Self) Size() int { return 1 }

func (Self) AllReduceSum(send, recv []float64) error {
	if len(send) != len(recv) {
		return fmt.Errorf("comm: allreduce length mismatch: send %d, recv %d",
			len(send), len(recv))
	}
	copy(recv, send)
	return nil
}

func (Self) Barrier() {}
