package comm

import (
	"fmt"
	"sync"
)

// group is the shared state behind an in-process communicator: a reusable
// barrier guarding a summation accumulator. Ranks are goroutines in one
// address space, so the reduction is a locked accumulate followed by a
// generation-counter broadcast.
type group struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	phase   uint64
	acc     []float64
	result  []float64
}

// Member is one rank's handle on an in-process group.
type Member struct {
	rank int
	g    *group
}

// NewGroup creates an n-rank in-process communicator and returns one
// member per rank. Each member must be used by exactly one goroutine.
func NewGroup(n int) []*Member {
	if n < 1 {
		panic(fmt.Sprintf("comm: group size %d", n))
	}
	g := &group{size: n}
	g.cond = sync.NewCond(&g.mu)
	members := make([]*Member, n)
	for i := range members {
		members[i] = &Member{rank: i, g: g}
	}
	return members
}

func (m *Member) Rank() int { return m.rank }
func (m *Member) Size() int { return m.g.size }

func (m *Member) AllReduceSum(send, recv []float64) error {
	if len(send) != len(recv) {
		return fmt.Errorf("comm: allreduce length mismatch: send %d, recv %d",
			len(send), len(recv))
	}
	g := m.g

	g.mu.Lock()
	if g.arrived == 0 {
		if cap(g.acc) < len(send) {
			g.acc = make([]float64, len(send))
		}
		g.acc = g.acc[:len(send)]
		for i := range g.acc {
			g.acc[i] = 0
		}
	} else if len(g.acc) != len(send) {
		// A collective with mismatched lengths across ranks is a program
		// defect; unblocking it cleanly is not possible.
		g.mu.Unlock()
		panic(fmt.Sprintf("comm: rank %d joined %d-length allreduce with %d values",
			m.rank, len(g.acc), len(send)))
	}
	for i, v := range send {
		g.acc[i] += v
	}
	g.arrived++

	if g.arrived == g.size {
		if cap(g.result) < len(g.acc) {
			g.result = make([]float64, len(g.acc))
		}
		g.result = g.result[:len(g.acc)]
		copy(g.result, g.acc)
		g.arrived = 0
		g.phase++
		g.cond.Broadcast()
	} else {
		myPhase := g.phase
		for g.phase == myPhase {
			g.cond.Wait()
		}
	}
	copy(recv, g.result)
	g.mu.Unlock()
	return nil
}

func (m *Member) Barrier() {
	var scratch [1]float64
	// Sum of zeros; the synchronization is the point.
	_ = m.AllReduceSum(scratch[:], scratch[:])
}
