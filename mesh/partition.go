package mesh

import "fmt"

// splitElementGroups classifies every rank-owned element as local-only or
// halo-adjacent. An element is halo-adjacent iff any of its nodes lives on
// a plane shared with another rank: the slab's bottom element layer when a
// rank exists below, the top layer when one exists above. Degrees of
// freedom of halo-adjacent elements receive contributions from more than
// one rank and must be summed by the exchange before use; local-only
// degrees of freedom are written by exactly this rank.
func (m *Mesh) splitElementGroups() {
	m.LocalOnly = make([]int32, 0, m.K)
	m.HaloAdjacent = make([]int32, 0)

	layerElems := m.cfg.NX * m.cfg.NY
	for e := 0; e < m.K; e++ {
		ezl := e / layerElems
		bottomShared := m.Rank > 0 && ezl == 0
		topShared := m.Rank < m.Size-1 && ezl == m.KZ-1
		if bottomShared || topShared {
			m.HaloAdjacent = append(m.HaloAdjacent, int32(e))
		} else {
			m.LocalOnly = append(m.LocalOnly, int32(e))
		}
	}
}

// validateGroups checks the group invariant: disjoint, in-range, and
// together covering every rank-owned element exactly once.
func (m *Mesh) validateGroups() error {
	seen := make([]bool, m.K)
	mark := func(list []int32, name string) error {
		for _, e := range list {
			if e < 0 || int(e) >= m.K {
				return fmt.Errorf("mesh: %s element %d out of range [0,%d)", name, e, m.K)
			}
			if seen[e] {
				return fmt.Errorf("mesh: element %d listed twice", e)
			}
			seen[e] = true
		}
		return nil
	}
	if err := mark(m.LocalOnly, "local-only"); err != nil {
		return err
	}
	if err := mark(m.HaloAdjacent, "halo-adjacent"); err != nil {
		return err
	}
	for e, ok := range seen {
		if !ok {
			return fmt.Errorf("mesh: element %d in no group", e)
		}
	}
	return nil
}
