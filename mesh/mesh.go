package mesh

import (
	"fmt"

	"github.com/notargets/hexbone/comm"
)

// Geometric factor indices into Ggeo, seven entries per node.
const (
	G00ID = 0
	G01ID = 1
	G02ID = 2
	G11ID = 3
	G12ID = 4
	G22ID = 5
	GWJID = 6
	Nggeo = 7
)

// Config sizes the global box mesh: NX x NY x NZ hexahedral elements of
// polynomial order Order on the unit cube.
type Config struct {
	NX, NY, NZ int
	Order      int
}

// Mesh is one rank's partition of the box: a contiguous z-slab of
// elements, the owned+halo degree-of-freedom numbering over the
// continuous (C0) node space, per-element geometric factors, and the
// local-only / halo-adjacent element split consumed by the operator.
//
// Degrees of freedom are numbered owned-first: indices [0,Nowned) are
// nodes this rank owns, [Nowned,Ntotal) are halo copies of nodes owned by
// the rank below. A node shared between slabs is owned by the
// lower-ranked slab.
type Mesh struct {
	Ref  *Reference
	Rank int
	Size int

	K      int // rank-local element count
	KZ     int // slab depth in elements
	ZFirst int // global z-index of the slab's first element layer

	Nowned  int
	Nhalo   int
	Ntotal  int   // Nowned + Nhalo
	NGlobal int64 // unique nodes across all ranks

	GlobalIDs []int64   // Ntotal: local dof -> global node id
	ElmToDof  []int32   // K*Np: element-local node -> local dof
	Ggeo      []float64 // K*Nggeo*Np geometric factors
	X, Y, Z   []float64 // Ntotal nodal coordinates

	// CSR gather from element-local storage to dofs: positions
	// GatherIDs[GatherOffsets[d]:GatherOffsets[d+1]] in a K*Np field all
	// carry contributions to dof d.
	GatherOffsets []int32
	GatherIDs     []int32

	// Disjoint element groups; see partition.go.
	LocalOnly    []int32
	HaloAdjacent []int32

	cfg Config
}

// NewBoxMesh builds rank c.Rank()'s partition of the cfg box, split into
// contiguous z-slabs across c.Size() ranks.
func NewBoxMesh(c comm.Comm, cfg Config) (*Mesh, error) {
	if cfg.NX < 1 || cfg.NY < 1 || cfg.NZ < 1 {
		return nil, fmt.Errorf("mesh: box %dx%dx%d, need >= 1 elements per direction",
			cfg.NX, cfg.NY, cfg.NZ)
	}
	if cfg.NZ < c.Size() {
		return nil, fmt.Errorf("mesh: %d z-layers across %d ranks leaves empty partitions",
			cfg.NZ, c.Size())
	}
	ref, err := NewReferenceElement(cfg.Order)
	if err != nil {
		return nil, err
	}

	rank, size := c.Rank(), c.Size()
	base, rem := cfg.NZ/size, cfg.NZ%size
	kz := base
	if rank < rem {
		kz++
	}
	zFirst := rank * base
	if rank < rem {
		zFirst += rank
	} else {
		zFirst += rem
	}

	m := &Mesh{
		Ref:    ref,
		Rank:   rank,
		Size:   size,
		K:      cfg.NX * cfg.NY * kz,
		KZ:     kz,
		ZFirst: zFirst,
		cfg:    cfg,
	}
	m.numberDofs()
	m.connectElements()
	m.geometricFactors()
	m.buildGather()
	m.splitElementGroups()
	if err := m.validateGroups(); err != nil {
		return nil, err
	}
	return m, nil
}

// node grid extents for the global box
func (m *Mesh) nodeGrid() (gx, gy int) {
	n := m.cfg.Order
	return m.cfg.NX*n + 1, m.cfg.NY*n + 1
}

// numberDofs lays out the rank's node planes owned-first. The slab touches
// global node planes [ZFirst*N, (ZFirst+KZ)*N]; the bottom plane belongs
// to the rank below when one exists and becomes this rank's halo.
func (m *Mesh) numberDofs() {
	n := m.cfg.Order
	gx, gy := m.nodeGrid()
	planeNodes := gx * gy

	zLo := m.ZFirst * n
	zHi := (m.ZFirst + m.KZ) * n
	ownedZLo := zLo
	if m.Rank > 0 {
		ownedZLo = zLo + 1
		m.Nhalo = planeNodes
	}
	m.Nowned = (zHi - ownedZLo + 1) * planeNodes
	m.Ntotal = m.Nowned + m.Nhalo
	m.NGlobal = int64(gx) * int64(gy) * int64(m.cfg.NZ*n+1)

	m.GlobalIDs = make([]int64, m.Ntotal)
	m.X = make([]float64, m.Ntotal)
	m.Y = make([]float64, m.Ntotal)
	m.Z = make([]float64, m.Ntotal)

	hx := 1.0 / float64(m.cfg.NX)
	hy := 1.0 / float64(m.cfg.NY)
	hz := 1.0 / float64(m.cfg.NZ)

	fill := func(dof, ix, iy, iz int) {
		m.GlobalIDs[dof] = (int64(iz)*int64(gy)+int64(iy))*int64(gx) + int64(ix)
		// node position from element cell + GLL offset
		m.X[dof] = coord(ix, n, hx, m.Ref.R)
		m.Y[dof] = coord(iy, n, hy, m.Ref.R)
		m.Z[dof] = coord(iz, n, hz, m.Ref.R)
	}

	dof := 0
	for iz := ownedZLo; iz <= zHi; iz++ {
		for iy := 0; iy < gy; iy++ {
			for ix := 0; ix < gx; ix++ {
				fill(dof, ix, iy, iz)
				dof++
			}
		}
	}
	if m.Nhalo > 0 {
		for iy := 0; iy < gy; iy++ {
			for ix := 0; ix < gx; ix++ {
				fill(dof, ix, iy, zLo)
				dof++
			}
		}
	}
}

// coord maps global node index i along one direction to its physical
// position: element cell i/n, GLL node i%n within it.
func coord(i, n int, h float64, r []float64) float64 {
	cell := i / n
	node := i % n
	return (float64(cell) + (r[node]+1)/2) * h
}

// dofIndex returns the local dof of global node plane coordinates.
func (m *Mesh) dofIndex(ix, iy, iz int) int32 {
	n := m.cfg.Order
	gx, gy := m.nodeGrid()
	zLo := m.ZFirst * n
	ownedZLo := zLo
	if m.Rank > 0 {
		ownedZLo = zLo + 1
	}
	if iz < ownedZLo {
		// halo plane
		return int32(m.Nowned + iy*gx + ix)
	}
	return int32((iz-ownedZLo)*gx*gy + iy*gx + ix)
}

func (m *Mesh) connectElements() {
	n := m.cfg.Order
	nq := m.Ref.Nq
	np := m.Ref.Np
	m.ElmToDof = make([]int32, m.K*np)

	for e := 0; e < m.K; e++ {
		ex := e % m.cfg.NX
		ey := (e / m.cfg.NX) % m.cfg.NY
		ezl := e / (m.cfg.NX * m.cfg.NY)
		ez := m.ZFirst + ezl
		for k := 0; k < nq; k++ {
			for j := 0; j < nq; j++ {
				for i := 0; i < nq; i++ {
					node := k*nq*nq + j*nq + i
					m.ElmToDof[e*np+node] = m.dofIndex(ex*n+i, ey*n+j, ez*n+k)
				}
			}
		}
	}
}

// geometricFactors fills Ggeo for the axis-aligned affine hexes of the
// box: diagonal metric, GLL-weighted, cross terms identically zero.
func (m *Mesh) geometricFactors() {
	nq := m.Ref.Nq
	np := m.Ref.Np
	w := m.Ref.W

	hx := 1.0 / float64(m.cfg.NX)
	hy := 1.0 / float64(m.cfg.NY)
	hz := 1.0 / float64(m.cfg.NZ)
	rx := 2 / hx
	sy := 2 / hy
	tz := 2 / hz
	jac := hx * hy * hz / 8

	m.Ggeo = make([]float64, m.K*Nggeo*np)
	for e := 0; e < m.K; e++ {
		base := e * Nggeo * np
		for k := 0; k < nq; k++ {
			for j := 0; j < nq; j++ {
				for i := 0; i < nq; i++ {
					node := k*nq*nq + j*nq + i
					wjac := w[i] * w[j] * w[k] * jac
					m.Ggeo[base+G00ID*np+node] = wjac * rx * rx
					m.Ggeo[base+G11ID*np+node] = wjac * sy * sy
					m.Ggeo[base+G22ID*np+node] = wjac * tz * tz
					m.Ggeo[base+GWJID*np+node] = wjac
				}
			}
		}
	}
}

// buildGather inverts ElmToDof into CSR form: every element-local slot
// contributing to a dof, one writer per dof on the assembly side.
func (m *Mesh) buildGather() {
	counts := make([]int32, m.Ntotal+1)
	for _, d := range m.ElmToDof {
		counts[d+1]++
	}
	m.GatherOffsets = make([]int32, m.Ntotal+1)
	for d := 0; d < m.Ntotal; d++ {
		m.GatherOffsets[d+1] = m.GatherOffsets[d] + counts[d+1]
	}
	cursor := make([]int32, m.Ntotal)
	m.GatherIDs = make([]int32, len(m.ElmToDof))
	for pos, d := range m.ElmToDof {
		m.GatherIDs[m.GatherOffsets[d]+cursor[d]] = int32(pos)
		cursor[d]++
	}
}
