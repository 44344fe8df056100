package mesh

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/hexbone/comm"
)

func TestSingleRankBoxMesh(t *testing.T) {
	m, err := NewBoxMesh(comm.Self{}, Config{NX: 2, NY: 2, NZ: 2, Order: 2})
	require.NoError(t, err)

	require.Equal(t, 8, m.K)
	require.Equal(t, 0, m.Nhalo)
	require.Equal(t, 125, m.Nowned) // (2*2+1)^3
	require.Equal(t, int64(125), m.NGlobal)

	// Single domain: every element local-only, none halo-adjacent.
	require.Len(t, m.LocalOnly, 8)
	require.Empty(t, m.HaloAdjacent)

	// Each of the K*Np element slots maps to a valid dof, and the gather
	// lists invert the map exactly.
	np := m.Ref.Np
	require.Len(t, m.ElmToDof, m.K*np)
	total := int32(0)
	for d := 0; d < m.Ntotal; d++ {
		total += m.GatherOffsets[d+1] - m.GatherOffsets[d]
		for _, pos := range m.GatherIDs[m.GatherOffsets[d]:m.GatherOffsets[d+1]] {
			require.Equal(t, int32(d), m.ElmToDof[pos])
		}
	}
	require.Equal(t, int32(m.K*np), total)
}

func TestMeshNodeCoordinatesSpanUnitBox(t *testing.T) {
	m, err := NewBoxMesh(comm.Self{}, Config{NX: 3, NY: 2, NZ: 1, Order: 3})
	require.NoError(t, err)

	for d := 0; d < m.Ntotal; d++ {
		for _, c := range []float64{m.X[d], m.Y[d], m.Z[d]} {
			require.GreaterOrEqual(t, c, 0.0)
			require.LessOrEqual(t, c, 1.0)
		}
	}
}

func TestMeshGeometricFactors(t *testing.T) {
	m, err := NewBoxMesh(comm.Self{}, Config{NX: 1, NY: 1, NZ: 1, Order: 2})
	require.NoError(t, err)

	np := m.Ref.Np
	// Sum of GWJ over all nodes integrates 1 over the element: the box
	// volume.
	vol := 0.0
	for n := 0; n < np; n++ {
		vol += m.Ggeo[GWJID*np+n]
	}
	require.InDelta(t, 1.0, vol, 1e-12)

	// Cross factors vanish for the axis-aligned box.
	for n := 0; n < np; n++ {
		require.Zero(t, m.Ggeo[G01ID*np+n])
		require.Zero(t, m.Ggeo[G02ID*np+n])
		require.Zero(t, m.Ggeo[G12ID*np+n])
	}
}

func TestMeshRejectsEmptyPartitions(t *testing.T) {
	members := comm.NewGroup(4)
	var eg errgroup.Group
	for _, c := range members {
		eg.Go(func() error {
			_, err := NewBoxMesh(c, Config{NX: 1, NY: 1, NZ: 2, Order: 1})
			require.Error(t, err)
			return nil
		})
	}
	require.NoError(t, eg.Wait())
}

func TestTwoRankPartition(t *testing.T) {
	const nz = 4
	members := comm.NewGroup(2)
	meshes := make([]*Mesh, 2)
	var eg errgroup.Group
	for _, c := range members {
		eg.Go(func() error {
			m, err := NewBoxMesh(c, Config{NX: 2, NY: 2, NZ: nz, Order: 2})
			if err != nil {
				return err
			}
			meshes[c.Rank()] = m
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	m0, m1 := meshes[0], meshes[1]

	// Slabs cover the box.
	require.Equal(t, nz, m0.KZ+m1.KZ)
	require.Equal(t, 0, m0.ZFirst)
	require.Equal(t, m0.KZ, m1.ZFirst)

	// Rank 0 owns the shared plane; rank 1 carries it as halo.
	require.Equal(t, 0, m0.Nhalo)
	require.Equal(t, 25, m1.Nhalo) // (2*2+1)^2
	require.Equal(t, int64(m0.Nowned+m1.Nowned), m0.NGlobal)

	// Only the element layers against the cut are halo-adjacent.
	require.Len(t, m0.HaloAdjacent, 4) // top layer of rank 0
	require.Len(t, m1.HaloAdjacent, 4) // bottom layer of rank 1
	require.Len(t, m0.LocalOnly, m0.K-4)
	require.Len(t, m1.LocalOnly, m1.K-4)

	// Halo copies on rank 1 reference global nodes owned by rank 0.
	owned0 := make(map[int64]bool, m0.Nowned)
	for d := 0; d < m0.Nowned; d++ {
		owned0[m0.GlobalIDs[d]] = true
	}
	for d := m1.Nowned; d < m1.Ntotal; d++ {
		require.True(t, owned0[m1.GlobalIDs[d]],
			"halo dof %d global id %d not owned by rank 0", d, m1.GlobalIDs[d])
	}
}
