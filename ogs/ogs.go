// Package ogs implements the gather-scatter exchange between the
// element-local and assembled views of a field, and the cross-rank
// summation of shared degrees of freedom. The solver core consumes only
// the Exchanger interface; this reference implementation stages through
// the host and reduces over the communicator, trading throughput for an
// unambiguous summation contract.
package ogs

import (
	"fmt"
	"unsafe"

	"github.com/notargets/hexbone/comm"
	"github.com/notargets/hexbone/device"
	"github.com/notargets/hexbone/mesh"
)

// Exchanger sum-reduces shared degrees of freedom across partitions. On
// entry the field's shared and halo slots hold this partition's partial
// contributions; on return every copy of a shared degree of freedom holds
// the sum over all partitions owning it.
type Exchanger interface {
	Exchange(q device.Memory) error
}

// OGS couples a mesh's connectivity to a device and communicator. It
// provides the local scatter (assembled field to element-local storage),
// the local assembly gather (one writer per degree of freedom, so no
// atomics), and the cross-rank Exchange.
type OGS struct {
	dev device.Device
	c   comm.Comm

	ntotal    int
	nlocal    int // K*Np element-local slots
	globalIDs []int64
	nGlobal   int64

	scatterKernel  device.Kernel
	assembleKernel device.Kernel
	oElmToDof      device.Memory
	oGatherOffsets device.Memory
	oGatherIDs     device.Memory

	// host staging for Exchange, allocated once
	hostQ []float64
	sendG []float64
	recvG []float64
}

// New builds the gather-scatter pairing for one rank's mesh.
func New(dev device.Device, c comm.Comm, m *mesh.Mesh) (*OGS, error) {
	g := &OGS{
		dev:       dev,
		c:         c,
		ntotal:    m.Ntotal,
		nlocal:    len(m.ElmToDof),
		globalIDs: m.GlobalIDs,
		nGlobal:   m.NGlobal,
		hostQ:     make([]float64, m.Ntotal),
		sendG:     make([]float64, m.NGlobal),
		recvG:     make([]float64, m.NGlobal),
	}
	g.oElmToDof = device.MallocInt32(dev, m.ElmToDof)
	g.oGatherOffsets = device.MallocInt32(dev, m.GatherOffsets)
	g.oGatherIDs = device.MallocInt32(dev, m.GatherIDs)

	var err error
	if g.scatterKernel, err = dev.BuildKernel(scatterSource, "ogsScatter"); err != nil {
		return nil, err
	}
	if g.assembleKernel, err = dev.BuildKernel(assembleSource, "ogsGatherAssemble"); err != nil {
		return nil, err
	}
	return g, nil
}

// Scatter copies the assembled field q into element-local storage qL:
// qL[pos] = q[elmToDof[pos]].
func (g *OGS) Scatter(q, qL device.Memory) error {
	if g.nlocal == 0 {
		return nil
	}
	return g.scatterKernel.Run(int32(g.nlocal), g.oElmToDof, q, qL)
}

// AssembleLocal sums element-local contributions into the assembled
// field: q[d] = sum of qL over the slots mapped to d. Every degree of
// freedom is written by exactly one work item.
func (g *OGS) AssembleLocal(qL, q device.Memory) error {
	if g.ntotal == 0 {
		return nil
	}
	return g.assembleKernel.Run(int32(g.ntotal), g.oGatherOffsets, g.oGatherIDs, qL, q)
}

// Exchange sum-reduces shared degrees of freedom across all ranks and
// broadcasts the sums back to every copy, halo slots included.
func (g *OGS) Exchange(q device.Memory) error {
	if g.ntotal == 0 {
		return nil
	}
	g.dev.Finish()
	q.CopyTo(unsafe.Pointer(&g.hostQ[0]), int64(g.ntotal*8))

	for i := range g.sendG {
		g.sendG[i] = 0
	}
	for d, gid := range g.globalIDs {
		g.sendG[gid] += g.hostQ[d]
	}
	if err := g.c.AllReduceSum(g.sendG, g.recvG); err != nil {
		return fmt.Errorf("ogs: exchange reduction: %w", err)
	}
	for d, gid := range g.globalIDs {
		g.hostQ[d] = g.recvG[gid]
	}

	q.CopyFrom(unsafe.Pointer(&g.hostQ[0]), int64(g.ntotal*8))
	return nil
}

// Free releases device resources.
func (g *OGS) Free() {
	g.scatterKernel.Free()
	g.assembleKernel.Free()
	g.oElmToDof.Free()
	g.oGatherOffsets.Free()
	g.oGatherIDs.Free()
}
