// Package elliptic applies the matrix-free screened-Poisson operator
// Aq = (K + lambda*M) q over one rank's mesh partition through
// per-element tensor-product contractions with the reference
// differentiation matrix and the precomputed geometric factors. No global
// matrix is ever materialized.
//
// The element set is dispatched in three ordered launches — the first
// half of the local-only elements, all halo-adjacent elements, then the
// remaining local-only elements — so halo-adjacent results are available
// for the exchange while local-only work is still computing. The order is
// part of the contract, not an implementation detail: it is what creates
// the communication/computation overlap window.
package elliptic

import (
	"fmt"

	"github.com/notargets/hexbone/device"
	"github.com/notargets/hexbone/mesh"
)

// GatherScatter is the exchange surface the operator drives: the local
// scatter/assembly between assembled and element-local storage, and the
// cross-rank summation of shared degrees of freedom.
type GatherScatter interface {
	Scatter(q, qL device.Memory) error
	AssembleLocal(qL, q device.Memory) error
	Exchange(q device.Memory) error
}

// Elliptic is the rank-local matrix-free operator. All device state —
// differentiation matrix, geometric factors, element lists, element-local
// scratch — is allocated at construction and reused by every application.
type Elliptic struct {
	dev    device.Device
	gs     GatherScatter
	lambda float64

	np int

	kernel device.Kernel
	oD     device.Memory
	oGgeo  device.Memory

	// the three ordered launch groups; a nil list has count zero
	nLocalFirst  int
	nHalo        int
	nLocalSecond int
	oLocalFirst  device.Memory
	oHalo        device.Memory
	oLocalSecond device.Memory

	oQL  device.Memory // element-local input scratch
	oAqL device.Memory // element-local output scratch
}

// New uploads the mesh partition's operator data to dev and compiles the
// elemental kernel. lambda must be nonnegative; lambda > 0 makes the
// operator positive definite without boundary conditions.
func New(dev device.Device, m *mesh.Mesh, gs GatherScatter, lambda float64) (*Elliptic, error) {
	if lambda < 0 {
		return nil, fmt.Errorf("elliptic: negative lambda %v", lambda)
	}
	e := &Elliptic{
		dev:    dev,
		gs:     gs,
		lambda: lambda,
		np:     m.Ref.Np,
	}

	e.oD = device.MallocFloat64(dev, m.Ref.DFlat())
	e.oGgeo = device.MallocFloat64(dev, m.Ggeo)

	nLocal := len(m.LocalOnly)
	e.nLocalFirst = nLocal / 2
	e.nLocalSecond = nLocal - e.nLocalFirst
	e.nHalo = len(m.HaloAdjacent)
	if e.nLocalFirst > 0 {
		e.oLocalFirst = device.MallocInt32(dev, m.LocalOnly[:e.nLocalFirst])
	}
	if e.nLocalSecond > 0 {
		e.oLocalSecond = device.MallocInt32(dev, m.LocalOnly[e.nLocalFirst:])
	}
	if e.nHalo > 0 {
		e.oHalo = device.MallocInt32(dev, m.HaloAdjacent)
	}

	nLocalSlots := int64(m.K * m.Ref.Np * 8)
	e.oQL = dev.Malloc(nLocalSlots, nil)
	e.oAqL = dev.Malloc(nLocalSlots, nil)

	kernel, err := dev.BuildKernel(axSource(m.Ref.Nq), "ellipticAxHex3D")
	if err != nil {
		return nil, fmt.Errorf("elliptic: %w", err)
	}
	e.kernel = kernel
	return e, nil
}

// Operator computes Aq = (K + lambda*M) q for an assembled input field
// over the partition's owned+halo range, leaving the assembled,
// rank-consistent result in Aq. Implements the solver's operator
// abstraction.
func (e *Elliptic) Operator(q, Aq device.Memory) error {
	if err := e.gs.Scatter(q, e.oQL); err != nil {
		return err
	}

	// Ordered launch groups; empty groups must not launch. The groups
	// write disjoint element ranges of AqL, so no synchronization is
	// needed between them.
	if e.nLocalFirst > 0 {
		if err := e.launch(e.nLocalFirst, e.oLocalFirst); err != nil {
			return err
		}
	}
	if e.nHalo > 0 {
		if err := e.launch(e.nHalo, e.oHalo); err != nil {
			return err
		}
	}
	if e.nLocalSecond > 0 {
		if err := e.launch(e.nLocalSecond, e.oLocalSecond); err != nil {
			return err
		}
	}

	if err := e.gs.AssembleLocal(e.oAqL, Aq); err != nil {
		return err
	}
	return e.gs.Exchange(Aq)
}

func (e *Elliptic) launch(count int, list device.Memory) error {
	return e.kernel.Run(int32(count), list, e.oGgeo, e.oD, e.lambda, e.oQL, e.oAqL)
}

// Lambda reports the operator's mass scaling.
func (e *Elliptic) Lambda() float64 { return e.lambda }

// Free releases device resources.
func (e *Elliptic) Free() {
	e.kernel.Free()
	e.oD.Free()
	e.oGgeo.Free()
	for _, mem := range []device.Memory{e.oLocalFirst, e.oHalo, e.oLocalSecond} {
		if mem != nil {
			mem.Free()
		}
	}
	e.oQL.Free()
	e.oAqL.Free()
}
