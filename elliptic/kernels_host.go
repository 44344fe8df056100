package elliptic

import (
	"github.com/notargets/hexbone/device"
	"github.com/notargets/hexbone/mesh"
)

// Host mirror of the elemental kernel, specialized from the same defines
// the OKL source carries.
func init() {
	device.RegisterHostKernel("ellipticAxHex3D", func(defs device.Defines) device.HostFunc {
		nq := defs["p_Nq"]
		np := defs["p_Np"]
		return func(args ...interface{}) error {
			nelements := int(args[0].(int32))
			list := args[1].(*device.HostMemory).Int32s()
			ggeo := args[2].(*device.HostMemory).Float64s()
			d := args[3].(*device.HostMemory).Float64s()
			lambda := args[4].(float64)
			qL := args[5].(*device.HostMemory).Float64s()
			aqL := args[6].(*device.HostMemory).Float64s()

			gqr := make([]float64, np)
			gqs := make([]float64, np)
			gqt := make([]float64, np)

			node := func(i, j, k int) int { return k*nq*nq + j*nq + i }

			for eo := 0; eo < nelements; eo++ {
				element := int(list[eo])
				q := qL[element*np : (element+1)*np]
				gbase := element * mesh.Nggeo * np

				for k := 0; k < nq; k++ {
					for j := 0; j < nq; j++ {
						for i := 0; i < nq; i++ {
							qr, qs, qt := 0.0, 0.0, 0.0
							for m := 0; m < nq; m++ {
								qr += d[i*nq+m] * q[node(m, j, k)]
								qs += d[j*nq+m] * q[node(i, m, k)]
								qt += d[k*nq+m] * q[node(i, j, m)]
							}
							n := node(i, j, k)
							g00 := ggeo[gbase+mesh.G00ID*np+n]
							g01 := ggeo[gbase+mesh.G01ID*np+n]
							g02 := ggeo[gbase+mesh.G02ID*np+n]
							g11 := ggeo[gbase+mesh.G11ID*np+n]
							g12 := ggeo[gbase+mesh.G12ID*np+n]
							g22 := ggeo[gbase+mesh.G22ID*np+n]
							gqr[n] = g00*qr + g01*qs + g02*qt
							gqs[n] = g01*qr + g11*qs + g12*qt
							gqt[n] = g02*qr + g12*qs + g22*qt
						}
					}
				}

				for k := 0; k < nq; k++ {
					for j := 0; j < nq; j++ {
						for i := 0; i < nq; i++ {
							n := node(i, j, k)
							gwj := ggeo[gbase+mesh.GWJID*np+n]
							aq := lambda * gwj * q[n]
							for m := 0; m < nq; m++ {
								aq += d[m*nq+i] * gqr[node(m, j, k)]
								aq += d[m*nq+j] * gqs[node(i, m, k)]
								aq += d[m*nq+k] * gqt[node(i, j, m)]
							}
							aqL[element*np+n] = aq
						}
					}
				}
			}
			return nil
		}
	})
}
