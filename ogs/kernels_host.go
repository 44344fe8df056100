package ogs

import "github.com/notargets/hexbone/device"

// Host-backend implementations of the gather-scatter kernels, registered
// under the same entry names as the OKL sources.
func init() {
	device.RegisterHostKernel("ogsScatter", func(device.Defines) device.HostFunc {
		return func(args ...interface{}) error {
			nlocal := args[0].(int32)
			elmToDof := args[1].(*device.HostMemory).Int32s()
			q := args[2].(*device.HostMemory).Float64s()
			qL := args[3].(*device.HostMemory).Float64s()
			for n := int32(0); n < nlocal; n++ {
				qL[n] = q[elmToDof[n]]
			}
			return nil
		}
	})

	device.RegisterHostKernel("ogsGatherAssemble", func(device.Defines) device.HostFunc {
		return func(args ...interface{}) error {
			ndofs := args[0].(int32)
			offsets := args[1].(*device.HostMemory).Int32s()
			ids := args[2].(*device.HostMemory).Int32s()
			qL := args[3].(*device.HostMemory).Float64s()
			q := args[4].(*device.HostMemory).Float64s()
			for d := int32(0); d < ndofs; d++ {
				sum := 0.0
				for i := offsets[d]; i < offsets[d+1]; i++ {
					sum += qL[ids[i]]
				}
				q[d] = sum
			}
			return nil
		}
	})
}
