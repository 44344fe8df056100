package linalg

import "github.com/notargets/hexbone/device"

// Host-backend vector kernels. The inner product mirrors the device
// kernel's block striding so both backends reduce in the same order.
func init() {
	device.RegisterHostKernel("vecSet", func(device.Defines) device.HostFunc {
		return func(args ...interface{}) error {
			n := args[0].(int32)
			val := args[1].(float64)
			v := args[2].(*device.HostMemory).Float64s()
			for i := int32(0); i < n; i++ {
				v[i] = val
			}
			return nil
		}
	})

	device.RegisterHostKernel("vecAxpy", func(device.Defines) device.HostFunc {
		return func(args ...interface{}) error {
			n := args[0].(int32)
			alpha := args[1].(float64)
			x := args[2].(*device.HostMemory).Float64s()
			beta := args[3].(float64)
			y := args[4].(*device.HostMemory).Float64s()
			for i := int32(0); i < n; i++ {
				y[i] = alpha*x[i] + beta*y[i]
			}
			return nil
		}
	})

	device.RegisterHostKernel("vecInnerProd", func(defs device.Defines) device.HostFunc {
		blockSize := defs["p_blockSize"]
		return func(args ...interface{}) error {
			n := int(args[0].(int32))
			nblocks := int(args[1].(int32))
			x := args[2].(*device.HostMemory).Float64s()
			y := args[3].(*device.HostMemory).Float64s()
			partial := args[4].(*device.HostMemory).Float64s()
			stride := nblocks * blockSize
			for b := 0; b < nblocks; b++ {
				sum := 0.0
				for t := 0; t < blockSize; t++ {
					for i := t + b*blockSize; i < n; i += stride {
						sum += x[i] * y[i]
					}
				}
				partial[b] = sum
			}
			return nil
		}
	})
}
