package solver

import "github.com/notargets/hexbone/device"

// Host mirror of the fused update, striding blocks the same way the
// device kernel does.
func init() {
	device.RegisterHostKernel("updateCGFused", func(defs device.Defines) device.HostFunc {
		blockSize := defs["p_blockSize"]
		return func(args ...interface{}) error {
			n := int(args[0].(int32))
			ntotal := int(args[1].(int32))
			nblocks := int(args[2].(int32))
			ap := args[3].(*device.HostMemory).Float64s()
			alpha := args[4].(float64)
			r := args[5].(*device.HostMemory).Float64s()
			rdotr := args[6].(*device.HostMemory).Float64s()

			stride := nblocks * blockSize
			for b := 0; b < nblocks; b++ {
				sum := 0.0
				for t := 0; t < blockSize; t++ {
					for i := t + b*blockSize; i < ntotal; i += stride {
						rn := r[i] - alpha*ap[i]
						r[i] = rn
						if i < n {
							sum += rn * rn
						}
					}
				}
				rdotr[0] += sum
			}
			return nil
		}
	})
}
