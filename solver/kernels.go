package solver

// Fused CG update kernel: residual update over the full owned+halo range,
// squared-norm block reduction over the owned range only, accumulated
// atomically into a single device scalar. p_blockSize is prepended at
// build time.
const updateCGSource = `
@kernel void updateCGFused(const int N,
                           const int Ntotal,
                           const int Nblocks,
                           const double *Ap,
                           const double alpha,
                           double *r,
                           double *rdotr) {
  for (int b = 0; b < Nblocks; ++b; @outer) {
    @shared double s_sum[p_blockSize];

    for (int t = 0; t < p_blockSize; ++t; @inner) {
      double sum = 0.0;
      for (int n = t + b * p_blockSize; n < Ntotal; n += Nblocks * p_blockSize) {
        const double rn = r[n] - alpha * Ap[n];
        r[n] = rn;
        if (n < N) {
          sum += rn * rn;
        }
      }
      s_sum[t] = sum;
    }

    for (int alive = p_blockSize / 2; alive > 0; alive /= 2) {
      for (int t = 0; t < p_blockSize; ++t; @inner) {
        if (t < alive) {
          s_sum[t] += s_sum[t + alive];
        }
      }
    }

    for (int t = 0; t < p_blockSize; ++t; @inner) {
      if (t == 0) {
        @atomic rdotr[0] += s_sum[0];
      }
    }
  }
}
`
