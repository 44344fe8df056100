package linalg

// OKL sources for the vector kernels. p_blockSize is prepended at build
// time by withBlockSize.

const setSource = `
@kernel void vecSet(const int N,
                    const double val,
                    double *v) {
  for (int n = 0; n < N; ++n; @tile(p_blockSize, @outer, @inner)) {
    v[n] = val;
  }
}
`

const axpySource = `
@kernel void vecAxpy(const int N,
                     const double alpha,
                     const double *x,
                     const double beta,
                     double *y) {
  for (int n = 0; n < N; ++n; @tile(p_blockSize, @outer, @inner)) {
    y[n] = alpha * x[n] + beta * y[n];
  }
}
`

const innerProdSource = `
@kernel void vecInnerProd(const int N,
                          const int Nblocks,
                          const double *x,
                          const double *y,
                          double *partial) {
  for (int b = 0; b < Nblocks; ++b; @outer) {
    @shared double s_dot[p_blockSize];

    for (int t = 0; t < p_blockSize; ++t; @inner) {
      double dot = 0.0;
      for (int n = t + b * p_blockSize; n < N; n += Nblocks * p_blockSize) {
        dot += x[n] * y[n];
      }
      s_dot[t] = dot;
    }

    for (int alive = p_blockSize / 2; alive > 0; alive /= 2) {
      for (int t = 0; t < p_blockSize; ++t; @inner) {
        if (t < alive) {
          s_dot[t] += s_dot[t + alive];
        }
      }
    }

    for (int t = 0; t < p_blockSize; ++t; @inner) {
      if (t == 0) {
        partial[b] = s_dot[0];
      }
    }
  }
}
`
