package ogs

const scatterSource = `
#define p_blockSize 256

@kernel void ogsScatter(const int Nlocal,
                        const int *elmToDof,
                        const double *q,
                        double *qL) {
  for (int n = 0; n < Nlocal; ++n; @tile(p_blockSize, @outer, @inner)) {
    qL[n] = q[elmToDof[n]];
  }
}
`

const assembleSource = `
#define p_blockSize 256

@kernel void ogsGatherAssemble(const int Ndofs,
                               const int *gatherOffsets,
                               const int *gatherIds,
                               const double *qL,
                               double *q) {
  for (int d = 0; d < Ndofs; ++d; @tile(p_blockSize, @outer, @inner)) {
    const int start = gatherOffsets[d];
    const int end   = gatherOffsets[d + 1];
    double sum = 0.0;
    for (int i = start; i < end; ++i) {
      sum += qL[gatherIds[i]];
    }
    q[d] = sum;
  }
}
`
