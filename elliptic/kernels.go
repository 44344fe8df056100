package elliptic

import (
	"fmt"

	"github.com/notargets/hexbone/mesh"
)

// axSource bakes the polynomial order and geometric-factor layout into
// the elemental kernel as compile-time defines.
func axSource(nq int) string {
	defines := fmt.Sprintf(`
#define p_Nq %d
#define p_Np %d
#define p_Nggeo %d
#define p_G00ID %d
#define p_G01ID %d
#define p_G02ID %d
#define p_G11ID %d
#define p_G12ID %d
#define p_G22ID %d
#define p_GWJID %d
`, nq, nq*nq*nq, mesh.Nggeo,
		mesh.G00ID, mesh.G01ID, mesh.G02ID,
		mesh.G11ID, mesh.G12ID, mesh.G22ID, mesh.GWJID)
	return defines + axBody
}

const axBody = `
@kernel void ellipticAxHex3D(const int Nelements,
                             const int *elementList,
                             const double *ggeo,
                             const double *D,
                             const double lambda,
                             const double *qL,
                             double *AqL) {
  for (int eo = 0; eo < Nelements; ++eo; @outer) {
    @shared double s_D[p_Nq][p_Nq];
    @shared double s_q[p_Nq][p_Nq][p_Nq];
    @shared double s_Gqr[p_Nq][p_Nq][p_Nq];
    @shared double s_Gqs[p_Nq][p_Nq][p_Nq];
    @shared double s_Gqt[p_Nq][p_Nq][p_Nq];
    @exclusive int element;

    for (int j = 0; j < p_Nq; ++j; @inner) {
      for (int i = 0; i < p_Nq; ++i; @inner) {
        element = elementList[eo];
        s_D[j][i] = D[j * p_Nq + i];
        for (int k = 0; k < p_Nq; ++k) {
          s_q[k][j][i] = qL[element * p_Np + k * p_Nq * p_Nq + j * p_Nq + i];
        }
      }
    }

    for (int j = 0; j < p_Nq; ++j; @inner) {
      for (int i = 0; i < p_Nq; ++i; @inner) {
        for (int k = 0; k < p_Nq; ++k) {
          const int node  = k * p_Nq * p_Nq + j * p_Nq + i;
          const int gbase = element * p_Nggeo * p_Np + node;

          double qr = 0.0;
          double qs = 0.0;
          double qt = 0.0;
          for (int m = 0; m < p_Nq; ++m) {
            qr += s_D[i][m] * s_q[k][j][m];
            qs += s_D[j][m] * s_q[k][m][i];
            qt += s_D[k][m] * s_q[m][j][i];
          }

          const double G00 = ggeo[gbase + p_G00ID * p_Np];
          const double G01 = ggeo[gbase + p_G01ID * p_Np];
          const double G02 = ggeo[gbase + p_G02ID * p_Np];
          const double G11 = ggeo[gbase + p_G11ID * p_Np];
          const double G12 = ggeo[gbase + p_G12ID * p_Np];
          const double G22 = ggeo[gbase + p_G22ID * p_Np];

          s_Gqr[k][j][i] = G00 * qr + G01 * qs + G02 * qt;
          s_Gqs[k][j][i] = G01 * qr + G11 * qs + G12 * qt;
          s_Gqt[k][j][i] = G02 * qr + G12 * qs + G22 * qt;
        }
      }
    }

    for (int j = 0; j < p_Nq; ++j; @inner) {
      for (int i = 0; i < p_Nq; ++i; @inner) {
        for (int k = 0; k < p_Nq; ++k) {
          const int node = k * p_Nq * p_Nq + j * p_Nq + i;
          const double GWJ = ggeo[element * p_Nggeo * p_Np + p_GWJID * p_Np + node];

          double Aq = lambda * GWJ * s_q[k][j][i];
          for (int m = 0; m < p_Nq; ++m) {
            Aq += s_D[m][i] * s_Gqr[k][j][m];
            Aq += s_D[m][j] * s_Gqs[k][m][i];
            Aq += s_D[m][k] * s_Gqt[m][j][i];
          }
          AqL[element * p_Np + node] = Aq;
        }
      }
    }
  }
}
`
