// Package mesh provides the precomputed inputs the solver core consumes:
// reference-element nodal data (GLL points, quadrature weights, 1-D
// differentiation matrix), rank-local structured hexahedral partitions
// with owned+halo degree-of-freedom numbering, per-element geometric
// factors, and the local-only / halo-adjacent element split.
package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Reference holds the nodal data for one reference hexahedral cell of
// polynomial order N: the Nq = N+1 Gauss-Lobatto-Legendre points and
// weights on [-1,1] and the Nq x Nq differentiation matrix applied along
// each tensor direction. Immutable after construction and shared by every
// operator application.
type Reference struct {
	Order int
	Nq    int // points per direction, Order+1
	Np    int // points per element, Nq^3

	R []float64 // GLL nodes
	W []float64 // GLL quadrature weights

	D *mat.Dense // 1-D differentiation matrix, Nq x Nq
}

// NewReferenceElement builds the order-N reference data. Order must be at
// least 1.
func NewReferenceElement(order int) (*Reference, error) {
	if order < 1 {
		return nil, fmt.Errorf("mesh: reference element order %d, need >= 1", order)
	}
	nq := order + 1
	r := gaussLobatto(order)
	w := gllWeights(order, r)
	d := differentiationMatrix(r)

	return &Reference{
		Order: order,
		Nq:    nq,
		Np:    nq * nq * nq,
		R:     r,
		W:     w,
		D:     d,
	}, nil
}

// DFlat returns the differentiation matrix in row-major order for device
// upload: DFlat[i*Nq+j] = D(i,j).
func (ref *Reference) DFlat() []float64 {
	out := make([]float64, ref.Nq*ref.Nq)
	for i := 0; i < ref.Nq; i++ {
		for j := 0; j < ref.Nq; j++ {
			out[i*ref.Nq+j] = ref.D.At(i, j)
		}
	}
	return out
}

// gaussLobatto computes the N+1 Gauss-Lobatto-Legendre points: -1, 1, and
// the zeros of P'_N, obtained as the Gauss points of the Jacobi(1,1)
// weight.
func gaussLobatto(n int) []float64 {
	if n == 1 {
		return []float64{-1, 1}
	}
	interior, _ := jacobiGQ(1, 1, n-2)
	x := make([]float64, n+1)
	x[0] = -1
	copy(x[1:n], interior)
	x[n] = 1
	return x
}

// gllWeights evaluates w_i = 2 / (N(N+1) P_N(x_i)^2).
func gllWeights(n int, x []float64) []float64 {
	w := make([]float64, len(x))
	for i, xi := range x {
		p := legendre(n, xi)
		w[i] = 2 / (float64(n*(n+1)) * p * p)
	}
	return w
}

// legendre evaluates the degree-n Legendre polynomial by the three-term
// recurrence.
func legendre(n int, x float64) float64 {
	if n == 0 {
		return 1
	}
	pm1, p := 1.0, x
	for k := 1; k < n; k++ {
		pm1, p = p, ((2*float64(k)+1)*x*p-float64(k)*pm1)/float64(k+1)
	}
	return p
}

// differentiationMatrix builds the nodal differentiation matrix on the
// points x by barycentric differentiation.
func differentiationMatrix(x []float64) *mat.Dense {
	n := len(x)
	// Barycentric weights
	b := make([]float64, n)
	for i := range b {
		b[i] = 1
		for j := range x {
			if j != i {
				b[i] *= x[i] - x[j]
			}
		}
		b[i] = 1 / b[i]
	}

	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		rowSum := 0.0
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			v := b[j] / (b[i] * (x[i] - x[j]))
			d.Set(i, j, v)
			rowSum += v
		}
		d.Set(i, i, -rowSum)
	}
	return d
}

// jacobiGQ computes the N+1 Gauss quadrature points and weights of the
// Jacobi(alpha,beta) weight via the symmetric tridiagonal eigenproblem.
func jacobiGQ(alpha, beta float64, n int) (x, w []float64) {
	if n == 0 {
		return []float64{-(alpha - beta) / (alpha + beta + 2)}, []float64{2}
	}

	h1 := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		h1[i] = 2*float64(i) + alpha + beta
	}

	d0 := make([]float64, n+1)
	fac := beta*beta - alpha*alpha
	for i := 0; i <= n; i++ {
		d0[i] = fac / (h1[i] * (h1[i] + 2))
	}
	if alpha+beta < 10*2.2e-16 {
		d0[0] = 0
	}

	d1 := make([]float64, n)
	for i := 0; i < n; i++ {
		ip1 := float64(i + 1)
		d1[i] = 2 / (h1[i] + 2) * math.Sqrt(
			ip1*(ip1+alpha+beta)*(ip1+alpha)*(ip1+beta)/(h1[i]+1)/(h1[i]+3))
	}

	jj := symTriDiagonal(d0, d1)
	var eig mat.EigenSym
	if ok := eig.Factorize(jj, true); !ok {
		panic("mesh: jacobi quadrature eigenvalue decomposition failed")
	}
	x = eig.Values(nil)

	vv := mat.NewDense(len(x), len(x), nil)
	eig.VectorsTo(vv)
	w = make([]float64, len(x))
	g0 := gamma0(alpha, beta)
	for i := range w {
		v := vv.At(0, i)
		w[i] = v * v * g0
	}
	return x, w
}

func gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1
	return math.Gamma(alpha+1) * math.Gamma(beta+1) * math.Pow(2, ab1) /
		ab1 / math.Gamma(ab1)
}

func symTriDiagonal(d0, d1 []float64) *mat.SymDense {
	n := len(d0)
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, d0[i])
		if i < n-1 {
			s.SetSym(i, i+1, d1[i])
		}
	}
	return s
}
