package mesh

import (
	"math"
	"testing"
)

func TestReferenceElementOrderBounds(t *testing.T) {
	if _, err := NewReferenceElement(0); err == nil {
		t.Fatal("expected error for order 0")
	}
	ref, err := NewReferenceElement(1)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Nq != 2 || ref.Np != 8 {
		t.Errorf("order 1: Nq=%d Np=%d", ref.Nq, ref.Np)
	}
	if ref.R[0] != -1 || ref.R[1] != 1 {
		t.Errorf("order 1 nodes: %v", ref.R)
	}
}

func TestGLLWeightsSumToTwo(t *testing.T) {
	for order := 1; order <= 8; order++ {
		ref, err := NewReferenceElement(order)
		if err != nil {
			t.Fatal(err)
		}
		sum := 0.0
		for _, w := range ref.W {
			if w <= 0 {
				t.Errorf("order %d: nonpositive weight %v", order, w)
			}
			sum += w
		}
		if math.Abs(sum-2) > 1e-12 {
			t.Errorf("order %d: weights sum to %v, want 2", order, sum)
		}
	}
}

func TestGLLNodesSymmetricAndSorted(t *testing.T) {
	for order := 2; order <= 7; order++ {
		ref, _ := NewReferenceElement(order)
		nq := ref.Nq
		if ref.R[0] != -1 || ref.R[nq-1] != 1 {
			t.Errorf("order %d: endpoints %v %v", order, ref.R[0], ref.R[nq-1])
		}
		for i := 0; i < nq; i++ {
			if math.Abs(ref.R[i]+ref.R[nq-1-i]) > 1e-12 {
				t.Errorf("order %d: nodes not symmetric: %v", order, ref.R)
			}
			if i > 0 && ref.R[i] <= ref.R[i-1] {
				t.Errorf("order %d: nodes not increasing: %v", order, ref.R)
			}
		}
	}
}

// The nodal differentiation matrix must be exact on polynomials up to the
// element order.
func TestDifferentiationMatrixExactOnPolynomials(t *testing.T) {
	for order := 1; order <= 6; order++ {
		ref, _ := NewReferenceElement(order)
		for p := 0; p <= order; p++ {
			for i := 0; i < ref.Nq; i++ {
				got := 0.0
				for j := 0; j < ref.Nq; j++ {
					got += ref.D.At(i, j) * math.Pow(ref.R[j], float64(p))
				}
				want := 0.0
				if p > 0 {
					want = float64(p) * math.Pow(ref.R[i], float64(p-1))
				}
				if math.Abs(got-want) > 1e-10 {
					t.Errorf("order %d, d/dr r^%d at node %d: got %v, want %v",
						order, p, i, got, want)
				}
			}
		}
	}
}

func TestDFlatRowMajor(t *testing.T) {
	ref, _ := NewReferenceElement(3)
	flat := ref.DFlat()
	for i := 0; i < ref.Nq; i++ {
		for j := 0; j < ref.Nq; j++ {
			if flat[i*ref.Nq+j] != ref.D.At(i, j) {
				t.Fatalf("DFlat[%d,%d] mismatch", i, j)
			}
		}
	}
}

func TestGLLQuadratureIntegratesExactly(t *testing.T) {
	// GLL with Nq points is exact through degree 2Nq-3.
	ref, _ := NewReferenceElement(4)
	maxDeg := 2*ref.Nq - 3
	for p := 0; p <= maxDeg; p++ {
		got := 0.0
		for i, w := range ref.W {
			got += w * math.Pow(ref.R[i], float64(p))
		}
		want := 0.0
		if p%2 == 0 {
			want = 2 / float64(p+1)
		}
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("integral of r^%d: got %v, want %v", p, got, want)
		}
	}
}
