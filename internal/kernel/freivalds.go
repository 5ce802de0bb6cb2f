package kernel

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Freivalds checks c = a·b for row-major n×m a, m×p b and n×p c without
// forming the product. Each iteration compares a(b·r) with c·r for a random
// 0/1 vector r, so a wrong product passes with probability at most
// 2^-iterations. Entries must agree within tol, absolutely or relatively.
func Freivalds(a, b, c []float64, n, m, p, iterations int, tol float64, rng *rand.Rand) bool {
	if n <= 0 || m <= 0 || p <= 0 || len(a) != n*m || len(b) != m*p || len(c) != n*p {
		return false
	}
	A := mat.NewDense(n, m, a)
	B := mat.NewDense(m, p, b)
	C := mat.NewDense(n, p, c)

	r := mat.NewVecDense(p, nil)
	var br, abr, cr mat.VecDense
	for it := 0; it < iterations; it++ {
		for j := 0; j < p; j++ {
			r.SetVec(j, float64(rng.Intn(2)))
		}
		br.MulVec(B, r)
		abr.MulVec(A, &br)
		cr.MulVec(C, r)
		if !floats.EqualApprox(abr.RawVector().Data, cr.RawVector().Data, tol) {
			return false
		}
	}
	return true
}
