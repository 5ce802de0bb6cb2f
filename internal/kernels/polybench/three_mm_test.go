package polybench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/kernel/kerneltest"
)

func dense(rows, cols int, gen func(int) float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = gen(i)
	}
	return mat.NewDense(rows, cols, data)
}

func TestThreeMM_Extents(t *testing.T) {
	env := kerneltest.NewHostEnv(t, func(cfg *config.Config) { cfg.Run.Size = 400 })
	k := NewThreeMM(env)
	ni, nj, nk, nl, nm := k.Extents()
	assert.Equal(t, []int{20, 21, 22, 23, 24}, []int{ni, nj, nk, nl, nm})
	assert.Equal(t, ni*nl, k.ActualProblemSize())
	assert.Equal(t, int64(3), k.KernelsPerRep())
}

func TestThreeMM_MatchesDenseProduct(t *testing.T) {
	env := kerneltest.NewEnv(t, func(cfg *config.Config) { cfg.Run.Size = 15 * 15 })
	k := NewThreeMM(env)
	ni, nj, nk, nl, nm := k.Extents()

	a := dense(ni, nk, polybenchInit(nk, 0, 1, ni))
	b := dense(nk, nj, polybenchInit(nj, 1, 2, nj))
	c := dense(nj, nm, polybenchInit(nm, 3, 0, nl))
	d := dense(nm, nl, polybenchInit(nl, 2, 2, nk))
	var e, f, want mat.Dense
	e.Mul(a, b)
	f.Mul(c, d)
	want.Mul(&e, &f)

	for _, p := range kerneltest.Pairs(env, k) {
		kerneltest.RunPair(t, k, p, func() {
			g, err := k.G()
			require.NoError(t, err)
			assert.True(t, floats.EqualApprox(want.RawMatrix().Data, g, 1e-12), p.String())
		})
	}
}
