package kernel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreivalds(t *testing.T) {
	// 2x3 · 3x2
	a := []float64{1, 2, 3, 4, 5, 6}
	b := []float64{7, 8, 9, 10, 11, 12}
	c := []float64{58, 64, 139, 154}
	rng := rand.New(rand.NewSource(1))

	assert.True(t, Freivalds(a, b, c, 2, 3, 2, 10, 1e-12, rng))

	wrong := append([]float64(nil), c...)
	wrong[3] += 1
	assert.False(t, Freivalds(a, b, wrong, 2, 3, 2, 30, 1e-12, rng))

	assert.False(t, Freivalds(a, b, c, 3, 2, 2, 10, 1e-12, rng), "shape mismatch")
	assert.False(t, Freivalds(nil, nil, nil, 0, 0, 0, 10, 1e-12, rng))
}
