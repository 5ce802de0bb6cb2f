package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mpi "github.com/fxnlabs/perfsuite/internal/comm"
	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/kernel/kerneltest"
)

func TestHaloIndices_GhostShellCoveredOnce(t *testing.T) {
	for _, tc := range []struct{ dim, h int }{{4, 1}, {5, 2}, {1, 1}} {
		ext := tc.dim + 2*tc.h
		seen := make([]int, ext*ext*ext)
		packed := 0
		for _, off := range mpi.Directions() {
			unpack := haloIndices(tc.dim, tc.h, off, false)
			pack := haloIndices(tc.dim, tc.h, off, true)
			require.Len(t, pack, len(unpack), "offset %v", off)
			packed += len(pack)
			for _, idx := range unpack {
				seen[idx]++
			}
			for _, idx := range pack {
				x, y, z := idx%ext, (idx/ext)%ext, idx/(ext*ext)
				for _, c := range []int{x, y, z} {
					assert.True(t, c >= tc.h && c < tc.dim+tc.h, "packed ghost cell %d", idx)
				}
			}
		}
		ghosts := 0
		for idx, n := range seen {
			x, y, z := idx%ext, (idx/ext)%ext, idx/(ext*ext)
			interior := true
			for _, c := range []int{x, y, z} {
				if c < tc.h || c >= tc.dim+tc.h {
					interior = false
				}
			}
			if interior {
				assert.Zero(t, n, "interior cell %d unpacked", idx)
			} else {
				ghosts++
				assert.Equal(t, 1, n, "ghost cell %d", idx)
			}
		}
		assert.Equal(t, ext*ext*ext-tc.dim*tc.dim*tc.dim, ghosts)
		assert.Equal(t, ghosts, packed)
	}
}

// expected returns what cell idx of variable v on rank r holds after an
// exchange: its own value inside, the owning neighbour's value in a ghost.
func expected(k *HaloExchange, r, v, idx int) float64 {
	ext, h, dim := k.extent(), k.halo, k.dim
	cell := [3]int{idx % ext, (idx / ext) % ext, idx / (ext * ext)}
	coords := k.div.Coords(r)
	var src [3]int
	for a, c := range cell {
		switch {
		case c < h:
			coords[a]--
			src[a] = c + dim
		case c >= dim+h:
			coords[a]++
			src[a] = c - dim
		default:
			src[a] = c
		}
	}
	owner := k.div.Rank(coords)
	return varInit(owner, v, k.numVars)(src[0] + src[1]*ext + src[2]*ext*ext)
}

func checkExchanged(t *testing.T, k *HaloExchange, name string) {
	vars, err := k.Vars()
	require.NoError(t, err)
	require.Len(t, vars, k.Ranks())
	for r, rv := range vars {
		for v, vals := range rv {
			for idx, got := range vals {
				if want := expected(k, r, v, idx); got != want {
					t.Fatalf("%s: rank %d var %d cell %d: got %v want %v", name, r, v, idx, got, want)
				}
			}
		}
	}
}

func TestHaloExchange_FillsGhostsFromNeighbours(t *testing.T) {
	cases := map[string]func(cfg *config.Config){
		"staged": func(cfg *config.Config) {},
		"device messages": func(cfg *config.Config) {
			cfg.DataSpaces.CUDAComm = "CudaDevice"
			cfg.DataSpaces.HIPComm = "HipPinned"
			cfg.DataSpaces.TargetComm = "OmpTarget"
		},
		"wide halo": func(cfg *config.Config) {
			cfg.Comm.HaloWidth = 2
			cfg.Comm.NumVars = 2
		},
		"single rank": func(cfg *config.Config) {
			cfg.Comm.Ranks = 1
		},
		"slab division": func(cfg *config.Config) {
			cfg.Comm.Ranks = 4
			cfg.Comm.Division = []int{4, 1, 1}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := kerneltest.NewEnv(t, func(cfg *config.Config) {
				cfg.Run.Size = 4 * 4 * 4
				cfg.Run.Reps = 2
				cfg.Run.GPUBlockSizes = []int{64}
			}, mutate)
			require.True(t, env.Comm.Valid)
			for _, k := range []*HaloExchange{NewHaloExchange(env), NewHaloExchangeFused(env)} {
				require.Equal(t, 4, k.Dim())
				pairs := kerneltest.Pairs(env, k)
				require.Len(t, pairs, len(k.DefinedVariants()))
				for _, p := range pairs {
					kerneltest.RunPair(t, k, p, func() { checkExchanged(t, k, k.Name()+" "+p.String()) })
				}
			}
			assert.Zero(t, env.Alloc.LiveCount())
		})
	}
}

func TestHaloExchange_Workload(t *testing.T) {
	env := kerneltest.NewHostEnv(t, func(cfg *config.Config) { cfg.Run.Size = 1000 })
	k := NewHaloExchange(env)
	fused := NewHaloExchangeFused(env)

	// 10³ interior, one cell wide halo, three variables
	shell := int64(12*12*12 - 10*10*10)
	assert.Equal(t, 3*shell, k.ItsPerRep())
	assert.Equal(t, k.ItsPerRep(), fused.ItsPerRep())
	assert.Equal(t, int64(2*26*3), k.KernelsPerRep())
	assert.Equal(t, int64(2), fused.KernelsPerRep())
	assert.Equal(t, 8, k.Ranks())
	assert.Equal(t, "Comm_HALOEXCHANGE_FUSED", fused.Name())
}
