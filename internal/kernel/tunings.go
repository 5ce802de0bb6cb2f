package kernel

import (
	"fmt"

	"github.com/fxnlabs/perfsuite/internal/gpu"
)

// BlockTunings concatenates the tunings build returns for every valid block
// size, in ascending block size order.
func BlockTunings(env *Env, build func(bs int) []Tuning) []Tuning {
	var out []Tuning
	for _, bs := range env.BlockSizes() {
		out = append(out, build(bs)...)
	}
	return out
}

// BlockName is the name of a plain block size tuning.
func BlockName(bs int) string { return fmt.Sprintf("block_%d", bs) }

// OccGSName is the name of an occupancy-calculated grid size tuning.
func OccGSName(bs int) string { return fmt.Sprintf("occgs_%d", bs) }

// GridSize returns the grid for n indices at block size bs. With occGS the
// grid is capped at the blocks the device can keep resident and kernels
// must stride over the range.
func GridSize(rt gpu.Runtime, n, bs, sharedMem int, occGS bool) (int, error) {
	grid := gpu.DivideCeil(n, bs)
	if !occGS {
		return max(grid, 1), nil
	}
	maxGrid, err := gpu.MaxGridSize(rt, bs, sharedMem)
	if err != nil {
		return 0, err
	}
	return max(min(grid, maxGrid), 1), nil
}

// LaunchForall launches body once per index of [0, n) with bs threads per
// block on s. It does not synchronize.
func LaunchForall(rt gpu.Runtime, s *gpu.Stream, bs, n int, body func(i int)) error {
	if n == 0 {
		return nil
	}
	cfg := gpu.LaunchConfig{Grid: gpu.D1(gpu.DivideCeil(n, bs)), Block: gpu.D1(bs)}
	return rt.Launch(cfg, s, func(b *gpu.Block) {
		b.Threads1D(func(tx int) {
			if i := b.Idx.X*b.Dim.X + tx; i < n {
				body(i)
			}
		})
	})
}
