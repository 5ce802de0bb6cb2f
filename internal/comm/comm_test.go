package comm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorld(t *testing.T) {
	_, err := NewWorld(0)
	assert.Error(t, err)

	w, err := NewWorld(4)
	require.NoError(t, err)
	assert.Equal(t, 4, w.Size())
}

func TestWorld_Ring(t *testing.T) {
	w, err := NewWorld(5)
	require.NoError(t, err)

	got := make([][]float64, w.Size())
	for rep := 0; rep < 3; rep++ {
		err = w.Run(context.Background(), func(c *Comm) error {
			left := (c.Rank() + c.Size() - 1) % c.Size()
			right := (c.Rank() + 1) % c.Size()

			in := make([]float64, 2)
			recv := []*Request{c.Irecv(in, left, 7)}
			send := []*Request{c.Isend([]float64{float64(c.Rank()), float64(rep)}, right, 7)}

			idx, err := WaitAny(recv)
			if err != nil {
				return err
			}
			if idx != 0 {
				return errors.New("unexpected request index")
			}
			got[c.Rank()] = in
			if idx, _ := WaitAny(recv); idx != -1 {
				return errors.New("completed request not cleared")
			}
			return WaitAll(send)
		})
		require.NoError(t, err)
		for r, in := range got {
			assert.Equal(t, []float64{float64((r + 4) % 5), float64(rep)}, in)
		}
	}
}

func TestWorld_TagsKeepMessagesApart(t *testing.T) {
	w, err := NewWorld(1)
	require.NoError(t, err)

	err = w.Run(context.Background(), func(c *Comm) error {
		a, b := make([]float64, 1), make([]float64, 1)
		reqs := []*Request{c.Irecv(a, 0, 1), c.Irecv(b, 0, 2)}
		c.Isend([]float64{2}, 0, 2)
		c.Isend([]float64{1}, 0, 1)
		if err := WaitAll(reqs); err != nil {
			return err
		}
		assert.Equal(t, []float64{1}, a)
		assert.Equal(t, []float64{2}, b)
		return nil
	})
	require.NoError(t, err)
}

func TestWorld_LengthMismatch(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)

	err = w.Run(context.Background(), func(c *Comm) error {
		if c.Rank() == 0 {
			return WaitAll([]*Request{c.Isend([]float64{1, 2, 3}, 1, 0)})
		}
		return c.Irecv(make([]float64, 2), 0, 0).Err()
	})
	assert.ErrorContains(t, err, "message of 3 elements")
}

func TestWorld_AbortUnblocksRanks(t *testing.T) {
	w, err := NewWorld(3)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = w.Run(context.Background(), func(c *Comm) error {
		if c.Rank() == 0 {
			return boom
		}
		// never sent
		return c.Irecv(make([]float64, 1), 0, 0).Err()
	})
	assert.ErrorIs(t, err, boom)

	// the world stays usable
	err = w.Run(context.Background(), func(c *Comm) error { return c.Barrier() })
	assert.NoError(t, err)
}

func TestBarrier(t *testing.T) {
	w, err := NewWorld(4)
	require.NoError(t, err)

	var before atomic.Int32
	err = w.Run(context.Background(), func(c *Comm) error {
		for round := int32(1); round <= 3; round++ {
			before.Add(1)
			if err := c.Barrier(); err != nil {
				return err
			}
			if before.Load() < round*4 {
				return errors.New("barrier released early")
			}
			if err := c.Barrier(); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestDivision(t *testing.T) {
	tests := []struct {
		size int
		want Division
	}{
		{1, Division{1, 1, 1}},
		{2, Division{2, 1, 1}},
		{8, Division{2, 2, 2}},
		{12, Division{3, 2, 2}},
		{7, Division{7, 1, 1}},
		{27, Division{3, 3, 3}},
	}
	for _, tt := range tests {
		got := Factor(tt.size)
		assert.Equal(t, tt.want, got, "size %d", tt.size)
		assert.True(t, ValidDivision(tt.size, got))
	}

	assert.False(t, ValidDivision(8, Division{2, 2, 1}))
	assert.False(t, ValidDivision(8, Division{8, 1, 0}))

	d, err := NewDivision(8, []int{4, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, Division{4, 2, 1}, d)

	_, err = NewDivision(8, []int{3, 3, 1})
	assert.Error(t, err)
	_, err = NewDivision(8, []int{8})
	assert.Error(t, err)
}

func TestNeighbors(t *testing.T) {
	d := Division{3, 3, 3}
	centre := d.Rank([3]int{1, 1, 1})
	nbrs := d.Neighbors(centre)
	require.Len(t, nbrs, NumNeighbors)

	seen := map[int]bool{}
	for _, n := range nbrs {
		seen[n.Rank] = true
		assert.Equal(t, [3]int{-n.Offset[0], -n.Offset[1], -n.Offset[2]}, nbrs[n.Opposite].Offset)
	}
	assert.Len(t, seen, 26, "every other rank of a 3x3x3 grid is a neighbour")
	assert.False(t, seen[centre])

	// periodic wrap on a single rank
	for _, n := range (Division{1, 1, 1}).Neighbors(0) {
		assert.Equal(t, 0, n.Rank)
	}
}
