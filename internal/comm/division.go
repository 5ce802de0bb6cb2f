package comm

import (
	"fmt"
)

// Division is the number of ranks along each of three dimensions.
type Division [3]int

// ValidDivision reports whether dims splits size ranks exactly.
func ValidDivision(size int, dims Division) bool {
	if size < 1 {
		return false
	}
	for _, d := range dims {
		if d < 1 {
			return false
		}
	}
	return dims[0]*dims[1]*dims[2] == size
}

// Factor returns the most cube-like division of size ranks, with the
// largest extent first.
func Factor(size int) Division {
	best := Division{size, 1, 1}
	bestSpread := size - 1
	for a := 1; a <= size; a++ {
		if size%a != 0 {
			continue
		}
		for b := 1; b <= a; b++ {
			if (size/a)%b != 0 {
				continue
			}
			c := size / a / b
			if c > b {
				continue
			}
			if spread := a - c; spread < bestSpread {
				best, bestSpread = Division{a, b, c}, spread
			}
		}
	}
	return best
}

// NewDivision resolves a configured division: empty dims are factored from
// size, otherwise dims must have three entries whose product is size.
func NewDivision(size int, dims []int) (Division, error) {
	if len(dims) == 0 {
		if size < 1 {
			return Division{}, fmt.Errorf("cannot divide %d ranks", size)
		}
		return Factor(size), nil
	}
	if len(dims) != 3 {
		return Division{}, fmt.Errorf("division needs 3 dimensions, got %d", len(dims))
	}
	d := Division{dims[0], dims[1], dims[2]}
	if !ValidDivision(size, d) {
		return Division{}, fmt.Errorf("division %v does not split %d ranks", dims, size)
	}
	return d, nil
}

// Size returns the number of ranks.
func (d Division) Size() int { return d[0] * d[1] * d[2] }

// Coords returns the position of rank in the rank grid, x fastest.
func (d Division) Coords(rank int) [3]int {
	return [3]int{rank % d[0], (rank / d[0]) % d[1], rank / (d[0] * d[1])}
}

// Rank returns the rank at coords, wrapping periodically.
func (d Division) Rank(coords [3]int) int {
	var c [3]int
	for k := range c {
		c[k] = ((coords[k] % d[k]) + d[k]) % d[k]
	}
	return c[0] + d[0]*(c[1]+d[1]*c[2])
}

// NumNeighbors is the number of face, edge and corner neighbours in 3D.
const NumNeighbors = 26

// Neighbor is one of the 26 directions around a rank's subdomain.
type Neighbor struct {
	// Index is the position of the direction in Directions.
	Index int
	// Offset is -1, 0 or 1 per dimension.
	Offset [3]int
	// Rank is the neighbouring rank, wrapping periodically.
	Rank int
	// Opposite is the index of the reverse direction; a message sent in
	// direction Index arrives from direction Opposite.
	Opposite int
}

// Directions lists the 26 neighbour offsets in a fixed order: x fastest,
// skipping the centre.
func Directions() [][3]int {
	dirs := make([][3]int, 0, NumNeighbors)
	for z := -1; z <= 1; z++ {
		for y := -1; y <= 1; y++ {
			for x := -1; x <= 1; x++ {
				if x == 0 && y == 0 && z == 0 {
					continue
				}
				dirs = append(dirs, [3]int{x, y, z})
			}
		}
	}
	return dirs
}

// Neighbors returns the 26 neighbours of rank.
func (d Division) Neighbors(rank int) []Neighbor {
	dirs := Directions()
	c := d.Coords(rank)
	out := make([]Neighbor, len(dirs))
	for l, off := range dirs {
		out[l] = Neighbor{
			Index:    l,
			Offset:   off,
			Rank:     d.Rank([3]int{c[0] + off[0], c[1] + off[1], c[2] + off[2]}),
			Opposite: len(dirs) - 1 - l,
		}
	}
	return out
}
