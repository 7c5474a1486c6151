// Package broadphase finds nearby particles with a uniform hash grid. The
// simulation uses it to decide which actor pairs get dynamic springs.
package broadphase

import (
	"cmp"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/particles"
)

// Neighbor holds a nearby particle with its precomputed offset.
type Neighbor struct {
	H      particles.Handle
	Delta  mgl64.Vec3 // From query origin
	DistSq float64
}

type cell [3]int

type entry struct {
	h   particles.Handle
	pos mgl64.Vec3
}

// Grid buckets particle positions into cubic cells. The world is unbounded,
// so cells live in a map rather than a flat array.
type Grid struct {
	cellSize float64
	cells    map[cell][]entry
	count    int
}

// NewGrid creates an empty grid with the given cell edge length.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cell][]entry),
	}
}

// Clear removes all particles but keeps cell storage.
func (g *Grid) Clear() {
	for k, v := range g.cells {
		g.cells[k] = v[:0]
	}
	g.count = 0
}

// Len returns the number of inserted particles.
func (g *Grid) Len() int { return g.count }

func (g *Grid) cellOf(p mgl64.Vec3) cell {
	return cell{
		int(math.Floor(p[0] / g.cellSize)),
		int(math.Floor(p[1] / g.cellSize)),
		int(math.Floor(p[2] / g.cellSize)),
	}
}

// Insert adds a particle at pos.
func (g *Grid) Insert(h particles.Handle, pos mgl64.Vec3) {
	c := g.cellOf(pos)
	g.cells[c] = append(g.cells[c], entry{h: h, pos: pos})
	g.count++
}

// MaxQueryResults caps the neighbours a single query returns.
const MaxQueryResults = 128

// QueryRadiusInto appends particles within radius of pos to dst, skipping
// exclude, and returns the extended slice.
func (g *Grid) QueryRadiusInto(dst []Neighbor, pos mgl64.Vec3, radius float64, exclude particles.Handle) []Neighbor {
	reach := int(math.Ceil(radius / g.cellSize))
	center := g.cellOf(pos)
	radiusSq := radius * radius

	start := len(dst)
	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			for dz := -reach; dz <= reach; dz++ {
				for _, e := range g.cells[cell{center[0] + dx, center[1] + dy, center[2] + dz}] {
					if e.h == exclude {
						continue
					}
					d := e.pos.Sub(pos)
					distSq := d.Dot(d)
					if distSq > radiusSq {
						continue
					}
					dst = append(dst, Neighbor{H: e.h, Delta: d, DistSq: distSq})
					if len(dst)-start >= MaxQueryResults {
						return dst
					}
				}
			}
		}
	}
	return dst
}

// Pairs returns every unordered pair of inserted particles closer than
// radius. Each pair appears once with the lower entity id first, ordered by
// first then second id.
func (g *Grid) Pairs(radius float64) [][2]particles.Handle {
	var (
		out [][2]particles.Handle
		buf []Neighbor
	)
	for _, bucket := range g.cells {
		for _, e := range bucket {
			buf = g.QueryRadiusInto(buf[:0], e.pos, radius, e.h)
			for _, n := range buf {
				if e.h.ID() < n.H.ID() {
					out = append(out, [2]particles.Handle{e.h, n.H})
				}
			}
		}
	}
	sortPairs(out)
	return out
}

func sortPairs(pairs [][2]particles.Handle) {
	slices.SortFunc(pairs, func(a, b [2]particles.Handle) int {
		if c := cmp.Compare(a[0].ID(), b[0].ID()); c != 0 {
			return c
		}
		return cmp.Compare(a[1].ID(), b[1].ID())
	})
}
