package detect

import (
	"math"
	"sort"

	"github.com/grove-data/canopy.report/internal/geo"
)

// EstimatedPointsPerCell is used for initial grid capacity estimation.
const EstimatedPointsPerCell = 4

// Index provides efficient nearest-neighbor and radius queries over a fixed
// planar point set using a regular grid. The cell size only affects query
// performance, not correctness; it should approximate the typical
// point-to-point distance. Read-only after construction.
type Index struct {
	cellSize float64
	points   []geo.Point
	grid     map[int64][]int

	// Occupied cell bounds, used to cap ring expansion in nearest queries.
	minCX, maxCX int64
	minCY, maxCY int64
}

// Neighbor is a query result: a point index and its distance to the probe.
type Neighbor struct {
	Idx  int
	Dist float64
}

// Pair is an unordered point pair (I < J) with its separation distance.
type Pair struct {
	I, J int
	Dist float64
}

// NewIndex builds a grid index over the points. When cellSize is not positive
// a heuristic derived from the bounding box is used.
func NewIndex(points []geo.Point, cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = heuristicCellSize(points)
	}
	ix := &Index{
		cellSize: cellSize,
		points:   points,
		grid:     make(map[int64][]int, len(points)/EstimatedPointsPerCell+1),
	}
	for i, p := range points {
		cx, cy := ix.cellCoord(p.X), ix.cellCoord(p.Y)
		if i == 0 {
			ix.minCX, ix.maxCX = cx, cx
			ix.minCY, ix.maxCY = cy, cy
		} else {
			ix.minCX = min(ix.minCX, cx)
			ix.maxCX = max(ix.maxCX, cx)
			ix.minCY = min(ix.minCY, cy)
			ix.maxCY = max(ix.maxCY, cy)
		}
		ix.grid[ix.cellID(cx, cy)] = append(ix.grid[ix.cellID(cx, cy)], i)
	}
	return ix
}

// maxRingFrom bounds the ring expansion needed to reach every occupied cell
// from (cx, cy).
func (ix *Index) maxRingFrom(cx, cy int64) int64 {
	r := max(cx-ix.minCX, ix.maxCX-cx)
	r = max(r, max(cy-ix.minCY, ix.maxCY-cy))
	return max(r, 0)
}

// heuristicCellSize targets roughly one point per cell over the bounding box.
func heuristicCellSize(points []geo.Point) float64 {
	if len(points) < 2 {
		return 1
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	area := (maxX - minX) * (maxY - minY)
	if area <= 0 {
		return 1
	}
	return math.Max(math.Sqrt(area/float64(len(points))), 1e-6)
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return len(ix.points) }

// Point returns the indexed point at i.
func (ix *Index) Point(i int) geo.Point { return ix.points[i] }

// Points returns the backing point slice. Callers must not mutate it.
func (ix *Index) Points() []geo.Point { return ix.points }

func (ix *Index) cellCoord(v float64) int64 {
	return int64(math.Floor(v / ix.cellSize))
}

// cellID maps signed cell coordinates to a unique key using zigzag encoding
// and Szudzik's pairing function.
func (ix *Index) cellID(cx, cy int64) int64 {
	var a, b int64
	if cx >= 0 {
		a = 2 * cx
	} else {
		a = -2*cx - 1
	}
	if cy >= 0 {
		b = 2 * cy
	} else {
		b = -2*cy - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// Nearest returns the indexed point closest to (x, y), excluding the point at
// index exclude (pass -1 to consider all points). Returns (-1, +Inf) for an
// empty index.
func (ix *Index) Nearest(x, y float64, exclude int) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	if len(ix.points) == 0 {
		return best, bestDist
	}

	cx, cy := ix.cellCoord(x), ix.cellCoord(y)

	// Expand the search ring by ring. Finding a candidate does not stop the
	// scan immediately: a closer point can sit in a later ring when the
	// probe lies near a cell edge, so rings are consumed until the ring's
	// minimum possible distance exceeds the best found.
	maxRing := ix.maxRingFrom(cx, cy)
	for ring := int64(0); ring <= maxRing; ring++ {
		if best >= 0 && float64(ring-1)*ix.cellSize > bestDist {
			break
		}
		ix.scanRing(cx, cy, ring, func(i int) {
			if i == exclude {
				return
			}
			p := ix.points[i]
			d := math.Hypot(p.X-x, p.Y-y)
			if d < bestDist {
				best, bestDist = i, d
			}
		})
	}
	return best, bestDist
}

// KNearest returns up to k indexed points closest to (x, y) in ascending
// distance order, excluding index exclude (-1 for none).
func (ix *Index) KNearest(x, y float64, k int, exclude int) []Neighbor {
	if k <= 0 || len(ix.points) == 0 {
		return nil
	}

	var found []Neighbor
	cx, cy := ix.cellCoord(x), ix.cellCoord(y)
	maxRing := ix.maxRingFrom(cx, cy)
	for ring := int64(0); ring <= maxRing; ring++ {
		if len(found) >= k {
			// The k-th best distance bounds how far a better candidate
			// can still be.
			kth := found[k-1].Dist
			if float64(ring-1)*ix.cellSize > kth {
				break
			}
		}
		ix.scanRing(cx, cy, ring, func(i int) {
			if i == exclude {
				return
			}
			p := ix.points[i]
			found = append(found, Neighbor{Idx: i, Dist: math.Hypot(p.X-x, p.Y-y)})
		})
		sort.Slice(found, func(a, b int) bool {
			if found[a].Dist != found[b].Dist {
				return found[a].Dist < found[b].Dist
			}
			return found[a].Idx < found[b].Idx
		})
		if len(found) > 4*k {
			found = found[:4*k] // keep the working set small
		}
	}
	if len(found) > k {
		found = found[:k]
	}
	return found
}

// NearestNeighborDistance returns the distance from point i to its nearest
// other indexed point.
func (ix *Index) NearestNeighborDistance(i int) float64 {
	p := ix.points[i]
	_, d := ix.Nearest(p.X, p.Y, i)
	return d
}

// Radius returns the indices of all points within r of (x, y).
func (ix *Index) Radius(x, y, r float64) []int {
	if r < 0 || len(ix.points) == 0 {
		return nil
	}
	var out []int
	r2 := r * r
	span := int64(math.Ceil(r / ix.cellSize))
	cx, cy := ix.cellCoord(x), ix.cellCoord(y)
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			for _, i := range ix.grid[ix.cellID(cx+dx, cy+dy)] {
				p := ix.points[i]
				ddx, ddy := p.X-x, p.Y-y
				if ddx*ddx+ddy*ddy <= r2 {
					out = append(out, i)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}

// PairsWithin enumerates every unordered point pair separated by at most r.
// Only neighborhood cells are scanned, keeping the cost far below an
// all-pairs sweep for realistic orchards.
func (ix *Index) PairsWithin(r float64) []Pair {
	if r <= 0 {
		return nil
	}
	var out []Pair
	r2 := r * r
	span := int64(math.Ceil(r / ix.cellSize))
	for i, p := range ix.points {
		cx, cy := ix.cellCoord(p.X), ix.cellCoord(p.Y)
		for dx := -span; dx <= span; dx++ {
			for dy := -span; dy <= span; dy++ {
				for _, j := range ix.grid[ix.cellID(cx+dx, cy+dy)] {
					if j <= i {
						continue
					}
					q := ix.points[j]
					ddx, ddy := q.X-p.X, q.Y-p.Y
					d2 := ddx*ddx + ddy*ddy
					if d2 <= r2 {
						out = append(out, Pair{I: i, J: j, Dist: math.Sqrt(d2)})
					}
				}
			}
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].I != out[b].I {
			return out[a].I < out[b].I
		}
		return out[a].J < out[b].J
	})
	return out
}

// scanRing visits every point stored in the cells of the square ring at the
// given Chebyshev radius around (cx, cy).
func (ix *Index) scanRing(cx, cy, ring int64, visit func(i int)) {
	if ring == 0 {
		for _, i := range ix.grid[ix.cellID(cx, cy)] {
			visit(i)
		}
		return
	}
	for dx := -ring; dx <= ring; dx++ {
		for dy := -ring; dy <= ring; dy++ {
			if dx > -ring && dx < ring && dy > -ring && dy < ring {
				continue // interior cells were visited on earlier rings
			}
			for _, i := range ix.grid[ix.cellID(cx+dx, cy+dy)] {
				visit(i)
			}
		}
	}
}
