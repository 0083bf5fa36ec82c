package img

import (
	"github.com/agilira/go-errors"
)

const ErrCodeGeometry errors.ErrorCode = "IMG_INVALID_GEOMETRY"

// Grid partitions an n-dimensional image into cells of a fixed size. Cells
// at the upper border are truncated to the image. Cells and elements are
// indexed with dimension 0 varying fastest.
type Grid struct {
	dims     []int64
	cellDims []int
	gridDims []int64
}

// NewGrid validates the geometry. dims and cellDims must have the same,
// non-zero length and positive entries.
func NewGrid(dims []int64, cellDims []int) (*Grid, error) {
	if len(dims) == 0 || len(dims) != len(cellDims) {
		return nil, errors.NewWithContext(ErrCodeGeometry, "dimension count mismatch", map[string]interface{}{
			"dims":     len(dims),
			"cellDims": len(cellDims),
		})
	}
	g := &Grid{
		dims:     append([]int64(nil), dims...),
		cellDims: append([]int(nil), cellDims...),
		gridDims: make([]int64, len(dims)),
	}
	for d := range dims {
		if dims[d] <= 0 || cellDims[d] <= 0 {
			return nil, errors.NewWithContext(ErrCodeGeometry, "dimensions must be positive", map[string]interface{}{"dim": d})
		}
		g.gridDims[d] = (dims[d] + int64(cellDims[d]) - 1) / int64(cellDims[d])
	}
	return g, nil
}

func (g *Grid) NumDimensions() int { return len(g.dims) }

func (g *Grid) Dimensions() []int64 { return append([]int64(nil), g.dims...) }

func (g *Grid) CellDimensions() []int { return append([]int(nil), g.cellDims...) }

// GridDimensions returns the number of cells along each dimension.
func (g *Grid) GridDimensions() []int64 { return append([]int64(nil), g.gridDims...) }

func (g *Grid) NumCells() int64 {
	n := int64(1)
	for _, c := range g.gridDims {
		n *= c
	}
	return n
}

// Contains reports whether pos lies inside the image.
func (g *Grid) Contains(pos []int64) bool {
	if len(pos) != len(g.dims) {
		return false
	}
	for d, p := range pos {
		if p < 0 || p >= g.dims[d] {
			return false
		}
	}
	return true
}

// Locate returns the index of the cell holding pos and the element offset
// inside that cell. pos must be inside the image.
func (g *Grid) Locate(pos []int64) (cell int64, offset int) {
	var cellStep int64 = 1
	elemStep := 1
	for d, p := range pos {
		gp := p / int64(g.cellDims[d])
		cell += gp * cellStep
		cellStep *= g.gridDims[d]

		origin := gp * int64(g.cellDims[d])
		offset += int(p-origin) * elemStep
		elemStep *= g.cellSize(d, origin)
	}
	return cell, offset
}

// CellBounds returns the minimum position and the size of cell index.
func (g *Grid) CellBounds(index int64) (origin []int64, dims []int) {
	n := len(g.dims)
	origin = make([]int64, n)
	dims = make([]int, n)
	for d := 0; d < n; d++ {
		gp := index % g.gridDims[d]
		index /= g.gridDims[d]
		origin[d] = gp * int64(g.cellDims[d])
		dims[d] = g.cellSize(d, origin[d])
	}
	return origin, dims
}

func (g *Grid) cellSize(d int, origin int64) int {
	return int(min(int64(g.cellDims[d]), g.dims[d]-origin))
}

func numElements(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
