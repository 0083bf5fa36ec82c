package img

import (
	"context"

	"github.com/IvanBrykalov/cellcache/cache"
)

// Cell is one block of an image: its position, size and data. It is the
// value type of the cell caches and forwards the dirty and validity state of
// its data, so removers and volatile caches can act on it.
type Cell[T any] struct {
	Min  []int64
	Dims []int
	Data *CellData[T]
}

var (
	_ cache.Dirty         = (*Cell[byte])(nil)
	_ cache.DirtyClearer  = (*Cell[byte])(nil)
	_ cache.VolatileValue = (*Cell[byte])(nil)
)

func (c *Cell[T]) IsDirty() bool { return c.Data.IsDirty() }
func (c *Cell[T]) SetDirty()     { c.Data.SetDirty() }
func (c *Cell[T]) ClearDirty()   { c.Data.ClearDirty() }
func (c *Cell[T]) IsValid() bool { return c.Data.IsValid() }

// NumElements returns the number of elements of the cell.
func (c *Cell[T]) NumElements() int { return numElements(c.Dims) }

// Index returns the offset of the image position pos inside the cell.
func (c *Cell[T]) Index(pos []int64) int {
	i, step := 0, 1
	for d, p := range pos {
		i += int(p-c.Min[d]) * step
		step *= c.Dims[d]
	}
	return i
}

// SingleCell is the view a CellLoader fills. Writes through it do not mark
// the cell dirty; a loader that wants the populated content written back
// calls SetDirty explicitly.
type SingleCell[T any] struct {
	cell *Cell[T]
}

func (s SingleCell[T]) Min() []int64 { return s.cell.Min }
func (s SingleCell[T]) Dims() []int  { return s.cell.Dims }

// Elems returns the cell storage, dimension 0 varying fastest.
func (s SingleCell[T]) Elems() []T { return s.cell.Data.elems }

func (s SingleCell[T]) Get(pos ...int64) T    { return s.cell.Data.elems[s.cell.Index(pos)] }
func (s SingleCell[T]) Set(v T, pos ...int64) { s.cell.Data.elems[s.cell.Index(pos)] = v }

// SetDirty flags the cell as modified if its data tracks modification.
func (s SingleCell[T]) SetDirty() { s.cell.Data.SetDirty() }

// Each calls fn with the image position of every element, in storage order.
func (s SingleCell[T]) Each(fn func(i int, pos []int64)) {
	n := len(s.cell.Dims)
	pos := append([]int64(nil), s.cell.Min...)
	total := s.cell.NumElements()
	for i := 0; i < total; i++ {
		fn(i, pos)
		for d := 0; d < n; d++ {
			pos[d]++
			if pos[d] < s.cell.Min[d]+int64(s.cell.Dims[d]) {
				break
			}
			pos[d] = s.cell.Min[d]
		}
	}
}

// CellLoader fills a freshly allocated cell with data.
type CellLoader[T any] interface {
	LoadCell(ctx context.Context, cell SingleCell[T]) error
}

// CellLoaderFunc adapts a plain function to CellLoader.
type CellLoaderFunc[T any] func(ctx context.Context, cell SingleCell[T]) error

func (f CellLoaderFunc[T]) LoadCell(ctx context.Context, cell SingleCell[T]) error { return f(ctx, cell) }

// LoadedCellCacheLoader loads cells by index: it allocates the cell data
// for the grid position and lets a CellLoader populate it. It is also a
// VolatileLoader whose placeholders are zero-filled, invalid cells.
type LoadedCellCacheLoader[T any] struct {
	grid   *Grid
	flags  AccessFlags
	loader CellLoader[T]
}

var _ cache.VolatileLoader[int64, *Cell[byte]] = (*LoadedCellCacheLoader[byte])(nil)

func NewLoadedCellCacheLoader[T any](grid *Grid, loader CellLoader[T], flags AccessFlags) *LoadedCellCacheLoader[T] {
	return &LoadedCellCacheLoader[T]{grid: grid, flags: flags, loader: loader}
}

func (l *LoadedCellCacheLoader[T]) Flags() AccessFlags { return l.flags }

func (l *LoadedCellCacheLoader[T]) Load(ctx context.Context, index int64) (*Cell[T], error) {
	c := l.newCell(index)
	if err := l.loader.LoadCell(ctx, SingleCell[T]{cell: c}); err != nil {
		return nil, err
	}
	c.Data.setValid()
	return c, nil
}

func (l *LoadedCellCacheLoader[T]) CreateInvalid(_ context.Context, index int64) (*Cell[T], error) {
	return l.newCell(index), nil
}

func (l *LoadedCellCacheLoader[T]) newCell(index int64) *Cell[T] {
	origin, dims := l.grid.CellBounds(index)
	return &Cell[T]{Min: origin, Dims: dims, Data: NewCellData[T](numElements(dims), l.flags)}
}
