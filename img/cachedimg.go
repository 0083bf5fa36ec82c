package img

import (
	"github.com/IvanBrykalov/cellcache/cache"
)

// CachedCellImg is an image whose cells live in a cache. Element access goes
// through an unchecked view of the cache, so a failed cell load panics with
// a *cache.FatalError.
type CachedCellImg[T any] struct {
	grid  *Grid
	cache cache.Cache[int64, *Cell[T]]
	cells cache.UncheckedCache[int64, *Cell[T]]
}

func NewCachedCellImg[T any](grid *Grid, c cache.Cache[int64, *Cell[T]], opts ...cache.UncheckedOption) *CachedCellImg[T] {
	return &CachedCellImg[T]{grid: grid, cache: c, cells: cache.Unchecked(c, opts...)}
}

func (m *CachedCellImg[T]) Grid() *Grid                         { return m.grid }
func (m *CachedCellImg[T]) Cache() cache.Cache[int64, *Cell[T]] { return m.cache }

// Cell returns the cell with the given index, loading it if needed.
func (m *CachedCellImg[T]) Cell(index int64) *Cell[T] { return m.cells.Get(index) }

// Get returns the element at pos.
func (m *CachedCellImg[T]) Get(pos ...int64) T {
	index, off := m.grid.Locate(pos)
	return m.cells.Get(index).Data.Get(off)
}

// Set stores v at pos and marks the cell dirty.
func (m *CachedCellImg[T]) Set(v T, pos ...int64) {
	index, off := m.grid.Locate(pos)
	m.cells.Get(index).Data.Set(off, v)
}

// Flush writes all dirty resident cells back without evicting them.
func (m *CachedCellImg[T]) Flush() { m.cells.PersistAll() }

// VolatileCachedCellImg is an image whose cells live in a volatile cache.
// Reads never block unless the hints say so; an element of a cell that is
// still loading reads as the zero value and is reported invalid.
type VolatileCachedCellImg[T any] struct {
	grid  *Grid
	cache cache.VolatileCache[int64, *Cell[T]]
	cells cache.UncheckedVolatileCache[int64, *Cell[T]]
	hints cache.CacheHints
}

func NewVolatileCachedCellImg[T any](grid *Grid, c cache.VolatileCache[int64, *Cell[T]], hints cache.CacheHints, opts ...cache.UncheckedOption) *VolatileCachedCellImg[T] {
	return &VolatileCachedCellImg[T]{grid: grid, cache: c, cells: cache.UncheckedVolatile(c, opts...), hints: hints}
}

func (m *VolatileCachedCellImg[T]) Grid() *Grid                                 { return m.grid }
func (m *VolatileCachedCellImg[T]) Cache() cache.VolatileCache[int64, *Cell[T]] { return m.cache }
func (m *VolatileCachedCellImg[T]) Hints() cache.CacheHints                     { return m.hints }

// WithHints returns a view of the same cells that reads with other hints.
func (m *VolatileCachedCellImg[T]) WithHints(hints cache.CacheHints) *VolatileCachedCellImg[T] {
	cp := *m
	cp.hints = hints
	return &cp
}

// Cell returns the cell with the given index; it may be an invalid placeholder.
func (m *VolatileCachedCellImg[T]) Cell(index int64) *Cell[T] { return m.cells.Get(index, m.hints) }

// Get returns the element at pos and whether its cell was valid.
func (m *VolatileCachedCellImg[T]) Get(pos ...int64) (T, bool) {
	index, off := m.grid.Locate(pos)
	c := m.cells.Get(index, m.hints)
	return c.Data.Get(off), c.IsValid()
}

// Set stores v at pos and marks the cell dirty. Writing into a placeholder
// changes only the placeholder; with PropagateDirty hints the dirty mark
// carries over to the loaded cell.
func (m *VolatileCachedCellImg[T]) Set(v T, pos ...int64) {
	index, off := m.grid.Locate(pos)
	m.cells.Get(index, m.hints).Data.Set(off, v)
}
