package img

import "sync/atomic"

// AccessFlags select the capabilities of cell data.
type AccessFlags uint8

const (
	// Dirty data tracks modification; clean cells are not written back.
	Dirty AccessFlags = 1 << iota
	// Volatile data may be an invalid placeholder until its load finished.
	Volatile
)

func (f AccessFlags) IsDirty() bool    { return f&Dirty != 0 }
func (f AccessFlags) IsVolatile() bool { return f&Volatile != 0 }

func (f AccessFlags) String() string {
	switch f & (Dirty | Volatile) {
	case Dirty:
		return "dirty"
	case Volatile:
		return "volatile"
	case Dirty | Volatile:
		return "dirty-volatile"
	default:
		return "plain"
	}
}

// CellData is the element storage of one cell. Which of the plain, dirty,
// volatile and dirty-volatile behaviours it has is fixed by its flags:
//   - without Dirty it cannot tell whether it changed, so IsDirty is always
//     true and it is written back on every removal;
//   - without Volatile it is always valid.
//
// Element access is not synchronized.
type CellData[T any] struct {
	elems []T
	flags AccessFlags
	dirty atomic.Bool
	valid atomic.Bool
}

// NewCellData allocates n zero elements. Volatile data starts invalid.
func NewCellData[T any](n int, flags AccessFlags) *CellData[T] {
	return WrapCellData(make([]T, n), flags, !flags.IsVolatile())
}

// WrapCellData uses elems as storage.
func WrapCellData[T any](elems []T, flags AccessFlags, valid bool) *CellData[T] {
	d := &CellData[T]{elems: elems, flags: flags}
	d.valid.Store(valid || !flags.IsVolatile())
	return d
}

func (d *CellData[T]) Flags() AccessFlags { return d.flags }
func (d *CellData[T]) Len() int           { return len(d.elems) }
func (d *CellData[T]) Get(i int) T        { return d.elems[i] }

// Set stores v at i and marks the data dirty.
func (d *CellData[T]) Set(i int, v T) {
	d.elems[i] = v
	d.SetDirty()
}

// Elems exposes the storage. Writes through it are not tracked.
func (d *CellData[T]) Elems() []T { return d.elems }

func (d *CellData[T]) IsDirty() bool { return !d.flags.IsDirty() || d.dirty.Load() }

func (d *CellData[T]) SetDirty() {
	if d.flags.IsDirty() {
		d.dirty.Store(true)
	}
}

func (d *CellData[T]) ClearDirty() { d.dirty.Store(false) }

func (d *CellData[T]) IsValid() bool { return d.valid.Load() }

func (d *CellData[T]) setValid() { d.valid.Store(true) }
