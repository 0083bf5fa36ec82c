package img

import (
	"bytes"
	"encoding/binary"

	"github.com/agilira/go-errors"
)

const ErrCodeCodec errors.ErrorCode = "IMG_CODEC_FAILED"

// Number is the set of element types CellCodec can encode.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// CellCodec encodes cells little endian: the dimension count (uint8), the
// cell minimum (int64 each), the cell size (uint32 each), then the elements.
// Decoded cells are valid and clean and carry Flags.
type CellCodec[T Number] struct {
	Flags AccessFlags
}

func (c CellCodec[T]) Marshal(cell *Cell[T]) ([]byte, error) {
	var buf bytes.Buffer
	n := len(cell.Dims)
	buf.Grow(1 + n*12 + cell.Data.Len()*binary.Size(*new(T)))
	buf.WriteByte(byte(n))
	for _, m := range cell.Min {
		_ = binary.Write(&buf, binary.LittleEndian, m)
	}
	for _, d := range cell.Dims {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(d))
	}
	if err := binary.Write(&buf, binary.LittleEndian, cell.Data.Elems()); err != nil {
		return nil, errors.Wrap(err, ErrCodeCodec, "cannot encode cell elements")
	}
	return buf.Bytes(), nil
}

func (c CellCodec[T]) Unmarshal(b []byte) (*Cell[T], error) {
	r := bytes.NewReader(b)
	nd, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeCodec, "missing cell header")
	}
	cell := &Cell[T]{Min: make([]int64, nd), Dims: make([]int, nd)}
	if err := binary.Read(r, binary.LittleEndian, cell.Min); err != nil {
		return nil, errors.Wrap(err, ErrCodeCodec, "cannot decode cell minimum")
	}
	dims := make([]uint32, nd)
	if err := binary.Read(r, binary.LittleEndian, dims); err != nil {
		return nil, errors.Wrap(err, ErrCodeCodec, "cannot decode cell size")
	}
	for d, v := range dims {
		cell.Dims[d] = int(v)
	}
	elems := make([]T, numElements(cell.Dims))
	if err := binary.Read(r, binary.LittleEndian, elems); err != nil {
		return nil, errors.Wrap(err, ErrCodeCodec, "cannot decode cell elements").
			WithContext("elements", len(elems))
	}
	if r.Len() != 0 {
		return nil, errors.NewWithContext(ErrCodeCodec, "trailing bytes after cell", map[string]interface{}{"bytes": r.Len()})
	}
	cell.Data = WrapCellData(elems, c.Flags, true)
	return cell, nil
}
