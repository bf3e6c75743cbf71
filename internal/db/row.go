package db

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the SQLite storage class of a cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Cell is one nullable value. Value holds the textual form for every kind
// except blobs, where it holds the raw bytes.
type Cell struct {
	Kind  Kind
	Value string
}

// Null returns a NULL cell.
func Null() Cell { return Cell{} }

// Text returns a text cell.
func Text(s string) Cell { return Cell{Kind: KindText, Value: s} }

// Integer returns an integer cell.
func Integer(v int64) Cell { return Cell{Kind: KindInteger, Value: strconv.FormatInt(v, 10)} }

// Blob returns a blob cell.
func Blob(b []byte) Cell { return Cell{Kind: KindBlob, Value: string(b)} }

// IsNull reports whether the cell is NULL.
func (c Cell) IsNull() bool { return c.Kind == KindNull }

// Row is a positional record aligned to the column order of the table it was
// read from. Rows are mutated in place by the merge engine.
type Row struct {
	cells []Cell
}

// NewRow builds a row from cells.
func NewRow(cells ...Cell) *Row {
	return &Row{cells: cells}
}

// Len returns the number of cells.
func (r *Row) Len() int { return len(r.cells) }

// Get returns the cell at index i.
func (r *Row) Get(i int) Cell { return r.cells[i] }

// Set replaces the cell at index i.
func (r *Row) Set(i int, c Cell) { r.cells[i] = c }

// SetNull clears the cell at index i.
func (r *Row) SetNull(i int) { r.cells[i] = Null() }

// Cells returns a copy of the row's cells.
func (r *Row) Cells() []Cell {
	return append([]Cell(nil), r.cells...)
}

// Int64 parses the cell at index i as an integer. ok is false for NULL.
func (r *Row) Int64(i int) (v int64, ok bool, err error) {
	c := r.cells[i]
	if c.IsNull() {
		return 0, false, nil
	}
	v, err = strconv.ParseInt(strings.TrimSpace(c.Value), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cell %d is not an integer (%s %q)", i, c.Kind, c.Value)
	}
	return v, true, nil
}

// SetInt64 stores an integer at index i.
func (r *Row) SetInt64(i int, v int64) {
	r.cells[i] = Integer(v)
}

// Remove drops the cells at the given indices. Indices refer to positions
// before removal and may be given in any order.
func (r *Row) Remove(indices []int) {
	if len(indices) == 0 {
		return
	}
	sorted := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, i := range sorted {
		r.cells = append(r.cells[:i], r.cells[i+1:]...)
	}
}

// String renders the row as an SQL values tuple.
func (r *Row) String() string {
	return EncodeRow(r)
}
