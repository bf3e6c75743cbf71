package merge

import (
	"fmt"

	"github.com/lherron/msgmerge/internal/db"
)

// Mapping translates the row identifiers of one source table into identifiers
// of the destination table. Unmapped ids are shifted past the destination's
// largest id; overrides pin a source id onto an existing destination row.
type Mapping struct {
	offset    int64
	overrides map[int64]int64
}

// NewMapping returns a mapping that shifts every id by offset+1.
func NewMapping(offset int64) *Mapping {
	return &Mapping{
		offset:    offset,
		overrides: make(map[int64]int64),
	}
}

// ComputeOffset returns the largest identifier found at idIndex in rows, or 0
// when rows is empty.
func ComputeOffset(rows []*db.Row, idIndex int) (int64, error) {
	var largest int64
	for i, r := range rows {
		id, ok, err := r.Int64(idIndex)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		if ok && id > largest {
			largest = id
		}
	}
	return largest, nil
}

// Offset returns the destination's largest identifier at mapping time.
func (m *Mapping) Offset() int64 { return m.offset }

// Override maps sourceID onto destID. The first override registered for a
// source id wins; later ones are ignored and reported as false.
func (m *Mapping) Override(sourceID, destID int64) bool {
	if _, exists := m.overrides[sourceID]; exists {
		return false
	}
	m.overrides[sourceID] = destID
	return true
}

// Resolve returns the destination identifier for id.
func (m *Mapping) Resolve(id int64) int64 {
	if dest, ok := m.overrides[id]; ok {
		return dest
	}
	return id + m.offset + 1
}

// Overrides returns how many ids are pinned by Override.
func (m *Mapping) Overrides() int { return len(m.overrides) }
