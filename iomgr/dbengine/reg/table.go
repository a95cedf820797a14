package reg

import (
	"errors"
	"sort"

	"github.com/govindnetworks/siodb/proto"
)

var (
	// ErrAlreadyExists is returned when an insert collides on any unique index.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNotFound is returned when a replace or erase misses.
	ErrNotFound = errors.New("record not found")
)

// TableRegistry holds table records indexed by id and by unique name.
// All methods must be called under the owning database's mutex.
type TableRegistry struct {
	byID   map[proto.TableID]*TableRecord
	byName *nameIndex
}

func NewTableRegistry() *TableRegistry {
	return &TableRegistry{
		byID:   make(map[proto.TableID]*TableRecord),
		byName: newNameIndex(),
	}
}

func (r *TableRegistry) Insert(rec *TableRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	if r.byName.contains(rec.Name) {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	r.byName.insert(rec.Name, uint64(rec.ID))
	return nil
}

// Replace re-indexes the record with the same id. The id is immutable; the
// name may change as long as it remains unique.
func (r *TableRegistry) Replace(rec *TableRecord) error {
	old, ok := r.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.Name != old.Name {
		if r.byName.contains(rec.Name) {
			return ErrAlreadyExists
		}
		r.byName.erase(old.Name)
		r.byName.insert(rec.Name, uint64(rec.ID))
	}
	r.byID[rec.ID] = rec
	return nil
}

func (r *TableRegistry) Erase(id proto.TableID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.byName.erase(rec.Name)
	return nil
}

func (r *TableRegistry) ByID(id proto.TableID) (*TableRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

func (r *TableRegistry) ByName(name string) (*TableRecord, bool) {
	id, ok := r.byName.find(name)
	if !ok {
		return nil, false
	}
	return r.byID[proto.TableID(id)], true
}

func (r *TableRegistry) ContainsName(name string) bool {
	return r.byName.contains(name)
}

// AscendName walks records in ascending name order while fn returns true.
func (r *TableRegistry) AscendName(fn func(rec *TableRecord) bool) {
	r.byName.ascend(func(_ string, id uint64) bool {
		return fn(r.byID[proto.TableID(id)])
	})
}

func (r *TableRegistry) Len() int { return len(r.byID) }

func (r *TableRegistry) Empty() bool { return len(r.byID) == 0 }

// All returns records ordered by id, for snapshots.
func (r *TableRegistry) All() []*TableRecord {
	out := make([]*TableRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
