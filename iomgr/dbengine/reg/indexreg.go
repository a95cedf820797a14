package reg

import (
	"sort"

	"github.com/govindnetworks/siodb/proto"
)

// IndexRegistry indexes index records by id and by unique name.
type IndexRegistry struct {
	byID   map[proto.IndexID]*IndexRecord
	byName *nameIndex
}

func NewIndexRegistry() *IndexRegistry {
	return &IndexRegistry{
		byID:   make(map[proto.IndexID]*IndexRecord),
		byName: newNameIndex(),
	}
}

func (r *IndexRegistry) Insert(rec *IndexRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	if r.byName.contains(rec.Name) {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	r.byName.insert(rec.Name, rec.ID)
	return nil
}

func (r *IndexRegistry) Erase(id proto.IndexID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.byName.erase(rec.Name)
	return nil
}

func (r *IndexRegistry) ByID(id proto.IndexID) (*IndexRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

func (r *IndexRegistry) ByName(name string) (*IndexRecord, bool) {
	id, ok := r.byName.find(name)
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

func (r *IndexRegistry) ContainsName(name string) bool {
	return r.byName.contains(name)
}

func (r *IndexRegistry) Len() int { return len(r.byID) }

func (r *IndexRegistry) All() []*IndexRecord {
	out := make([]*IndexRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IndexColumnRegistry indexes index member columns; the compound
// (index, ordinal) view keeps key parts in declaration order.
type IndexColumnRegistry struct {
	byID      map[proto.IndexColumnID]*IndexColumnRecord
	byIndexID *pairIndex
}

func NewIndexColumnRegistry() *IndexColumnRegistry {
	return &IndexColumnRegistry{
		byID:      make(map[proto.IndexColumnID]*IndexColumnRecord),
		byIndexID: newPairIndex(),
	}
}

func (r *IndexColumnRegistry) Insert(rec *IndexColumnRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	r.byIndexID.insert(rec.IndexID, uint64(rec.Ordinal), rec.ID)
	return nil
}

func (r *IndexColumnRegistry) Erase(id proto.IndexColumnID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.byIndexID.erase(rec.IndexID, uint64(rec.Ordinal))
	return nil
}

func (r *IndexColumnRegistry) ByID(id proto.IndexColumnID) (*IndexColumnRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// AscendIndex walks the key parts of one index in ordinal order.
func (r *IndexColumnRegistry) AscendIndex(
	indexID proto.IndexID, fn func(rec *IndexColumnRecord) bool,
) {
	r.byIndexID.ascendGroup(indexID, func(_, id uint64) bool {
		return fn(r.byID[id])
	})
}

func (r *IndexColumnRegistry) Len() int { return len(r.byID) }

func (r *IndexColumnRegistry) All() []*IndexColumnRecord {
	out := make([]*IndexColumnRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
