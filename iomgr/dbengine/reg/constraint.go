package reg

import (
	"sort"

	"github.com/govindnetworks/siodb/proto"
)

// ConstraintRegistry indexes constraint records by id and by unique name.
type ConstraintRegistry struct {
	byID   map[proto.ConstraintID]*ConstraintRecord
	byName *nameIndex
}

func NewConstraintRegistry() *ConstraintRegistry {
	return &ConstraintRegistry{
		byID:   make(map[proto.ConstraintID]*ConstraintRecord),
		byName: newNameIndex(),
	}
}

func (r *ConstraintRegistry) Insert(rec *ConstraintRecord) error {
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

func (r *ConstraintRegistry) Replace(rec *ConstraintRecord) error {
	old, ok := r.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.Name != old.Name {
		if r.byName.contains(rec.Name) {
			return ErrAlreadyExists
		}
		r.byName.erase(old.Name)
		r.byName.insert(rec.Name, rec.ID)
	}
	r.byID[rec.ID] = rec
	return nil
}

func (r *ConstraintRegistry) Erase(id proto.ConstraintID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.byName.erase(rec.Name)
	return nil
}

func (r *ConstraintRegistry) ByID(id proto.ConstraintID) (*ConstraintRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

func (r *ConstraintRegistry) ByName(name string) (*ConstraintRecord, bool) {
	id, ok := r.byName.find(name)
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

func (r *ConstraintRegistry) ContainsName(name string) bool {
	return r.byName.contains(name)
}

func (r *ConstraintRegistry) Len() int { return len(r.byID) }

func (r *ConstraintRegistry) All() []*ConstraintRecord {
	out := make([]*ConstraintRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConstraintDefinitionRegistry indexes constraint definitions by id and by
// content hash. The hash view is an equal-range bucket scan: collisions are
// resolved by byte comparison in the caller.
type ConstraintDefinitionRegistry struct {
	byID   map[proto.ConstraintDefinitionID]*ConstraintDefinitionRecord
	byHash map[uint64][]proto.ConstraintDefinitionID
}

func NewConstraintDefinitionRegistry() *ConstraintDefinitionRegistry {
	return &ConstraintDefinitionRegistry{
		byID:   make(map[proto.ConstraintDefinitionID]*ConstraintDefinitionRecord),
		byHash: make(map[uint64][]proto.ConstraintDefinitionID),
	}
}

func (r *ConstraintDefinitionRegistry) Insert(rec *ConstraintDefinitionRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	r.byHash[rec.Hash] = append(r.byHash[rec.Hash], rec.ID)
	return nil
}

func (r *ConstraintDefinitionRegistry) Erase(id proto.ConstraintDefinitionID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	bucket := r.byHash[rec.Hash]
	for i, bid := range bucket {
		if bid == id {
			r.byHash[rec.Hash] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(r.byHash[rec.Hash]) == 0 {
		delete(r.byHash, rec.Hash)
	}
	return nil
}

func (r *ConstraintDefinitionRegistry) ByID(
	id proto.ConstraintDefinitionID,
) (*ConstraintDefinitionRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// ByHash walks the records in the given hash bucket while fn returns true.
func (r *ConstraintDefinitionRegistry) ByHash(
	hash uint64, fn func(rec *ConstraintDefinitionRecord) bool,
) {
	for _, id := range r.byHash[hash] {
		if !fn(r.byID[id]) {
			return
		}
	}
}

func (r *ConstraintDefinitionRegistry) Len() int { return len(r.byID) }

func (r *ConstraintDefinitionRegistry) All() []*ConstraintDefinitionRecord {
	out := make([]*ConstraintDefinitionRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
