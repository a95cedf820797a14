package reg

import (
	"sort"

	"github.com/google/uuid"

	"github.com/govindnetworks/siodb/proto"
)

// DatabaseRegistry is the instance-wide registry of databases, indexed by
// id, by unique name and by UUID.
type DatabaseRegistry struct {
	byID   map[proto.DatabaseID]*DatabaseRecord
	byName *nameIndex
	byUUID map[uuid.UUID]proto.DatabaseID
}

func NewDatabaseRegistry() *DatabaseRegistry {
	return &DatabaseRegistry{
		byID:   make(map[proto.DatabaseID]*DatabaseRecord),
		byName: newNameIndex(),
		byUUID: make(map[uuid.UUID]proto.DatabaseID),
	}
}

func (r *DatabaseRegistry) Insert(rec *DatabaseRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	if r.byName.contains(rec.Name) {
		return ErrAlreadyExists
	}
	if _, ok := r.byUUID[rec.UUID]; ok {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	r.byName.insert(rec.Name, uint64(rec.ID))
	r.byUUID[rec.UUID] = rec.ID
	return nil
}

func (r *DatabaseRegistry) Erase(id proto.DatabaseID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.byName.erase(rec.Name)
	delete(r.byUUID, rec.UUID)
	return nil
}

func (r *DatabaseRegistry) ByID(id proto.DatabaseID) (*DatabaseRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

func (r *DatabaseRegistry) ByName(name string) (*DatabaseRecord, bool) {
	id, ok := r.byName.find(name)
	if !ok {
		return nil, false
	}
	return r.byID[proto.DatabaseID(id)], true
}

func (r *DatabaseRegistry) ByUUID(u uuid.UUID) (*DatabaseRecord, bool) {
	id, ok := r.byUUID[u]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// AscendName walks records in ascending name order while fn returns true.
func (r *DatabaseRegistry) AscendName(fn func(rec *DatabaseRecord) bool) {
	r.byName.ascend(func(_ string, id uint64) bool {
		return fn(r.byID[proto.DatabaseID(id)])
	})
}

func (r *DatabaseRegistry) Len() int { return len(r.byID) }

func (r *DatabaseRegistry) All() []*DatabaseRecord {
	out := make([]*DatabaseRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UserRegistry is the instance-wide registry of users.
type UserRegistry struct {
	byID   map[proto.UserID]*UserRecord
	byName *nameIndex
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{
		byID:   make(map[proto.UserID]*UserRecord),
		byName: newNameIndex(),
	}
}

func (r *UserRegistry) Insert(rec *UserRecord) error {
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

func (r *UserRegistry) Replace(rec *UserRecord) error {
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

func (r *UserRegistry) Erase(id proto.UserID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.byName.erase(rec.Name)
	return nil
}

func (r *UserRegistry) ByID(id proto.UserID) (*UserRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

func (r *UserRegistry) ByName(name string) (*UserRecord, bool) {
	id, ok := r.byName.find(name)
	if !ok {
		return nil, false
	}
	return r.byID[proto.UserID(id)], true
}

func (r *UserRegistry) Len() int { return len(r.byID) }

func (r *UserRegistry) All() []*UserRecord {
	out := make([]*UserRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
