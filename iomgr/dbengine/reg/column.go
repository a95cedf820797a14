package reg

import (
	"sort"

	"github.com/govindnetworks/siodb/proto"
)

// ColumnRegistry indexes column records by id and by (table, name).
type ColumnRegistry struct {
	byID           map[proto.ColumnID]*ColumnRecord
	byTableAndName map[proto.TableID]*nameIndex
}

func NewColumnRegistry() *ColumnRegistry {
	return &ColumnRegistry{
		byID:           make(map[proto.ColumnID]*ColumnRecord),
		byTableAndName: make(map[proto.TableID]*nameIndex),
	}
}

func (r *ColumnRegistry) tableIndex(tableID proto.TableID) *nameIndex {
	ix, ok := r.byTableAndName[tableID]
	if !ok {
		ix = newNameIndex()
		r.byTableAndName[tableID] = ix
	}
	return ix
}

func (r *ColumnRegistry) Insert(rec *ColumnRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	ix := r.tableIndex(rec.TableID)
	if ix.contains(rec.Name) {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	ix.insert(rec.Name, rec.ID)
	return nil
}

func (r *ColumnRegistry) Replace(rec *ColumnRecord) error {
	old, ok := r.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	ix := r.tableIndex(rec.TableID)
	if rec.Name != old.Name {
		if ix.contains(rec.Name) {
			return ErrAlreadyExists
		}
		r.tableIndex(old.TableID).erase(old.Name)
		ix.insert(rec.Name, rec.ID)
	}
	r.byID[rec.ID] = rec
	return nil
}

func (r *ColumnRegistry) Erase(id proto.ColumnID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.tableIndex(rec.TableID).erase(rec.Name)
	return nil
}

func (r *ColumnRegistry) ByID(id proto.ColumnID) (*ColumnRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

func (r *ColumnRegistry) ByTableAndName(tableID proto.TableID, name string) (*ColumnRecord, bool) {
	ix, ok := r.byTableAndName[tableID]
	if !ok {
		return nil, false
	}
	id, ok := ix.find(name)
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

func (r *ColumnRegistry) Len() int { return len(r.byID) }

func (r *ColumnRegistry) All() []*ColumnRecord {
	out := make([]*ColumnRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ColumnSetRegistry indexes column set records by id.
type ColumnSetRegistry struct {
	byID map[proto.ColumnSetID]*ColumnSetRecord
}

func NewColumnSetRegistry() *ColumnSetRegistry {
	return &ColumnSetRegistry{byID: make(map[proto.ColumnSetID]*ColumnSetRecord)}
}

func (r *ColumnSetRegistry) Insert(rec *ColumnSetRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	return nil
}

func (r *ColumnSetRegistry) Replace(rec *ColumnSetRecord) error {
	if _, ok := r.byID[rec.ID]; !ok {
		return ErrNotFound
	}
	r.byID[rec.ID] = rec
	return nil
}

func (r *ColumnSetRegistry) Erase(id proto.ColumnSetID) error {
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *ColumnSetRegistry) ByID(id proto.ColumnSetID) (*ColumnSetRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

func (r *ColumnSetRegistry) Len() int { return len(r.byID) }

func (r *ColumnSetRegistry) All() []*ColumnSetRecord {
	out := make([]*ColumnSetRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ColumnSetColumnRegistry indexes the members of column sets; the compound
// (column set, position) view keeps them in declaration order.
type ColumnSetColumnRegistry struct {
	byID          map[proto.ColumnSetColumnID]*ColumnSetColumnRecord
	byColumnSetID *pairIndex
}

func NewColumnSetColumnRegistry() *ColumnSetColumnRegistry {
	return &ColumnSetColumnRegistry{
		byID:          make(map[proto.ColumnSetColumnID]*ColumnSetColumnRecord),
		byColumnSetID: newPairIndex(),
	}
}

func (r *ColumnSetColumnRegistry) Insert(rec *ColumnSetColumnRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	r.byColumnSetID.insert(rec.ColumnSetID, uint64(rec.Position), rec.ID)
	return nil
}

func (r *ColumnSetColumnRegistry) Erase(id proto.ColumnSetColumnID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.byColumnSetID.erase(rec.ColumnSetID, uint64(rec.Position))
	return nil
}

func (r *ColumnSetColumnRegistry) ByID(id proto.ColumnSetColumnID) (*ColumnSetColumnRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// AscendColumnSet walks the members of the given column set in position order.
func (r *ColumnSetColumnRegistry) AscendColumnSet(
	columnSetID proto.ColumnSetID, fn func(rec *ColumnSetColumnRecord) bool,
) {
	r.byColumnSetID.ascendGroup(columnSetID, func(_, id uint64) bool {
		return fn(r.byID[id])
	})
}

func (r *ColumnSetColumnRegistry) Len() int { return len(r.byID) }

func (r *ColumnSetColumnRegistry) All() []*ColumnSetColumnRecord {
	out := make([]*ColumnSetColumnRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ColumnDefinitionRegistry indexes column definitions by id and by the
// compound (column id, id) key used for definition history scans.
type ColumnDefinitionRegistry struct {
	byID            map[proto.ColumnDefinitionID]*ColumnDefinitionRecord
	byColumnIDAndID *pairIndex
}

func NewColumnDefinitionRegistry() *ColumnDefinitionRegistry {
	return &ColumnDefinitionRegistry{
		byID:            make(map[proto.ColumnDefinitionID]*ColumnDefinitionRecord),
		byColumnIDAndID: newPairIndex(),
	}
}

func (r *ColumnDefinitionRegistry) Insert(rec *ColumnDefinitionRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	r.byColumnIDAndID.insert(rec.ColumnID, rec.ID, rec.ID)
	return nil
}

func (r *ColumnDefinitionRegistry) Replace(rec *ColumnDefinitionRecord) error {
	old, ok := r.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if old.ColumnID != rec.ColumnID {
		r.byColumnIDAndID.erase(old.ColumnID, old.ID)
		r.byColumnIDAndID.insert(rec.ColumnID, rec.ID, rec.ID)
	}
	r.byID[rec.ID] = rec
	return nil
}

func (r *ColumnDefinitionRegistry) Erase(id proto.ColumnDefinitionID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.byColumnIDAndID.erase(rec.ColumnID, rec.ID)
	return nil
}

func (r *ColumnDefinitionRegistry) ByID(id proto.ColumnDefinitionID) (*ColumnDefinitionRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// LatestForColumn returns the greatest definition id recorded for the column.
func (r *ColumnDefinitionRegistry) LatestForColumn(
	columnID proto.ColumnID,
) (proto.ColumnDefinitionID, bool) {
	_, id, ok := r.byColumnIDAndID.last(columnID)
	return id, ok
}

func (r *ColumnDefinitionRegistry) Len() int { return len(r.byID) }

func (r *ColumnDefinitionRegistry) Empty() bool { return len(r.byID) == 0 }

func (r *ColumnDefinitionRegistry) All() []*ColumnDefinitionRecord {
	out := make([]*ColumnDefinitionRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ColumnDefinitionConstraintRegistry links column definitions to constraints.
type ColumnDefinitionConstraintRegistry struct {
	byID                 map[proto.ColumnDefinitionID]*ColumnDefinitionConstraintRecord
	byColumnDefinitionID *pairIndex
}

func NewColumnDefinitionConstraintRegistry() *ColumnDefinitionConstraintRegistry {
	return &ColumnDefinitionConstraintRegistry{
		byID:                 make(map[proto.ColumnDefinitionID]*ColumnDefinitionConstraintRecord),
		byColumnDefinitionID: newPairIndex(),
	}
}

func (r *ColumnDefinitionConstraintRegistry) Insert(rec *ColumnDefinitionConstraintRecord) error {
	if _, ok := r.byID[rec.ID]; ok {
		return ErrAlreadyExists
	}
	r.byID[rec.ID] = rec
	r.byColumnDefinitionID.insert(rec.ColumnDefinitionID, rec.ID, rec.ID)
	return nil
}

func (r *ColumnDefinitionConstraintRegistry) Erase(id proto.ColumnDefinitionID) error {
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	r.byColumnDefinitionID.erase(rec.ColumnDefinitionID, rec.ID)
	return nil
}

func (r *ColumnDefinitionConstraintRegistry) ByID(
	id proto.ColumnDefinitionID,
) (*ColumnDefinitionConstraintRecord, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// AscendColumnDefinition walks constraint links of one column definition.
func (r *ColumnDefinitionConstraintRegistry) AscendColumnDefinition(
	columnDefinitionID proto.ColumnDefinitionID,
	fn func(rec *ColumnDefinitionConstraintRecord) bool,
) {
	r.byColumnDefinitionID.ascendGroup(columnDefinitionID, func(_, id uint64) bool {
		return fn(r.byID[id])
	})
}

func (r *ColumnDefinitionConstraintRegistry) Len() int { return len(r.byID) }

func (r *ColumnDefinitionConstraintRegistry) All() []*ColumnDefinitionConstraintRecord {
	out := make([]*ColumnDefinitionConstraintRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
