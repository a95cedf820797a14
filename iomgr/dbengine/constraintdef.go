package dbengine

import (
	"github.com/govindnetworks/siodb/iomgr/dbengine/reg"
	"github.com/govindnetworks/siodb/proto"
)

// ConstraintDefinition is the interned (type, expression) pair. Definitions
// are content-addressed: identical content within the same id partition is
// stored exactly once per database.
type ConstraintDefinition struct {
	database       *Database
	id             proto.ConstraintDefinitionID
	constraintType proto.ConstraintType
	expression     Expression
	hash           uint64
}

func (d *ConstraintDefinition) ID() proto.ConstraintDefinitionID { return d.id }
func (d *ConstraintDefinition) Type() proto.ConstraintType       { return d.constraintType }
func (d *ConstraintDefinition) Expression() Expression           { return d.expression }
func (d *ConstraintDefinition) Hash() uint64                     { return d.hash }

// IsSystemDefinition reports whether the id falls into the system range.
func (d *ConstraintDefinition) IsSystemDefinition() bool {
	return d.id < FirstUserTableConstraintDefinitionID
}

// SerializeExpression returns the stable bytes used for interning.
func (d *ConstraintDefinition) SerializeExpression() []byte {
	return d.expression.Serialize()
}

func (d *ConstraintDefinition) record() *reg.ConstraintDefinitionRecord {
	return &reg.ConstraintDefinitionRecord{
		ID:         d.id,
		Type:       d.constraintType,
		Expression: d.SerializeExpression(),
		Hash:       d.hash,
	}
}
