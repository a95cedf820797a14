package dbengine

import (
	"fmt"

	"github.com/govindnetworks/siodb/proto"
)

// Constraint is a named attachment of a constraint definition to a table and
// optionally to one of its columns. Constraint kinds differ only in their
// target and definition type, so a single tagged object models all of them.
type Constraint struct {
	id         proto.ConstraintID
	name       string
	table      *Table
	column     *Column // nil for table-level constraints
	definition *ConstraintDefinition
}

func (c *Constraint) ID() proto.ConstraintID { return c.id }
func (c *Constraint) Name() string           { return c.name }
func (c *Constraint) Table() *Table          { return c.table }

// Column returns the target column, or nil for a table constraint.
func (c *Constraint) Column() *Column { return c.column }

func (c *Constraint) Definition() *ConstraintDefinition { return c.definition }

func (c *Constraint) Type() proto.ConstraintType { return c.definition.constraintType }

func constraintTypeToken(t proto.ConstraintType) string {
	switch t {
	case proto.ConstraintTypeNotNull:
		return "NN"
	case proto.ConstraintTypeDefaultValue:
		return "DV"
	default:
		return "XX"
	}
}

// generateConstraintName builds the deterministic name assigned when a DDL
// statement leaves the constraint name empty.
func generateConstraintName(
	table *Table, column *Column, constraintType proto.ConstraintType, id proto.ConstraintID,
) string {
	if column != nil {
		return fmt.Sprintf("%s_%s_%s_%d", table.name, column.name, constraintTypeToken(constraintType), id)
	}
	return fmt.Sprintf("%s_%s_%d", table.name, constraintTypeToken(constraintType), id)
}
