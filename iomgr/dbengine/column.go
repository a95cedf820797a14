package dbengine

import (
	"github.com/govindnetworks/siodb/proto"
)

// ColumnConstraintSpecification is a constraint requested for a column in a
// DDL statement. An empty name requests automatic name generation.
type ColumnConstraintSpecification struct {
	Name       string
	Type       proto.ConstraintType
	Expression Expression
}

// ColumnSpecification describes a column in a CREATE TABLE statement.
type ColumnSpecification struct {
	Name        string
	DataType    proto.ColumnDataType
	Constraints []ColumnConstraintSpecification
}

// SimpleColumnSpecification is the condensed form produced by the request
// parser; NotNull and DefaultValue expand into constraint specifications.
type SimpleColumnSpecification struct {
	Name         string
	DataType     proto.ColumnDataType
	NotNull      bool
	DefaultValue *Variant
}

// NewColumnSpecification expands a simple specification into the full form.
func NewColumnSpecification(src SimpleColumnSpecification) ColumnSpecification {
	spec := ColumnSpecification{Name: src.Name, DataType: src.DataType}
	if src.NotNull {
		spec.Constraints = append(spec.Constraints, ColumnConstraintSpecification{
			Type:       proto.ConstraintTypeNotNull,
			Expression: NewConstantExpression(BoolVariant(true)),
		})
	}
	if src.DefaultValue != nil {
		spec.Constraints = append(spec.Constraints, ColumnConstraintSpecification{
			Type:       proto.ConstraintTypeDefaultValue,
			Expression: NewConstantExpression(*src.DefaultValue),
		})
	}
	return spec
}

// Column is a loaded column object.
type Column struct {
	table             *Table
	id                proto.ColumnID
	name              string
	dataType          proto.ColumnDataType
	notNull           bool
	currentDefinition *ColumnDefinition
}

func (c *Column) ID() proto.ColumnID             { return c.id }
func (c *Column) Name() string                   { return c.name }
func (c *Column) DataType() proto.ColumnDataType { return c.dataType }
func (c *Column) Table() *Table                  { return c.table }
func (c *Column) NotNull() bool                  { return c.notNull }

func (c *Column) CurrentDefinition() *ColumnDefinition { return c.currentDefinition }

// ColumnDefinition is one version of a column's definition; the registry keeps
// the full history keyed by (column id, id).
type ColumnDefinition struct {
	column      *Column
	id          proto.ColumnDefinitionID
	constraints []*Constraint
}

func (d *ColumnDefinition) ID() proto.ColumnDefinitionID { return d.id }
func (d *ColumnDefinition) Column() *Column              { return d.column }
func (d *ColumnDefinition) Constraints() []*Constraint   { return d.constraints }
