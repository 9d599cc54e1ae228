package search

import (
	"fmt"
	"strings"
)

// FieldName selects the indexed facet of a search parameter that a leaf
// comparison applies to.
type FieldName int

const (
	FieldTokenCode FieldName = iota
	FieldTokenSystem
	FieldString
	FieldNumber
	FieldQuantity
	FieldDateStart
	FieldDateEnd
	FieldReferenceID
	FieldReferenceType
	FieldURI
)

func (f FieldName) String() string {
	switch f {
	case FieldTokenCode:
		return "tokenCode"
	case FieldTokenSystem:
		return "tokenSystem"
	case FieldString:
		return "string"
	case FieldNumber:
		return "number"
	case FieldQuantity:
		return "quantity"
	case FieldDateStart:
		return "dateStart"
	case FieldDateEnd:
		return "dateEnd"
	case FieldReferenceID:
		return "referenceId"
	case FieldReferenceType:
		return "referenceType"
	case FieldURI:
		return "uri"
	}
	return "unknown"
}

// StringOperator is the comparison applied by a StringExpression.
type StringOperator int

const (
	StringOpEquals StringOperator = iota
	StringOpStartsWith
	StringOpContains
)

func (o StringOperator) String() string {
	switch o {
	case StringOpEquals:
		return "equals"
	case StringOpStartsWith:
		return "startsWith"
	case StringOpContains:
		return "contains"
	}
	return "unknown"
}

// BinaryOperator is the ordered comparison applied by a BinaryExpression.
type BinaryOperator int

const (
	BinaryOpEqual BinaryOperator = iota
	BinaryOpNotEqual
	BinaryOpGreaterThan
	BinaryOpGreaterOrEqual
	BinaryOpLessThan
	BinaryOpLessOrEqual
)

func (o BinaryOperator) String() string {
	switch o {
	case BinaryOpEqual:
		return "="
	case BinaryOpNotEqual:
		return "!="
	case BinaryOpGreaterThan:
		return ">"
	case BinaryOpGreaterOrEqual:
		return ">="
	case BinaryOpLessThan:
		return "<"
	case BinaryOpLessOrEqual:
		return "<="
	}
	return "?"
}

// MultiaryOperator combines the children of a MultiaryExpression.
type MultiaryOperator int

const (
	MultiaryOpAnd MultiaryOperator = iota
	MultiaryOpOr
)

// Expression is one node of a compiled search predicate. The variant set is
// closed: SearchParameterExpression, StringExpression, BinaryExpression,
// MultiaryExpression, CompartmentSearchExpression and IncludeExpression.
// Consumers dispatch with a type switch and treat any other implementation
// as a programming error.
type Expression interface {
	isExpression()
	fmt.Stringer
}

// SearchParameterExpression scopes a predicate to one search parameter's
// index entries.
type SearchParameterExpression struct {
	Parameter *ParamInfo
	Child     Expression
}

func (*SearchParameterExpression) isExpression() {}

func (e *SearchParameterExpression) String() string {
	return fmt.Sprintf("(param %s %s)", e.Parameter.Name, e.Child)
}

// SearchParameter wraps child in the parameter scope of param.
func SearchParameter(param *ParamInfo, child Expression) *SearchParameterExpression {
	return &SearchParameterExpression{Parameter: param, Child: child}
}

// StringExpression compares one string-valued field.
type StringExpression struct {
	Operator   StringOperator
	Field      FieldName
	Value      string
	IgnoreCase bool
}

func (*StringExpression) isExpression() {}

func (e *StringExpression) String() string {
	ci := ""
	if e.IgnoreCase {
		ci = " ci"
	}
	return fmt.Sprintf("(%s %s '%s'%s)", e.Operator, e.Field, e.Value, ci)
}

// NewString builds a string comparison leaf.
func NewString(op StringOperator, field FieldName, value string, ignoreCase bool) *StringExpression {
	return &StringExpression{Operator: op, Field: field, Value: value, IgnoreCase: ignoreCase}
}

// BinaryExpression applies an ordered comparison to one field. Value is a
// time.Time for date fields and a float64 for numeric ones.
type BinaryExpression struct {
	Operator BinaryOperator
	Field    FieldName
	Value    any
}

func (*BinaryExpression) isExpression() {}

func (e *BinaryExpression) String() string {
	return fmt.Sprintf("(%s %s %v)", e.Field, e.Operator, e.Value)
}

// NewBinary builds an ordered comparison leaf.
func NewBinary(op BinaryOperator, field FieldName, value any) *BinaryExpression {
	return &BinaryExpression{Operator: op, Field: field, Value: value}
}

// MultiaryExpression combines at least one child with And or Or.
type MultiaryExpression struct {
	Operator MultiaryOperator
	Children []Expression
}

func (*MultiaryExpression) isExpression() {}

func (e *MultiaryExpression) String() string {
	op := "and"
	if e.Operator == MultiaryOpOr {
		op = "or"
	}
	parts := make([]string, 0, len(e.Children)+1)
	parts = append(parts, op)
	for _, c := range e.Children {
		parts = append(parts, c.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func newMultiary(op MultiaryOperator, children []Expression) *MultiaryExpression {
	if len(children) == 0 {
		panic("search: multiary expression requires at least one child")
	}
	return &MultiaryExpression{Operator: op, Children: children}
}

// And combines children conjunctively. It panics on zero children; callers
// collapse a single expression instead of wrapping it.
func And(children ...Expression) *MultiaryExpression {
	return newMultiary(MultiaryOpAnd, children)
}

// Or combines children disjunctively. It panics on zero children.
func Or(children ...Expression) *MultiaryExpression {
	return newMultiary(MultiaryOpOr, children)
}

// CompartmentSearchExpression restricts results to one compartment instance.
type CompartmentSearchExpression struct {
	CompartmentType CompartmentType
	CompartmentID   string
}

func (*CompartmentSearchExpression) isExpression() {}

func (e *CompartmentSearchExpression) String() string {
	return fmt.Sprintf("(compartment %s '%s')", e.CompartmentType, e.CompartmentID)
}

// NewCompartment builds a compartment restriction.
func NewCompartment(compartmentType CompartmentType, compartmentID string) *CompartmentSearchExpression {
	return &CompartmentSearchExpression{CompartmentType: compartmentType, CompartmentID: compartmentID}
}

// IncludeExpression describes one _include or _revinclude directive.
type IncludeExpression struct {
	// ResourceType declares the reference parameter: it is the source of a
	// forward include and the referencing type of a reversed one.
	ResourceType string
	// Parameter is the reference parameter definition; nil for wildcards.
	Parameter *ParamInfo
	// TargetType restricts the referenced type; empty means unrestricted.
	TargetType string
	WildCard   bool
	Reversed   bool
	Iterate    bool
}

func (*IncludeExpression) isExpression() {}

func (e *IncludeExpression) String() string {
	dir := "include"
	if e.Reversed {
		dir = "revinclude"
	}
	if e.Iterate {
		dir += ":iterate"
	}
	value := e.ResourceType
	switch {
	case e.WildCard && value == "":
		value = "*"
	case e.WildCard:
		value += ":*"
	default:
		value += ":" + e.Parameter.Name
		if e.TargetType != "" {
			value += ":" + e.TargetType
		}
	}
	return fmt.Sprintf("(%s %s)", dir, value)
}

// NewInclude builds an include directive. A reversed iterating include whose
// parameter admits several target types must name its target explicitly,
// otherwise the directive is ambiguous and rejected as a client error.
func NewInclude(resourceType string, param *ParamInfo, targetType string, wildCard, reversed, iterate bool) (*IncludeExpression, error) {
	if reversed && iterate && targetType == "" && param != nil && len(param.TargetTypes) > 1 {
		return nil, BadRequestf("the reversed iterating include on %s:%s is ambiguous: a target type must be specified (possible targets: %s)",
			resourceType, param.Name, strings.Join(param.TargetTypes, ", "))
	}
	return &IncludeExpression{
		ResourceType: resourceType,
		Parameter:    param,
		TargetType:   targetType,
		WildCard:     wildCard,
		Reversed:     reversed,
		Iterate:      iterate,
	}, nil
}

// Produces lists the resource types this include can add to the result set.
// nil means unrestricted.
func (e *IncludeExpression) Produces() []string {
	switch {
	case e.Reversed && e.ResourceType != "":
		return []string{e.ResourceType}
	case e.Reversed:
		return nil
	case e.WildCard:
		return nil
	case e.TargetType != "":
		return []string{e.TargetType}
	case e.Parameter != nil:
		return append([]string(nil), e.Parameter.TargetTypes...)
	}
	return nil
}

// Consumes lists the resource types this include reads its source rows
// from. nil means unrestricted.
func (e *IncludeExpression) Consumes() []string {
	switch {
	case !e.Reversed && e.ResourceType != "":
		return []string{e.ResourceType}
	case !e.Reversed:
		return nil
	case e.TargetType != "":
		return []string{e.TargetType}
	case e.Parameter != nil:
		return append([]string(nil), e.Parameter.TargetTypes...)
	}
	return nil
}
