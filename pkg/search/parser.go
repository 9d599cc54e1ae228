package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// searchPrefix is the two-letter comparison prefix allowed on date, number
// and quantity values, e.g. ge2023-01-01.
type searchPrefix string

const (
	prefixEq searchPrefix = "eq"
	prefixNe searchPrefix = "ne"
	prefixGt searchPrefix = "gt"
	prefixLt searchPrefix = "lt"
	prefixGe searchPrefix = "ge"
	prefixLe searchPrefix = "le"
	prefixSa searchPrefix = "sa"
	prefixEb searchPrefix = "eb"
	prefixAp searchPrefix = "ap"
)

// splitPrefix strips a recognized comparison prefix; absent prefixes mean
// equality.
func splitPrefix(value string) (searchPrefix, string) {
	if len(value) > 2 {
		switch p := searchPrefix(value[:2]); p {
		case prefixEq, prefixNe, prefixGt, prefixLt, prefixGe, prefixLe, prefixSa, prefixEb, prefixAp:
			return p, value[2:]
		}
	}
	return prefixEq, value
}

// splitModifier separates "name:modifier" keys.
func splitModifier(key string) (name, modifier string) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, ""
}

// Parser resolves raw parameter values into expressions using a directory.
// It is stateless and safe for concurrent use.
type Parser struct {
	directory ParamDirectory
}

// NewParser builds a parser over directory.
func NewParser(directory ParamDirectory) *Parser {
	return &Parser{directory: directory}
}

// Parse turns one key=value pair into a parameter-scoped expression.
// Comma-separated values combine disjunctively. Unknown parameters and
// modifiers fail with KindParamNotSupported so the caller can demote them;
// malformed values fail hard with KindBadRequest.
func (p *Parser) Parse(resourceType, key, value string) (Expression, error) {
	name, modifier := splitModifier(key)
	info, err := p.directory.Lookup(resourceType, name)
	if err != nil {
		return nil, err
	}
	values := strings.Split(value, ",")
	children := make([]Expression, 0, len(values))
	for _, v := range values {
		leaf, err := p.parseValue(info, modifier, v)
		if err != nil {
			return nil, err
		}
		children = append(children, leaf)
	}
	child := children[0]
	if len(children) > 1 {
		child = Or(children...)
	}
	return SearchParameter(info, child), nil
}

func (p *Parser) parseValue(info *ParamInfo, modifier, value string) (Expression, error) {
	if value == "" {
		return nil, BadRequestf("parameter '%s' has an empty value segment", info.Name)
	}
	switch info.Type {
	case ParamToken:
		return parseTokenValue(info, modifier, value)
	case ParamString:
		return parseStringValue(info, modifier, value)
	case ParamDate:
		return parseDateValue(info, modifier, value)
	case ParamReference:
		return parseReferenceValue(info, modifier, value)
	case ParamNumber:
		return parseNumberValue(info, modifier, value, FieldNumber)
	case ParamQuantity:
		return parseQuantityValue(info, modifier, value)
	case ParamURI:
		return parseURIValue(info, modifier, value)
	}
	return nil, ParamNotSupportedf("search parameter '%s' has an unsupported type", info.Name)
}

func parseTokenValue(info *ParamInfo, modifier, value string) (Expression, error) {
	if modifier != "" {
		return nil, ParamNotSupportedf("modifier '%s' is not supported for token parameter '%s'", modifier, info.Name)
	}
	i := strings.Index(value, "|")
	if i < 0 {
		return NewString(StringOpEquals, FieldTokenCode, value, false), nil
	}
	system, code := value[:i], value[i+1:]
	switch {
	case system == "" && code == "":
		return nil, BadRequestf("invalid token value '%s' for parameter '%s'", value, info.Name)
	case code == "":
		return NewString(StringOpEquals, FieldTokenSystem, system, false), nil
	case system == "":
		return NewString(StringOpEquals, FieldTokenCode, code, false), nil
	}
	return And(
		NewString(StringOpEquals, FieldTokenSystem, system, false),
		NewString(StringOpEquals, FieldTokenCode, code, false),
	), nil
}

func parseStringValue(info *ParamInfo, modifier, value string) (Expression, error) {
	switch modifier {
	case "":
		return NewString(StringOpStartsWith, FieldString, value, true), nil
	case "exact":
		return NewString(StringOpEquals, FieldString, value, false), nil
	case "contains":
		return NewString(StringOpContains, FieldString, value, true), nil
	}
	return nil, ParamNotSupportedf("modifier '%s' is not supported for string parameter '%s'", modifier, info.Name)
}

func parseDateValue(info *ParamInfo, modifier, value string) (Expression, error) {
	if modifier != "" {
		return nil, ParamNotSupportedf("modifier '%s' is not supported for date parameter '%s'", modifier, info.Name)
	}
	prefix, raw := splitPrefix(value)
	start, end, err := parseDateRange(raw)
	if err != nil {
		return nil, BadRequestf("invalid date value '%s' for parameter '%s'", raw, info.Name)
	}
	// Index rows carry a [dateStart, dateEnd] span; the query value implies
	// the span [start, end] at its own granularity.
	switch prefix {
	case prefixEq, prefixAp:
		return And(
			NewBinary(BinaryOpGreaterOrEqual, FieldDateStart, start),
			NewBinary(BinaryOpLessOrEqual, FieldDateEnd, end),
		), nil
	case prefixNe:
		return Or(
			NewBinary(BinaryOpLessThan, FieldDateStart, start),
			NewBinary(BinaryOpGreaterThan, FieldDateEnd, end),
		), nil
	case prefixGt:
		return NewBinary(BinaryOpGreaterThan, FieldDateEnd, end), nil
	case prefixLt:
		return NewBinary(BinaryOpLessThan, FieldDateStart, start), nil
	case prefixGe:
		return NewBinary(BinaryOpGreaterOrEqual, FieldDateEnd, start), nil
	case prefixLe:
		return NewBinary(BinaryOpLessOrEqual, FieldDateStart, end), nil
	case prefixSa:
		return NewBinary(BinaryOpGreaterThan, FieldDateStart, end), nil
	case prefixEb:
		return NewBinary(BinaryOpLessThan, FieldDateEnd, start), nil
	}
	return nil, BadRequestf("prefix '%s' is not supported for date parameter '%s'", prefix, info.Name)
}

// dateLayouts lists the accepted granularities, finest first. span widens a
// partial date to the end of its period.
var dateLayouts = []struct {
	layout string
	span   func(time.Time) time.Time
}{
	{time.RFC3339, nil},
	{"2006-01-02T15:04:05", nil},
	{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
	{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
	{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
}

func parseDateRange(value string) (start, end time.Time, err error) {
	for _, l := range dateLayouts {
		t, perr := time.Parse(l.layout, value)
		if perr != nil {
			continue
		}
		if l.span == nil {
			return t, t, nil
		}
		return t, l.span(t).Add(-time.Nanosecond), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unrecognized date format %q", value)
}

func parseReferenceValue(info *ParamInfo, modifier, value string) (Expression, error) {
	var refType string
	if modifier != "" {
		// ":Type" narrows a multi-target reference, e.g. subject:Patient=42.
		if !containsString(info.TargetTypes, modifier) {
			return nil, ParamNotSupportedf("modifier '%s' is not supported for reference parameter '%s'", modifier, info.Name)
		}
		refType = modifier
	}
	id := value
	if i := strings.Index(value, "/"); i > 0 && !strings.Contains(value[:i], ":") {
		if refType != "" && value[:i] != refType {
			return nil, BadRequestf("reference value '%s' contradicts modifier ':%s' on parameter '%s'", value, modifier, info.Name)
		}
		refType, id = value[:i], value[i+1:]
	}
	if id == "" {
		return nil, BadRequestf("invalid reference value '%s' for parameter '%s'", value, info.Name)
	}
	idExpr := NewString(StringOpEquals, FieldReferenceID, id, false)
	if refType == "" {
		return idExpr, nil
	}
	return And(NewString(StringOpEquals, FieldReferenceType, refType, false), idExpr), nil
}

func parseNumberValue(info *ParamInfo, modifier, value string, field FieldName) (Expression, error) {
	if modifier != "" {
		return nil, ParamNotSupportedf("modifier '%s' is not supported for parameter '%s'", modifier, info.Name)
	}
	prefix, raw := splitPrefix(value)
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, BadRequestf("invalid number value '%s' for parameter '%s'", raw, info.Name)
	}
	op, ok := numberOp(prefix)
	if !ok {
		return nil, BadRequestf("prefix '%s' is not supported for parameter '%s'", prefix, info.Name)
	}
	return NewBinary(op, field, n), nil
}

func numberOp(prefix searchPrefix) (BinaryOperator, bool) {
	switch prefix {
	case prefixEq, prefixAp:
		return BinaryOpEqual, true
	case prefixNe:
		return BinaryOpNotEqual, true
	case prefixGt:
		return BinaryOpGreaterThan, true
	case prefixLt:
		return BinaryOpLessThan, true
	case prefixGe:
		return BinaryOpGreaterOrEqual, true
	case prefixLe:
		return BinaryOpLessOrEqual, true
	}
	return 0, false
}

func parseQuantityValue(info *ParamInfo, modifier, value string) (Expression, error) {
	// "5.4|http://unitsofmeasure.org|mg": only the magnitude is indexed.
	number := value
	if i := strings.Index(value, "|"); i >= 0 {
		number = value[:i]
	}
	return parseNumberValue(info, modifier, number, FieldQuantity)
}

func parseURIValue(info *ParamInfo, modifier, value string) (Expression, error) {
	if modifier != "" {
		return nil, ParamNotSupportedf("modifier '%s' is not supported for uri parameter '%s'", modifier, info.Name)
	}
	return NewString(StringOpEquals, FieldURI, value, false), nil
}

// ParseInclude resolves one _include or _revinclude value of the form
// "Type:parameter", "Type:parameter:TargetType", "Type:*" or "*".
func (p *Parser) ParseInclude(resourceType, value string, reversed, iterate bool) (*IncludeExpression, error) {
	if value == "*" {
		return NewInclude(resourceType, nil, "", true, reversed, iterate)
	}
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, BadRequestf("invalid include value '%s': expected Type:parameter or Type:parameter:TargetType", value)
	}
	source := parts[0]
	if source == "" {
		return nil, BadRequestf("invalid include value '%s': missing resource type", value)
	}
	if !p.directory.KnownResourceType(source) {
		return nil, ResourceNotSupportedf("resource type '%s' is not supported", source)
	}
	paramName := parts[1]
	if paramName == "*" {
		if len(parts) == 3 {
			return nil, BadRequestf("invalid include value '%s': wildcards cannot name a target type", value)
		}
		return NewInclude(source, nil, "", true, reversed, iterate)
	}
	info, err := p.directory.Lookup(source, paramName)
	if err != nil {
		return nil, BadRequestf("include parameter '%s:%s' is not supported", source, paramName)
	}
	if info.Type != ParamReference {
		return nil, BadRequestf("include parameter '%s:%s' must be a reference search parameter", source, paramName)
	}
	target := ""
	if len(parts) == 3 {
		target = parts[2]
		if !p.directory.KnownResourceType(target) {
			return nil, ResourceNotSupportedf("resource type '%s' is not supported", target)
		}
		if len(info.TargetTypes) > 0 && !containsString(info.TargetTypes, target) {
			return nil, BadRequestf("'%s' is not a possible target type of include parameter '%s:%s'", target, source, paramName)
		}
	}
	return NewInclude(source, info, target, false, reversed, iterate)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
