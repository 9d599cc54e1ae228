package search

import (
	"sort"
	"sync"
)

// ParamType classifies a search parameter's value grammar.
type ParamType int

const (
	ParamToken ParamType = iota
	ParamString
	ParamDate
	ParamReference
	ParamNumber
	ParamQuantity
	ParamURI
)

func (t ParamType) String() string {
	switch t {
	case ParamToken:
		return "token"
	case ParamString:
		return "string"
	case ParamDate:
		return "date"
	case ParamReference:
		return "reference"
	case ParamNumber:
		return "number"
	case ParamQuantity:
		return "quantity"
	case ParamURI:
		return "uri"
	}
	return "unknown"
}

// ParseParamType maps the wire spelling of a parameter type back to its
// enumerant.
func ParseParamType(s string) (ParamType, bool) {
	switch s {
	case "token":
		return ParamToken, true
	case "string":
		return ParamString, true
	case "date":
		return ParamDate, true
	case "reference":
		return ParamReference, true
	case "number":
		return ParamNumber, true
	case "quantity":
		return ParamQuantity, true
	case "uri":
		return ParamURI, true
	}
	return 0, false
}

// ParamInfo describes one search parameter definition.
type ParamInfo struct {
	Name     string
	Type     ParamType
	Sortable bool
	// TargetTypes lists the resource types a reference parameter can point
	// at; empty for non-reference parameters.
	TargetTypes []string
}

func cloneParam(p *ParamInfo) *ParamInfo {
	c := *p
	c.TargetTypes = append([]string(nil), p.TargetTypes...)
	return &c
}

// ResourceWildcard is the base type whose parameters apply to every
// resource.
const ResourceWildcard = "Resource"

// ParamTypeName is the reserved parameter constraining the resource type of
// a result; the compiler synthesizes a predicate on it for typed searches.
const ParamTypeName = "_type"

// ParamDirectory resolves search parameter definitions per resource type.
// Implementations must be safe for concurrent use.
type ParamDirectory interface {
	// Lookup resolves name for resourceType, falling back to the Resource
	// base definitions. Unknown names yield a KindParamNotSupported error.
	Lookup(resourceType, name string) (*ParamInfo, error)
	// KnownResourceType reports whether resourceType is registered.
	KnownResourceType(resourceType string) bool
}

// Directory is an in-memory ParamDirectory. Registration and lookup may run
// concurrently; lookups return copies so callers cannot mutate the
// registry.
type Directory struct {
	mu     sync.RWMutex
	params map[string]map[string]*ParamInfo
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{params: map[string]map[string]*ParamInfo{}}
}

// RegisterType makes resourceType known, with or without its own
// parameters.
func (d *Directory) RegisterType(resourceType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.params[resourceType]; !ok {
		d.params[resourceType] = map[string]*ParamInfo{}
	}
}

// Register adds or replaces one parameter definition for resourceType.
func (d *Directory) Register(resourceType string, info ParamInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.params[resourceType]
	if !ok {
		m = map[string]*ParamInfo{}
		d.params[resourceType] = m
	}
	m[info.Name] = cloneParam(&info)
}

// Lookup implements ParamDirectory.
func (d *Directory) Lookup(resourceType, name string) (*ParamInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if m, ok := d.params[resourceType]; ok {
		if p, ok := m[name]; ok {
			return cloneParam(p), nil
		}
	}
	if resourceType != ResourceWildcard {
		if m, ok := d.params[ResourceWildcard]; ok {
			if p, ok := m[name]; ok {
				return cloneParam(p), nil
			}
		}
	}
	return nil, ParamNotSupportedf("search parameter '%s' is not supported for resource type '%s'", name, resourceType)
}

// KnownResourceType implements ParamDirectory. The Resource base itself is a
// valid search target (the whole-system wildcard).
func (d *Directory) KnownResourceType(resourceType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.params[resourceType]
	return ok
}

// ResourceTypes lists the registered types in lexical order.
func (d *Directory) ResourceTypes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	types := make([]string, 0, len(d.params))
	for t := range d.params {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Params lists the definitions visible on resourceType, inherited base
// parameters included, in lexical order.
func (d *Directory) Params(resourceType string) []ParamInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := map[string]*ParamInfo{}
	if m, ok := d.params[ResourceWildcard]; ok && resourceType != ResourceWildcard {
		for n, p := range m {
			seen[n] = p
		}
	}
	if m, ok := d.params[resourceType]; ok {
		for n, p := range m {
			seen[n] = p
		}
	}
	out := make([]ParamInfo, 0, len(seen))
	for _, p := range seen {
		out = append(out, *cloneParam(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultDirectory returns a directory preloaded with the definitions the
// service ships for its core clinical types.
func DefaultDirectory() *Directory {
	d := NewDirectory()
	for resourceType, params := range defaultParams {
		d.RegisterType(resourceType)
		for _, p := range params {
			d.Register(resourceType, p)
		}
	}
	return d
}

var defaultParams = map[string][]ParamInfo{
	ResourceWildcard: {
		{Name: "_id", Type: ParamToken, Sortable: true},
		{Name: ParamTypeName, Type: ParamToken},
		{Name: "_lastUpdated", Type: ParamDate, Sortable: true},
		{Name: "_tag", Type: ParamToken},
		{Name: "_profile", Type: ParamURI},
		{Name: "_security", Type: ParamToken},
	},
	"Patient": {
		{Name: "identifier", Type: ParamToken, Sortable: true},
		{Name: "name", Type: ParamString, Sortable: true},
		{Name: "family", Type: ParamString, Sortable: true},
		{Name: "given", Type: ParamString, Sortable: true},
		{Name: "birthdate", Type: ParamDate, Sortable: true},
		{Name: "gender", Type: ParamToken},
		{Name: "active", Type: ParamToken},
		{Name: "organization", Type: ParamReference, TargetTypes: []string{"Organization"}},
		{Name: "general-practitioner", Type: ParamReference, TargetTypes: []string{"Organization", "Practitioner", "PractitionerRole"}},
	},
	"Practitioner": {
		{Name: "identifier", Type: ParamToken},
		{Name: "name", Type: ParamString, Sortable: true},
	},
	"PractitionerRole": {
		{Name: "practitioner", Type: ParamReference, TargetTypes: []string{"Practitioner"}},
		{Name: "organization", Type: ParamReference, TargetTypes: []string{"Organization"}},
	},
	"Organization": {
		{Name: "identifier", Type: ParamToken},
		{Name: "name", Type: ParamString, Sortable: true},
	},
	"Encounter": {
		{Name: "status", Type: ParamToken},
		{Name: "date", Type: ParamDate, Sortable: true},
		{Name: "subject", Type: ParamReference, TargetTypes: []string{"Group", "Patient"}},
		{Name: "patient", Type: ParamReference, TargetTypes: []string{"Patient"}},
		{Name: "practitioner", Type: ParamReference, TargetTypes: []string{"Practitioner"}},
		{Name: "service-provider", Type: ParamReference, TargetTypes: []string{"Organization"}},
	},
	"Observation": {
		{Name: "status", Type: ParamToken},
		{Name: "category", Type: ParamToken},
		{Name: "code", Type: ParamToken, Sortable: true},
		{Name: "date", Type: ParamDate, Sortable: true},
		{Name: "subject", Type: ParamReference, TargetTypes: []string{"Device", "Group", "Location", "Patient"}},
		{Name: "patient", Type: ParamReference, TargetTypes: []string{"Patient"}},
		{Name: "performer", Type: ParamReference, TargetTypes: []string{"CareTeam", "Organization", "Patient", "Practitioner", "PractitionerRole", "RelatedPerson"}},
		{Name: "encounter", Type: ParamReference, TargetTypes: []string{"Encounter"}},
		{Name: "has-member", Type: ParamReference, TargetTypes: []string{"Observation"}},
		{Name: "value-quantity", Type: ParamQuantity},
	},
	"MedicationRequest": {
		{Name: "status", Type: ParamToken},
		{Name: "intent", Type: ParamToken},
		{Name: "authoredon", Type: ParamDate, Sortable: true},
		{Name: "medication", Type: ParamReference, TargetTypes: []string{"Medication"}},
		{Name: "subject", Type: ParamReference, TargetTypes: []string{"Group", "Patient"}},
		{Name: "patient", Type: ParamReference, TargetTypes: []string{"Patient"}},
		{Name: "requester", Type: ParamReference, TargetTypes: []string{"Device", "Organization", "Patient", "Practitioner", "PractitionerRole", "RelatedPerson"}},
		{Name: "encounter", Type: ParamReference, TargetTypes: []string{"Encounter"}},
	},
	"MedicationDispense": {
		{Name: "status", Type: ParamToken},
		{Name: "whenhandedover", Type: ParamDate, Sortable: true},
		{Name: "medication", Type: ParamReference, TargetTypes: []string{"Medication"}},
		{Name: "subject", Type: ParamReference, TargetTypes: []string{"Group", "Patient"}},
		{Name: "patient", Type: ParamReference, TargetTypes: []string{"Patient"}},
		{Name: "prescription", Type: ParamReference, TargetTypes: []string{"MedicationRequest"}},
		{Name: "performer", Type: ParamReference, TargetTypes: []string{"Practitioner", "PractitionerRole", "Organization"}},
	},
	"Medication": {
		{Name: "code", Type: ParamToken},
		{Name: "status", Type: ParamToken},
	},
	"Condition": {
		{Name: "clinical-status", Type: ParamToken},
		{Name: "code", Type: ParamToken, Sortable: true},
		{Name: "onset-date", Type: ParamDate, Sortable: true},
		{Name: "subject", Type: ParamReference, TargetTypes: []string{"Group", "Patient"}},
		{Name: "patient", Type: ParamReference, TargetTypes: []string{"Patient"}},
		{Name: "encounter", Type: ParamReference, TargetTypes: []string{"Encounter"}},
	},
	"Group": {
		{Name: "member", Type: ParamReference, TargetTypes: []string{"Device", "Patient", "Practitioner", "PractitionerRole"}},
	},
	"Device": {
		{Name: "identifier", Type: ParamToken},
		{Name: "patient", Type: ParamReference, TargetTypes: []string{"Patient"}},
	},
	"Location": {
		{Name: "name", Type: ParamString, Sortable: true},
	},
	"RelatedPerson": {
		{Name: "name", Type: ParamString, Sortable: true},
		{Name: "patient", Type: ParamReference, TargetTypes: []string{"Patient"}},
	},
	"CareTeam": {
		{Name: "subject", Type: ParamReference, TargetTypes: []string{"Group", "Patient"}},
		{Name: "participant", Type: ParamReference, TargetTypes: []string{"CareTeam", "Organization", "Patient", "Practitioner", "PractitionerRole", "RelatedPerson"}},
	},
}
