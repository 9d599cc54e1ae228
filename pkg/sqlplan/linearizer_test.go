package sqlplan

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/go-cmp/cmp"

	"github.com/ehr/searchcore/pkg/search"
)

type stubGenerator struct{ name string }

func (s *stubGenerator) Render(TableExpression, StepInput) (sq.SelectBuilder, error) {
	return sq.Select("1"), nil
}

func includeStep(inc *search.IncludeExpression) TableExpression {
	return TableExpression{Kind: KindInclude, Include: inc}
}

// forwardInclude declares sourceType.param pointing at targets.
func forwardInclude(sourceType, param string, targets []string, iterate bool) *search.IncludeExpression {
	return &search.IncludeExpression{
		ResourceType: sourceType,
		Parameter:    &search.ParamInfo{Name: param, Type: search.ParamReference, TargetTypes: targets},
		Iterate:      iterate,
	}
}

// reversedInclude declares referencingType.param with an optional explicit
// target restriction.
func reversedInclude(referencingType, param, target string, targets []string, iterate bool) *search.IncludeExpression {
	return &search.IncludeExpression{
		ResourceType: referencingType,
		Parameter:    &search.ParamInfo{Name: param, Type: search.ParamReference, TargetTypes: targets},
		TargetType:   target,
		Reversed:     true,
		Iterate:      iterate,
	}
}

func TestLinearize_NoIncludes(t *testing.T) {
	root := RootExpression{Tables: []TableExpression{
		{Kind: KindAll},
		{Kind: KindNormal},
		{Kind: KindTop},
	}}

	got := Linearize(root).Steps()
	want := []string{"All", "Normal", "Top"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestLinearize_SingleInclude(t *testing.T) {
	root := RootExpression{Tables: []TableExpression{
		{Kind: KindAll},
		{Kind: KindTop},
		includeStep(forwardInclude("MedicationDispense", "prescription", []string{"MedicationRequest"}, false)),
	}}

	got := Linearize(root).Steps()
	want := []string{
		"All",
		"Top",
		"Include(include MedicationDispense:prescription)",
		"IncludeLimit",
		"IncludeUnionAll",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestLinearize_RebuildsStaleMarkers(t *testing.T) {
	t.Run("misplaced markers are discarded", func(t *testing.T) {
		root := RootExpression{Tables: []TableExpression{
			{Kind: KindAll},
			{Kind: KindIncludeUnionAll},
			includeStep(forwardInclude("MedicationDispense", "prescription", []string{"MedicationRequest"}, false)),
			{Kind: KindIncludeLimit},
			{Kind: KindIncludeLimit},
			{Kind: KindTop},
		}}

		got := Linearize(root).Steps()
		want := []string{
			"All",
			"Top",
			"Include(include MedicationDispense:prescription)",
			"IncludeLimit",
			"IncludeUnionAll",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("steps mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("markers without includes vanish", func(t *testing.T) {
		root := RootExpression{Tables: []TableExpression{
			{Kind: KindAll},
			{Kind: KindTop},
			{Kind: KindIncludeLimit},
			{Kind: KindIncludeUnionAll},
		}}

		got := Linearize(root).Steps()
		want := []string{"All", "Top"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("steps mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestLinearize_IterateFollowsProducer(t *testing.T) {
	// The iterating step is submitted first but reads rows only its producer
	// can add.
	iterating := includeStep(forwardInclude("MedicationRequest", "patient", []string{"Patient"}, true))
	producer := includeStep(forwardInclude("MedicationDispense", "prescription", []string{"MedicationRequest"}, false))

	root := RootExpression{Tables: []TableExpression{{Kind: KindAll}, {Kind: KindTop}, iterating, producer}}

	got := Linearize(root).Steps()
	want := []string{
		"All",
		"Top",
		"Include(include MedicationDispense:prescription)",
		"IncludeLimit",
		"Include(include:iterate MedicationRequest:patient)",
		"IncludeLimit",
		"IncludeUnionAll",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestLinearize_ReversedPlacedBeforeForwardWhenIndependent(t *testing.T) {
	forward := includeStep(forwardInclude("MedicationDispense", "prescription", []string{"MedicationRequest"}, false))
	reversed := includeStep(reversedInclude("MedicationRequest", "patient", "", []string{"Patient"}, false))

	root := RootExpression{Tables: []TableExpression{{Kind: KindAll}, {Kind: KindTop}, forward, reversed}}

	got := Linearize(root).Steps()
	want := []string{
		"All",
		"Top",
		"Include(revinclude MedicationRequest:patient)",
		"IncludeLimit",
		"Include(include MedicationDispense:prescription)",
		"IncludeLimit",
		"IncludeUnionAll",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestLinearize_CycleFallsBackToSubmissionOrder(t *testing.T) {
	// Each step consumes what the other produces; neither is ever ready.
	first := includeStep(forwardInclude("Encounter", "patient", []string{"Patient"}, true))
	second := includeStep(forwardInclude("Patient", "visit", []string{"Encounter"}, true))

	root := RootExpression{Tables: []TableExpression{{Kind: KindAll}, {Kind: KindTop}, first, second}}

	got := Linearize(root).Steps()
	want := []string{
		"All",
		"Top",
		"Include(include:iterate Encounter:patient)",
		"IncludeLimit",
		"Include(include:iterate Patient:visit)",
		"IncludeLimit",
		"IncludeUnionAll",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestLinearize_ChainRecoveredFromScrambledSubmission(t *testing.T) {
	// Only the reversed non-iterating step can run against the page alone;
	// every other step consumes what the one before it produces.
	e0 := includeStep(reversedInclude("MedicationRequest", "patient", "", []string{"Patient"}, false))
	e1 := includeStep(reversedInclude("MedicationDispense", "prescription", "MedicationRequest", []string{"MedicationRequest"}, true))
	e2 := includeStep(reversedInclude("Provenance", "target", "MedicationDispense", nil, true))
	e3 := includeStep(forwardInclude("Provenance", "agent", []string{"Practitioner"}, true))

	root := RootExpression{Tables: []TableExpression{{Kind: KindAll}, {Kind: KindTop}, e3, e2, e0, e1}}

	got := Linearize(root).Steps()
	want := []string{
		"All",
		"Top",
		"Include(revinclude MedicationRequest:patient)",
		"IncludeLimit",
		"Include(revinclude:iterate MedicationDispense:prescription:MedicationRequest)",
		"IncludeLimit",
		"Include(revinclude:iterate Provenance:target:MedicationDispense)",
		"IncludeLimit",
		"Include(include:iterate Provenance:agent)",
		"IncludeLimit",
		"IncludeUnionAll",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestLinearize_WildcardProducesEveryType(t *testing.T) {
	// A wildcard produces an unrestricted set, so any iterating consumer has
	// to wait for it.
	iterating := includeStep(forwardInclude("MedicationRequest", "patient", []string{"Patient"}, true))
	wildcard := includeStep(&search.IncludeExpression{ResourceType: "MedicationRequest", WildCard: true})

	root := RootExpression{Tables: []TableExpression{{Kind: KindAll}, {Kind: KindTop}, iterating, wildcard}}

	got := Linearize(root).Steps()
	want := []string{
		"All",
		"Top",
		"Include(include MedicationRequest:*)",
		"IncludeLimit",
		"Include(include:iterate MedicationRequest:patient)",
		"IncludeLimit",
		"IncludeUnionAll",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestLinearize_Idempotent(t *testing.T) {
	root := RootExpression{Tables: []TableExpression{
		{Kind: KindAll},
		{Kind: KindTop},
		includeStep(forwardInclude("Patient", "general-practitioner", []string{"Organization", "Practitioner", "PractitionerRole"}, true)),
		includeStep(forwardInclude("MedicationRequest", "patient", []string{"Patient"}, true)),
		includeStep(forwardInclude("MedicationDispense", "prescription", []string{"MedicationRequest"}, false)),
	}}

	once := Linearize(root)
	twice := Linearize(once)
	if diff := cmp.Diff(once.Steps(), twice.Steps()); diff != "" {
		t.Errorf("linearizing its own output changed the plan (-once +twice):\n%s", diff)
	}
}

func TestLinearize_PreservesGenerators(t *testing.T) {
	allGen := &stubGenerator{name: "all"}
	incGen := &stubGenerator{name: "include"}
	inc := includeStep(forwardInclude("MedicationDispense", "prescription", []string{"MedicationRequest"}, false))
	inc.Generator = incGen

	root := RootExpression{Tables: []TableExpression{
		{Kind: KindAll, Generator: allGen},
		{Kind: KindTop},
		inc,
	}}

	got := Linearize(root)
	if got.Tables[0].Generator != allGen {
		t.Error("All step lost its generator")
	}
	if got.Tables[2].Generator != incGen {
		t.Error("include step lost its generator")
	}
	if got.Tables[3].Generator != nil || got.Tables[4].Generator != nil {
		t.Error("synthesized markers must carry no generator")
	}
}
