package semantic

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
)

// Aggregate reduces the values found at a fragment path to one rendered value.
type Aggregate string

// Supported aggregates.
const (
	AggValue Aggregate = "value"
	AggCount Aggregate = "count"
	AggSum   Aggregate = "sum"
	AggJoin  Aggregate = "join"
	AggMin   Aggregate = "min"
	AggMax   Aggregate = "max"
)

// Fragment renders one "<Label>: <value>" line from a dotted path.
type Fragment struct {
	Label     string    `yaml:"label"`
	Path      string    `yaml:"path"`
	Aggregate Aggregate `yaml:"aggregate"`
}

// Profile carries hand-authored rendering knowledge for document types
// whose raw fields alone describe them poorly.
type Profile struct {
	// Types lists the type names the profile applies to, matched case-insensitively.
	Types     []string   `yaml:"types"`
	Label     string     `yaml:"label"`
	Fragments []Fragment `yaml:"fragments"`
}

// Validate checks aggregates and paths.
func (p Profile) Validate() error {
	if len(p.Types) == 0 {
		return fmt.Errorf("profile %q: at least one type is required", p.Label)
	}
	for _, f := range p.Fragments {
		if f.Label == "" || f.Path == "" {
			return fmt.Errorf("profile %q: fragment label and path are required", p.Label)
		}
		switch f.Aggregate {
		case "", AggValue, AggCount, AggSum, AggJoin, AggMin, AggMax:
		default:
			return fmt.Errorf("profile %q: unknown aggregate %q", p.Label, f.Aggregate)
		}
	}
	return nil
}

// BuiltinProfiles covers the core domain types.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			Types: []string{"asset", "assets"},
			Label: "Asset",
			Fragments: []Fragment{
				{Label: "Location", Path: "location.name"},
				{Label: "Status", Path: "status"},
				{Label: "Components", Path: "components", Aggregate: AggCount},
				{Label: "Component names", Path: "components.name", Aggregate: AggJoin},
			},
		},
		{
			Types: []string{"inspection", "inspections"},
			Label: "Inspection",
			Fragments: []Fragment{
				{Label: "Asset", Path: "asset.name"},
				{Label: "Inspector", Path: "inspector.name"},
				{Label: "Findings", Path: "findings", Aggregate: AggCount},
				{Label: "Highest severity", Path: "findings.severity", Aggregate: AggMax},
				{Label: "Finding details", Path: "findings.description", Aggregate: AggJoin},
			},
		},
		{
			Types: []string{"workflow", "workflows"},
			Label: "Workflow",
			Fragments: []Fragment{
				{Label: "Status", Path: "status"},
				{Label: "Steps", Path: "steps", Aggregate: AggCount},
				{Label: "Step names", Path: "steps.name", Aggregate: AggJoin},
				{Label: "Assignees", Path: "steps.assignee", Aggregate: AggJoin},
			},
		},
		{
			Types: []string{"invoice", "invoices"},
			Label: "Invoice",
			Fragments: []Fragment{
				{Label: "Customer", Path: "customer.name"},
				{Label: "Line items", Path: "lineItems", Aggregate: AggCount},
				{Label: "Line items total", Path: "lineItems.amount", Aggregate: AggSum},
				{Label: "Products", Path: "lineItems.description", Aggregate: AggJoin},
			},
		},
	}
}

// render returns the fragment value, or "" when the document has nothing at the path.
func (f Fragment) render(doc change.Document) string {
	values := doc.Lookup(f.Path)
	if len(values) == 0 {
		return ""
	}

	switch f.Aggregate {
	case AggCount:
		return strconv.Itoa(len(values))
	case AggSum, AggMin, AggMax:
		nums := numbers(values)
		if len(nums) == 0 {
			return ""
		}
		return formatFloat(reduce(f.Aggregate, nums))
	case AggJoin:
		return joinValues(values)
	default:
		return formatValue(values[0])
	}
}

func reduce(agg Aggregate, nums []float64) float64 {
	out := nums[0]
	for _, n := range nums[1:] {
		switch agg {
		case AggSum:
			out += n
		case AggMin:
			out = min(out, n)
		case AggMax:
			out = max(out, n)
		}
	}
	return out
}

func numbers(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		switch n := v.(type) {
		case int64:
			out = append(out, float64(n))
		case int:
			out = append(out, float64(n))
		case int32:
			out = append(out, float64(n))
		case float64:
			out = append(out, n)
		case float32:
			out = append(out, float64(n))
		}
	}
	return out
}

// profileIndex resolves a type name to its profile; later profiles override earlier ones.
type profileIndex map[string]Profile

func newProfileIndex(profiles []Profile) profileIndex {
	idx := make(profileIndex)
	for _, p := range profiles {
		for _, t := range p.Types {
			idx[strings.ToLower(t)] = p
		}
	}
	return idx
}

func (idx profileIndex) lookup(typeName string) (Profile, bool) {
	p, ok := idx[strings.ToLower(typeName)]
	return p, ok
}

// Types returns the registered type names in sorted order.
func (idx profileIndex) types() []string {
	out := make([]string, 0, len(idx))
	for t := range idx {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
