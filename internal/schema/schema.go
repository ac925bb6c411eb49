// Package schema is the static registry of entity collections.
//
// Every collection name, field name, and field kind the control plane will
// ever accept is compiled into this package. Restore resolves names against
// this registry and never interpolates caller-supplied identifiers into SQL;
// anything absent from the registry is dropped, not sanitized.
package schema

import "fmt"

// Kind is the expected scalar type of a field value.
type Kind string

const (
	KindText Kind = "text"
	KindInt  Kind = "integer"
	KindReal Kind = "real"
	KindBool Kind = "boolean"
	KindTime Kind = "timestamp"
)

// FieldSpec declares one allowed field and its expected scalar kind.
type FieldSpec struct {
	Name string
	Kind Kind
}

// CollectionSpec declares one entity collection.
//
// Protected collections are append-only from the restore engine's point
// of view: existing rows are never deleted and incoming rows use
// insert-if-absent semantics.
type CollectionSpec struct {
	Name      string
	Protected bool
	Fields    []FieldSpec

	byName map[string]Kind
}

// Field returns the kind of the named field and whether it is allowed.
func (c *CollectionSpec) Field(name string) (Kind, bool) {
	k, ok := c.byName[name]
	return k, ok
}

// FieldNames returns the allowed field names in declaration order.
func (c *CollectionSpec) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// DependencyOrder lists every collection parents-first. Insertion during
// restore walks it forward; deletion walks it in reverse so children go
// before their parents.
var DependencyOrder = []*CollectionSpec{
	{
		Name: "settings",
		Fields: []FieldSpec{
			{"key", KindText},
			{"value", KindText},
			{"updated_at", KindTime},
		},
	},
	{
		Name: "recipients",
		Fields: []FieldSpec{
			{"id", KindText},
			{"name", KindText},
			{"email", KindText},
			{"phone", KindText},
			{"birthday", KindTime},
			{"anniversary", KindTime},
			{"notes", KindText},
			{"created_at", KindTime},
			{"updated_at", KindTime},
		},
	},
	{
		Name: "occasions",
		Fields: []FieldSpec{
			{"id", KindText},
			{"recipient_id", KindText},
			{"kind", KindText},
			{"title", KindText},
			{"occur_on", KindTime},
			{"recurring", KindBool},
			{"created_at", KindTime},
		},
	},
	{
		Name: "budgets",
		Fields: []FieldSpec{
			{"id", KindText},
			{"occasion_id", KindText},
			{"amount", KindReal},
			{"currency", KindText},
			{"spent", KindReal},
			{"created_at", KindTime},
		},
	},
	{
		Name: "recommendations",
		Fields: []FieldSpec{
			{"id", KindText},
			{"occasion_id", KindText},
			{"title", KindText},
			{"price", KindReal},
			{"url", KindText},
			{"score", KindReal},
			{"purchased", KindBool},
			{"created_at", KindTime},
		},
	},
	{
		Name: "messages",
		Fields: []FieldSpec{
			{"id", KindText},
			{"occasion_id", KindText},
			{"template", KindText},
			{"body", KindText},
			{"created_at", KindTime},
		},
	},
	{
		Name: "approvals",
		Fields: []FieldSpec{
			{"id", KindText},
			{"occasion_id", KindText},
			{"recommendation_id", KindText},
			{"message_id", KindText},
			{"status", KindText},
			{"approved_by", KindText},
			{"created_at", KindTime},
		},
	},
	{
		Name: "purchases",
		Fields: []FieldSpec{
			{"id", KindText},
			{"recommendation_id", KindText},
			{"occasion_id", KindText},
			{"approval_id", KindText},
			{"status", KindText},
			{"order_reference", KindText},
			{"ordered_at", KindTime},
			{"estimated_delivery", KindTime},
			{"delivered_at", KindTime},
			{"created_at", KindTime},
			{"updated_at", KindTime},
		},
	},
	{
		Name: "notifications",
		Fields: []FieldSpec{
			{"id", KindText},
			{"kind", KindText},
			{"title", KindText},
			{"body", KindText},
			{"read", KindBool},
			{"created_at", KindTime},
		},
	},
	{
		Name:      "ledger",
		Protected: true,
		Fields: []FieldSpec{
			{"id", KindText},
			{"action", KindText},
			{"entity_type", KindText},
			{"entity_id", KindText},
			{"details", KindText},
			{"performed_by", KindText},
			{"prev_hash", KindText},
			{"hash", KindText},
			{"created_at", KindTime},
		},
	},
}

var byName = map[string]*CollectionSpec{}

func init() {
	for _, spec := range DependencyOrder {
		spec.byName = make(map[string]Kind, len(spec.Fields))
		for _, f := range spec.Fields {
			spec.byName[f.Name] = f.Kind
		}
		byName[spec.Name] = spec
	}
}

// Lookup resolves a collection name against the registry.
func Lookup(name string) (*CollectionSpec, bool) {
	spec, ok := byName[name]
	return spec, ok
}

// Names returns every collection name in dependency order.
func Names() []string {
	names := make([]string, len(DependencyOrder))
	for i, spec := range DependencyOrder {
		names[i] = spec.Name
	}
	return names
}

// CheckValue reports whether a JSON-decoded value matches the expected kind.
// got describes the offending value's observed type when the check fails.
//
// JSON numbers arrive as float64; integer and boolean columns accept whole
// numbers because SQLite stores booleans as 0/1 and round-trips them as
// numbers through a snapshot.
func CheckValue(kind Kind, v any) (ok bool, got string) {
	if v == nil {
		// NULL is acceptable in any column; NOT NULL constraints are the
		// store's concern, not the type table's.
		return true, ""
	}
	switch kind {
	case KindText, KindTime:
		if _, isStr := v.(string); isStr {
			return true, ""
		}
	case KindInt:
		if f, isNum := v.(float64); isNum && f == float64(int64(f)) {
			return true, ""
		}
	case KindReal:
		if _, isNum := v.(float64); isNum {
			return true, ""
		}
	case KindBool:
		if _, isBool := v.(bool); isBool {
			return true, ""
		}
		if f, isNum := v.(float64); isNum && (f == 0 || f == 1) {
			return true, ""
		}
	}
	return false, describe(v)
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
