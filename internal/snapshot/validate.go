package snapshot

import (
	_ "embed"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/giftkeep/giftkeep/internal/fault"
)

//go:embed snapshot.cue
var schemaCUE string

var (
	schemaOnce sync.Once
	schemaDef  cue.Value
)

// compiledSchema compiles the embedded schema once per process.
func compiledSchema() cue.Value {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		schemaDef = ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Snapshot"))
	})
	return schemaDef
}

// validateShape unifies the raw JSON document with the snapshot schema and
// rejects anything that does not match the envelope: missing version,
// missing collections, collections whose values are not lists of objects.
func validateShape(raw []byte) error {
	def := compiledSchema()
	if err := def.Err(); err != nil {
		return fault.NewStorageError("compile snapshot schema", err)
	}

	expr, err := cuejson.Extract("snapshot.json", raw)
	if err != nil {
		return fault.NewValidation(fault.CodeBadSnapshot, "not valid JSON: %v", err)
	}

	data := def.Context().BuildExpr(expr)
	if err := data.Err(); err != nil {
		return fault.NewValidation(fault.CodeBadSnapshot, "build document: %v", err)
	}

	unified := def.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fault.NewValidation(fault.CodeBadSnapshot, "snapshot shape: %v", err)
	}
	return nil
}
