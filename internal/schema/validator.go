// Package schema validates output schema documents and model payloads
// against them.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/salescoach/advisor/internal/domain"
)

// Violation reports a payload that does not conform to its schema, naming
// at least one failing instance path. The invoker treats it as retryable
// (the model may self-correct on a re-prompt).
type Violation struct {
	Path    string
	Message string
}

func (v *Violation) Error() string {
	path := v.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("payload violates schema at %s: %s", path, v.Message)
}

// Validated is a structurally checked, compiled output schema.
type Validated struct {
	compiled *jsonschema.Schema
	raw      json.RawMessage
}

// Validate compile-checks a schema document. An invalid document is a
// configuration error, fatal at startup.
func Validate(doc json.RawMessage) (*Validated, error) {
	if len(doc) == 0 {
		return nil, domain.ErrConfiguration("output schema is empty")
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", bytes.NewReader(doc)); err != nil {
		return nil, domain.ErrConfiguration("output schema is not a valid schema document").WithCause(err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, domain.ErrConfiguration("output schema failed to compile").WithCause(err)
	}

	return &Validated{compiled: compiled, raw: doc}, nil
}

// Raw returns the schema document as supplied.
func (v *Validated) Raw() json.RawMessage {
	return v.raw
}

// ValidatePayload strictly validates a model payload. Missing required
// keys, type mismatches, and enum violations all fail with a *Violation
// naming the offending path.
func (v *Validated) ValidatePayload(payload json.RawMessage) error {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return &Violation{Path: "", Message: "payload is not valid JSON"}
	}

	if err := v.compiled.Validate(value); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepestCause(ve)
			return &Violation{Path: leaf.InstanceLocation, Message: leaf.Message}
		}
		return &Violation{Path: "", Message: err.Error()}
	}

	return nil
}

// deepestCause walks to the most specific failure so the violation names a
// concrete instance path rather than the schema root.
func deepestCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
