package plan

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/schema"
	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaID is the $id of the plan JSON schema.
const SchemaID = "https://github.com/aretw0/arbor/schemas/plan-v1.json"

// JSONSchema produces the JSON Schema (Draft 2020-12) of plan documents.
func JSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Document{})
	s.ID = SchemaID
	s.Title = "arbor test plan"
	s.Description = "Schema for arbor plan YAML documents"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

var compiled = sync.OnceValues(func() (*sjsonschema.Schema, error) {
	data, err := JSONSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(SchemaID, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(SchemaID)
})

// Validate checks doc against the plan JSON schema. Violations are returned as a
// schema.AggregateError of schema.ValidationError keyed by instance path.
func Validate(doc *Document) error {
	sch, err := compiled()
	if err != nil {
		return fmt.Errorf("compile plan schema: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal plan for validation: %w", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal plan for validation: %w", err)
	}

	err = sch.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return err
	}

	var errs []error
	for _, cause := range flatten(ve) {
		errs = append(errs, &schema.ValidationError{
			Key:    "/" + strings.Join(cause.InstanceLocation, "/"),
			Reason: reason(cause),
		})
	}
	return schema.Join(errs)
}

// flatten recursively collects the leaf validation errors.
func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}
	return flat
}

// reason extracts the message of a leaf error, whose rendering ends with a
// "- at '<location>': <message>" line.
func reason(leaf *sjsonschema.ValidationError) string {
	msg := strings.TrimSpace(leaf.Error())
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = msg[i+1:]
	}
	if strings.HasPrefix(msg, "- at '") {
		if i := strings.Index(msg, "': "); i >= 0 {
			return msg[i+3:]
		}
	}
	return msg
}
