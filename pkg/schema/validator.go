// Package schema validates registry metadata against the JSON schemas of each variety.
package schema

import (
	"embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/model"
)

// ErrValidation is returned whenever a document does not conform to its schema
var ErrValidation = errors.New("schema validation failed")

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator checks metadata items, records and views.
//
// A Validator is safe for concurrent use.
type Validator struct {
	schemas map[model.Variety]*jsonschema.Schema
}

var (
	defaultValidator     *Validator
	defaultValidatorErr  error
	defaultValidatorOnce sync.Once
)

// Default returns a shared validator built from the embedded schemas
func Default() (*Validator, error) {
	defaultValidatorOnce.Do(func() {
		defaultValidator, defaultValidatorErr = New()
	})
	return defaultValidator, defaultValidatorErr
}

// New compiles the embedded schemas for all varieties
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[model.Variety]*jsonschema.Schema, 3)}
	for _, variety := range model.Varieties() {
		data, err := Source(variety)
		if err != nil {
			return nil, err
		}
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		compiled, err := compiler.Compile(data)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", variety, err)
		}
		v.schemas[variety] = compiled
	}
	return v, nil
}

// Source returns the raw JSON schema for a variety
func Source(variety model.Variety) ([]byte, error) {
	if !variety.Valid() {
		return nil, fmt.Errorf("no schema for variety %q", variety)
	}
	return schemaFS.ReadFile("schemas/" + string(variety) + ".json")
}

// ValidateItem validates the descriptor of a single block, flow or worker
func (v *Validator) ValidateItem(variety model.Variety, item model.Raw) error {
	if err := v.validateItem(variety, item); err != nil {
		return ErrValidation.Wrap(err)
	}
	return nil
}

// ValidateRecord validates every item of a record
func (v *Validator) ValidateRecord(variety model.Variety, record model.Record) error {
	if err := v.validateRecord(variety, record); err != nil {
		return ErrValidation.Wrap(err)
	}
	return nil
}

func (v *Validator) validateItem(variety model.Variety, item model.Raw) error {
	compiled, ok := v.schemas[variety]
	if !ok {
		return fmt.Errorf("unknown variety %q", variety)
	}
	result := compiled.ValidateJSON(item)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("%s: %v", variety, result.Errors)
}

func (v *Validator) validateRecord(variety model.Variety, record model.Record) error {
	for _, slug := range record.Slugs() {
		if err := v.validateItem(variety, record[slug]); err != nil {
			return fmt.Errorf("%q: %w", slug, err)
		}
	}
	return nil
}

// ValidateView validates every collection entry of an aggregate view.
//
// Each entry is unwrapped according to the variety before its items are validated.
func (v *Validator) ValidateView(variety model.Variety, view model.View) error {
	for _, collection := range view.Collections() {
		record, err := variety.Unwrap(view[collection])
		if err != nil {
			return ErrValidation.WrapMessage("collection %q: %v", collection, err)
		}
		if err := v.validateRecord(variety, record); err != nil {
			return ErrValidation.WrapMessage("collection %q: %v", collection, err)
		}
	}
	return nil
}

// ValidateViewDocument decodes then validates a serialized aggregate view
func (v *Validator) ValidateViewDocument(variety model.Variety, data []byte) error {
	view, err := model.DecodeView(data)
	if err != nil {
		return ErrValidation.WrapMessage("decoding %s view: %v", variety, err)
	}
	return v.ValidateView(variety, view)
}
