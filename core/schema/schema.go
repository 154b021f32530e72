/*Package schema validates JSON configuration against embedded JSON schemas.
*/
package schema

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// Validator validates JSON objects against a set of compiled schemas,
// addressed by their $id
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidatorFromFS creates a validator from an embedded filesystem. The
// json files at the root become top-level schemas, json files below refs/
// are shared references.
func NewValidatorFromFS(schemaFS embed.FS) (*Validator, error) {
	readDir := func(dir string) ([]string, error) {
		var sources []string
		files, err := schemaFS.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read dir: %w", err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			path := f.Name()
			if dir != "." {
				path = dir + "/" + f.Name()
			}
			source, err := schemaFS.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("cannot read file '%s': %w", path, err)
			}
			sources = append(sources, string(source))
		}
		return sources, nil
	}

	schemas, err := readDir(".")
	if err != nil {
		return nil, err
	}
	// shared references are optional
	refs, _ := readDir("refs")
	return NewValidator(schemas, refs)
}

// NewValidator compiles top-level schemas plus the references they use.
// Top-level schemas cannot reference each other, only the refs.
func NewValidator(schemas []string, refs []string) (*Validator, error) {
	v := &Validator{schemas: map[string]*gojsonschema.Schema{}}
	for _, source := range schemas {
		var header struct {
			ID string `json:"$id"`
		}
		if err := json.Unmarshal([]byte(source), &header); err != nil {
			return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, source)
		}
		if header.ID == "" {
			return nil, fmt.Errorf("schema does not contain $id: '%s'", source)
		}

		sl := gojsonschema.NewSchemaLoader()
		for _, ref := range refs {
			if err := sl.AddSchemas(gojsonschema.NewStringLoader(ref)); err != nil {
				return nil, fmt.Errorf("cannot add ref: %w", err)
			}
		}
		compiled, err := sl.Compile(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s: %w", header.ID, err)
		}
		v.schemas[header.ID] = compiled
	}
	return v, nil
}

// HasSchema reports whether the schemaID is known
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.schemas[schemaID]
	return ok
}

// ValidateStruct validates a Go value against the schema with the given id
func (v *Validator) ValidateStruct(json interface{}, schemaID string) error {
	return v.validate(gojsonschema.NewGoLoader(json), schemaID)
}

// ValidateString validates a JSON string against the schema with the given id
func (v *Validator) ValidateString(json, schemaID string) error {
	return v.validate(gojsonschema.NewStringLoader(json), schemaID)
}

func (v *Validator) validate(loader gojsonschema.JSONLoader, schemaID string) error {
	compiled, ok := v.schemas[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s", schemaID)
	}
	result, err := compiled.Validate(loader)
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s: %w", schemaID, err)
	}
	if !result.Valid() {
		message := "the document is not valid:\n"
		for _, e := range result.Errors() {
			message += fmt.Sprintf("- %s\n", e)
		}
		return errors.New(message)
	}
	return nil
}
