package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Generator reflects a JSON schema from a Go value. Field descriptions are
// pulled from the Go doc comments of the module rooted at dir.
type Generator struct {
	value any
	base  string
	dir   string
}

// NewGenerator creates a [Generator] for value. base is the module path and
// dir its filesystem root.
func NewGenerator(value any, base, dir string) *Generator {
	return &Generator{
		value: value,
		base:  base,
		dir:   dir,
	}
}

// Generate returns the indented JSON schema for the generator's value.
// Fields are optional unless tagged `jsonschema:"required"`.
func (g *Generator) Generate() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.RequiredFromJSONSchemaTags = true

	err := r.AddGoComments(g.base, g.dir)
	if err != nil {
		return nil, fmt.Errorf("add go comments: %w", err)
	}

	js := r.Reflect(g.value)

	data, err := json.MarshalIndent(js, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return append(data, '\n'), nil
}
