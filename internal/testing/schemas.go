package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mcptape/internal/errdefs"
	"mcptape/pkg/logging"
)

// ExpectedTaskSchema is the name of the built-in task schema.
const ExpectedTaskSchema = "ExpectedTask"

const expectedTaskJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "ExpectedTask",
  "type": "object",
  "required": ["title", "priority", "estimated_time", "tags"],
  "properties": {
    "title": {"type": "string"},
    "priority": {"type": "string"},
    "estimated_time": {"type": "integer"},
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

// SchemaRegistry holds the JSON schemas that tests reference by name through
// expected_schema.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns a registry holding the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
	if err := r.Register(ExpectedTaskSchema, []byte(expectedTaskJSON)); err != nil {
		panic(fmt.Sprintf("built-in schema %s does not compile: %v", ExpectedTaskSchema, err))
	}
	return r
}

// Register compiles a JSON schema document and stores it under name,
// replacing any schema of the same name.
func (r *SchemaRegistry) Register(name string, doc []byte) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return errdefs.Configuration("add schema "+name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return errdefs.Configuration("compile schema "+name, err)
	}

	r.mu.Lock()
	r.schemas[name] = schema
	r.mu.Unlock()
	return nil
}

// LoadDir registers every *.json file in dir under its file stem. A missing
// directory is not an error.
func (r *SchemaRegistry) LoadDir(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		logging.Debug("Batch", "Schema directory %s does not exist", dir)
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Configuration("read schema directory "+dir, err)
	}

	var loaded []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		doc, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, errdefs.Configuration("read schema "+entry.Name(), err)
		}
		if err := r.Register(name, doc); err != nil {
			return loaded, err
		}
		loaded = append(loaded, name)
	}
	logging.Debug("Batch", "Loaded %d schemas from %s", len(loaded), dir)
	return loaded, nil
}

// Lookup returns the schema registered under name.
func (r *SchemaRegistry) Lookup(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns the registered schema names, sorted.
func (r *SchemaRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// validateAgainst checks v against schema and flattens the validation error
// tree into one line per leaf.
func validateAgainst(schema *jsonschema.Schema, v any) error {
	doc, err := toJSONValue(v)
	if err != nil {
		return err
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}
	var lines []string
	collectLeaves(verr, &lines)
	return fmt.Errorf("%s", strings.Join(lines, "; "))
}

func collectLeaves(verr *jsonschema.ValidationError, out *[]string) {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, verr.Message))
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, out)
	}
}

// toJSONValue converts v to the generic JSON shape the schema validator
// expects.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
