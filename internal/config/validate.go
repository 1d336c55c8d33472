package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"mcptape/internal/errdefs"
	"mcptape/internal/retry"
	"mcptape/pkg/logging"
)

const configSchemaURL = "config.json"

const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "logLevel": {"enum": ["debug", "info", "warn", "warning", "error"]},
    "logFormat": {"enum": ["text", "json"]},
    "servers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "transport": {"enum": ["stdio", "streamable-http", "sse"]},
          "args": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "defaults": {
      "type": "object",
      "properties": {
        "timeoutSec": {"type": "integer", "minimum": 1, "maximum": 300},
        "parallel": {"type": "integer", "minimum": 0}
      }
    },
    "retry": {
      "type": "object",
      "properties": {
        "preset": {"enum": ["default", "quick", "standard", "persistent"]},
        "maxAttempts": {"type": "integer", "minimum": 1},
        "multiplier": {"type": "number", "minimum": 1}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(configSchemaURL, strings.NewReader(configSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(configSchemaURL)
	})
	return compiledSchema, schemaErr
}

// Validate checks the merged configuration: the document shape against the
// config JSON schema, then the per-transport server requirements.
func (c MCPTapeConfig) Validate() error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	doc, err := toJSONDocument(c)
	if err != nil {
		return errdefs.Configuration("validate config", err)
	}
	if err := s.Validate(doc); err != nil {
		return errdefs.Configuration("validate config", err)
	}

	var problems []string
	seen := make(map[string]bool, len(c.Servers))
	for _, srv := range c.Servers {
		if seen[srv.Name] {
			problems = append(problems, fmt.Sprintf("server %s is defined twice", srv.Name))
		}
		seen[srv.Name] = true

		switch srv.Transport {
		case TransportStdio, "":
			if srv.Command == "" {
				problems = append(problems, fmt.Sprintf("server %s: stdio transport needs a command", srv.Name))
			}
		case TransportStreamableHTTP, TransportSSE:
			if srv.URL == "" {
				problems = append(problems, fmt.Sprintf("server %s: %s transport needs a url", srv.Name, srv.Transport))
			}
		}
	}
	if len(problems) > 0 {
		return errdefs.Configurationf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	if _, ok := retry.Preset(c.Retry.Preset); !ok {
		return errdefs.Configurationf("unknown retry preset %q", c.Retry.Preset)
	}

	logging.Debug("Config", "Configuration is valid (%d servers)", len(c.Servers))
	return nil
}

// toJSONDocument renders the config the way its YAML file would look and
// converts it to plain JSON values for schema validation.
func toJSONDocument(c MCPTapeConfig) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
