package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/syncbridge/internal/syncerr"
)

// schemaDoc is the embedded validation schema for Config. It only checks
// numeric thresholds and non-empty adapter connection parameters. Startup
// is the only place a ConfigInvalid error here is fatal.
const schemaDoc = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["sync", "ab", "es", "ra"],
  "properties": {
    "sync": {
      "type": "object",
      "required": ["period_mins", "delta_ab_seconds", "delta_es_percent", "delta_es_words"],
      "properties": {
        "period_mins": {"type": "integer", "minimum": 1},
        "delta_ab_seconds": {"type": "integer", "minimum": 0},
        "delta_es_percent": {"type": "integer", "minimum": 0},
        "delta_es_words": {"type": "integer", "minimum": 0}
      }
    },
    "ab": {
      "type": "object",
      "required": ["base_url", "token"],
      "properties": {
        "base_url": {"type": "string", "minLength": 1},
        "token": {"type": "string", "minLength": 1}
      }
    },
    "es": {
      "type": "object",
      "required": ["base_url", "token"],
      "properties": {
        "base_url": {"type": "string", "minLength": 1},
        "token": {"type": "string", "minLength": 1}
      }
    },
    "ra": {
      "type": "object",
      "required": ["db_path", "user_id"],
      "properties": {
        "db_path": {"type": "string", "minLength": 1},
        "user_id": {"type": "string", "minLength": 1}
      }
    }
  }
}`

const schemaResourceURL = "syncbridge://config.schema.json"

var compiledSchema *jsonschema.Schema

func compileSchema() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResourceURL, bytes.NewReader([]byte(schemaDoc))); err != nil {
		return nil, fmt.Errorf("failed to load config schema: %w", err)
	}
	schema, err := compiler.Compile(schemaResourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}
	compiledSchema = schema
	return schema, nil
}

// Validate checks cfg against the config schema, returning a ConfigInvalid
// error describing every violation found.
func Validate(cfg *Config) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config for validation: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode config for validation: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return syncerr.New(syncerr.KindConfigInvalid, "config failed validation", err)
	}
	return nil
}
