// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// exportSchema describes the nested JSON export/import form from spec
// §4.A: {version, categories:{cat:{key:{value,default,description}}}}.
const exportSchema = `{
	"type": "object",
	"required": ["version", "categories"],
	"properties": {
		"version": {"type": "integer"},
		"categories": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"additionalProperties": {
					"type": "object",
					"required": ["value"],
					"properties": {
						"value": {},
						"default": {},
						"description": {"type": "string"}
					}
				}
			}
		}
	}
}`

// validateJSON checks instance against the nested export/import schema,
// the same compile-then-validate idiom as the teacher's config.Validate
// (internal/config/validate.go), generalized so the schema is fixed
// (describing the store's own wire format) rather than caller-supplied.
func validateJSON(instance []byte) error {
	sch, err := jsonschema.CompileString("usbthief-config.json", exportSchema)
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: unmarshal instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: validate: %w", err)
	}

	return nil
}
