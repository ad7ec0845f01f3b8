// Package validation checks content documents against JSON Schemas before
// they are written.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const pageSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"pageId": {"type": "string", "pattern": "^[A-Za-z0-9_-]+$"},
		"title": {"type": "string", "maxLength": 200},
		"description": {"type": "string", "maxLength": 1000},
		"published": {"type": "boolean"},
		"lastModified": {"type": "string"}
	},
	"propertyNames": {"pattern": "^[^.$][^.]*$"},
	"additionalProperties": true
}`

const contentDataSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"jobOpenings": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {"id": {"type": ["string", "number"]}}
			}
		},
		"departments": {"type": "array"},
		"jobTypes": {"type": "array"},
		"locations": {"type": "array"},
		"experienceLevels": {"type": "array"},
		"benefits": {"type": "array"}
	},
	"additionalProperties": true
}`

// Result is the outcome of a validation. Errors holds one line per violation.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type Validator struct {
	page *jsonschema.Schema
	data *jsonschema.Schema
}

func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	for url, src := range map[string]string{"page.json": pageSchema, "content-data.json": contentDataSchema} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, err
		}
	}
	pageSch, err := c.Compile("page.json")
	if err != nil {
		return nil, err
	}
	dataSch, err := c.Compile("content-data.json")
	if err != nil {
		return nil, err
	}
	return &Validator{page: pageSch, data: dataSch}, nil
}

// Validate checks a page document (or partial update) against the page
// schema. Section fields are not constrained.
func (v *Validator) Validate(doc map[string]interface{}) Result {
	return check(v.page, doc)
}

// ValidateContentData checks the reference-data document.
func (v *Validator) ValidateContentData(doc map[string]interface{}) Result {
	return check(v.data, doc)
}

func check(sch *jsonschema.Schema, doc map[string]interface{}) Result {
	b, err := json.Marshal(doc)
	if err != nil {
		return Result{Errors: []string{err.Error()}}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return Result{Errors: []string{err.Error()}}
	}
	err = sch.Validate(inst)
	if err == nil {
		return Result{Valid: true}
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return Result{Errors: []string{err.Error()}}
	}
	return Result{Errors: violations(ve)}
}

// violations flattens the error tree, dropping the summary header line.
func violations(ve *jsonschema.ValidationError) []string {
	lines := strings.Split(ve.Error(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines[1:] {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "- ")
		if l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		out = append(out, strings.TrimSpace(lines[0]))
	}
	return out
}
