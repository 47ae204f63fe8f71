package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/Lllllllleong/authorizationflow/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/document.schema.json
var documentSchemaJSON string

const documentSchemaURL = "https://authorizationflow.schemas.local/document.schema.json"

var (
	documentSchema     *jsonschema.Schema
	documentSchemaErr  error
	documentSchemaOnce sync.Once
)

func compiledDocumentSchema() (*jsonschema.Schema, error) {
	documentSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(documentSchemaURL, strings.NewReader(documentSchemaJSON)); err != nil {
			documentSchemaErr = fmt.Errorf("document schema load failed: %w", err)
			return
		}
		documentSchema, documentSchemaErr = c.Compile(documentSchemaURL)
	})
	return documentSchema, documentSchemaErr
}

// CheckShape validates only the structural shape of d, the one check a draft
// save performs.
func CheckShape(d *models.Document) *ValidationError {
	schema, err := compiledDocumentSchema()
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("document is not serializable: %v", err)}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ValidationError{Message: fmt.Sprintf("document is not serializable: %v", err)}
	}
	if err := schema.Validate(v); err != nil {
		ve := &ValidationError{Message: err.Error()}
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			leaf := verr
			for len(leaf.Causes) > 0 {
				leaf = leaf.Causes[0]
			}
			ve.Field = strings.TrimPrefix(leaf.InstanceLocation, "/")
			ve.Message = leaf.Message
		}
		return ve
	}
	return nil
}
