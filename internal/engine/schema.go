package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tours-backend/internal/metadata"
)

const attributeSchemaURL = "mem://booking-attributes.json"

var schemaPrinter = message.NewPrinter(language.English)

// AttributeValidator checks booking attribute values against a JSON Schema
// generated from the attribute catalog. The compiled schema is reused until
// the catalog changes.
type AttributeValidator struct {
	registry *metadata.Registry

	mu     sync.Mutex
	key    string
	schema *jsonschema.Schema
}

func NewAttributeValidator(reg *metadata.Registry) *AttributeValidator {
	return &AttributeValidator{registry: reg}
}

// Validate returns one detail per violated constraint, with the field named
// attributes.<name>.
func (v *AttributeValidator) Validate(values map[string]any) ([]ErrorDetail, error) {
	sch, err := v.compiled()
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("validate attributes: %w", err)
	}

	var details []ErrorDetail
	collectSchemaErrors(ve, &details)
	sort.SliceStable(details, func(i, j int) bool { return details[i].Field < details[j].Field })
	return details, nil
}

func collectSchemaErrors(ve *jsonschema.ValidationError, out *[]ErrorDetail) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collectSchemaErrors(c, out)
		}
		return
	}
	field := "attributes"
	if len(ve.InstanceLocation) > 0 {
		field += "." + strings.Join(ve.InstanceLocation, ".")
	}
	rule := "schema"
	if kp := ve.ErrorKind.KeywordPath(); len(kp) > 0 {
		rule = kp[len(kp)-1]
	}
	*out = append(*out, ErrorDetail{
		Field:   field,
		Rule:    rule,
		Message: ve.ErrorKind.LocalizedString(schemaPrinter),
	})
}

func (v *AttributeValidator) compiled() (*jsonschema.Schema, error) {
	doc := metadata.AttributeSchema(v.registry.Attributes())
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode attribute schema: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.schema != nil && v.key == string(raw) {
		return v.schema, nil
	}

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode attribute schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(attributeSchemaURL, parsed); err != nil {
		return nil, fmt.Errorf("add attribute schema: %w", err)
	}
	sch, err := c.Compile(attributeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile attribute schema: %w", err)
	}
	v.key, v.schema = string(raw), sch
	return sch, nil
}
