// Package tools holds the function tools executed locally on behalf of the
// model, and their registry.
package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Definition is a tool that can be called by the model.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`

	fn        reflect.Value
	inputType reflect.Type
	validator *gojsonschema.Schema
}

// NewToolFromFunc creates a Definition from a function of the form
// func(context.Context, Input) (Result, error). The parameter schema is
// reflected from Input.
func NewToolFromFunc(name, description string, fn interface{}) (*Definition, error) {
	funcType := reflect.TypeOf(fn)
	if funcType == nil || funcType.Kind() != reflect.Func {
		return nil, errors.New("provided value is not a function")
	}
	if funcType.NumIn() != 2 || funcType.In(0) != contextType {
		return nil, errors.Errorf("tool %s must take (context.Context, Input)", name)
	}
	if funcType.NumOut() != 2 || !funcType.Out(1).Implements(errorType) {
		return nil, errors.Errorf("tool %s must return (Result, error)", name)
	}

	inputType := funcType.In(1)
	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(reflect.New(inputType).Elem().Interface())
	schema.Version = ""
	if schema.Type == "" {
		schema.Type = "object"
	}

	b, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode schema of %s", name)
	}
	validator, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile schema of %s", name)
	}

	return &Definition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		fn:          reflect.ValueOf(fn),
		inputType:   inputType,
		validator:   validator,
	}, nil
}

// ValidationError lists why arguments did not match the tool's schema.
type ValidationError struct {
	Tool   string
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid arguments for " + e.Tool + ": " + strings.Join(e.Errors, "; ")
}

func (d *Definition) validate(args json.RawMessage) error {
	result, err := d.validator.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return errors.Wrapf(err, "failed to parse arguments for %s", d.Name)
	}
	if result.Valid() {
		return nil
	}
	ret := &ValidationError{Tool: d.Name}
	for _, desc := range result.Errors() {
		ret.Errors = append(ret.Errors, desc.String())
	}
	return ret
}

// Execute validates args and calls the tool function.
func (d *Definition) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := d.validate(args); err != nil {
		return nil, err
	}

	input := reflect.New(d.inputType)
	if err := json.Unmarshal(args, input.Interface()); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal arguments for %s", d.Name)
	}

	log.Debug().Str("tool", d.Name).RawJSON("args", args).Msg("Calling tool")
	out := d.fn.Call([]reflect.Value{reflect.ValueOf(ctx), input.Elem()})
	if errV := out[1].Interface(); errV != nil {
		return nil, errV.(error)
	}
	return out[0].Interface(), nil
}
