package payload

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// DecodeError reports a payload that could not be parsed or does not match
// the payload schema.
type DecodeError struct {
	Path    string
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("malformed payload at %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("malformed payload: %s", e.Message)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// validateSchema checks a JSON document against #DesignStructure.
// A fresh cue.Context is used per call since contexts are not safe for
// concurrent use.
func validateSchema(doc []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile payload schema: %w", err)
	}
	root := schema.LookupPath(cue.ParsePath("#DesignStructure"))

	v := ctx.CompileBytes(doc, cue.Filename("payload.json"))
	if err := v.Err(); err != nil {
		return formatCUEError(err)
	}

	unified := root.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError keeps the first CUE error and its value path.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &DecodeError{Message: err.Error(), Err: err}
	}

	first := errs[0]
	format, args := first.Msg()
	return &DecodeError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
