package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a payload document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format by file extension. Anything that is not
// .yaml or .yml is read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode parses data, validates it against the payload schema and returns
// the typed design structure. Every failure is a *DecodeError.
func Decode(data []byte, format Format) (DesignStructure, error) {
	var ds DesignStructure

	doc, err := normalize(data, format)
	if err != nil {
		return ds, err
	}

	if err := validateSchema(doc); err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return ds, de
		}
		return ds, &DecodeError{Message: err.Error(), Err: err}
	}

	if err := json.Unmarshal(doc, &ds); err != nil {
		return ds, typedDecodeError(err)
	}
	return ds, nil
}

// normalize turns either encoding into one JSON document so that schema
// validation and typed decoding see identical input.
func normalize(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return nil, &DecodeError{Message: fmt.Sprintf("invalid JSON: %v", err), Err: err}
		}
		if dec.More() {
			return nil, &DecodeError{Message: "invalid JSON: trailing data after document"}
		}
		return data, nil

	case FormatYAML:
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, &DecodeError{Message: fmt.Sprintf("invalid YAML: %v", err), Err: err}
		}
		doc, err := json.Marshal(generic)
		if err != nil {
			return nil, &DecodeError{Message: fmt.Sprintf("unsupported YAML value: %v", err), Err: err}
		}
		return doc, nil

	default:
		return nil, &DecodeError{Message: fmt.Sprintf("unsupported format %q", format)}
	}
}

func typedDecodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &DecodeError{
			Path:    typeErr.Field,
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			Err:     err,
		}
	}
	return &DecodeError{Message: err.Error(), Err: err}
}
