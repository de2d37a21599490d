package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// FileValues holds the raw parameter values read from one configuration file.
type FileValues struct {
	// Path is the file the values were read from.
	Path string `json:"path"`

	// Values maps parameter names to their string form.
	Values map[string]string `json:"values"`
}

// CUEParser parses and validates deployment configuration files.
type CUEParser struct {
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a new parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{schemaRegistry: NewSchemaRegistry()}
}

// ParseFile reads a YAML or CUE file, chosen by extension, and validates it against the deploy schema.
func (cp *CUEParser) ParseFile(path string) (*FileValues, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return cp.parseCUE(path, content)
	case ".yaml", ".yml", "":
		return cp.parseYAML(path, content)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (use .yaml, .yml or .cue)", filepath.Ext(path))
	}
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(content string) (*FileValues, error) {
	return cp.parseCUE("inline", []byte(content))
}

func (cp *CUEParser) parseCUE(path string, content []byte) (*FileValues, error) {
	val := cp.schemaRegistry.Context().CompileBytes(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, ValidationErrors(cp.convertCUEErrors(err))
	}

	unified := cp.schemaRegistry.Definition().Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, ValidationErrors(cp.convertCUEErrors(err))
	}

	var raw map[string]interface{}
	if err := unified.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return cp.toFileValues(path, raw)
}

func (cp *CUEParser) parseYAML(path string, content []byte) (*FileValues, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, ValidationErrors{{File: path, Message: err.Error(), Severity: "error"}}
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	if err := cp.schemaRegistry.ValidateAgainstSchema(raw); err != nil {
		errs := cp.convertCUEErrors(err)
		for i := range errs {
			errs[i].File = path
		}
		return nil, ValidationErrors(errs)
	}

	return cp.toFileValues(path, raw)
}

func (cp *CUEParser) toFileValues(path string, raw map[string]interface{}) (*FileValues, error) {
	fv := &FileValues{Path: path, Values: make(map[string]string, len(raw))}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := LookupParameter(k); !ok {
			return nil, ValidationErrors{{File: path, Path: k, Message: "unknown parameter", Severity: "error"}}
		}
		s, err := stringify(raw[k])
		if err != nil {
			return nil, ValidationErrors{{File: path, Path: k, Message: err.Error(), Severity: "error"}}
		}
		fv.Values[k] = s
	}
	return fv, nil
}

// stringify converts a decoded scalar or list into the snapshot's string form.
func stringify(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, err := stringify(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range cueerrors.Errors(err) {
		pos := cueerrors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  cueerrors.Details(e, nil),
			Severity: "error",
		})
	}

	if len(validationErrors) == 0 {
		validationErrors = append(validationErrors, ValidationError{Message: err.Error(), Severity: "error"})
	}
	return validationErrors
}
