package manifest

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/internal/output"
)

//go:embed schema.cue
var schemaFS embed.FS

// Format is a manifest encoding.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

// FormatOf derives the format from a file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".hcl":
		return FormatHCL, true
	}
	return "", false
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, oerrors.NewValidationError(
			fmt.Sprintf("unsupported manifest extension %q", filepath.Ext(path)), path, "",
			"use .cue, .yaml, .yml, .json or .hcl")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oerrors.NewNotFoundError(fmt.Sprintf("manifest %s does not exist", path), path, "")
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data, path, format)
}

// Parse decodes data in the given format and validates it. filename is
// used in error locations.
func Parse(data []byte, filename string, format Format) (*Manifest, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}

	var m *Manifest
	switch format {
	case FormatCUE:
		m, err = v.decodeCUE(data, filename)
	case FormatYAML, FormatJSON:
		m, err = decodeYAML(data, filename)
		if err == nil {
			err = v.validate(v.ctx.Encode(m), filename)
		}
	case FormatHCL:
		m, err = decodeHCL(data, filename)
		if err == nil {
			err = v.validate(v.ctx.Encode(m), filename)
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	if err != nil {
		return nil, err
	}

	m.Source = filename
	m.normalize()
	if err := m.check(); err != nil {
		return nil, err
	}
	output.Debug("loaded manifest", "path", filename, "format", string(format), "operations", len(m.Operations))
	return m, nil
}

type validator struct {
	ctx    *cue.Context
	schema cue.Value
}

func newValidator() (*validator, error) {
	ctx := cuecontext.New()
	data, err := schemaFS.ReadFile("schema.cue")
	if err != nil {
		return nil, fmt.Errorf("reading embedded schema: %w", err)
	}
	schema := ctx.CompileBytes(data, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}
	return &validator{ctx: ctx, schema: schema.LookupPath(cue.ParsePath("#Manifest"))}, nil
}

func (v *validator) validate(val cue.Value, filename string) error {
	if err := val.Err(); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := v.schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return schemaError(err, filename)
	}
	return nil
}

func (v *validator) decodeCUE(data []byte, filename string) (*Manifest, error) {
	val := v.ctx.CompileBytes(data, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, schemaError(err, filename)
	}
	unified := v.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaError(err, filename)
	}
	var m Manifest
	if err := unified.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}

func decodeYAML(data []byte, filename string) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, oerrors.NewValidationError(err.Error(), filename, "", "")
	}
	return &m, nil
}

// schemaError renders every CUE error on its own line with its path and
// first source position.
func schemaError(err error, filename string) error {
	var lines []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		line := fmt.Sprintf(format, args...)
		if path := strings.Join(e.Path(), "."); path != "" {
			line = path + ": " + line
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 && pos[0].Filename() != "schema.cue" {
			line += " (" + pos[0].String() + ")"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, err.Error())
	}
	return oerrors.NewValidationError(strings.Join(lines, "\n  "), filename, "", "see the manifest schema for allowed fields")
}
