package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ufmn/followup/internal/platform/table"
)

// Schema maps column names to the kind their cells parse as. Columns not in
// the schema load as strings.
type Schema map[string]table.Kind

func (s Schema) kind(col string) table.Kind {
	if k, ok := s[col]; ok {
		return k
	}
	return table.KindString
}

// Merge returns a schema with other's entries layered over s.
func (s Schema) Merge(other Schema) Schema {
	out := make(Schema, len(s)+len(other))
	for c, k := range s {
		out[c] = k
	}
	for c, k := range other {
		out[c] = k
	}
	return out
}

type schemaFile struct {
	Columns map[string]string `yaml:"columns"`
}

// ParseSchema reads a YAML document of the form
//
//	columns:
//	  fecha_visita: date
//	  lenguaje: int
func ParseSchema(data []byte) (Schema, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	s := make(Schema, len(f.Columns))
	for col, name := range f.Columns {
		k, err := table.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("schema column %s: %w", col, err)
		}
		s[col] = k
	}
	return s, nil
}

func LoadSchemaFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseSchema(data)
}

// build turns a header and string records into a typed table.
func build(header []string, records [][]string, schema Schema) (*table.Table, error) {
	t, err := table.NewChecked(header...)
	if err != nil {
		return nil, err
	}
	kinds := make([]table.Kind, len(header))
	for i, c := range header {
		kinds[i] = schema.kind(c)
	}
	for n, rec := range records {
		row := make([]table.Value, len(header))
		for i := range header {
			var cell string
			if i < len(rec) {
				cell = rec[i]
			}
			v, err := table.Parse(cell, kinds[i])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", n+1, header[i], err)
			}
			row[i] = v
		}
		if err := t.Append(row...); err != nil {
			return nil, err
		}
	}
	return t, nil
}
