package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/temporadb/tempora/internal/schema"
	"github.com/temporadb/tempora/internal/terr"
)

// modelsFile is the YAML document declaring tables.
type modelsFile struct {
	Tables []tableDecl `yaml:"tables"`
}

type tableDecl struct {
	Name        string       `yaml:"name"`
	Strategy    string       `yaml:"strategy"`
	MultiTenant bool         `yaml:"multi_tenant"`
	SoftDelete  bool         `yaml:"soft_delete"`
	Columns     []columnDecl `yaml:"columns"`
	Indexes     []indexDecl  `yaml:"indexes"`
}

type columnDecl struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable"`
	Default    string `yaml:"default"`
	PrimaryKey bool   `yaml:"primary_key"`
	MaxLength  int    `yaml:"max_length"`
	Precision  int    `yaml:"precision"`
	Scale      int    `yaml:"scale"`
}

type indexDecl struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
	Method  string   `yaml:"method"`
	Where   string   `yaml:"where"`
}

// LoadModels reads and validates table declarations from a YAML file.
func LoadModels(path string) ([]*schema.TableDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, terr.Wrap(terr.ErrConfigInvalid, err, "failed to read models file").
			With("path", path)
	}

	var doc modelsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, terr.Wrap(terr.ErrConfigInvalid, err, "failed to parse models file").
			With("path", path)
	}
	if len(doc.Tables) == 0 {
		return nil, terr.New(terr.ErrConfigInvalid, "models file declares no tables").
			With("path", path)
	}

	tables := make([]*schema.TableDef, 0, len(doc.Tables))
	for _, decl := range doc.Tables {
		t, err := decl.toTableDef()
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (d tableDecl) toTableDef() (*schema.TableDef, error) {
	strategy, err := schema.ParseStrategy(d.Strategy)
	if err != nil {
		return nil, err
	}

	t := &schema.TableDef{
		Name:        d.Name,
		Strategy:    strategy,
		MultiTenant: d.MultiTenant,
		SoftDelete:  d.SoftDelete,
	}
	for _, c := range d.Columns {
		t.Columns = append(t.Columns, &schema.ColumnDef{
			Name:       c.Name,
			Type:       schema.ColumnType(c.Type),
			Nullable:   c.Nullable,
			Default:    c.Default,
			PrimaryKey: c.PrimaryKey,
			MaxLength:  c.MaxLength,
			Precision:  c.Precision,
			Scale:      c.Scale,
		})
	}
	for _, i := range d.Indexes {
		t.Indexes = append(t.Indexes, &schema.IndexDef{
			Name:    i.Name,
			Columns: i.Columns,
			Unique:  i.Unique,
			Method:  i.Method,
			Where:   i.Where,
		})
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
