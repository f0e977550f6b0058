// Package planfile loads table declarations and their DDL plans from YAML
// files and versioned SQL step directories.
package planfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/tablekeeper/internal/persistence/sqlite/migration"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

// File is the on-disk shape of a plan file.
type File struct {
	Table   string       `yaml:"table"`
	Columns []ColumnSpec `yaml:"columns"`
	DDL     *DDLSpec     `yaml:"ddl"`
}

// ColumnSpec declares one column.
type ColumnSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	Default  any    `yaml:"default"`
	Unique   bool   `yaml:"unique"`
	Check    string `yaml:"check"`
}

// DDLSpec is the versioned plan of a managed table.
type DDLSpec struct {
	Version       int        `yaml:"version"`
	BeforeCreate  []string   `yaml:"before_create"`
	AfterCreateTx []string   `yaml:"after_create_tx"`
	AfterCreate   []string   `yaml:"after_create"`
	EveryOpen     []string   `yaml:"every_open"`
	Steps         []StepSpec `yaml:"steps"`
}

// StepSpec declares one inline migration step.
type StepSpec struct {
	To          int      `yaml:"to"`
	Pre         []string `yaml:"pre"`
	Tx          []string `yaml:"tx"`
	Post        []string `yaml:"post"`
	Strategy    string   `yaml:"strategy"`
	Description string   `yaml:"description"`
}

// Definition is a validated table declaration. Plan is nil for unmanaged
// tables.
type Definition struct {
	Table  string
	Schema schema.Schema
	Plan   *migration.Plan
}

// Load reads and parses the plan file at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewFileSystemError(path, "read file", err)
	}
	return Parse(data)
}

// Parse decodes a plan file. Unknown keys are rejected.
func Parse(data []byte) (*Definition, error) {
	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, schema.NewConfigurationError("", fmt.Errorf("plan file is empty"))
		}
		return nil, schema.NewConfigurationError("", fmt.Errorf("failed to decode plan file: %w", err))
	}
	return file.Definition()
}

// Definition converts the decoded file into a validated Definition.
func (f *File) Definition() (*Definition, error) {
	if f.Table == "" {
		return nil, schema.NewConfigurationError("table", fmt.Errorf("table name is required"))
	}

	columns := make([]schema.Column, len(f.Columns))
	for i, spec := range f.Columns {
		columnType, err := schema.ParseColumnType(spec.Type)
		if err != nil {
			return nil, schema.NewConfigurationError(fmt.Sprintf("columns[%d]", i), err)
		}
		columns[i] = schema.Column{
			Name:     spec.Name,
			Type:     columnType,
			Nullable: spec.Nullable,
			Default:  spec.Default,
			Unique:   spec.Unique,
			Check:    spec.Check,
		}
	}

	declared, err := schema.New(columns...)
	if err != nil {
		return nil, err
	}

	def := &Definition{Table: f.Table, Schema: declared}
	if f.DDL == nil {
		return def, nil
	}

	def.Plan = f.DDL.plan()
	if err := def.Plan.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *DDLSpec) plan() *migration.Plan {
	plan := &migration.Plan{
		Target:        d.Version,
		BeforeCreate:  d.BeforeCreate,
		AfterCreateTx: d.AfterCreateTx,
		AfterCreate:   d.AfterCreate,
		EveryOpen:     d.EveryOpen,
	}
	for _, spec := range d.Steps {
		plan.Steps = append(plan.Steps, migration.Step{
			To:          spec.To,
			Pre:         spec.Pre,
			Tx:          spec.Tx,
			Post:        spec.Post,
			Strategy:    migration.Strategy(spec.Strategy),
			Description: spec.Description,
			Checksum:    Checksum(spec.Pre, spec.Tx, spec.Post),
		})
	}
	return plan
}

// AddSteps merges steps loaded from a step directory into the plan. A
// version declared both inline and on disk is rejected.
func (d *Definition) AddSteps(steps []migration.Step) error {
	if len(steps) == 0 {
		return nil
	}
	if d.Plan == nil {
		return schema.NewConfigurationError("ddl", ErrNoPlan)
	}

	for _, step := range steps {
		if _, exists := d.Plan.Step(step.To); exists {
			return schema.NewConfigurationError(fmt.Sprintf("steps[%d]", step.To),
				fmt.Errorf("%w: version %d is declared inline and in the step directory", migration.ErrDuplicateStep, step.To))
		}
		d.Plan.Steps = append(d.Plan.Steps, step)
	}
	return d.Plan.Validate()
}
