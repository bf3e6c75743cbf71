package schema

import (
	"fmt"
)

// TableSpec declares a table. References name their target by table name and
// are attached only after every table shell exists, so self-references and
// forward declarations need no special casing.
type TableSpec struct {
	Name               string
	HasID              bool
	IDColumn           string
	Refs               []RefSpec
	Uniques            [][]string
	Excludes           []string
	MaxBatch           int
	DropFailingBatches bool
	Policy             ConflictPolicy
	Timestamp          string
}

// RefSpec declares a reference from a column to the identifier of Target.
type RefSpec struct {
	Column            string
	Target            string
	IgnoreConsistency bool
}

// Ref is shorthand for a checked reference.
func Ref(column, target string) RefSpec {
	return RefSpec{Column: column, Target: target}
}

// IgnoredRef is shorthand for a reference whose consistency failures are
// only reported as warnings.
func IgnoredRef(column, target string) RefSpec {
	return RefSpec{Column: column, Target: target, IgnoreConsistency: true}
}

// Unique is shorthand for a uniqueness constraint.
func Unique(columns ...string) []string {
	return columns
}

// ValidationError is returned by Build when a declaration is inconsistent.
type ValidationError struct {
	Schema string
	Table  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("schema %s: %s", e.Schema, e.Reason)
	}
	return fmt.Sprintf("schema %s: table %s: %s", e.Schema, e.Table, e.Reason)
}

// Builder assembles a Schema in two phases: table shells in declaration
// order, then references resolved against the complete set of shells.
type Builder struct {
	name  string
	specs []TableSpec
}

// NewBuilder starts a schema with the given generation name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Table appends a table declaration. Order matters: it is the merge order.
func (b *Builder) Table(spec TableSpec) *Builder {
	b.specs = append(b.specs, spec)
	return b
}

// Build validates the declarations and returns the schema.
func (b *Builder) Build() (*Schema, error) {
	s := &Schema{
		name:   b.name,
		byName: make(map[string]*Table, len(b.specs)),
	}
	position := make(map[string]int, len(b.specs))

	// Phase one: shells.
	for i, spec := range b.specs {
		if spec.Name == "" {
			return nil, &ValidationError{Schema: b.name, Reason: fmt.Sprintf("table #%d has no name", i)}
		}
		if _, dup := s.byName[spec.Name]; dup {
			return nil, &ValidationError{Schema: b.name, Table: spec.Name, Reason: "declared twice"}
		}
		if spec.MaxBatch < 0 {
			return nil, &ValidationError{Schema: b.name, Table: spec.Name, Reason: "max batch size cannot be negative"}
		}
		if spec.Policy != ConflictSkip && spec.Policy != ConflictAbort {
			return nil, &ValidationError{Schema: b.name, Table: spec.Name, Reason: fmt.Sprintf("unknown conflict policy %d", int(spec.Policy))}
		}
		idColumn := spec.IDColumn
		if idColumn == "" {
			idColumn = DefaultIDColumn
		}
		t := &Table{
			name:               spec.Name,
			hasID:              spec.HasID,
			idColumn:           idColumn,
			maxBatch:           spec.MaxBatch,
			dropFailingBatches: spec.DropFailingBatches,
			policy:             spec.Policy,
			timestamp:          spec.Timestamp,
		}
		for _, u := range spec.Uniques {
			if len(u) == 0 {
				return nil, &ValidationError{Schema: b.name, Table: spec.Name, Reason: "empty unique constraint"}
			}
			t.uniques = append(t.uniques, append([]string(nil), u...))
		}
		for _, ex := range spec.Excludes {
			if ex == "" {
				return nil, &ValidationError{Schema: b.name, Table: spec.Name, Reason: "empty excluded column"}
			}
			if spec.HasID && ex == idColumn {
				return nil, &ValidationError{Schema: b.name, Table: spec.Name, Reason: "identifier column cannot be excluded"}
			}
			t.excludes = append(t.excludes, ex)
		}
		s.tables = append(s.tables, t)
		s.byName[t.name] = t
		position[t.name] = i
	}

	// Phase two: references.
	for i, spec := range b.specs {
		owner := s.tables[i]
		seen := make(map[string]bool, len(spec.Refs))
		for _, ref := range spec.Refs {
			if ref.Column == "" {
				return nil, &ValidationError{Schema: b.name, Table: owner.name, Reason: "reference without column"}
			}
			if seen[ref.Column] {
				return nil, &ValidationError{Schema: b.name, Table: owner.name, Reason: fmt.Sprintf("column %s referenced twice", ref.Column)}
			}
			seen[ref.Column] = true

			target, ok := s.byName[ref.Target]
			if !ok {
				return nil, &ValidationError{Schema: b.name, Table: owner.name, Reason: fmt.Sprintf("column %s references unknown table %q", ref.Column, ref.Target)}
			}
			if !target.hasID {
				return nil, &ValidationError{Schema: b.name, Table: owner.name, Reason: fmt.Sprintf("column %s references table %s which has no identifier", ref.Column, target.name)}
			}
			if target != owner && position[target.name] > i {
				return nil, &ValidationError{Schema: b.name, Table: owner.name, Reason: fmt.Sprintf("column %s references table %s which is declared later", ref.Column, target.name)}
			}
			if target == owner && ref.Column == owner.idColumn {
				return nil, &ValidationError{Schema: b.name, Table: owner.name, Reason: "identifier column cannot reference its own table"}
			}
			owner.refs = append(owner.refs, Reference{
				Column:            ref.Column,
				Target:            target,
				IgnoreConsistency: ref.IgnoreConsistency,
			})
		}
	}

	return s, nil
}

// MustBuild is Build for package-level schema definitions.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
