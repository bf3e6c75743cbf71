package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lherron/msgmerge/internal/render"
	"github.com/lherron/msgmerge/internal/schema"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the tables of the active schema in merge order",
	Long: `Lists the tables of the schema generation selected by --schema, in the
order they are merged, with their references, unique keys and insert policy.`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

var (
	schemaJSON bool
	schemaYAML bool
)

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "Output JSON")
	schemaCmd.Flags().BoolVar(&schemaYAML, "yaml", false, "Output YAML")
	schemaCmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

type schemaDescription struct {
	Name   string             `json:"name" yaml:"name"`
	Tables []tableDescription `json:"tables" yaml:"tables"`
}

type tableDescription struct {
	Name               string                 `json:"name" yaml:"name"`
	IDColumn           string                 `json:"id_column,omitempty" yaml:"id_column,omitempty"`
	References         []referenceDescription `json:"references,omitempty" yaml:"references,omitempty"`
	Unique             [][]string             `json:"unique,omitempty" yaml:"unique,omitempty"`
	Excluded           []string               `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	OnConflict         string                 `json:"on_conflict" yaml:"on_conflict"`
	MaxBatch           int                    `json:"max_batch,omitempty" yaml:"max_batch,omitempty"`
	DropFailingBatches bool                   `json:"drop_failing_batches,omitempty" yaml:"drop_failing_batches,omitempty"`
	Timestamp          string                 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

type referenceDescription struct {
	Column  string `json:"column" yaml:"column"`
	Target  string `json:"target" yaml:"target"`
	Ignored bool   `json:"ignored,omitempty" yaml:"ignored,omitempty"`
}

func describeSchema(s *schema.Schema) schemaDescription {
	out := schemaDescription{Name: s.Name()}
	for _, t := range s.Tables() {
		d := tableDescription{
			Name:               t.Name(),
			Unique:             t.UniqueConstraints(),
			Excluded:           t.ExcludedColumns(),
			OnConflict:         t.ConflictPolicy().String(),
			MaxBatch:           t.MaxBatchSize(),
			DropFailingBatches: t.DropFailingBatches(),
			Timestamp:          t.TimestampColumn(),
		}
		if t.HasIdentifier() {
			d.IDColumn = t.IDColumn()
		}
		for _, ref := range t.References() {
			d.References = append(d.References, referenceDescription{
				Column:  ref.Column,
				Target:  ref.Target.Name(),
				Ignored: ref.IgnoreConsistency,
			})
		}
		out.Tables = append(out.Tables, d)
	}
	return out
}

func runSchema(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	desc := describeSchema(e.schema)

	switch {
	case schemaJSON:
		return render.NewRenderer(cmd.OutOrStdout(), render.FormatJSON).Render(desc)
	case schemaYAML:
		return render.NewRenderer(cmd.OutOrStdout(), render.FormatYAML).Render(desc)
	}

	rows := make([][]string, 0, len(desc.Tables))
	for i, t := range desc.Tables {
		refs := make([]string, 0, len(t.References))
		for _, r := range t.References {
			ref := r.Column + "→" + r.Target
			if r.Ignored {
				ref += "?"
			}
			refs = append(refs, ref)
		}
		unique := make([]string, 0, len(t.Unique))
		for _, u := range t.Unique {
			unique = append(unique, "("+strings.Join(u, ",")+")")
		}
		batch := "-"
		if t.MaxBatch > 0 {
			batch = strconv.Itoa(t.MaxBatch)
		}
		if t.DropFailingBatches {
			batch += " drop"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			t.Name,
			orDash(t.IDColumn),
			t.OnConflict,
			batch,
			orDash(strings.Join(unique, " ")),
			orDash(strings.Join(refs, " ")),
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Schema %s (%d tables, ? marks references that may dangle)\n\n", desc.Name, len(desc.Tables))
	return render.NewRenderer(cmd.OutOrStdout(), render.FormatTable).RenderTable(
		[]string{"#", "TABLE", "ID", "ON CONFLICT", "BATCH", "UNIQUE", "REFERENCES"}, rows)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
