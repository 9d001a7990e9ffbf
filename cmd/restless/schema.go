package restless

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/edgeflare/restless/pkg/schema"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func newSchemaCmd(load loadFunc) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the entities the API would expose",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			db, registry, err := openRegistry(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer db.Close()

			return renderSchema(cmd.OutOrStdout(), registry, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json, yaml)")
	return cmd
}

type columnView struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

type relationView struct {
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"`
	Target string `json:"target" yaml:"target"`
	On     string `json:"on" yaml:"on"`
}

type entityView struct {
	Entity     string         `json:"entity" yaml:"entity"`
	Table      string         `json:"table" yaml:"table"`
	PrimaryKey string         `json:"primary_key" yaml:"primary_key"`
	Columns    []columnView   `json:"columns" yaml:"columns"`
	Relations  []relationView `json:"relations,omitempty" yaml:"relations,omitempty"`
}

func views(registry *schema.Registry) []entityView {
	var out []entityView
	for _, name := range registry.Names() {
		e, ok := registry.Lookup(name)
		if !ok {
			continue
		}
		v := entityView{Entity: e.Name, Table: e.Table.Name, PrimaryKey: e.PrimaryKey}
		if e.Schema != "" {
			v.Table = e.Schema + "." + e.Table.Name
		}
		for _, c := range e.Columns {
			v.Columns = append(v.Columns, columnView{Name: c.Name, Type: c.DataType, Nullable: c.IsNullable})
		}
		for _, r := range e.Relations {
			v.Relations = append(v.Relations, relationView{
				Name:   r.Name,
				Kind:   string(r.Kind),
				Target: r.Target,
				On:     fmt.Sprintf("%s.%s = %s.%s", e.Name, r.LocalColumn, r.Target, r.RemoteColumn),
			})
		}
		out = append(out, v)
	}
	return out
}

func renderSchema(w io.Writer, registry *schema.Registry, format string) error {
	entities := views(registry)

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entities)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entities); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		if len(entities) == 0 {
			_, _ = fmt.Fprintln(w, "(0 entities)")
			return nil
		}
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Entity", "Table", "Primary key", "Columns", "Relations"})
		for _, e := range entities {
			cols := make([]string, len(e.Columns))
			for i, c := range e.Columns {
				cols[i] = c.Name
			}
			rels := make([]string, len(e.Relations))
			for i, r := range e.Relations {
				rels[i] = fmt.Sprintf("%s (%s %s)", r.Name, r.Kind, r.Target)
			}
			t.AppendRow(table.Row{e.Entity, e.Table, e.PrimaryKey, strings.Join(cols, ", "), strings.Join(rels, "\n")})
		}
		t.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
