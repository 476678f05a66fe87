package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gtdsync/gtd/internal/db"
	"github.com/gtdsync/gtd/internal/schema"
)

// exportDoc is the document written by 'gtd export'.
type exportDoc struct {
	ExportedAt time.Time         `json:"exported_at" yaml:"exported_at"`
	User       string            `json:"user" yaml:"user"`
	Projects   []*schema.Project `json:"projects" yaml:"projects"`
	Sections   []*schema.Section `json:"sections" yaml:"sections"`
	Tasks      []*schema.Task    `json:"tasks" yaml:"tasks"`
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "tasks",
	Short:   "Dump a user's projects, sections and tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		email, _ := cmd.Flags().GetString("user")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		if format != "yaml" && format != "json" {
			return fmt.Errorf("unknown format %q (want yaml or json)", format)
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := lookupUser(ctx, store, email)
		if err != nil {
			return err
		}

		doc := exportDoc{ExportedAt: time.Now().UTC(), User: user.Email}
		if doc.Projects, err = store.ListProjects(ctx, user.ID); err != nil {
			return err
		}
		if doc.Sections, err = store.ListUserSections(ctx, user.ID); err != nil {
			return err
		}
		if doc.Tasks, err = store.ListTasks(ctx, user.ID, db.TaskFilter{}); err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}
		return writeExport(w, format, &doc)
	},
}

func writeExport(w io.Writer, format string, doc *exportDoc) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
}

func init() {
	exportCmd.Flags().StringP("user", "u", "", "email of the user to export")
	exportCmd.Flags().StringP("format", "f", "yaml", "output format: yaml or json")
	exportCmd.Flags().StringP("output", "o", "-", "output file (- for stdout)")
	rootCmd.AddCommand(exportCmd)
}
