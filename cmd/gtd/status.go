package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gtdsync/gtd/internal/db"
	"github.com/gtdsync/gtd/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "admin",
	Short:   "Show store location and row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}

		configLine := loader.Path()
		if !loader.FileLoaded() {
			configLine += ui.RenderMuted(" (not found, using defaults)")
		}

		fmt.Printf("\n%s\n\n", ui.RenderHeader("gtd status"))
		fmt.Println(ui.KeyValue("Config", configLine))
		fmt.Println(ui.KeyValue("Database", store.Path()))
		fmt.Println(ui.KeyValue("Driver", store.Driver()))
		if store.Driver() == db.DriverSQLite {
			if info, err := os.Stat(store.Path()); err == nil {
				fmt.Println(ui.KeyValue("Size", formatSize(info.Size())))
			}
		}
		fmt.Println()
		fmt.Println(ui.KeyValue("Users", stats.Users))
		fmt.Println(ui.KeyValue("Projects", stats.Projects))
		fmt.Println(ui.KeyValue("Sections", stats.Sections))
		fmt.Println(ui.KeyValue("Tasks", fmt.Sprintf("%d (%d linked to Todoist)", stats.Tasks, stats.LinkedTasks)))
		fmt.Println(ui.KeyValue("Labels", stats.Labels))
		fmt.Println()
		return nil
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
