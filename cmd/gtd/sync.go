package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gtdsync/gtd/internal/sync"
	"github.com/gtdsync/gtd/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Import projects, sections and tasks from Todoist",
	Long: `Run a full reconciliation for one user.

This performs three passes against the user's Todoist account:
  1. Projects (then parent links)
  2. Sections of known projects
  3. Tasks, including their labels

Items already linked are overwritten with the Todoist state; new items are
imported. Nothing is deleted locally.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		email, _ := cmd.Flags().GetString("user")

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := lookupUser(ctx, store, email)
		if err != nil {
			return err
		}

		engine := sync.New(store, sync.TodoistFactory(todoistOptions(cfg.Todoist)...), nil, logs.Logger("sync"))

		fmt.Printf("%s Syncing %s with Todoist...\n", ui.RenderAccent("→"), user.Email)
		start := time.Now()
		result, err := engine.SyncAll(ctx, user.ID)
		if err != nil {
			return err
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Println("   " + ui.Counts("Projects", result.Projects.Imported, result.Projects.Updated))
		fmt.Println("   " + ui.Counts("Sections", result.Sections.Imported, result.Sections.Updated))
		fmt.Println("   " + ui.Counts("Tasks", result.Tasks.Imported, result.Tasks.Updated))
		return nil
	},
}

func init() {
	syncCmd.Flags().StringP("user", "u", "", "email of the user to sync")
	rootCmd.AddCommand(syncCmd)
}
