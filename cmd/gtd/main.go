// Command gtd is a GTD task manager with two-way Todoist sync.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gtdsync/gtd/internal/config"
	"github.com/gtdsync/gtd/internal/logging"
	"github.com/gtdsync/gtd/internal/ui"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

var (
	cfgFile string
	verbose bool
	noColor bool

	loader *config.Loader
	cfg    *config.Config
	logs   *logging.Factory
)

var rootCmd = &cobra.Command{
	Use:           "gtd",
	Short:         "GTD task manager with two-way Todoist sync",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.DisableColor()
		} else {
			ui.Init(os.Stdout)
		}
		if cmd.Annotations[skipConfig] == "true" {
			return nil
		}

		loader = config.NewLoader(cfgFile, nil)
		var err error
		if cfg, err = loader.Load(); err != nil {
			return err
		}
		if verbose {
			cfg.Log.Verbose = true
		}

		logs = logging.New(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Verbose:    cfg.Log.Verbose,
		})
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logs != nil {
			return logs.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task Commands:"},
		&cobra.Group{ID: "sync", Title: "Todoist Commands:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
