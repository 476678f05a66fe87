package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gtdsync/gtd/internal/config"
	"github.com/gtdsync/gtd/internal/dashboard"
	"github.com/gtdsync/gtd/internal/service"
	"github.com/gtdsync/gtd/internal/sync"
	"github.com/gtdsync/gtd/internal/todoist"
	"github.com/gtdsync/gtd/internal/ui"
	"github.com/gtdsync/gtd/internal/web"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "tasks",
	Short:   "Start the HTTP API and live dashboard",
	Long: `Start the gtd HTTP API.

Every request authenticates with "Authorization: Bearer <api key>" (see
'gtd user add'). Connected browsers receive live task, project, section and
sync events on the /ws WebSocket.

Changes to the [todoist] and [log] sections of the config file are applied
without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		var todoistCfg atomic.Pointer[config.TodoistConfig]
		todoistCfg.Store(&cfg.Todoist)
		newClient := func(token string) (*todoist.Client, error) {
			return todoist.NewClient(token, todoistOptions(*todoistCfg.Load())...)
		}

		hub := dashboard.NewHub(&dashboard.Config{Logger: logs.Logger("dashboard")})
		hub.Start()
		defer hub.Stop()
		events := dashboard.NewHandler(hub, logs.Logger("dashboard"))

		engine := sync.New(store, func(token string) (sync.Remote, error) {
			c, err := newClient(token)
			if err != nil {
				return nil, err
			}
			return c, nil
		}, events, logs.Logger("sync"))

		svc := service.New(store, func(token string) (service.Remote, error) {
			c, err := newClient(token)
			if err != nil {
				return nil, err
			}
			return c, nil
		}, engine, events, logs.Logger("service"))

		loader.Watch(func(next *config.Config) {
			todoistCfg.Store(&next.Todoist)
			logs.SetVerbose(next.Log.Verbose || verbose)
		})

		server := web.NewServer(web.Config{
			Service: svc,
			Users:   store,
			Hub:     hub,
			Logger:  logs.Logger("web"),
		})
		if err := server.Start(cfg.Server.Addr); err != nil {
			return err
		}

		fmt.Printf("%s gtd API listening on http://%s\n", ui.RenderPass("✓"), server.Addr())
		fmt.Printf("   Dashboard: ws://%s/ws\n", server.Addr())
		fmt.Printf("   Database:  %s (%s)\n", store.Path(), store.Driver())
		fmt.Println(ui.RenderMuted("\nPress Ctrl+C to stop..."))

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
