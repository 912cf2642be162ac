package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API",
	Long: `Start a JSON API on localhost for the current session: state, projects and
session logs, analyze, agentic runs, undo and redo, plus a Server-Sent
Events stream of transcript lines and progress at /api/events.

The server runs until interrupted; the workspace is saved on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		addr := a.cfg.Serve.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := web.NewServer(web.Deps{
			Store:    a.store,
			Orch:     a.orch,
			Undo:     a.undo,
			Agentic:  a.agentic,
			Projects: a.db,
			Constraints: backend.Constraints{
				AutoCheck:   a.cfg.Apply.AutoCheck,
				MaxAttempts: a.cfg.Agentic.MaxAttempts,
				MaxActions:  a.cfg.Agentic.MaxActions,
			},
		}, addr, a.log)

		cmd.Printf("Serving on http://%s (Ctrl-C to stop)\n", addr)
		if err := srv.Start(ctx); err != nil {
			a.log.Error("server stopped", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config serve.addr)")
}
