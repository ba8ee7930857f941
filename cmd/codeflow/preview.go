package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/internal/app"
	"github.com/caffeineduck/codeflow/preview"
)

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Serve the saved session over HTTP",
		Long: `Start an HTTP server rendering the saved session.

Endpoints:
  GET  /                       Active file, rendered by language
  GET  /files                  Open files (JSON)
  GET  /files/{id}             A file, rendered by language
  GET  /files/{id}/stylesheets Stylesheet links of an HTML file (JSON)
  POST /files/{id}/run         Run a file and return the result (JSON)
  GET  /health                 Health check

HTML files get a <base href="/" target="_blank"> so relative links
resolve against the server and open in a new tab.`,
		Args: cobra.NoArgs,
		RunE: runPreview,
	}
	cmd.Flags().String("addr", "", "Listen address (default: from config)")
	return cmd
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Preview.Addr = addr
	}

	ctx := cmd.Context()
	log := pslog.Ctx(ctx)

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", cfg.Preview.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "preview at http://%s/\n", ln.Addr())
	log.Info("preview server starting", "addr", ln.Addr().String())

	router := preview.NewRouter(a.Sessions, preview.WithExecutor(a.Exec), preview.WithLogger(log))
	return preview.Serve(ctx, ln, router)
}
