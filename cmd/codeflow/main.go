package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/internal/appconfig"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.WarnLevel}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("codeflow command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codeflow [file...]",
		Short: "Multi-file code editor with Python and Lua execution",
		Long: `codeflow - a multi-file editor session that survives restarts.

Files are kept in tabs with a language each. Python, Lua and Luau files
can be run in place; HTML, CSS and the other languages are edited and
previewed. Without a subcommand codeflow opens the interactive editor
shell, importing any files given as arguments.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runEdit,
	}

	root.PersistentFlags().String("config", "", "Config file (default: ~/.codeflow/config.yaml)")
	root.PersistentFlags().Bool("ephemeral", false, "Keep the session in memory only")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPreviewCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newRuntimeCmd())

	return root
}

// loadConfig reads the config selected by the persistent flags.
func loadConfig(cmd *cobra.Command) (appconfig.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	ephemeral, _ := cmd.Flags().GetBool("ephemeral")

	cfg, err := appconfig.Load(path)
	if err != nil {
		return appconfig.Config{}, err
	}
	if ephemeral {
		cfg.Storage.Driver = appconfig.DriverMemory
	}
	return cfg, nil
}
