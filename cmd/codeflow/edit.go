package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/codeflow/internal/app"
	"github.com/caffeineduck/codeflow/internal/appconfig"
)

func runEdit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := app.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, path := range args {
		if _, err := a.OpenPath(path); err != nil {
			return err
		}
	}

	historyFile := cfg.Shell.HistoryFile
	if historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(historyFile), 0o755); err != nil {
			historyFile = ""
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	out := cmd.OutOrStdout()
	mode := "saved"
	if cfg.Storage.Driver == appconfig.DriverMemory {
		mode = "in memory"
	}
	fmt.Fprintf(out, "codeflow editor, %d file(s) restored, session %s (type 'help', Ctrl+D to exit)\n", a.Sessions.Len(), mode)

	sh := newShell(a, out, func(p string) (string, error) {
		rl.SetPrompt(p)
		return rl.Readline()
	})
	return sh.loop(cmd.Context())
}
