package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/internal/app"
	"github.com/caffeineduck/codeflow/language"
	"github.com/caffeineduck/codeflow/language/python"
)

func newRuntimeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runtime",
		Short: "Manage execution runtimes",
		Long: `Inspect and prepare the runtimes used to execute code.

Lua and Luau are built in. Python runs on a WebAssembly build of CPython
that is loaded from python.source in the config, a file path or URL.
Use 'runtime fetch' to download it once and keep a local copy.`,
	}

	cache := &cobra.Command{
		Use:   "cache",
		Short: "Compilation cache commands",
	}
	cache.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the compilation cache",
		Args:  cobra.NoArgs,
		RunE:  runRuntimeCacheClear,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show runtimes and where Python is loaded from",
		Args:  cobra.NoArgs,
		RunE:  runRuntimeStatus,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "warm [language...]",
		Short: "Initialize runtimes ahead of time",
		RunE:  runRuntimeWarm,
	})
	fetch := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download the Python interpreter",
		Args:  cobra.ExactArgs(1),
		RunE:  runRuntimeFetch,
	}
	fetch.Flags().StringP("output", "o", "", "Destination (default: python.source from config)")
	cmd.AddCommand(fetch, cache)
	return cmd
}

func runRuntimeStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	exec := app.NewExecutor(cfg, pslog.Ctx(cmd.Context()))
	defer exec.Close()

	out := cmd.OutOrStdout()
	for _, tag := range exec.Languages() {
		fmt.Fprintf(out, "%-12s %s\n", tag, language.Label(tag))
	}
	fmt.Fprintf(out, "\npython source: %s", cfg.Python.Source)
	if isLocal(cfg.Python.Source) {
		if _, err := os.Stat(cfg.Python.Source); err != nil {
			fmt.Fprint(out, " (missing)")
		}
	}
	fmt.Fprintf(out, "\npython cache:  %s\n", cfg.Python.CacheDir)
	return nil
}

func runRuntimeWarm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	exec := app.NewExecutor(cfg, pslog.Ctx(cmd.Context()))
	defer exec.Close()

	tags := exec.Languages()
	if len(args) > 0 {
		tags = tags[:0]
		for _, arg := range args {
			tag, ok := language.Parse(arg)
			if !ok {
				return fmt.Errorf("unknown language %q", arg)
			}
			tags = append(tags, tag)
		}
	}

	var errs []error
	for _, tag := range tags {
		if err := exec.Warm(cmd.Context(), tag); err != nil {
			errs = append(errs, err)
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", tag, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", tag, exec.State(tag))
	}
	return errors.Join(errs...)
}

func runRuntimeFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = cfg.Python.Source
	}
	if !isLocal(output) {
		return fmt.Errorf("python.source is a URL, pass --output")
	}

	data, err := python.Fetch(cmd.Context(), args[0], nil)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(data))
	return nil
}

func runRuntimeCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := cfg.Python.CacheDir
	if dir == "" {
		dir = python.DefaultCacheDir()
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", dir)
	return nil
}

func isLocal(source string) bool {
	return source != "" && !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://")
}
