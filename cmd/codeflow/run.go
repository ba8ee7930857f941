package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/executor"
	"github.com/caffeineduck/codeflow/internal/app"
	"github.com/caffeineduck/codeflow/language"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a file once without touching the session",
		Long: `Execute Python, Lua or Luau code and print its output.

Code can be provided via:
  - File argument: codeflow run script.py
  - Inline flag: codeflow run -l lua -c 'print(1+1)'
  - Stdin: echo 'print(1+1)' | codeflow run -l python

The language is taken from --lang, else from the file extension.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().StringP("lang", "l", "", "Language: python, lua, luau (default: from file extension)")
	cmd.Flags().Duration("timeout", 0, "Execution timeout (default: from config)")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	langFlag, _ := cmd.Flags().GetString("lang")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var filename string
	switch {
	case code != "":
	case len(args) > 0:
		filename = args[0]
		data, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		code = string(data)
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		code = string(data)
	}
	if strings.TrimSpace(code) == "" {
		return cmd.Help()
	}

	tag, err := runLanguage(langFlag, filename)
	if err != nil {
		return err
	}

	var opts []executor.Option
	if cmd.Flags().Changed("timeout") {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		opts = append(opts, executor.WithTimeout(timeout))
	}

	exec := app.NewExecutor(cfg, pslog.Ctx(cmd.Context()))
	defer exec.Close()

	result := exec.Run(cmd.Context(), tag, code, opts...)
	printOutput(cmd.OutOrStdout(), result.Output)
	return result.Error
}

func runLanguage(flag, filename string) (language.Tag, error) {
	if flag != "" {
		tag, ok := language.Parse(flag)
		if !ok {
			return "", fmt.Errorf("unknown language %q", flag)
		}
		return tag, nil
	}
	if filename == "" {
		return "", fmt.Errorf("language required: use --lang python, lua or luau")
	}
	return language.Detect(filename), nil
}

func printOutput(w io.Writer, output string) {
	if output == "" {
		return
	}
	fmt.Fprint(w, output)
	if !strings.HasSuffix(output, "\n") {
		fmt.Fprintln(w)
	}
}
