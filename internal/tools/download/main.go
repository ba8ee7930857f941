// Command download fetches the WASI Python interpreter used by the
// integration tests and the python runtime.
//
//	go run ./internal/tools/download <url> <output>
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caffeineduck/codeflow/language/python"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: download <url> <output>")
		os.Exit(1)
	}

	url, output := os.Args[1], os.Args[2]

	if _, err := os.Stat(output); err == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	data, err := python.Fetch(ctx, url, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
