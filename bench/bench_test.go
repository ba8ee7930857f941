// Package bench compares the execution bridge against native interpreters.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. -benchtime=3x ./bench/
//
// Python benchmarks need CODEFLOW_PYTHON_WASM pointing at a WASI build.
package bench

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/caffeineduck/codeflow/executor"
	"github.com/caffeineduck/codeflow/language"
	"github.com/caffeineduck/codeflow/language/javascript"
	"github.com/caffeineduck/codeflow/language/lua"
	"github.com/caffeineduck/codeflow/language/python"
)

const computation = `local s = 0
for i = 1, 1000 do s = s + i * i end
print(s)`

func newExecutor(tb testing.TB) *executor.Executor {
	tb.Helper()
	opts := []executor.ExecutorOption{
		executor.WithRuntime(language.Lua, lua.Loader()),
		executor.WithRuntime(language.JavaScript, javascript.Loader()),
	}
	if src := os.Getenv("CODEFLOW_PYTHON_WASM"); src != "" {
		opts = append(opts, executor.WithRuntime(language.Python, python.Loader(python.WithSource(src))))
	}
	return executor.New(opts...)
}

func requirePython(b *testing.B) {
	if os.Getenv("CODEFLOW_PYTHON_WASM") == "" {
		b.Skip("CODEFLOW_PYTHON_WASM not set")
	}
}

// --- Lua: cold start (new executor each time) ---

func BenchmarkLua_ColdStart(b *testing.B) {
	for i := 0; i < b.N; i++ {
		exec := newExecutor(b)
		exec.Run(context.Background(), language.Lua, "x = 1")
		exec.Close()
	}
}

// --- Lua: warm runs ---

func BenchmarkLua_Warm(b *testing.B) {
	exec := newExecutor(b)
	defer exec.Close()
	exec.Run(context.Background(), language.Lua, "x = 1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		exec.Run(context.Background(), language.Lua, "x = 1")
	}
}

func BenchmarkLua_Warm_Print(b *testing.B) {
	exec := newExecutor(b)
	defer exec.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		exec.Run(context.Background(), language.Lua, "print(1)")
	}
}

func BenchmarkLua_Warm_Computation(b *testing.B) {
	exec := newExecutor(b)
	defer exec.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		exec.Run(context.Background(), language.Lua, computation)
	}
}

func BenchmarkLua_Panel(b *testing.B) {
	exec := newExecutor(b)
	defer exec.Close()
	panel := exec.NewPanel()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		panel.Run(context.Background(), language.Lua, "print(1)")
	}
}

func BenchmarkJavaScript_Warm_Print(b *testing.B) {
	exec := newExecutor(b)
	defer exec.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		exec.Run(context.Background(), language.JavaScript, "console.log(1)")
	}
}

func BenchmarkPython_Warm_Print(b *testing.B) {
	requirePython(b)
	exec := newExecutor(b)
	defer exec.Close()
	exec.Run(context.Background(), language.Python, "x=1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		exec.Run(context.Background(), language.Python, "print(1)")
	}
}

// --- Native interpreters for reference ---

func BenchmarkNative_Lua(b *testing.B) {
	bin := nativeLua()
	if bin == "" {
		b.Skip("no lua binary on PATH")
	}
	for i := 0; i < b.N; i++ {
		osexec.Command(bin, "-e", "print(1)").Run()
	}
}

func BenchmarkNative_Python(b *testing.B) {
	if _, err := osexec.LookPath("python3"); err != nil {
		b.Skip("no python3 on PATH")
	}
	for i := 0; i < b.N; i++ {
		osexec.Command("python3", "-c", "print(1)").Run()
	}
}

func nativeLua() string {
	for _, name := range []string{"lua", "lua5.1", "luajit"} {
		if path, err := osexec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// --- Comparison table ---

func TestComparison(t *testing.T) {
	if testing.Short() {
		t.Skip("comparison is slow")
	}

	fmt.Println()
	fmt.Printf("Platform: %s/%s, CPUs: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Println()

	type result struct {
		name string
		cold time.Duration
		warm time.Duration
	}
	var results []result

	measure := func(runs int, fn func()) time.Duration {
		var total time.Duration
		for i := 0; i < runs; i++ {
			start := time.Now()
			fn()
			total += time.Since(start)
		}
		return total / time.Duration(runs)
	}
	const runs = 5

	exec := newExecutor(t)
	defer exec.Close()

	bridged := []struct {
		name string
		tag  language.Tag
		code string
	}{
		{"lua (gopher-lua)", language.Lua, "print(1)"},
		{"javascript (goja)", language.JavaScript, "console.log(1)"},
		{"python (wasm)", language.Python, "print(1)"},
	}
	for _, b := range bridged {
		if !exec.Supports(b.tag) {
			continue
		}
		start := time.Now()
		if r := exec.Run(context.Background(), b.tag, b.code); r.Failed() {
			t.Fatalf("%s: %v", b.name, r.Error)
		}
		cold := time.Since(start)
		warm := measure(runs, func() { exec.Run(context.Background(), b.tag, b.code) })
		results = append(results, result{name: b.name, cold: cold, warm: warm})
	}

	if bin := nativeLua(); bin != "" {
		cold := measure(1, func() { osexec.Command(bin, "-e", "print(1)").Run() })
		warm := measure(runs, func() { osexec.Command(bin, "-e", "print(1)").Run() })
		results = append(results, result{name: "native lua", cold: cold, warm: warm})
	}
	if _, err := osexec.LookPath("python3"); err == nil {
		cold := measure(1, func() { osexec.Command("python3", "-c", "print(1)").Run() })
		warm := measure(runs, func() { osexec.Command("python3", "-c", "print(1)").Run() })
		results = append(results, result{name: "native python3", cold: cold, warm: warm})
	}

	fmt.Printf("%-22s %12s %12s\n", "runtime", "cold", "warm")
	for _, r := range results {
		fmt.Printf("%-22s %12s %12s\n", r.name, formatDuration(r.cold), formatDuration(r.warm))
	}
	fmt.Println()
}

func TestLuaRunsDoNotShareGlobals(t *testing.T) {
	exec := newExecutor(t)
	defer exec.Close()

	exec.Run(context.Background(), language.Lua, "counter = (counter or 0) + 1")
	r := exec.Run(context.Background(), language.Lua, "print(counter == nil)")
	if r.Output != "true\n" {
		t.Errorf("globals leaked between runs: %q", r.Output)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.0fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
