// Package lua runs Lua and Luau code on gopher-lua.
package lua

import (
	"context"
	"errors"
	"io"
	"strings"

	glua "github.com/yuin/gopher-lua"

	"github.com/caffeineduck/codeflow/executor"
)

// Option configures the runtime.
type Option func(*Runtime)

// WithCallStackSize sets the call stack size of each interpreter state.
func WithCallStackSize(n int) Option {
	return func(r *Runtime) {
		r.callStackSize = n
	}
}

// WithRegistryLimit caps the registry size, and with it the memory a run can
// use for values.
func WithRegistryLimit(n int) Option {
	return func(r *Runtime) {
		r.registryMaxSize = n
	}
}

// Runtime executes each run in a new interpreter state.
type Runtime struct {
	callStackSize   int
	registryMaxSize int
}

// New returns a Lua runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Loader returns an executor.Loader for the Lua runtime. The same loader
// serves Luau, which is executed with Lua 5.1 semantics.
func Loader(opts ...Option) executor.Loader {
	return func(ctx context.Context) (executor.Runtime, error) {
		return New(opts...), nil
	}
}

// Run executes code. print, io.write, io.stdout, io.output() and io.stderr
// write to the run's buffers; os.exit raises an error instead of terminating
// the process.
func (r *Runtime) Run(ctx context.Context, code string, stdout, stderr io.Writer) error {
	L := glua.NewState(glua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       r.callStackSize,
		RegistryMaxSize:     r.registryMaxSize,
		IncludeGoStackTrace: false,
	})
	defer L.Close()

	L.OpenLibs()
	L.SetContext(ctx)
	redirect(L, stdout, stderr)

	if err := L.DoString(code); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.New(message(err))
	}
	return nil
}

func (r *Runtime) Close(ctx context.Context) error {
	return nil
}

func redirect(L *glua.LState, stdout, stderr io.Writer) {
	L.SetGlobal("print", L.NewFunction(func(L *glua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		io.WriteString(stdout, strings.Join(parts, "\t")+"\n")
		return 0
	}))

	if ioTable, ok := L.GetGlobal("io").(*glua.LTable); ok {
		outFile := file(L, stdout)
		ioTable.RawSetString("stdout", outFile)
		ioTable.RawSetString("stderr", file(L, stderr))
		ioTable.RawSetString("write", L.NewFunction(func(L *glua.LState) int {
			writeArgs(L, stdout, 1)
			L.Push(outFile)
			return 1
		}))
		ioTable.RawSetString("output", L.NewFunction(func(L *glua.LState) int {
			if L.GetTop() > 0 && L.Get(1) != outFile {
				L.RaiseError("io.output redirection is not available")
			}
			L.Push(outFile)
			return 1
		}))
	}

	if osTable, ok := L.GetGlobal("os").(*glua.LTable); ok {
		osTable.RawSetString("exit", L.NewFunction(func(L *glua.LState) int {
			L.RaiseError("os.exit is not available")
			return 0
		}))
	}
}

// file returns a table standing in for a Lua file handle that writes to w.
// Methods are called as f:write(...), so the receiver is argument 1.
func file(L *glua.LState, w io.Writer) *glua.LTable {
	f := L.NewTable()
	f.RawSetString("write", L.NewFunction(func(L *glua.LState) int {
		writeArgs(L, w, 2)
		L.Push(L.Get(1))
		return 1
	}))
	f.RawSetString("flush", L.NewFunction(func(L *glua.LState) int {
		L.Push(L.Get(1))
		return 1
	}))
	f.RawSetString("setvbuf", L.NewFunction(func(L *glua.LState) int {
		L.Push(glua.LTrue)
		return 1
	}))
	return f
}

func writeArgs(L *glua.LState, w io.Writer, from int) {
	for i := from; i <= L.GetTop(); i++ {
		io.WriteString(w, L.ToStringMeta(L.Get(i)).String())
	}
}

// message returns the interpreter's error text without the Go-side stack
// traceback.
func message(err error) string {
	var apiErr *glua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}
