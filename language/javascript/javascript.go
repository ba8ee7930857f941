// Package javascript runs JavaScript code on goja.
package javascript

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dop251/goja"

	"github.com/caffeineduck/codeflow/executor"
)

// Runtime executes each run in a new goja VM.
type Runtime struct{}

// New returns a JavaScript runtime.
func New() *Runtime {
	return &Runtime{}
}

// Loader returns an executor.Loader for the JavaScript runtime.
func Loader() executor.Loader {
	return func(ctx context.Context) (executor.Runtime, error) {
		return New(), nil
	}
}

// Run executes code. console.log, info and debug write to stdout; warn and
// error write to stderr.
func (r *Runtime) Run(ctx context.Context, code string, stdout, stderr io.Writer) error {
	vm := goja.New()
	if err := installConsole(vm, stdout, stderr); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	_, err := vm.RunString(code)
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.New("script interrupted")
	}
	var jsErr *goja.Exception
	if errors.As(err, &jsErr) {
		return errors.New(jsErr.Value().String())
	}
	return err
}

func (r *Runtime) Close(ctx context.Context) error {
	return nil
}

func installConsole(vm *goja.Runtime, stdout, stderr io.Writer) error {
	console := vm.NewObject()
	for name, w := range map[string]io.Writer{
		"log":   stdout,
		"info":  stdout,
		"debug": stdout,
		"warn":  stderr,
		"error": stderr,
	} {
		if err := console.Set(name, printer(w)); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

func printer(w io.Writer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		io.WriteString(w, strings.Join(parts, " ")+"\n")
		return goja.Undefined()
	}
}
