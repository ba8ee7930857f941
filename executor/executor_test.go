package executor_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caffeineduck/codeflow/executor"
	"github.com/caffeineduck/codeflow/language"
)

type runFunc func(ctx context.Context, code string, stdout, stderr io.Writer) error

type fakeRuntime struct {
	run    runFunc
	closed atomic.Bool
}

func (f *fakeRuntime) Run(ctx context.Context, code string, stdout, stderr io.Writer) error {
	return f.run(ctx, code, stdout, stderr)
}

func (f *fakeRuntime) Close(ctx context.Context) error {
	f.closed.Store(true)
	return nil
}

// echo prints the code it is given, except for a few control words.
func echo(ctx context.Context, code string, stdout, stderr io.Writer) error {
	switch code {
	case "":
		return nil
	case "hang":
		fmt.Fprint(stdout, "partial\n")
		<-ctx.Done()
		return ctx.Err()
	}
	fmt.Fprintln(stdout, code)
	return nil
}

type countingLoader struct {
	loads atomic.Int32
	rt    *fakeRuntime
}

func (c *countingLoader) load(ctx context.Context) (executor.Runtime, error) {
	c.loads.Add(1)
	return c.rt, nil
}

func newCounting(fn runFunc) *countingLoader {
	return &countingLoader{rt: &fakeRuntime{run: fn}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunOutput(t *testing.T) {
	l := newCounting(echo)
	exec := executor.New(executor.WithRuntime(language.Lua, l.load))
	defer exec.Close()

	result := exec.Run(context.Background(), language.Lua, "hello")
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.Output != "hello\n" {
		t.Errorf("expected %q, got %q", "hello\n", result.Output)
	}
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
	if exec.State(language.Lua) != executor.StateReady {
		t.Errorf("expected ready, got %v", exec.State(language.Lua))
	}
}

func TestUnsupportedRejectedWithoutLoad(t *testing.T) {
	l := newCounting(echo)
	exec := executor.New(executor.WithRuntime(language.Lua, l.load))
	defer exec.Close()

	for _, tag := range []language.Tag{"cobol", language.HTML, language.JavaScript} {
		result := exec.Run(context.Background(), tag, "x")
		if !errors.Is(result.Error, executor.ErrUnsupported) {
			t.Errorf("%s: expected ErrUnsupported, got %v", tag, result.Error)
		}
		if errors.Is(result.Error, executor.ErrExecution) || errors.Is(result.Error, executor.ErrInitFailed) {
			t.Errorf("%s: unsupported must not look like another kind", tag)
		}
		if !strings.Contains(result.ErrorText(), string(tag)) {
			t.Errorf("%s: message should name the language, got %q", tag, result.ErrorText())
		}
	}
	if n := l.loads.Load(); n != 0 {
		t.Errorf("expected no load attempts, got %d", n)
	}
	if exec.Supports("cobol") || !exec.Supports(language.Lua) {
		t.Error("Supports disagrees with registered runtimes")
	}
}

func TestInitFailureIsRetryable(t *testing.T) {
	var loads atomic.Int32
	rt := &fakeRuntime{run: echo}
	exec := executor.New(executor.WithRuntime(language.Python, func(ctx context.Context) (executor.Runtime, error) {
		if loads.Add(1) == 1 {
			return nil, errors.New("asset fetch failed")
		}
		return rt, nil
	}))
	defer exec.Close()

	first := exec.Run(context.Background(), language.Python, "print")
	if !errors.Is(first.Error, executor.ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", first.Error)
	}
	if !strings.Contains(first.ErrorText(), "asset fetch failed") {
		t.Errorf("init error should carry the cause, got %q", first.ErrorText())
	}
	if exec.State(language.Python) != executor.StateFailed {
		t.Errorf("expected failed state, got %v", exec.State(language.Python))
	}

	second := exec.Run(context.Background(), language.Python, "again")
	if second.Error != nil {
		t.Fatalf("retry should succeed, got %v", second.Error)
	}
	if second.Output != "again\n" {
		t.Errorf("unexpected output %q", second.Output)
	}
	if loads.Load() != 2 {
		t.Errorf("expected 2 loads, got %d", loads.Load())
	}
}

func TestLoaderPanicIsInitFailure(t *testing.T) {
	var loads atomic.Int32
	rt := &fakeRuntime{run: echo}
	exec := executor.New(executor.WithRuntime(language.Python, func(ctx context.Context) (executor.Runtime, error) {
		if loads.Add(1) == 1 {
			panic("memory limit out of range")
		}
		return rt, nil
	}))
	defer exec.Close()

	first := exec.Run(context.Background(), language.Python, "print")
	var execErr *executor.Error
	if !errors.As(first.Error, &execErr) || execErr.Kind != executor.KindInit {
		t.Fatalf("expected init error, got %v", first.Error)
	}
	if !strings.Contains(first.ErrorText(), "memory limit out of range") {
		t.Errorf("init error should carry the panic value, got %q", first.ErrorText())
	}
	if exec.State(language.Python) != executor.StateFailed {
		t.Errorf("expected failed state, got %v", exec.State(language.Python))
	}

	second := exec.Run(context.Background(), language.Python, "again")
	if second.Error != nil || second.Output != "again\n" {
		t.Fatalf("retry should succeed, got %q %v", second.Output, second.Error)
	}
}

func TestConcurrentInitIsShared(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var loads atomic.Int32
	rt := &fakeRuntime{run: echo}

	exec := executor.New(executor.WithRuntime(language.Lua, func(ctx context.Context) (executor.Runtime, error) {
		if loads.Add(1) == 1 {
			close(started)
		}
		<-release
		return rt, nil
	}))
	defer exec.Close()

	const n = 10
	var wg sync.WaitGroup
	results := make([]executor.Result, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = exec.Run(context.Background(), language.Lua, fmt.Sprint(i))
		}(i)
	}

	<-started
	if exec.State(language.Lua) != executor.StateInitializing {
		t.Errorf("expected initializing, got %v", exec.State(language.Lua))
	}
	close(release)
	wg.Wait()

	if loads.Load() != 1 {
		t.Errorf("expected a single initialization, got %d", loads.Load())
	}
	for i, r := range results {
		if r.Error != nil || r.Output != fmt.Sprintf("%d\n", i) {
			t.Errorf("run %d: output %q err %v", i, r.Output, r.Error)
		}
	}
}

func TestInitOutlivesCallerTimeout(t *testing.T) {
	release := make(chan struct{})
	var loaderCtx context.Context
	rt := &fakeRuntime{run: echo}

	exec := executor.New(executor.WithRuntime(language.Lua, func(ctx context.Context) (executor.Runtime, error) {
		loaderCtx = ctx
		<-release
		return rt, nil
	}))
	defer exec.Close()

	result := exec.Run(context.Background(), language.Lua, "x", executor.WithTimeout(20*time.Millisecond))
	if !errors.Is(result.Error, executor.ErrTimeout) {
		t.Fatalf("expected timeout while waiting for init, got %v", result.Error)
	}

	close(release)
	waitFor(t, "runtime ready", func() bool { return exec.State(language.Lua) == executor.StateReady })
	if loaderCtx.Err() != nil {
		t.Error("loader context should not be canceled by the caller")
	}
}

func TestTimeoutKeepsPartialOutput(t *testing.T) {
	l := newCounting(echo)
	exec := executor.New(executor.WithRuntime(language.Lua, l.load))
	defer exec.Close()

	result := exec.Run(context.Background(), language.Lua, "hang", executor.WithTimeout(50*time.Millisecond))
	if !errors.Is(result.Error, executor.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", result.Error)
	}
	if result.ErrorText() != "timeout after 50ms" {
		t.Errorf("unexpected message %q", result.ErrorText())
	}
	if result.Output != "partial\n" {
		t.Errorf("expected partial output, got %q", result.Output)
	}
}

func TestTimeoutWithUncooperativeRuntime(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	exec := executor.New(executor.WithRuntime(language.Lua, func(ctx context.Context) (executor.Runtime, error) {
		return &fakeRuntime{run: func(ctx context.Context, code string, stdout, stderr io.Writer) error {
			<-block
			return nil
		}}, nil
	}))
	defer exec.Close()

	start := time.Now()
	result := exec.Run(context.Background(), language.Lua, "x", executor.WithTimeout(20*time.Millisecond))
	if !errors.Is(result.Error, executor.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", result.Error)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("run should return once the deadline passes")
	}
}

func TestCanceledContext(t *testing.T) {
	l := newCounting(echo)
	exec := executor.New(executor.WithRuntime(language.Lua, l.load))
	defer exec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	result := exec.Run(ctx, language.Lua, "hang", executor.WithTimeout(0))
	if !errors.Is(result.Error, executor.ErrExecution) || errors.Is(result.Error, executor.ErrTimeout) {
		t.Errorf("expected a cancellation reported as execution error, got %v", result.Error)
	}
}

func TestEmptyOutputPlaceholder(t *testing.T) {
	l := newCounting(echo)
	exec := executor.New(executor.WithRuntime(language.Lua, l.load))
	defer exec.Close()

	result := exec.Run(context.Background(), language.Lua, "")
	if result.Error != nil {
		t.Fatal(result.Error)
	}
	if result.Output != executor.NoOutput {
		t.Errorf("expected placeholder, got %q", result.Output)
	}
}

func TestExecutionErrors(t *testing.T) {
	tests := []struct {
		name    string
		run     runFunc
		output  string
		message string
	}{
		{
			name: "stderr is the message",
			run: func(ctx context.Context, code string, stdout, stderr io.Writer) error {
				fmt.Fprint(stdout, "1\n")
				fmt.Fprint(stderr, "Traceback: boom\n")
				return errors.New("exit status 1")
			},
			output:  "1\n",
			message: "Traceback: boom",
		},
		{
			name: "error text without stderr",
			run: func(ctx context.Context, code string, stdout, stderr io.Writer) error {
				return errors.New(`[string "x"]:1: unexpected symbol`)
			},
			output:  "",
			message: `[string "x"]:1: unexpected symbol`,
		},
		{
			name: "clean exit with stderr",
			run: func(ctx context.Context, code string, stdout, stderr io.Writer) error {
				fmt.Fprint(stdout, "ok\n")
				fmt.Fprint(stderr, "warning: deprecated\n")
				return nil
			},
			output:  "ok\n",
			message: "warning: deprecated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := executor.New(executor.WithRuntime(language.Python, func(ctx context.Context) (executor.Runtime, error) {
				return &fakeRuntime{run: tt.run}, nil
			}))
			defer exec.Close()

			result := exec.Run(context.Background(), language.Python, "x")
			if !errors.Is(result.Error, executor.ErrExecution) {
				t.Fatalf("expected ErrExecution, got %v", result.Error)
			}
			var execErr *executor.Error
			if !errors.As(result.Error, &execErr) || execErr.Lang != language.Python {
				t.Errorf("expected *executor.Error for python, got %#v", result.Error)
			}
			if result.ErrorText() != tt.message {
				t.Errorf("message = %q, want %q", result.ErrorText(), tt.message)
			}
			if result.Output != tt.output {
				t.Errorf("output = %q, want %q", result.Output, tt.output)
			}
		})
	}
}

func TestNoOutputLeaksBetweenRuns(t *testing.T) {
	l := newCounting(echo)
	exec := executor.New(executor.WithRuntime(language.Lua, l.load))
	defer exec.Close()

	exec.Run(context.Background(), language.Lua, "first")
	result := exec.Run(context.Background(), language.Lua, "second")
	if result.Output != "second\n" {
		t.Errorf("expected only the second run's output, got %q", result.Output)
	}
}

func TestLanguagesSorted(t *testing.T) {
	l := newCounting(echo)
	exec := executor.New(
		executor.WithRuntime(language.Python, l.load),
		executor.WithRuntime(language.Lua, l.load),
		executor.WithRuntime(language.Luau, l.load),
	)
	defer exec.Close()

	got := exec.Languages()
	want := []language.Tag{language.Lua, language.Luau, language.Python}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestWarm(t *testing.T) {
	l := newCounting(echo)
	exec := executor.New(executor.WithRuntime(language.Lua, l.load))
	defer exec.Close()

	if err := exec.Warm(context.Background(), language.Lua); err != nil {
		t.Fatal(err)
	}
	exec.Run(context.Background(), language.Lua, "x")
	if l.loads.Load() != 1 {
		t.Errorf("expected warm runtime to be reused, got %d loads", l.loads.Load())
	}
	if err := exec.Warm(context.Background(), language.SQL); !errors.Is(err, executor.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestCloseReleasesRuntimes(t *testing.T) {
	l := newCounting(echo)
	exec := executor.New(executor.WithRuntime(language.Lua, l.load))

	exec.Run(context.Background(), language.Lua, "x")
	if err := exec.Close(); err != nil {
		t.Fatal(err)
	}
	if !l.rt.closed.Load() {
		t.Error("runtime should be closed")
	}
	if err := exec.Close(); err != nil {
		t.Error("second close should be a no-op")
	}

	result := exec.Run(context.Background(), language.Lua, "x")
	if !errors.Is(result.Error, executor.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", result.Error)
	}
}

func TestErrorKinds(t *testing.T) {
	sentinels := map[executor.Kind]error{
		executor.KindUnsupported: executor.ErrUnsupported,
		executor.KindInit:        executor.ErrInitFailed,
		executor.KindExecution:   executor.ErrExecution,
		executor.KindTimeout:     executor.ErrTimeout,
	}
	for kind := range sentinels {
		err := &executor.Error{Kind: kind, Message: kind.String()}
		for other, s := range sentinels {
			if got := errors.Is(err, s); got != (other == kind) {
				t.Errorf("errors.Is(%v, %v) = %v", kind, other, got)
			}
		}
		if err.Error() != kind.String() {
			t.Errorf("unexpected message %q", err.Error())
		}
	}
}
