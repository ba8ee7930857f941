// Package executor runs code for the languages that have a registered
// runtime and reports the outcome as a Result.
//
// # Overview
//
// Each language has one runtime slot. The runtime is initialized on first
// use; concurrent first requests share a single initialization. A failed
// initialization is not remembered: the next request tries again.
//
//	exec := executor.New(
//	    executor.WithRuntime(language.Lua, lua.Loader()),
//	    executor.WithRuntime(language.Python, python.Loader(python.WithSource(src))),
//	)
//	defer exec.Close()
//
//	result := exec.Run(ctx, language.Lua, `print("hello")`)
//	fmt.Println(result.Output)
//
// # Results
//
// Run never returns a Go error. Failures are carried by Result.Error as an
// *Error whose kind can be matched with errors.Is:
//
//	switch {
//	case errors.Is(result.Error, executor.ErrUnsupported):
//	case errors.Is(result.Error, executor.ErrInitFailed):
//	case errors.Is(result.Error, executor.ErrTimeout):
//	case errors.Is(result.Error, executor.ErrExecution):
//	}
//
// Output keeps whatever the program printed before it failed. A successful
// run that printed nothing reports [NoOutput].
//
// # Panels
//
// A [Panel] allows one run at a time and keeps the last result:
//
//	panel := exec.NewPanel()
//	if _, err := panel.Run(ctx, language.Python, code); errors.Is(err, executor.ErrPanelBusy) {
//	    // already running
//	}
package executor
