// Package codeflow is a multi-file code editor session with an execution
// bridge for Python, Lua and Luau.
//
// # Overview
//
// An editor session is a set of open files, each with a name, content and a
// language tag, plus the id of the active file. The session and the editor
// settings are persisted after every change and restored on the next start.
//
//	sessions := session.New()
//	f := sessions.Create("main.lua", language.Lua)
//	sessions.UpdateContent(f.ID, `print("hello")`)
//
// # Running code
//
// The executor initializes each language runtime on first use and reports
// every outcome as a Result:
//
//	exec := executor.New(
//	    executor.WithRuntime(language.Lua, lua.Loader()),
//	    executor.WithRuntime(language.Python, python.Loader(python.WithSource(src))),
//	)
//	defer exec.Close()
//
//	result := exec.Run(ctx, f.Language, f.Content)
//	fmt.Println(result.Output)
//
// # Persistence
//
// The persist package stores the session and settings under fixed keys in a
// key-value backend (SQLite or memory), optionally obfuscated. Corrupt
// records fall back to defaults.
//
// See the [session], [settings], [executor], [persist], [fileio] and
// [preview] packages for details, and cmd/codeflow for the command line
// editor.
package codeflow
