package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/executor"
	"github.com/caffeineduck/codeflow/fileio"
	"github.com/caffeineduck/codeflow/internal/app"
	"github.com/caffeineduck/codeflow/language"
	"github.com/caffeineduck/codeflow/preview"
	"github.com/caffeineduck/codeflow/session"
)

const (
	prompt     = "codeflow> "
	contPrompt = "... "
	endOfText  = "."
)

var errQuit = errors.New("quit")

const shellHelp = `Commands:
  ls                      list open files (* marks the active one)
  new [name] [lang]       create a file from the language template
  open <path>             import a file from disk and follow its changes
  select <file>           make a file active
  close [file]            close a file (default: active)
  show [file]             print a file's content (default: active)
  write                   replace the active file's content; end with a line "."
  rename <name>           rename the active file
  lang <language>         change the active file's language
  languages               list languages; * marks runnable ones
  run                     run the active file
  result                  show the last run result
  export [dir]            write the active file to dir (default: .)
  settings                print editor settings
  set <key> <value>       change an editor setting
  preview                 serve the session over HTTP
  help                    show this help
  quit, exit              leave the editor

<file> is #n (tab position), an id prefix, or a file name.`

type shell struct {
	app      *app.App
	out      io.Writer
	readLine func(prompt string) (string, error)
	lang     language.Tag

	mu          sync.Mutex
	previewAddr string
}

func newShell(a *app.App, out io.Writer, readLine func(prompt string) (string, error)) *shell {
	lang, ok := language.Parse(a.Config.Shell.DefaultLanguage)
	if !ok {
		lang = language.Default
	}
	return &shell{app: a, out: out, readLine: readLine, lang: lang}
}

// loop reads commands until quit or end of input.
func (s *shell) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := s.readLine(prompt)
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		err = s.exec(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "ls":
		return s.list()
	case "new":
		return s.create(args)
	case "open":
		if len(args) != 1 {
			return errors.New("usage: open <path>")
		}
		f, err := s.app.OpenPath(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "opened %s (%s)\n", f.Name, language.Label(f.Language))
		return nil
	case "select":
		if len(args) != 1 {
			return errors.New("usage: select <file>")
		}
		f, err := s.resolve(args[0])
		if err != nil {
			return err
		}
		return s.app.Sessions.Select(f.ID)
	case "close":
		f, err := s.target(args)
		if err != nil {
			return err
		}
		s.app.CloseFile(f.ID)
		return nil
	case "show":
		f, err := s.target(args)
		if err != nil {
			return err
		}
		printOutput(s.out, f.Content)
		return nil
	case "write":
		return s.write()
	case "rename":
		if len(args) == 0 {
			return errors.New("usage: rename <name>")
		}
		f, err := s.active()
		if err != nil {
			return err
		}
		return s.app.Sessions.Rename(f.ID, strings.Join(args, " "))
	case "lang":
		if len(args) != 1 {
			return errors.New("usage: lang <language>")
		}
		f, err := s.active()
		if err != nil {
			return err
		}
		tag, ok := language.Parse(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", session.ErrUnsupportedLanguage, args[0])
		}
		return s.app.Sessions.SetLanguage(f.ID, tag)
	case "languages":
		return s.languages()
	case "run":
		return s.run(ctx)
	case "result":
		result, ok := s.app.Panel.Last()
		if !ok {
			fmt.Fprintln(s.out, "no result")
			return nil
		}
		s.printResult(result)
		return nil
	case "export":
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		f, err := s.active()
		if err != nil {
			return err
		}
		path, err := fileio.ExportFile(dir, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "wrote %s\n", path)
		return nil
	case "settings":
		data, err := yaml.Marshal(s.app.Settings.Get())
		if err != nil {
			return err
		}
		fmt.Fprint(s.out, string(data))
		return nil
	case "set":
		if len(args) < 2 {
			return errors.New("usage: set <key> <value>")
		}
		next, err := s.app.Settings.Get().Apply(args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		s.app.Settings.Set(next)
		return nil
	case "preview":
		return s.preview(ctx)
	case "help":
		fmt.Fprintln(s.out, shellHelp)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (s *shell) list() error {
	snap := s.app.Sessions.Snapshot()
	if len(snap.Files) == 0 {
		fmt.Fprintln(s.out, "no open files")
		return nil
	}
	for i, f := range snap.Files {
		mark := " "
		if f.ID == snap.ActiveID {
			mark = "*"
		}
		fmt.Fprintf(s.out, "%s #%d  %s  %s (%s)\n", mark, i+1, shortID(f.ID), f.Name, f.Language)
	}
	return nil
}

func (s *shell) create(args []string) error {
	tag := s.lang
	if len(args) > 1 {
		var ok bool
		if tag, ok = language.Parse(args[1]); !ok {
			return fmt.Errorf("%w: %s", session.ErrUnsupportedLanguage, args[1])
		}
	} else if len(args) == 1 && strings.Contains(args[0], ".") {
		tag = language.Detect(args[0])
	}

	name := "untitled"
	if len(args) > 0 {
		name = args[0]
	}
	f := s.app.Sessions.Create(name, tag)
	fmt.Fprintf(s.out, "created %s (%s)\n", f.Name, language.Label(f.Language))
	return nil
}

func (s *shell) write() error {
	f, err := s.active()
	if err != nil {
		return err
	}
	var lines []string
	for {
		line, err := s.readLine(contPrompt)
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintln(s.out, "write canceled")
			return nil
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if line == endOfText {
			break
		}
		lines = append(lines, line)
	}
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	return s.app.Sessions.UpdateContent(f.ID, content)
}

func (s *shell) languages() error {
	for _, tag := range language.All() {
		mark := " "
		if s.app.Exec.Supports(tag) {
			mark = "*"
		}
		fmt.Fprintf(s.out, "%s %-12s %s\n", mark, tag, language.Label(tag))
	}
	return nil
}

func (s *shell) run(ctx context.Context) error {
	if _, err := s.active(); err != nil {
		return err
	}
	result, err := s.app.RunActive(ctx)
	if err != nil {
		return err
	}
	s.printResult(result)
	return nil
}

func (s *shell) printResult(result executor.Result) {
	printOutput(s.out, result.Output)
	if result.Failed() {
		fmt.Fprintf(s.out, "error: %s\n", result.ErrorText())
	}
	fmt.Fprintf(s.out, "(%s)\n", result.Duration.Round(time.Millisecond))
}

func (s *shell) preview(ctx context.Context) error {
	if addr := s.previewURL(); addr != "" {
		fmt.Fprintf(s.out, "preview at http://%s/\n", addr)
		return nil
	}
	ln, err := net.Listen("tcp", s.app.Config.Preview.Addr)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	router := preview.NewRouter(s.app.Sessions, preview.WithExecutor(s.app.Exec))
	addr := s.servePreview(ctx, ln, router)
	fmt.Fprintf(s.out, "preview at http://%s/\n", addr)
	return nil
}

// servePreview serves h on ln until ctx ends or the server fails. The
// address is cleared once the server is gone so preview can start another.
func (s *shell) servePreview(ctx context.Context, ln net.Listener, h http.Handler) string {
	addr := ln.Addr().String()
	s.mu.Lock()
	s.previewAddr = addr
	s.mu.Unlock()

	go func() {
		if err := preview.Serve(ctx, ln, h); err != nil {
			pslog.Ctx(ctx).Warn("preview server stopped", "addr", addr, "err", err)
		}
		s.mu.Lock()
		if s.previewAddr == addr {
			s.previewAddr = ""
		}
		s.mu.Unlock()
	}()
	return addr
}

func (s *shell) previewURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewAddr
}

func (s *shell) active() (session.File, error) {
	f, ok := s.app.Sessions.Active()
	if !ok {
		return session.File{}, errors.New("no active file")
	}
	return f, nil
}

func (s *shell) target(args []string) (session.File, error) {
	if len(args) == 0 {
		return s.active()
	}
	return s.resolve(args[0])
}

// resolve finds a file by #position, id prefix or name.
func (s *shell) resolve(ref string) (session.File, error) {
	files := s.app.Sessions.Snapshot().Files

	if pos, ok := strings.CutPrefix(ref, "#"); ok {
		n, err := strconv.Atoi(pos)
		if err != nil || n < 1 || n > len(files) {
			return session.File{}, fmt.Errorf("%w: %s", session.ErrFileNotFound, ref)
		}
		return files[n-1], nil
	}

	var matches []session.File
	for _, f := range files {
		if f.ID == ref || f.Name == ref {
			return f, nil
		}
		if strings.HasPrefix(f.ID, ref) {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 0:
		return session.File{}, fmt.Errorf("%w: %s", session.ErrFileNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, 0, len(matches))
		for _, f := range matches {
			names = append(names, f.Name)
		}
		sort.Strings(names)
		return session.File{}, fmt.Errorf("ambiguous file %q: %s", ref, strings.Join(names, ", "))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
