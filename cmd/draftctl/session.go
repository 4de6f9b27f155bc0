package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/debemdeboas/drafthouse/internal/autosave"
	"github.com/debemdeboas/drafthouse/internal/model"
)

const helpText = `Plain lines are appended to the body.
  :title <text>   set the title
  :tags a, b      set the tags
  :body           clear the body
  :save           save now
  :publish        publish now
  :status         show the draft and save state
  :list           list posts on the server
  :quit           save pending edits and exit`

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	outputStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// Backend is what a session needs from the server.
type Backend interface {
	autosave.Persister
	List(ctx context.Context, status model.Status) ([]*model.Post, error)
}

type session struct {
	ctrl    *autosave.Controller
	backend Backend

	mu  sync.Mutex
	out io.Writer
}

// newSession starts an editing session. opts are passed to the controller
// after the session's own options.
func newSession(backend Backend, draft model.Draft, out io.Writer, opts ...autosave.Option) *session {
	s := &session{
		backend: backend,
		out:     out,
	}

	opts = append([]autosave.Option{
		autosave.WithDraft(draft),
		autosave.WithStatusFunc(s.onStatus),
		autosave.WithEventFunc(s.onEvent),
	}, opts...)
	s.ctrl = autosave.New(backend, opts...)
	return s
}

func (s *session) println(style lipgloss.Style, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, style.Render(fmt.Sprintf(format, args...)))
}

func (s *session) prompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.out, promptStyle.Render("> "))
}

func (s *session) onStatus(st autosave.Status) {
	switch st.Phase {
	case autosave.PendingSave:
		s.println(statusStyle, "Unsaved changes")
	case autosave.Saving:
		s.println(statusStyle, "Saving...")
	}
}

func (s *session) onEvent(e autosave.SaveEvent) {
	if e.Err != nil {
		s.println(errorStyle, "%v (%s)", e.Err, e.Trigger)
		return
	}
	verb := "Saved"
	if e.Kind == autosave.KindPublish {
		verb = "Published"
	}
	s.println(statusStyle, "%s %s at %s", verb, e.ID, e.At.Format(time.Kitchen))
}

// run reads commands from in until :quit or EOF, then closes the session.
func (s *session) run(ctx context.Context, in io.Reader) error {
	defer s.ctrl.Close()

	s.println(outputStyle, "Editing %s. Type :help for commands.", s.describe(s.ctrl.Snapshot()))

	scanner := bufio.NewScanner(in)
	for {
		s.prompt()
		if !scanner.Scan() {
			break
		}
		if quit := s.handle(ctx, scanner.Text()); quit {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	s.flush(ctx)
	return nil
}

func (s *session) describe(d model.Draft) string {
	if d.ID == "" {
		return "a new draft"
	}
	title := d.Title
	if title == "" {
		title = "untitled"
	}
	return fmt.Sprintf("%q (%s, %s)", title, d.ID, d.Status)
}

// flush saves pending edits before the session ends.
func (s *session) flush(ctx context.Context) {
	if !s.ctrl.Status().Dirty || s.ctrl.Snapshot().IsEmpty() {
		return
	}
	if err := s.ctrl.SaveNow(ctx); err != nil {
		s.println(errorStyle, "Unsaved changes were lost: %v", err)
	}
}

func (s *session) handle(ctx context.Context, line string) (quit bool) {
	if !strings.HasPrefix(line, ":") {
		s.report(s.ctrl.Edit(func(d *model.Draft) {
			if d.Body != "" {
				d.Body += "\n"
			}
			d.Body += line
		}))
		return false
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "title":
		s.report(s.ctrl.SetTitle(arg))
	case "tags":
		s.report(s.ctrl.SetTags(model.ParseTags(arg)))
	case "body":
		s.report(s.ctrl.SetBody(""))
	case "save":
		s.report(s.ctrl.SaveNow(ctx))
	case "publish":
		s.report(s.ctrl.Publish(ctx))
	case "status":
		s.printStatus()
	case "list":
		s.list(ctx)
	case "quit", "q":
		s.flush(ctx)
		return true
	case "help":
		s.println(outputStyle, helpText)
	default:
		s.println(errorStyle, "Unknown command :%s. Type :help for commands.", cmd)
	}
	return false
}

func (s *session) report(err error) {
	var verr *model.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		fields := make([]string, 0, len(verr.Fields))
		for _, msg := range verr.Fields {
			fields = append(fields, msg)
		}
		sort.Strings(fields)
		s.println(errorStyle, "Cannot publish: %s", strings.Join(fields, "; "))
	case errors.Is(err, autosave.ErrEmptyDraft):
		s.println(errorStyle, "Nothing to save yet")
	default:
		// Persistence failures were already reported by onEvent.
		var saveErr *autosave.SaveError
		if !errors.As(err, &saveErr) {
			s.println(errorStyle, "Error: %v", err)
		}
	}
}

func (s *session) printStatus() {
	d := s.ctrl.Snapshot()
	st := s.ctrl.Status()

	lastSaved := "never"
	if !st.LastSaved.IsZero() {
		lastSaved = st.LastSaved.Format(time.Kitchen)
	}

	s.println(outputStyle, "%s\n  phase: %s, unsaved changes: %t, last saved: %s\n  tags: %s\n  %s",
		s.describe(d), st.Phase, st.Dirty, lastSaved, strings.Join(d.Tags, ", "), model.Excerpt(d.Body, 60))
	if st.LastErr != nil {
		s.println(errorStyle, "  last error: %v", st.LastErr)
	}
}

func (s *session) list(ctx context.Context) {
	posts, err := s.backend.List(ctx, "")
	if err != nil {
		s.println(errorStyle, "Error listing posts: %v", err)
		return
	}
	if len(posts) == 0 {
		s.println(outputStyle, "No posts yet")
		return
	}
	for _, p := range posts {
		s.println(outputStyle, "%-36s  %-9s  %s", p.ID, p.Status, p.Title)
	}
}
