package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/survivalcodex/codex/internal/client/entitlement"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	args  [][]string
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }

func (f *fakeExec) record(name string, err error) handler {
	return func(_ context.Context, args []string) error {
		f.calls = append(f.calls, name)
		f.args = append(f.args, args)
		return err
	}
}

func (f *fakeExec) commands() []command {
	login := f.record("login", nil)
	return []command{
		{name: "login", usage: "login [email]", run: func(ctx context.Context, args []string) error {
			f.loggedIn = true
			return login(ctx, args)
		}},
		{name: "techniques", alias: "l", usage: "techniques", run: f.record("techniques", nil)},
		{name: "show", usage: "show <id>", run: f.record("show", errUsage)},
		{name: "ask", usage: "ask", run: f.record("ask", fmt.Errorf("ask: %w", entitlement.ErrQuotaExceeded))},
		{name: "whoami", usage: "whoami", auth: true, run: f.record("whoami", nil)},
	}
}

// capture swaps printlnFn for a recorder.
func capture(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, fmt.Sprintln(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchAndAuthGate(t *testing.T) {
	out := capture(t)

	input := strings.Join([]string{
		"help",
		"whoami",
		"l",
		"login me@example.com",
		"whoami",
		"foobar",
		"exit",
		"techniques",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewReader(strings.NewReader(input)))

	require.Equal(t, []string{"techniques", "login", "whoami"}, exec.calls)
	require.Equal(t, []string{"me@example.com"}, exec.args[1])

	all := strings.Join(*out, "")
	require.Contains(t, all, "Please log in first")
	require.Contains(t, all, "Unknown command: foobar")
	require.Contains(t, all, "Bye!")
	require.Contains(t, all, "codex status> ")
}

func TestRunREPL_HelpHidesAuthCommands(t *testing.T) {
	out := capture(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewReader(strings.NewReader("help\n")))
	require.NotContains(t, strings.Join(*out, ""), "whoami")

	*out = nil
	exec.loggedIn = true
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewReader(strings.NewReader("help\n")))
	require.Contains(t, strings.Join(*out, ""), "whoami")
}

func TestRunREPL_ReportsErrors(t *testing.T) {
	out := capture(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewReader(strings.NewReader("show\nask\nquit\n")))

	all := strings.Join(*out, "")
	require.Contains(t, all, "Usage: show <id>")
	require.Contains(t, all, "free assistant questions")
	require.Equal(t, []string{"show", "ask"}, exec.calls)
}

func TestRunREPL_LastLineWithoutNewline(t *testing.T) {
	capture(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewReader(strings.NewReader("techniques")))
	require.Equal(t, []string{"techniques"}, exec.calls)
}

func TestReport_PlainError(t *testing.T) {
	out := capture(t)
	report(command{name: "x"}, errors.New("boom"))
	require.Equal(t, []string{"Error: boom\n"}, *out)
}
