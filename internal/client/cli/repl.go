package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/survivalcodex/codex/internal/client/entitlement"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

type handler func(ctx context.Context, args []string) error

type command struct {
	name  string
	alias string
	usage string
	// auth commands are hidden until a user is signed in.
	auth bool
	run  handler
}

// execIface is what the REPL needs from an app. The real App satisfies it;
// tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	commands() []command
}

var errUsage = errors.New("usage")

// runREPL reads one command per line from reader and dispatches it. The
// loop ends on EOF or "exit"/"quit". Handler errors are printed and the loop
// goes on; a spent AI quota is shown as an upgrade hint.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("codex %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "exit", "quit":
			printlnFn("Bye!")
			return
		case "help":
			printHelp(a)
			continue
		}

		cmd, ok := lookup(a.commands(), name)
		switch {
		case !ok:
			printlnFn("Unknown command:", name)
		case cmd.auth && !a.isLoggedIn():
			printlnFn("Please log in first (try 'login' or 'register').")
		default:
			report(cmd, cmd.run(ctx, args))
		}
	}
}

func lookup(cmds []command, name string) (command, bool) {
	for _, c := range cmds {
		if c.name == name || (c.alias != "" && c.alias == name) {
			return c, true
		}
	}
	return command{}, false
}

func report(cmd command, err error) {
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		printlnFn("Usage:", cmd.usage)
	case errors.Is(err, entitlement.ErrQuotaExceeded):
		printlnFn("You have used all free assistant questions this month. Type 'products' to see premium plans.")
	case errors.Is(err, entitlement.ErrDownloadLimit):
		printlnFn("Free accounts can keep a limited number of downloads. Type 'products' to see premium plans.")
	default:
		printlnFn("Error:", err)
	}
}

func printHelp(a execIface) {
	var names []string
	for _, c := range a.commands() {
		if c.auth && !a.isLoggedIn() {
			continue
		}
		names = append(names, c.name)
	}
	names = append(names, "exit")
	printlnFn("Available commands: " + strings.Join(names, ", "))
}
