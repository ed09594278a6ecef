// Package cli implements the jsd command line dashboard.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/SeniorPomidorro/suptech-desk/internal/config"
	"github.com/SeniorPomidorro/suptech-desk/internal/credentials"
	"github.com/SeniorPomidorro/suptech-desk/internal/desk"
	"github.com/SeniorPomidorro/suptech-desk/internal/render"
)

// Options carries dependencies that tests replace.
type Options struct {
	// Creds defaults to a FileStore at credentials.DefaultPaths.
	Creds credentials.Store
	// Now defaults to time.Now.
	Now func() time.Time
	// ReadSecret prompts for a value without echo. Defaults to the terminal on stdin.
	ReadSecret func(prompt string) (string, error)
}

type globalFlags struct {
	configPath string
	debug      bool
	width      int
}

// Run executes one jsd invocation and returns the process exit code.
func Run(ctx context.Context, stdout, stderr io.Writer, args []string, opts Options) int {
	var g globalFlags
	fs := flag.NewFlagSet("jsd", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&g.configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	fs.BoolVar(&g.debug, "debug", false, "log debug output to stderr")
	fs.IntVar(&g.width, "width", 0, "output width in columns (default: terminal width or 100)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout, fs)
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		printUsage(stderr, fs)
		return 1
	}

	rest := fs.Args()
	if len(rest) == 0 || rest[0] == "help" {
		printUsage(stdout, fs)
		return 0
	}

	cmd, ok := commands()[rest[0]]
	if !ok {
		fmt.Fprintln(stderr, "error: unknown command:", rest[0])
		printUsage(stderr, fs)
		return 1
	}

	cmdArgs, err := cmd.parse(rest[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			cmd.PrintHelp(stdout)
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		cmd.PrintHelp(stderr)
		return 1
	}

	a, err := newApp(g, stdout, stderr, opts)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if cmd.NeedsDesk {
		if err := a.connect(); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
	}

	if err := cmd.Exec(ctx, a, cmdArgs); err != nil {
		fmt.Fprintln(stderr, "error:", describe(err))
		return 1
	}
	return 0
}

func printUsage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(w, "jsd - Jira Service Desk dashboard")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: jsd [global flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commandList() {
		fmt.Fprintln(w, cmd.HelpLine())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprint(w, global.FlagUsages())
}

// describe adds a hint to errors the user can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, desk.ErrNoCredentials):
		return err.Error() + " (run \"jsd login\")"
	case errors.Is(err, desk.ErrUnauthorized):
		return err.Error() + " (check your email and API token)"
	case errors.Is(err, desk.ErrForbidden):
		return err.Error() + " (ask a Jira admin for the project permission)"
	default:
		return err.Error()
	}
}

func newLogger(w io.Writer, level zerolog.Level, debug bool) zerolog.Logger {
	if debug {
		level = zerolog.DebugLevel
	} else if level < zerolog.WarnLevel {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: !isTerminal(w)}).
		Level(level).
		With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the column count of w, or 0 when w is not a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// readTerminalSecret prompts on stderr and reads stdin with echo disabled.
func readTerminalSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for an interactive prompt")
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	return string(secret), nil
}

func defaultCreds() credentials.Store {
	session, durable := credentials.DefaultPaths()
	return credentials.NewFileStore(session, durable)
}

func configPath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, false
	}
	if env := os.Getenv("JSD_CONFIG"); env != "" {
		return env, false
	}
	return config.DefaultPath(), true
}

func newPrinter(w io.Writer, width int, view *desk.View) *render.Printer {
	var categorize render.Categorizer
	if view != nil {
		categorize = view.Category
	}
	return render.NewPrinter(w, width, categorize)
}
