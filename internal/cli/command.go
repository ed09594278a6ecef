package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one jsd subcommand.
type Command struct {
	// Flags are parsed before Exec. A nil set is replaced with an empty one.
	Flags *flag.FlagSet

	// Usage is shown after "jsd" in help. The first word is the command name.
	Usage string

	// Short is the one-line description in the command listing.
	Short string

	// Long is shown by "jsd <cmd> --help". Short is used when empty.
	Long string

	// NeedsDesk commands get a Jira client and desk built before Exec.
	NeedsDesk bool

	Exec func(ctx context.Context, a *app, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-34s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "jsd <cmd> --help".
func (c *Command) PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: jsd", c.Usage)
	fmt.Fprintln(w)

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}
	fmt.Fprintln(w, desc)

	if c.Flags.HasFlags() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		fmt.Fprint(w, buf.String())
	}
}

// parse reads the command's flags. It returns flag.ErrHelp for --help.
func (c *Command) parse(args []string) ([]string, error) {
	if c.Flags == nil {
		c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}
	c.Flags.SetOutput(io.Discard)

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}
	return c.Flags.Args(), nil
}
