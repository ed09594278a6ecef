package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/SeniorPomidorro/suptech-desk/internal/credentials"
	"github.com/SeniorPomidorro/suptech-desk/internal/desk"
	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
)

// commandList returns fresh commands in help order. Flag sets hold parse
// state, so they are never shared between invocations.
func commandList() []*Command {
	return []*Command{
		cmdList(),
		cmdGet(),
		cmdShow(),
		cmdComment(),
		cmdTransition(),
		cmdAssign(),
		cmdLogin(),
		cmdLogout(),
		cmdStatuses(),
	}
}

func commands() map[string]*Command {
	byName := make(map[string]*Command)
	for _, cmd := range commandList() {
		byName[cmd.Name()] = cmd
	}
	return byName
}

func ticketKey(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func cmdList() *Command {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	filter := fs.StringP("filter", "f", "all", "all, mine, open, waiting or resolved")
	search := fs.StringP("search", "s", "", "case-insensitive text in key, summary or description")
	noStats := fs.Bool("no-stats", false, "omit the counters line")

	return &Command{
		Flags:     fs,
		Usage:     "list [flags]",
		Short:     "List the project's tickets",
		Long:      "Fetch the project's tickets and print the ones matching the filter and search.\nThe counters always cover the whole project.",
		NeedsDesk: true,
		Exec: func(ctx context.Context, a *app, _ []string) error {
			f, err := desk.ParseFilter(*filter)
			if err != nil {
				return err
			}
			if err := a.desk.Refresh(ctx); err != nil {
				return err
			}

			view := a.desk.View()
			if err := view.SetFilter(f); err != nil {
				return err
			}
			view.SetSearchQuery(*search)

			if !*noStats {
				a.printer.Statistics(view.Statistics())
				fmt.Fprintln(a.out)
			}
			a.printer.Tickets(view.VisibleTickets())
			return nil
		},
	}
}

func cmdGet() *Command {
	return &Command{
		Usage:     "get <key>",
		Short:     "Fetch one ticket by key",
		Long:      "Fetch a single ticket directly, including tickets outside the latest list.",
		NeedsDesk: true,
		Exec: func(ctx context.Context, a *app, args []string) error {
			if len(args) != 1 {
				return errors.New("get: expected exactly one ticket key")
			}
			ticket, err := a.desk.Lookup(ctx, ticketKey(args[0]))
			if err != nil {
				return err
			}
			a.printer.Tickets([]desk.Ticket{ticket})
			return nil
		},
	}
}

func cmdShow() *Command {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	transitions := fs.BoolP("transitions", "t", false, "also list the available transitions")

	return &Command{
		Flags:     fs,
		Usage:     "show <key> [flags]",
		Short:     "Show a ticket with its comments",
		NeedsDesk: true,
		Exec: func(ctx context.Context, a *app, args []string) error {
			if len(args) != 1 {
				return errors.New("show: expected exactly one ticket key")
			}
			wf := a.desk.Workflow()
			detail, err := wf.Open(ctx, ticketKey(args[0]))
			if err != nil {
				return err
			}
			defer wf.Close()

			a.printer.Detail(detail)
			if *transitions {
				available, err := wf.Transitions(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out)
				a.printer.Transitions(available)
			}
			return nil
		},
	}
}

func cmdComment() *Command {
	fs := flag.NewFlagSet("comment", flag.ContinueOnError)
	internal := fs.BoolP("internal", "i", false, "visible to agents only")

	return &Command{
		Flags:     fs,
		Usage:     "comment <key> <text...> [flags]",
		Short:     "Add a comment to a ticket",
		NeedsDesk: true,
		Exec: func(ctx context.Context, a *app, args []string) error {
			if len(args) < 1 {
				return errors.New("comment: expected a ticket key")
			}
			text := strings.Join(args[1:], " ")
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("%w: comment text is required", desk.ErrValidation)
			}

			wf := a.desk.Workflow()
			if _, err := wf.Open(ctx, ticketKey(args[0])); err != nil {
				return err
			}
			defer wf.Close()

			if err := wf.AddComment(ctx, text, *internal); err != nil {
				return err
			}
			detail, _ := wf.Current()
			a.printer.Detail(detail)
			return nil
		},
	}
}

func cmdTransition() *Command {
	return &Command{
		Usage:     "transition <key> <status...>",
		Short:     "Move a ticket to another status",
		Long:      "Move a ticket to the named status. The name must match an available\ntransition target exactly, e.g. \"Aguardando cliente\".",
		NeedsDesk: true,
		Exec: func(ctx context.Context, a *app, args []string) error {
			if len(args) < 2 {
				return errors.New("transition: expected a ticket key and a status")
			}
			key := ticketKey(args[0])
			target := strings.Join(args[1:], " ")

			wf := a.desk.Workflow()
			if _, err := wf.Open(ctx, key); err != nil {
				return err
			}

			err := a.desk.Transition(ctx, target)
			if errors.Is(err, desk.ErrTransitionNotAvailable) {
				if available, lerr := wf.Transitions(ctx); lerr == nil {
					fmt.Fprintln(a.errOut, "available transitions:")
					newPrinter(a.errOut, a.width, nil).Transitions(available)
				}
			}
			wf.Close()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s moved to %s\n", key, target)
			return nil
		},
	}
}

func cmdAssign() *Command {
	fs := flag.NewFlagSet("assign", flag.ContinueOnError)
	pick := fs.IntP("pick", "p", 0, "assign the Nth candidate instead of the first")
	list := fs.BoolP("list", "l", false, "only list matching people")

	return &Command{
		Flags:     fs,
		Usage:     "assign <key> <query...> [flags]",
		Short:     "Assign a ticket to a person",
		Long:      "Search people by name or email and assign the ticket. Without --pick the\nfirst match is used.",
		NeedsDesk: true,
		Exec: func(ctx context.Context, a *app, args []string) error {
			if len(args) < 2 {
				return errors.New("assign: expected a ticket key and a query")
			}
			key := ticketKey(args[0])
			query := strings.Join(args[1:], " ")

			wf := a.desk.Workflow()
			if *list || *pick > 0 {
				candidates, err := wf.FindAssignees(ctx, query)
				if err != nil {
					return err
				}
				if *list {
					a.printer.Candidates(candidates)
					return nil
				}
				if *pick > len(candidates) {
					a.printer.Candidates(candidates)
					return fmt.Errorf("%w: --pick %d but only %d candidates", desk.ErrValidation, *pick, len(candidates))
				}

				if _, err := wf.Open(ctx, key); err != nil {
					return err
				}
				chosen := candidates[*pick-1]
				if err := a.desk.AssignTo(ctx, chosen); err != nil {
					wf.Close()
					return err
				}
				fmt.Fprintf(a.out, "%s assigned to %s\n", key, chosen.DisplayName)
				return nil
			}

			if _, err := wf.Open(ctx, key); err != nil {
				return err
			}
			person, err := a.desk.Reassign(ctx, query)
			if err != nil {
				wf.Close()
				return err
			}
			fmt.Fprintf(a.out, "%s assigned to %s\n", key, person.DisplayName)
			return nil
		},
	}
}

func cmdLogin() *Command {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "Atlassian account email")
	token := fs.String("token", "", "Atlassian API token (prompted when omitted)")
	remember := fs.Bool("remember", false, "keep the credentials after the session ends")
	noVerify := fs.Bool("no-verify", false, "store without checking against Jira")

	return &Command{
		Flags: fs,
		Usage: "login --email <email> [flags]",
		Short: "Store Jira credentials",
		Exec: func(ctx context.Context, a *app, _ []string) error {
			if *token == "" && *email != "" {
				entered, err := a.secret("API token: ")
				if err != nil {
					return fmt.Errorf("login: %w (pass --token)", err)
				}
				*token = entered
			}
			creds := credentials.Credentials{Email: strings.TrimSpace(*email), Token: strings.TrimSpace(*token)}
			if err := credentials.Validate(creds); err != nil {
				return fmt.Errorf("%w: %w", desk.ErrValidation, err)
			}
			name := creds.Email
			if !*noVerify {
				client, err := a.newClient(atlassian.WithAuth(atlassian.Auth{
					Mode:  atlassian.AuthBasicEmailToken,
					Email: creds.Email,
					Token: creds.Token,
				}))
				if err != nil {
					return err
				}
				me, err := client.Users().Myself(ctx)
				if err != nil {
					return fmt.Errorf("login: verify credentials: %w", err)
				}
				if me.DisplayName != "" {
					name = me.DisplayName
				}
			}
			if err := a.stored.Set(creds.Email, creds.Token, *remember); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "logged in as %s\n", name)
			return nil
		},
	}
}

func cmdLogout() *Command {
	return &Command{
		Usage: "logout",
		Short: "Forget stored Jira credentials",
		Exec: func(_ context.Context, a *app, _ []string) error {
			if err := a.stored.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "logged out")
			return nil
		},
	}
}

func cmdStatuses() *Command {
	return &Command{
		Usage: "statuses",
		Short: "Print the status to category table",
		Exec: func(_ context.Context, a *app, _ []string) error {
			table, err := a.cfg.StatusTable()
			if err != nil {
				return err
			}
			entries := table.Entries()
			names := make([]string, 0, len(entries))
			for name := range entries {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(a.out, "%-28s %s\n", name, entries[name])
			}
			return nil
		},
	}
}
