package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/store"
)

func (c *cli) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"s"},
		Short:   "Manage navigation sessions",
	}
	cmd.AddCommand(
		c.sessionOpenCmd(),
		c.sessionGetCmd(),
		c.sessionListCmd(),
		c.sessionApplyCmd(),
		c.sessionHistoryCmd(),
		c.sessionCloseCmd(),
	)
	return cmd
}

func (c *cli) sessionOpenCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "open [url]",
		Short: "Start a session at a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.client().OpenSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeSession(cmd, sess, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

func (c *cli) sessionGetCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get [session-id]",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.client().Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeSession(cmd, sess, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

func (c *cli) sessionListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently updated sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := c.client().Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSE CASE\tVERSION\tUPDATED\tURL")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					s.ID, s.UseCase, s.Version, s.UpdatedAt.Format("2006-01-02 15:04:05"), s.URL)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions")
	return cmd
}

func (c *cli) sessionApplyCmd() *cobra.Command {
	var (
		action navigator.Action
		typ    string
		uc     string
		search []string
		sorts  []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "apply [session-id] [op]",
		Short: "Apply a navigation operation to a session",
		Long: "Apply a navigation operation to a session. Operations: " +
			strings.Join(opNames(), ", ") + ".",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, ok := validOp(args[1])
			if !ok {
				return fmt.Errorf("unknown operation %q", args[1])
			}
			action.Op = op
			action.Type = entity.Type(strings.ToUpper(typ))
			action.UseCase = entity.UseCase(uc)

			var err error
			if action.Search, err = parseSearch(search); err != nil {
				return err
			}
			if action.Sort, err = parseSort(sorts); err != nil {
				return err
			}

			sess, err := c.client().Apply(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			return writeSession(cmd, sess, asJSON)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&typ, "type", "t", "", "entity type, e.g. DEPLOYMENT")
	f.StringVar(&action.ID, "id", "", "entity id")
	f.StringVarP(&uc, "use-case", "u", "", "use case for reset")
	f.StringArrayVar(&search, "search", nil, "search filter key=value, repeatable")
	f.StringArrayVar(&sorts, "sort", nil, "sort column[:desc], repeatable")
	f.IntVar(&action.Page, "page", 0, "zero-based page for set_page")
	f.BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

func (c *cli) sessionHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show the newest events of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := c.client().History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tEVENT\tURL")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.TsEvent.Format("2006-01-02 15:04:05"), e.EventType, e.URL)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of events")
	return cmd
}

func (c *cli) sessionCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close [session-id]",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client().CloseSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", args[0])
			return nil
		},
	}
}

func writeSession(cmd *cobra.Command, sess store.Session, asJSON bool) error {
	if asJSON {
		return printJSON(cmd, sess)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session  %s (v%d)\n", sess.ID, sess.Version)
	fmt.Fprintf(out, "url      %s\n", sess.URL)
	for i, e := range sess.State.Stack() {
		fmt.Fprintf(out, "  %d  %s\n", i, e)
	}
	return nil
}

func opNames() []string {
	names := make([]string, len(navigator.Ops))
	for i, o := range navigator.Ops {
		names[i] = string(o)
	}
	return names
}
