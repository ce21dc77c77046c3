package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/wayfinder/pkg/client"
	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/mcp"
	"github.com/rmax-ai/wayfinder/pkg/navigator"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

// cli carries the flags shared by every subcommand.
type cli struct {
	endpoint string
}

func (c *cli) client() *client.Client {
	return client.NewClient(c.endpoint)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "wayfinder",
		Short:         "Navigate workflow URLs and sessions on a wayfinder daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.endpoint, "endpoint", envOrDefault("WAYFINDER_ENDPOINT", client.DefaultEndpoint), "daemon API endpoint")

	root.AddCommand(
		c.parseCmd(),
		c.generateCmd(),
		c.relationshipsCmd(),
		c.graphCmd(),
		c.sessionCmd(),
		c.reportCmd(),
		c.mcpCmd(),
	)
	return root
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *cli) parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [url]",
		Short: "Decode a URL into a workflow state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client().ParseURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

func (c *cli) generateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "generate [state-json]",
		Short: "Encode a workflow state into its URL",
		Long: `Encode a workflow state into its URL. The state is read from the
argument, from --file, or from stdin when neither is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			switch {
			case len(args) == 1:
				raw = []byte(args[0])
			case file != "":
				raw, err = os.ReadFile(file)
			default:
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			var s workflow.State
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("invalid state: %w", err)
			}
			u, err := c.client().GenerateURL(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the state from a file")
	return cmd
}

func (c *cli) relationshipsCmd() *cobra.Command {
	var useCase, rel string
	cmd := &cobra.Command{
		Use:   "relationships [type]",
		Short: "List the entity types related to a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := c.client().Relationships(cmd.Context(),
				entity.UseCase(useCase), entity.Type(strings.ToUpper(args[0])), graph.Relationship(strings.ToUpper(rel)))
			if err != nil {
				return err
			}
			for _, t := range types {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&useCase, "use-case", "u", string(entity.VulnerabilityManagement), "workflow use case")
	cmd.Flags().StringVarP(&rel, "relationship", "r", string(graph.RelContains), "relationship kind")
	return cmd
}

func (c *cli) graphCmd() *cobra.Command {
	var useCase string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the relationship graph of a use case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.client().Graph(cmd.Context(), entity.UseCase(useCase))
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
	cmd.Flags().StringVarP(&useCase, "use-case", "u", string(entity.VulnerabilityManagement), "workflow use case")
	return cmd
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the daemon as an MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcp.NewServer(c.endpoint).Serve()
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseSearch turns key=value pairs into a search. Repeated keys collect
// several values.
func parseSearch(pairs []string) (workflow.Search, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	s := workflow.Search{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid search %q, want key=value", p)
		}
		s[k] = append(s[k], v)
	}
	return s, nil
}

// parseSort turns column[:desc] options into a sort.
func parseSort(opts []string) (workflow.Sort, error) {
	var out workflow.Sort
	for _, o := range opts {
		id, dir, _ := strings.Cut(o, ":")
		if id == "" {
			return nil, fmt.Errorf("invalid sort %q", o)
		}
		switch strings.ToLower(dir) {
		case "", "asc":
			out = append(out, workflow.SortOption{ID: id})
		case "desc":
			out = append(out, workflow.SortOption{ID: id, Desc: true})
		default:
			return nil, fmt.Errorf("invalid sort direction %q", dir)
		}
	}
	return out, nil
}

func validOp(op string) (navigator.Op, bool) {
	for _, o := range navigator.Ops {
		if string(o) == op {
			return o, true
		}
	}
	return "", false
}
