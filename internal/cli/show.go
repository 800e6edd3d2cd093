package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	service "github.com/okian/charsort/internal/app"
)

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <list-id>",
		Short: "Show a list in ranked order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				id, err := parseListID(args[0])
				if err != nil {
					return err
				}
				view, err := svc.Summary(ctx, id)
				if err != nil {
					return requestFailed("failed to show list", err)
				}
				return out.Success(view, func(w io.Writer) { renderView(w, view) })
			})
		},
	}
}

func renderView(w io.Writer, view service.ListView) {
	fmt.Fprintf(w, "%s (%s)\n", view.List.Title, view.List.Algorithm.Name())
	if view.Progress != "" {
		fmt.Fprintln(w, view.Progress)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range view.Entries {
		name := e.Name
		if e.Fandom != "" {
			name = fmt.Sprintf("%s (%s)", e.Name, e.Fandom)
		}
		fmt.Fprintf(tw, "%d.\t%s\t%s\n", e.Rank, name, e.Annotation)
	}
	_ = tw.Flush()
	if view.Next != nil {
		fmt.Fprintf(w, "next: %d vs %d\n", view.Next.A, view.Next.B)
	}
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <list-id>",
		Short: "Show ratings with error bars for a Glicko list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				id, err := parseListID(args[0])
				if err != nil {
					return err
				}
				g, err := svc.Graph(ctx, id)
				if err != nil {
					return requestFailed("failed to draw graph", err)
				}
				return out.Success(g, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					for i, name := range g.Names {
						fmt.Fprintf(tw, "%s\t%.0f\t± %.0f\n", name, g.Ratings[i], g.Errors[i])
					}
					_ = tw.Flush()
				})
			})
		},
	}
}
