package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	service "github.com/okian/charsort/internal/app"
	"github.com/okian/charsort/internal/domain/model"
)

// NewListCommand creates the list command group.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Create and enumerate character lists",
	}
	cmd.AddCommand(newListCreateCommand(rootOpts))
	cmd.AddCommand(newListLsCommand(rootOpts))
	return cmd
}

func newListCreateCommand(opts *RootOptions) *cobra.Command {
	var algorithm string

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a list bound to a ranking algorithm",
		Long: `Create a list bound to a ranking algorithm.

Example:
  charsort list create "Villains" --algorithm glicko`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				alg, err := model.ParseAlgorithm(algorithm)
				if err != nil {
					return WrapExitError(ExitFailure, "invalid algorithm", err)
				}
				l, err := svc.CreateList(ctx, args[0], alg)
				if err != nil {
					return requestFailed("failed to create list", err)
				}
				return out.Success(l, func(w io.Writer) {
					fmt.Fprintf(w, "created list %d %q (%s)\n", l.ID, l.Title, l.Algorithm.Name())
				})
			})
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", string(model.InsertionSort), "ranking algorithm (IS|GL|InsertionSort|Glicko)")

	return cmd
}

func newListLsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List every character list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				lists, err := svc.Lists(ctx)
				if err != nil {
					return requestFailed("failed to list", err)
				}
				if lists == nil {
					lists = []model.CharacterList{}
				}
				return out.Success(lists, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tALGORITHM\tTITLE")
					for _, l := range lists {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", l.ID, l.Algorithm.Name(), l.Title)
					}
					_ = tw.Flush()
				})
			})
		},
	}
}

// NewCharCommand creates the char command group.
func NewCharCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "char",
		Short: "Manage the characters of a list",
	}
	cmd.AddCommand(newCharAddCommand(rootOpts))
	return cmd
}

func newCharAddCommand(opts *RootOptions) *cobra.Command {
	var fandom string

	cmd := &cobra.Command{
		Use:   "add <list-id> <name>",
		Short: "Add a character to a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				id, err := parseListID(args[0])
				if err != nil {
					return err
				}
				c, err := svc.AddCharacter(ctx, id, args[1], fandom)
				if err != nil {
					return requestFailed("failed to add character", err)
				}
				return out.Success(c, func(w io.Writer) {
					fmt.Fprintf(w, "added character %d %s\n", c.ID, c.Label())
				})
			})
		},
	}

	cmd.Flags().StringVar(&fandom, "fandom", "", "fandom the character comes from")

	return cmd
}
