package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	service "github.com/okian/charsort/internal/app"
)

// NewNextCommand creates the next command.
func NewNextCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next <list-id>",
		Short: "Show the next matchup worth answering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				id, err := parseListID(args[0])
				if err != nil {
					return err
				}
				m, ok, err := svc.Next(ctx, id)
				if err != nil {
					return requestFailed("failed to pick a matchup", err)
				}
				if !ok {
					return out.Success(nil, func(w io.Writer) {
						fmt.Fprintln(w, "nothing left to compare")
					})
				}
				return out.Success(m, func(w io.Writer) {
					fmt.Fprintf(w, "%d vs %d\n", m.A, m.B)
				})
			})
		},
	}
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(opts *RootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "compare <list-id> <a> <b> <a|tie|b>",
		Short: "Record which of two characters is preferred",
		Long: `Record which of two characters is preferred.

The verdict is a, tie or b (or 1, 0, -1). A repeated --key is ignored.

Example:
  charsort compare 1 3 7 a --key 3f2c`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				id, err := parseListID(args[0])
				if err != nil {
					return err
				}
				a, err := parseCharacterID(args[1])
				if err != nil {
					return err
				}
				b, err := parseCharacterID(args[2])
				if err != nil {
					return err
				}
				value, err := parseVerdict(args[3])
				if err != nil {
					return err
				}
				rec, duplicate, err := svc.Register(ctx, id, a, b, value, key)
				if err != nil {
					return requestFailed("failed to record comparison", err)
				}
				if duplicate {
					return out.Success(map[string]string{"status": "duplicate"}, func(w io.Writer) {
						fmt.Fprintln(w, "duplicate submission ignored")
					})
				}
				return out.Success(rec, func(w io.Writer) {
					fmt.Fprintf(w, "recorded comparison %d\n", rec.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "idempotency key")

	return cmd
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <list-id>",
		Short: "Remove the most recent comparison of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service, out *OutputFormatter) error {
				id, err := parseListID(args[0])
				if err != nil {
					return err
				}
				rec, err := svc.Undo(ctx, id)
				if err != nil {
					return requestFailed("failed to undo", err)
				}
				return out.Success(rec, func(w io.Writer) {
					fmt.Fprintf(w, "removed comparison %d (%d vs %d)\n", rec.ID, rec.CharA, rec.CharB)
				})
			})
		},
	}
}
