package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/charsort/internal/adapters/repository"
	service "github.com/okian/charsort/internal/app"
	"github.com/okian/charsort/internal/config"
	"github.com/okian/charsort/internal/domain/model"
	"github.com/okian/charsort/pkg/logger"
)

// openService opens the configured store and starts a service over it.
// The caller must Stop the service.
func openService(ctx context.Context, cfg *config.Config) (*service.Service, error) {
	store, err := repository.Open(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	svc := service.New(
		service.WithStore(store),
		service.WithLogger(logger.Named("service")),
		service.WithConfidenceBoost(cfg.ConfidenceBoost),
		service.WithSeed(cfg.RandomSeed),
		service.WithDedupeSize(cfg.DedupeSize),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start service", err)
	}
	return svc, nil
}

// withService runs fn against a started service and renders its error,
// if any, through the formatter.
func withService(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, svc *service.Service, out *OutputFormatter) error) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	svc, err := openService(cmd.Context(), opts.Config)
	if err != nil {
		_ = out.Error(err)
		return err
	}
	defer svc.Stop()
	if err := fn(cmd.Context(), svc, out); err != nil {
		_ = out.Error(err)
		return err
	}
	return nil
}

// requestFailed classifies a service error for the exit code.
func requestFailed(action string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrNoGraph),
		errors.Is(err, repository.ErrNotFound):
		return WrapExitError(ExitFailure, action, err)
	default:
		return WrapExitError(ExitCommandError, action, err)
	}
}

func parseListID(s string) (model.ListID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitFailure, fmt.Sprintf("invalid list id %q", s))
	}
	return model.ListID(id), nil
}

func parseCharacterID(s string) (model.CharacterID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitFailure, fmt.Sprintf("invalid character id %q", s))
	}
	return model.CharacterID(id), nil
}

// parseVerdict accepts -1, 0, 1 or the words a, tie, b.
func parseVerdict(s string) (int, error) {
	switch s {
	case "a", "A", "1":
		return model.PreferA, nil
	case "tie", "0":
		return model.Tie, nil
	case "b", "B", "-1":
		return model.PreferB, nil
	}
	return 0, NewExitError(ExitFailure, fmt.Sprintf("invalid verdict %q: use a, tie or b", s))
}
