package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/credits"
	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/id"
)

// app holds what every subcommand needs once the root pre-run has opened
// the ledger.
type app struct {
	engine *credits.Engine
	now    func() time.Time
}

// newRootCmd builds the command tree. The returned close function releases
// the store and must be called after Execute, which skips post-run hooks
// when a command fails.
func newRootCmd() (*cobra.Command, func() error) {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:          "creditsctl",
		Short:        "Administer the credit ledger",
		Long:         "creditsctl provisions accounts, settles sessions and inspects balances of a credit ledger.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}

	root.AddCommand(
		a.migrateCmd(),
		a.provisionCmd(),
		a.accountsCmd(),
		a.settleCmd(),
		a.donateCmd(),
		a.eligibilityCmd(),
		a.claimCmd(),
		a.bountyCmd(),
		a.penalizeCmd(),
		a.balanceCmd(),
		a.historyCmd(),
		a.bankCmd(),
		a.reconcileCmd(),
	)
	return root, a.close
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cfg.logger()
	if err != nil {
		return err
	}
	opts, err := cfg.engineOptions(logger)
	if err != nil {
		return err
	}
	if cfg.Audit {
		opts = append(opts, credits.WithPlugin(audithook.New(audithook.SlogRecorder(logger), audithook.WithLogger(logger))))
	}

	ctx := cmd.Context()
	s, err := cfg.openStore(ctx)
	if err != nil {
		return err
	}

	engine := credits.New(s, opts...)
	if err := engine.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	a.engine = engine
	return nil
}

func (a *app) close() error {
	if a.engine == nil {
		return nil
	}
	err := a.engine.Stop()
	a.engine = nil
	return err
}

// resolve accepts either an account ID or an owner ID.
func (a *app) resolve(cmd *cobra.Command, ref string) (id.AccountID, error) {
	if accountID, err := id.ParseAccountID(ref); err == nil {
		return accountID, nil
	}
	acct, err := a.engine.AccountByOwner(cmd.Context(), ref)
	if err != nil {
		return id.Nil, fmt.Errorf("resolve %q: %w", ref, err)
	}
	return acct.ID, nil
}

func parseAmount(name, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, errors.Join(credits.ErrInvalidAmount, err))
	}
	return n, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
