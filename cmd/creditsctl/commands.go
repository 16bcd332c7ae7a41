package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/transaction"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the ledger schema and bootstrap the bank account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Start has already migrated; report where the bank lives.
			bank, err := a.engine.BankAccount(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema up to date, bank account %s\n", bank.ID)
			return err
		},
	}
}

func (a *app) provisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision <owner>",
		Short: "Create the credit account of an owner with the initial grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := a.engine.ProvisionAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), acct)
		},
	}
}

func (a *app) accountsCmd() *cobra.Command {
	var opts account.ListOpts
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts in ID order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accts, err := a.engine.ListAccounts(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), accts)
		},
	}
	cmd.Flags().BoolVar(&opts.IncludeBank, "include-bank", false, "include the bank account")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of accounts")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of accounts to skip")
	return cmd
}

func (a *app) settleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle <payer> <payee> <minutes>",
		Short: "Charge a session: 1 credit per 5 minutes, 10% tax to the bank",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			payer, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			payee, err := a.resolve(cmd, args[1])
			if err != nil {
				return err
			}
			minutes, err := parseAmount("minutes", args[2])
			if err != nil {
				return err
			}

			if _, err := a.engine.SettleSession(cmd.Context(), payer, payee, minutes); err != nil {
				return err
			}
			quote := credits.QuoteSession(minutes)
			quote.Payer, quote.Payee = payer, payee
			return printJSON(cmd.OutOrStdout(), quote)
		},
	}
}

func (a *app) donateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "donate <account> <amount>",
		Short: "Give credits to the platform bank",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			donor, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}
			donated, err := a.engine.Donate(cmd.Context(), donor, amount)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "donated %d credits from %s\n", donated, donor)
			return err
		},
	}
}

func (a *app) eligibilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eligibility <account>",
		Short: "Show whether an account may claim support credits now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			elig, err := a.engine.CheckSupportEligibility(cmd.Context(), accountID, a.now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), elig)
		},
	}
}

func (a *app) claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <account>",
		Short: "Claim support credits from the bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			granted, err := a.engine.ClaimSupportCredits(cmd.Context(), accountID, a.now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "granted %d credits to %s\n", granted, accountID)
			return err
		},
	}
}

func (a *app) bountyCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "bounty <account> <amount>",
		Short: "Pay a bounty reward from the bank",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}
			paid, err := a.engine.AwardBounty(cmd.Context(), accountID, amount, description)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "awarded %d credits to %s\n", paid, accountID)
			return err
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "transaction description")
	return cmd
}

func (a *app) penalizeCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "penalize <account> <amount>",
		Short: "Move credits from an account to the bank as a penalty",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}
			taken, err := a.engine.Penalize(cmd.Context(), accountID, amount, description)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "penalized %s by %d credits\n", accountID, taken)
			return err
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "transaction description")
	return cmd
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Print the balance derived from the transaction log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			balance, err := a.engine.Balance(cmd.Context(), accountID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), balance)
			return err
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var (
		kind string
		opts transaction.ListOpts
	)
	cmd := &cobra.Command{
		Use:   "history <account>",
		Short: "List an account's transactions, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := a.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			opts.Kind = transaction.Kind(kind)
			txns, err := a.engine.Transactions(cmd.Context(), accountID, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), txns)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only show transactions of this kind")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of transactions")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of transactions to skip")
	return cmd
}

func (a *app) bankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bank",
		Short: "Print the bank account and its derived balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bank, err := a.engine.BankAccount(cmd.Context())
			if err != nil {
				return err
			}
			balance, err := a.engine.BankBalance(cmd.Context())
			if err != nil {
				return err
			}
			bank.Balance = balance
			return printJSON(cmd.OutOrStdout(), bank)
		},
	}
}

func (a *app) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [account]",
		Short: "Check cached balances against the transaction log",
		Long:  "reconcile checks one account, or every account including the bank when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 {
				accountID, err := a.resolve(cmd, args[0])
				if err != nil {
					return err
				}
				if err := a.engine.Reconcile(ctx, accountID); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", accountID)
				return err
			}

			const page = 200
			var checked int
			var failures []error
			for offset := 0; ; offset += page {
				accts, err := a.engine.ListAccounts(ctx, account.ListOpts{IncludeBank: true, Limit: page, Offset: offset})
				if err != nil {
					return err
				}
				for _, acct := range accts {
					checked++
					if err := a.engine.Reconcile(ctx, acct.ID); err != nil {
						failures = append(failures, err)
					}
				}
				if len(accts) < page {
					break
				}
			}

			if len(failures) > 0 {
				return fmt.Errorf("%d of %d accounts out of balance: %w", len(failures), checked, errors.Join(failures...))
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d accounts ok\n", checked)
			return err
		},
	}
}
