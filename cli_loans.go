package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"library-lending/library"
	"library-lending/logger"
)

func newBorrowCmd(a *app) *cobra.Command {
	var (
		due  string
		days int
	)
	cmd := &cobra.Command{
		Use:   "borrow BOOK_ID MEMBER_ID",
		Short: "Lend a book to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bookID, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			memberID, err := parseID("member", args[1])
			if err != nil {
				return err
			}

			if days <= 0 {
				days = a.cfg.Lending.LoanDays
			}
			dueDate := a.manager.Today().AddDate(0, 0, days)
			if due != "" {
				if dueDate, err = library.ParseDate(due); err != nil {
					return err
				}
			}

			b, err := a.manager.Book(ctx, bookID)
			if err != nil {
				return err
			}
			m, err := a.authenticate(cmd, memberID)
			if err != nil {
				return err
			}

			bb, err := a.manager.BorrowBook(ctx, m, b, dueDate)
			if err != nil {
				return fmt.Errorf("checking out book: %w", err)
			}
			fmt.Printf("Book '%s' checked out to %s, due %s\n", b.Title, m.Name, bb.DueDate.Format(library.DateLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD (overrides --days)")
	cmd.Flags().IntVar(&days, "days", 0, "loan period in days (default $LOAN_DAYS)")
	return cmd
}

func newReturnCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "return BOOK_ID MEMBER_ID",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bookID, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			memberID, err := parseID("member", args[1])
			if err != nil {
				return err
			}

			b, err := a.manager.Book(ctx, bookID)
			if err != nil {
				return err
			}
			m, err := a.authenticate(cmd, memberID)
			if err != nil {
				return err
			}

			if err := a.manager.ReturnBookFor(ctx, m, b); err != nil {
				if errors.Is(err, library.ErrOutstandingFine) {
					fmt.Printf("Pay with: library fine pay %d %s\n", m.ID, m.Balance.StringFixed(2))
				}
				return fmt.Errorf("returning book: %w", err)
			}
			fmt.Printf("Book '%s' returned by %s\n", b.Title, m.Name)
			return nil
		},
	}
}

func newFineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fine",
		Short: "Pay or clear a member's fine",
	}
	cmd.AddCommand(newFinePayCmd(a), newFineClearCmd(a))
	return cmd
}

func newFinePayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pay MEMBER_ID AMOUNT",
		Short: "Pay toward a member's outstanding fine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			memberID, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount: %s", args[1])
			}

			m, err := a.authenticate(cmd, memberID)
			if err != nil {
				return err
			}
			if err := a.manager.UpdateMemberFines(ctx, m); err != nil {
				return err
			}
			if err := a.manager.PayFine(ctx, m, amount); err != nil {
				return fmt.Errorf("paying fine: %w", err)
			}
			fmt.Printf("Paid $%s. Remaining balance for %s: $%s\n", amount.StringFixed(2), m.Name, m.Balance.StringFixed(2))
			return nil
		},
	}
}

func newFineClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear MEMBER_ID",
		Short: "Waive a member's outstanding fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			memberID, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			m, err := a.manager.Member(ctx, memberID)
			if err != nil {
				return err
			}
			if err := a.manager.ClearFine(ctx, m); err != nil {
				return err
			}
			fmt.Printf("Fine cleared for %s (ID: %d)\n", m.Name, m.ID)
			return nil
		},
	}
}

func newFinesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fines",
		Short: "Recompute fines for every member",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "sweep",
			Short: "Recompute all balances once",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				changed, err := a.manager.SweepFines(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("Fines recomputed, %d balance(s) changed\n", changed)
				return nil
			},
		},
		newFinesWatchCmd(a),
	)
	return cmd
}

func newFinesWatchCmd(a *app) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompute all balances on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule == "" {
				schedule = a.cfg.Lending.FineSweepSchedule
			}
			sweeper, err := library.NewFineSweeper(a.manager, schedule)
			if err != nil {
				return err
			}
			sweeper.Start()

			shutdownSignal := make(chan os.Signal, 1)
			signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
			sig := <-shutdownSignal
			logger.Info("Received shutdown signal", "signal", sig.String())

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			select {
			case <-sweeper.Stop().Done():
			case <-stopCtx.Done():
				logger.Warn("Fine sweep still running at shutdown")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule (default $FINE_SWEEP_SCHEDULE)")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Count books and members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.manager.Report(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				out, err := jsoniter.ConfigFastest.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Printf("Total books:   %d\n", report.TotalBooks)
			fmt.Printf("Total members: %d\n", report.TotalMembers)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
