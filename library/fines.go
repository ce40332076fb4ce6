package library

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"library-lending/logger"
)

// DailyFine is charged for every day a loan is past its due date.
var DailyFine = decimal.RequireFromString("0.50")

// CalculateFine returns the fine accrued on bb as of today: zero unless the
// loan is active and past due, otherwise DailyFine per overdue day. Payments
// recorded on the loan are not subtracted.
func (lm *LibraryManager) CalculateFine(bb *BorrowedBook) decimal.Decimal {
	return fineAsOf(bb, lm.today())
}

func fineAsOf(bb *BorrowedBook, today time.Time) decimal.Decimal {
	if !bb.IsOverdue(today) {
		return decimal.Zero
	}
	return DailyFine.Mul(decimal.NewFromInt(int64(bb.DaysOverdue(today))))
}

// outstandingFine is the unpaid part of a loan's fine.
func outstandingFine(bb *BorrowedBook, today time.Time) decimal.Decimal {
	owed := fineAsOf(bb, today).Sub(bb.FinePaid)
	if owed.IsNegative() {
		return decimal.Zero
	}
	return owed
}

// memberFines recomputes a member's balance from the overdue loans in the
// in-memory list. Nothing is persisted.
func memberFines(m *Member, today time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, bb := range m.Loans {
		if bb.IsOverdue(today) {
			total = total.Add(outstandingFine(bb, today))
		}
	}
	return total
}

// UpdateMemberFines sets the member's balance to the sum of unpaid fines on
// their overdue loans and persists it. The balance is recomputed from
// scratch, so repeated calls on the same day give the same result.
func (lm *LibraryManager) UpdateMemberFines(ctx context.Context, m *Member) error {
	m.Balance = memberFines(m, lm.today())
	if err := lm.members.Save(ctx, m); err != nil {
		return fmt.Errorf("update fines: %w", err)
	}
	return nil
}

// ClearFine zeroes the member's balance (librarian override). The fine
// accrued so far on each overdue loan is marked settled so the next
// recompute does not raise it again; days that pass afterwards still accrue.
func (lm *LibraryManager) ClearFine(ctx context.Context, m *Member) error {
	today := lm.today()
	for _, bb := range m.Loans {
		if !bb.IsOverdue(today) {
			continue
		}
		accrued := fineAsOf(bb, today)
		if accrued.Equal(bb.FinePaid) {
			continue
		}
		if err := lm.loans.SettleFine(ctx, bb.ID, accrued); err != nil {
			return fmt.Errorf("clear fine: %w", err)
		}
		bb.FinePaid = accrued
	}

	m.Balance = decimal.Zero
	if err := lm.members.Save(ctx, m); err != nil {
		return fmt.Errorf("clear fine: %w", err)
	}
	logger.Info("Fine cleared", "member_id", m.ID)
	return nil
}

// PayFine takes a payment against the member's balance. The amount must be
// positive and no larger than the balance. It is credited to the overdue
// loans, earliest due date first.
func (lm *LibraryManager) PayFine(ctx context.Context, m *Member, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidPayment, amount.StringFixed(2))
	}
	if amount.GreaterThan(m.Balance) {
		return fmt.Errorf("%w: paying %s against %s", ErrOverpayment, amount.StringFixed(2), m.Balance.StringFixed(2))
	}

	today := lm.today()
	overdue := make([]*BorrowedBook, 0, len(m.Loans))
	for _, bb := range m.Loans {
		if bb.IsOverdue(today) {
			overdue = append(overdue, bb)
		}
	}
	sort.SliceStable(overdue, func(i, j int) bool {
		return overdue[i].DueDate.Before(overdue[j].DueDate)
	})

	remaining := amount
	for _, bb := range overdue {
		if !remaining.IsPositive() {
			break
		}
		owed := outstandingFine(bb, today)
		if !owed.IsPositive() {
			continue
		}
		credit := decimal.Min(owed, remaining)
		paid := bb.FinePaid.Add(credit)
		if err := lm.loans.SettleFine(ctx, bb.ID, paid); err != nil {
			return fmt.Errorf("pay fine: %w", err)
		}
		bb.FinePaid = paid
		remaining = remaining.Sub(credit)
	}

	m.PayFine(amount)
	if err := lm.members.Save(ctx, m); err != nil {
		return fmt.Errorf("pay fine: %w", err)
	}
	logger.Info("Fine paid", "member_id", m.ID, "amount", amount.StringFixed(2), "balance", m.Balance.StringFixed(2))
	return nil
}
