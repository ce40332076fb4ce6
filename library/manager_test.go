package library

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a settable "today" for LibraryManager.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(days int)        { c.now = c.now.AddDate(0, 0, days) }
func (c *testClock) DaysAgo(n int) time.Time { return c.now.AddDate(0, 0, -n) }

func newManager(t *testing.T) (*LibraryManager, *testClock) {
	t.Helper()
	clock := &testClock{now: day("2025-06-15")}
	lm := NewLibraryManager(tempDB(t), WithClock(clock.Now))
	return lm, clock
}

func seed(t *testing.T, lm *LibraryManager) (*Member, *Book) {
	t.Helper()
	ctx := context.Background()
	m := &Member{ID: 1, Name: "Alice", Password: "secret"}
	b := &Book{ID: 1, Title: "Middlemarch", Author: "Eliot", Available: true}
	require.NoError(t, lm.RegisterMember(ctx, m))
	require.NoError(t, lm.AddBook(ctx, b))
	return m, b
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, money(want).StringFixed(2), got.StringFixed(2))
}

func TestBorrowAndReturnFlipsAvailability(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	bb, err := lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.False(t, b.Available)
	assert.Equal(t, clock.now, bb.BorrowDate)
	assert.Equal(t, m.ID, bb.MemberID)
	require.Len(t, m.Loans, 1)

	stored, err := lm.Book(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, stored.Available)

	clock.Advance(3)
	require.NoError(t, lm.ReturnBook(ctx, m, bb))
	assert.True(t, b.Available)
	require.NotNil(t, bb.ReturnDate)
	assert.Equal(t, clock.now, *bb.ReturnDate)
	require.Len(t, m.Loans, 1, "returned loans stay in the member's history")

	stored, err = lm.Book(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.Available)

	borrowed, err := lm.Loans().IsBorrowed(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, borrowed)
}

func TestBorrowUnavailableBookFails(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	_, err := lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 7))
	require.NoError(t, err)

	_, err = lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 7))
	assert.ErrorIs(t, err, ErrBookUnavailable)

	// A stale copy that still claims to be available is caught by the store.
	stale := &Book{ID: b.ID, Title: b.Title, Author: b.Author, Available: true}
	_, err = lm.BorrowBook(ctx, m, stale, clock.now.AddDate(0, 0, 7))
	assert.ErrorIs(t, err, ErrBookUnavailable)
	assert.Len(t, m.Loans, 1)
}

func TestCalculateFine(t *testing.T) {
	lm, clock := newManager(t)
	book := &Book{ID: 1}
	returned := clock.DaysAgo(1)

	tests := []struct {
		name string
		loan *BorrowedBook
		want string
	}{
		{"due today", NewBorrowedBook(book, 1, clock.DaysAgo(10), clock.now), "0"},
		{"due later", NewBorrowedBook(book, 1, clock.DaysAgo(10), clock.now.AddDate(0, 0, 5)), "0"},
		{"one day late", NewBorrowedBook(book, 1, clock.DaysAgo(10), clock.DaysAgo(1)), "0.50"},
		{"three days late", NewBorrowedBook(book, 1, clock.DaysAgo(10), clock.DaysAgo(3)), "1.50"},
		{"returned", &BorrowedBook{Book: book, DueDate: clock.DaysAgo(5), ReturnDate: &returned}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertMoney(t, tt.want, lm.CalculateFine(tt.loan))
		})
	}
}

func TestUpdateMemberFinesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)
	b2 := &Book{ID: 2, Title: "Persuasion", Author: "Austen", Available: true}
	require.NoError(t, lm.AddBook(ctx, b2))

	_, err := lm.BorrowBook(ctx, m, b, clock.DaysAgo(3))
	require.NoError(t, err)
	_, err = lm.BorrowBook(ctx, m, b2, clock.DaysAgo(1))
	require.NoError(t, err)

	require.NoError(t, lm.UpdateMemberFines(ctx, m))
	assertMoney(t, "2.00", m.Balance)
	require.NoError(t, lm.UpdateMemberFines(ctx, m))
	assertMoney(t, "2.00", m.Balance)

	loaded, err := lm.Member(ctx, m.ID)
	require.NoError(t, err)
	assertMoney(t, "2.00", loaded.Balance)

	clock.Advance(1)
	require.NoError(t, lm.UpdateMemberFines(ctx, m))
	assertMoney(t, "3.00", m.Balance)
}

func TestReturnBlockedByOutstandingFine(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	bb, err := lm.BorrowBook(ctx, m, b, clock.DaysAgo(2))
	require.NoError(t, err)

	err = lm.ReturnBook(ctx, m, bb)
	require.ErrorIs(t, err, ErrOutstandingFine)
	assert.Contains(t, err.Error(), "$1.00")

	assertMoney(t, "1.00", m.Balance)
	assert.Nil(t, bb.ReturnDate)
	assert.False(t, b.Available)
	assert.Len(t, m.Loans, 1)

	stored, err := lm.Book(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, stored.Available)

	active, err := lm.Loans().ActiveLoan(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, bb.ID, active.ID)
}

func TestReturnAlreadyReturnedLoanFails(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	bb, err := lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.NoError(t, lm.ReturnBook(ctx, m, bb))

	assert.ErrorIs(t, lm.ReturnBook(ctx, m, bb), ErrAlreadyReturned)
}

func TestPayFine(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	_, err := lm.BorrowBook(ctx, m, b, clock.DaysAgo(4))
	require.NoError(t, err)
	require.NoError(t, lm.UpdateMemberFines(ctx, m))
	assertMoney(t, "2.00", m.Balance)

	for _, amount := range []string{"0", "-1"} {
		assert.ErrorIs(t, lm.PayFine(ctx, m, money(amount)), ErrInvalidPayment, amount)
	}
	assert.ErrorIs(t, lm.PayFine(ctx, m, money("2.01")), ErrOverpayment)
	assertMoney(t, "2.00", m.Balance)

	require.NoError(t, lm.PayFine(ctx, m, money("0.75")))
	assertMoney(t, "1.25", m.Balance)
	assertMoney(t, "0.75", m.Loans[0].FinePaid)

	// The payment survives a recompute.
	require.NoError(t, lm.UpdateMemberFines(ctx, m))
	assertMoney(t, "1.25", m.Balance)

	loaded, err := lm.Member(ctx, m.ID)
	require.NoError(t, err)
	assertMoney(t, "1.25", loaded.Balance)
	require.Len(t, loaded.Loans, 1)
	assertMoney(t, "0.75", loaded.Loans[0].FinePaid)
}

func TestPayFineCreditsEarliestDueLoanFirst(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)
	b2 := &Book{ID: 2, Title: "Persuasion", Author: "Austen", Available: true}
	require.NoError(t, lm.AddBook(ctx, b2))

	recent, err := lm.BorrowBook(ctx, m, b, clock.DaysAgo(2))
	require.NoError(t, err)
	oldest, err := lm.BorrowBook(ctx, m, b2, clock.DaysAgo(6))
	require.NoError(t, err)

	require.NoError(t, lm.UpdateMemberFines(ctx, m))
	assertMoney(t, "4.00", m.Balance)

	require.NoError(t, lm.PayFine(ctx, m, money("3.50")))
	assertMoney(t, "3.00", oldest.FinePaid)
	assertMoney(t, "0.50", recent.FinePaid)
	assertMoney(t, "0.50", m.Balance)
}

func TestEndToEndFinePaymentThenReturn(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	bb, err := lm.BorrowBook(ctx, m, b, clock.DaysAgo(3))
	require.NoError(t, err)
	assertMoney(t, "1.50", lm.CalculateFine(bb))

	require.ErrorIs(t, lm.ReturnBook(ctx, m, bb), ErrOutstandingFine)

	require.NoError(t, lm.PayFine(ctx, m, money("1.50")))
	assertMoney(t, "0", m.Balance)

	require.NoError(t, lm.ReturnBook(ctx, m, bb))
	assert.True(t, b.Available)
	require.NotNil(t, bb.ReturnDate)
	assert.Equal(t, clock.now, *bb.ReturnDate)

	loaded, err := lm.Member(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Loans, 1)
	assert.True(t, loaded.Loans[0].IsReturned())
	assertMoney(t, "0", loaded.Balance)
}

func TestClearFineWaivesAccruedFine(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	bb, err := lm.BorrowBook(ctx, m, b, clock.DaysAgo(5))
	require.NoError(t, err)
	require.NoError(t, lm.UpdateMemberFines(ctx, m))
	assertMoney(t, "2.50", m.Balance)

	require.NoError(t, lm.ClearFine(ctx, m))
	assertMoney(t, "0", m.Balance)

	loaded, err := lm.Member(ctx, m.ID)
	require.NoError(t, err)
	assertMoney(t, "0", loaded.Balance)

	// Another day overdue accrues again.
	clock.Advance(1)
	require.ErrorIs(t, lm.ReturnBook(ctx, m, bb), ErrOutstandingFine)
	assertMoney(t, "0.50", m.Balance)

	require.NoError(t, lm.ClearFine(ctx, m))
	require.NoError(t, lm.ReturnBook(ctx, m, bb))
	assert.True(t, b.Available)
}

func TestReturnBookForLoadsLoanFromStore(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	_, err := lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 10))
	require.NoError(t, err)

	// A fresh member value without the in-memory loan list.
	fresh := &Member{ID: m.ID, Name: m.Name, Password: m.Password}
	book, err := lm.Book(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, lm.ReturnBookFor(ctx, fresh, book))
	assert.True(t, book.Available)
	require.Len(t, fresh.Loans, 1)
	assert.True(t, fresh.Loans[0].IsReturned())
	assert.Equal(t, clock.now, fresh.Loans[0].BorrowDate)

	borrowed, err := lm.Loans().IsBorrowed(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, borrowed)
}

func TestReturnBookForUsesInMemoryLoan(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	bb, err := lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 10))
	require.NoError(t, err)

	require.NoError(t, lm.ReturnBookFor(ctx, m, b))
	assert.True(t, bb.IsReturned())
	assert.Len(t, m.Loans, 1)
}

func TestReturnBookForUpdatesCallersBookWhenMemberIsReloaded(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	_, err := lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 10))
	require.NoError(t, err)

	loaded, err := lm.Member(ctx, m.ID)
	require.NoError(t, err)
	book, err := lm.Book(ctx, b.ID)
	require.NoError(t, err)
	require.False(t, book.Available)

	require.NoError(t, lm.ReturnBookFor(ctx, loaded, book))
	assert.True(t, book.Available)

	stored, err := lm.Book(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.Available)
	require.Len(t, loaded.Loans, 1)
	assert.Same(t, book, loaded.Loans[0].Book)
}

func TestReturnBookForRejectsWrongMember(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)
	other := &Member{ID: 2, Name: "Bob", Password: "pw"}
	require.NoError(t, lm.RegisterMember(ctx, other))

	err := lm.ReturnBookFor(ctx, other, b)
	assert.ErrorIs(t, err, ErrNotBorrowed)

	_, err = lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 10))
	require.NoError(t, err)

	err = lm.ReturnBookFor(ctx, other, b)
	require.ErrorIs(t, err, ErrNotBorrower)
	assert.Contains(t, err.Error(), "member ID 1")
	assert.Empty(t, other.Loans)
	assert.False(t, b.Available)
}

func TestRemoveBlockedByActiveLoans(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	bb, err := lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 10))
	require.NoError(t, err)

	assert.ErrorIs(t, lm.RemoveBook(ctx, b.ID), ErrActiveLoans)
	assert.ErrorIs(t, lm.RemoveMember(ctx, m.ID), ErrActiveLoans)

	require.NoError(t, lm.ReturnBook(ctx, m, bb))
	require.NoError(t, lm.RemoveBook(ctx, b.ID))
	require.NoError(t, lm.RemoveMember(ctx, m.ID))
	require.NoError(t, lm.RemoveBook(ctx, 404), "missing ids are a no-op")

	_, err = lm.Book(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Loan history is not cascaded away.
	last, ok, err := lm.Loans().LastBorrowerID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, m.ID, last)
}

func TestRegisterRequiresID(t *testing.T) {
	ctx := context.Background()
	lm, _ := newManager(t)
	assert.ErrorIs(t, lm.RegisterMember(ctx, &Member{Name: "x"}), ErrMissingID)
	assert.ErrorIs(t, lm.AddBook(ctx, &Book{Title: "x"}), ErrMissingID)
}

func TestReport(t *testing.T) {
	ctx := context.Background()
	lm, _ := newManager(t)

	r, err := lm.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Report{}, r)

	seed(t, lm)
	require.NoError(t, lm.AddBook(ctx, &Book{ID: 2, Title: "B", Author: "A", Available: true}))

	r, err = lm.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Report{TotalBooks: 2, TotalMembers: 1}, r)
}

func TestMemberLoadsLoansWithCatalogBooks(t *testing.T) {
	ctx := context.Background()
	lm, clock := newManager(t)
	m, b := seed(t, lm)

	_, err := lm.BorrowBook(ctx, m, b, clock.now.AddDate(0, 0, 10))
	require.NoError(t, err)

	loaded, err := lm.Member(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Loans, 1)
	assert.Equal(t, "Middlemarch", loaded.Loans[0].Book.Title)
	assert.False(t, loaded.Loans[0].Book.Available)
	assert.NotNil(t, loaded.ActiveLoan(b.ID))

	_, err = lm.Member(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenLibraryManagerCreatesDatabase(t *testing.T) {
	ctx := context.Background()
	lm, err := OpenLibraryManager(t.TempDir() + "/lib/library.db")
	require.NoError(t, err)
	t.Cleanup(func() { lm.Close() })

	id, err := lm.NextBookID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = lm.NextMemberID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}
