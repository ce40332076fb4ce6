package library

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book represents catalog metadata and current availability of a book.
type Book struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Available bool   `json:"available"`
	CoverPath string `json:"cover_path,omitempty"`
}

// Member represents a registered library member together with the loan
// records known for them.
type Member struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Password string          `json:"-"` // Don't serialize credentials
	Balance  decimal.Decimal `json:"balance"`
	Loans    []*BorrowedBook `json:"loans,omitempty"`
}

// BorrowedBook is one loan of a Book to a Member. A nil ReturnDate means the
// loan is active; once set the record is terminal.
type BorrowedBook struct {
	ID         int64           `json:"id"`
	Book       *Book           `json:"book"`
	MemberID   int64           `json:"member_id"`
	BorrowDate time.Time       `json:"borrow_date"`
	DueDate    time.Time       `json:"due_date"`
	ReturnDate *time.Time      `json:"return_date,omitempty"`
	FinePaid   decimal.Decimal `json:"fine_paid"` // paid or waived part of the accrued fine
}

// Report holds catalog and membership totals.
type Report struct {
	TotalBooks   int `json:"total_books"`
	TotalMembers int `json:"total_members"`
}

// NewBorrowedBook starts an active loan on borrowDate.
func NewBorrowedBook(book *Book, memberID int64, borrowDate, dueDate time.Time) *BorrowedBook {
	return &BorrowedBook{
		Book:       book,
		MemberID:   memberID,
		BorrowDate: civilDate(borrowDate),
		DueDate:    civilDate(dueDate),
	}
}

func (bb *BorrowedBook) IsReturned() bool { return bb.ReturnDate != nil }

// IsOverdue reports whether the loan is still active and today is past its due date.
func (bb *BorrowedBook) IsOverdue(today time.Time) bool {
	return !bb.IsReturned() && civilDate(today).After(bb.DueDate)
}

// DaysOverdue is the number of whole days past the due date, 0 when not overdue.
func (bb *BorrowedBook) DaysOverdue(today time.Time) int {
	if !bb.IsOverdue(today) {
		return 0
	}
	return daysBetween(bb.DueDate, today)
}

// MarkReturned stamps the return date. Already returned records are left alone.
func (bb *BorrowedBook) MarkReturned(on time.Time) {
	if bb.IsReturned() {
		return
	}
	d := civilDate(on)
	bb.ReturnDate = &d
}

func (bb *BorrowedBook) bookID() int64 {
	if bb.Book == nil {
		return 0
	}
	return bb.Book.ID
}

// Borrow appends a loan record to the member's list.
func (m *Member) Borrow(bb *BorrowedBook) {
	m.Loans = append(m.Loans, bb)
}

// ActiveLoan returns the member's active loan for bookID, or nil.
func (m *Member) ActiveLoan(bookID int64) *BorrowedBook {
	for _, bb := range m.Loans {
		if !bb.IsReturned() && bb.bookID() == bookID {
			return bb
		}
	}
	return nil
}

// ActiveLoans returns the loans without a return date, in list order.
func (m *Member) ActiveLoans() []*BorrowedBook {
	var active []*BorrowedBook
	for _, bb := range m.Loans {
		if !bb.IsReturned() {
			active = append(active, bb)
		}
	}
	return active
}

// PayFine reduces the balance by amount. Validation is the caller's job.
func (m *Member) PayFine(amount decimal.Decimal) {
	m.Balance = m.Balance.Sub(amount)
}
