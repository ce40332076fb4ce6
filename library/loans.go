package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"library-lending/logger"
)

// LoanStore holds the hand-written queries against borrowed_books.
type LoanStore struct {
	db *Database
}

func NewLoanStore(db *Database) *LoanStore {
	return &LoanStore{db: db}
}

type loanRow struct {
	ID         int64           `db:"id"`
	BookID     int64           `db:"book_id"`
	MemberID   int64           `db:"member_id"`
	BorrowDate string          `db:"borrow_date"`
	DueDate    sql.NullString  `db:"due_date"` // NULL only on patched legacy rows
	ReturnDate sql.NullString  `db:"return_date"`
	FinePaid   decimal.Decimal `db:"fine_paid"`
}

const loanColumns = `id, book_id, member_id, borrow_date, due_date, return_date, fine_paid`

func (r loanRow) toBorrowedBook(book *Book) (*BorrowedBook, error) {
	borrowDate, err := ParseDate(r.BorrowDate)
	if err != nil {
		return nil, fmt.Errorf("loan %d borrow date: %w", r.ID, err)
	}
	if !r.DueDate.Valid || r.DueDate.String == "" {
		return nil, fmt.Errorf("loan %d: missing due date", r.ID)
	}
	dueDate, err := ParseDate(r.DueDate.String)
	if err != nil {
		return nil, fmt.Errorf("loan %d due date: %w", r.ID, err)
	}
	returnDate, err := parseNullDate(r.ReturnDate)
	if err != nil {
		return nil, fmt.Errorf("loan %d return date: %w", r.ID, err)
	}
	return &BorrowedBook{
		ID:         r.ID,
		Book:       book,
		MemberID:   r.MemberID,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		ReturnDate: returnDate,
		FinePaid:   r.FinePaid,
	}, nil
}

// Insert records a new loan for memberID and sets bb.ID.
func (s *LoanStore) Insert(ctx context.Context, memberID int64, bb *BorrowedBook) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}

	var returnDate any
	if bb.ReturnDate != nil {
		returnDate = formatDate(*bb.ReturnDate)
	}
	res, err := conn.ExecContext(ctx,
		`INSERT INTO borrowed_books(member_id, book_id, borrow_date, due_date, return_date, fine_paid) VALUES(?,?,?,?,?,?)`,
		memberID, bb.bookID(), formatDate(bb.BorrowDate), formatDate(bb.DueDate), returnDate, bb.FinePaid.InexactFloat64())
	if err != nil {
		logger.Error("Error inserting loan", "book_id", bb.bookID(), "member_id", memberID, "error", err)
		return fmt.Errorf("insert loan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	bb.ID = id
	bb.MemberID = memberID
	return nil
}

// MarkReturned stamps the active loan of bookID as returned on the given day.
// It returns ErrNotBorrowed when the book has no active loan, so a loan is
// never stamped twice.
func (s *LoanStore) MarkReturned(ctx context.Context, bookID int64, on time.Time) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	res, err := conn.ExecContext(ctx,
		`UPDATE borrowed_books SET return_date=? WHERE book_id=? AND return_date IS NULL`,
		formatDate(on), bookID)
	if err != nil {
		logger.Error("Error marking loan returned", "book_id", bookID, "error", err)
		return fmt.Errorf("mark returned: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark returned: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("book %d: %w", bookID, ErrNotBorrowed)
	}
	return nil
}

// IsBorrowed reports whether bookID has an active loan.
func (s *LoanStore) IsBorrowed(ctx context.Context, bookID int64) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM borrowed_books WHERE book_id=? AND return_date IS NULL`, bookID)
	return n > 0, err
}

// CountActiveForMember returns how many unreturned loans memberID holds.
func (s *LoanStore) CountActiveForMember(ctx context.Context, memberID int64) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM borrowed_books WHERE member_id=? AND return_date IS NULL`, memberID)
}

// CurrentBorrowerID returns the member holding bookID; ok is false when the
// book is not on loan.
func (s *LoanStore) CurrentBorrowerID(ctx context.Context, bookID int64) (memberID int64, ok bool, err error) {
	return s.memberID(ctx, `SELECT member_id FROM borrowed_books WHERE book_id=? AND return_date IS NULL LIMIT 1`, bookID)
}

// LastBorrowerID returns the member of the most recent loan of bookID,
// returned or not.
func (s *LoanStore) LastBorrowerID(ctx context.Context, bookID int64) (memberID int64, ok bool, err error) {
	return s.memberID(ctx, `SELECT member_id FROM borrowed_books WHERE book_id=? ORDER BY borrow_date DESC, id DESC LIMIT 1`, bookID)
}

// ActiveLoan loads the active loan of bookID with its borrow and due dates.
// The returned record points at a stub Book carrying only the id.
func (s *LoanStore) ActiveLoan(ctx context.Context, bookID int64) (*BorrowedBook, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var row loanRow
	err = conn.GetContext(ctx, &row,
		`SELECT `+loanColumns+` FROM borrowed_books WHERE book_id=? AND return_date IS NULL LIMIT 1`, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %d: %w", bookID, ErrNotBorrowed)
	}
	if err != nil {
		logger.Error("Error reading active loan", "book_id", bookID, "error", err)
		return nil, fmt.Errorf("read active loan: %w", err)
	}
	return row.toBorrowedBook(&Book{ID: bookID})
}

// LoadForMember materializes every loan of memberID, resolving books against
// catalog. Rows whose book is not in the catalog are dropped.
func (s *LoanStore) LoadForMember(ctx context.Context, memberID int64, catalog []*Book) ([]*BorrowedBook, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []loanRow
	if err := conn.SelectContext(ctx, &rows,
		`SELECT `+loanColumns+` FROM borrowed_books WHERE member_id=? ORDER BY id`, memberID); err != nil {
		logger.Error("Error loading loans", "member_id", memberID, "error", err)
		return nil, fmt.Errorf("load loans for member %d: %w", memberID, err)
	}

	books := make(map[int64]*Book, len(catalog))
	for _, b := range catalog {
		books[b.ID] = b
	}

	loans := make([]*BorrowedBook, 0, len(rows))
	for _, row := range rows {
		book, ok := books[row.BookID]
		if !ok {
			continue
		}
		bb, err := row.toBorrowedBook(book)
		if err != nil {
			return nil, err
		}
		loans = append(loans, bb)
	}
	return loans, nil
}

// SettleFine records the paid or waived part of a loan's fine.
func (s *LoanStore) SettleFine(ctx context.Context, loanID int64, paid decimal.Decimal) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx,
		`UPDATE borrowed_books SET fine_paid=? WHERE id=?`, paid.InexactFloat64(), loanID); err != nil {
		logger.Error("Error settling fine", "loan_id", loanID, "error", err)
		return fmt.Errorf("settle fine on loan %d: %w", loanID, err)
	}
	return nil
}

func (s *LoanStore) count(ctx context.Context, query string, args ...any) (int, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := conn.GetContext(ctx, &n, query, args...); err != nil {
		logger.Error("Error counting loans", "error", err)
		return 0, fmt.Errorf("count loans: %w", err)
	}
	return n, nil
}

func (s *LoanStore) memberID(ctx context.Context, query string, bookID int64) (int64, bool, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, false, err
	}
	var id int64
	err = conn.GetContext(ctx, &id, query, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		logger.Error("Error reading borrower", "book_id", bookID, "error", err)
		return 0, false, fmt.Errorf("read borrower of book %d: %w", bookID, err)
	}
	return id, true, nil
}
