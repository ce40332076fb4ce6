package library

import (
	"context"
	"fmt"
	"time"

	"library-lending/logger"
)

// LibraryManager runs the circulation rules on top of the book and member
// repositories and the loan store, keeping the in-memory entities it is
// handed in step with what is persisted.
type LibraryManager struct {
	db      *Database
	books   *Repository[*Book]
	members *Repository[*Member]
	loans   *LoanStore
	now     func() time.Time
}

// Option configures a LibraryManager.
type Option func(*LibraryManager)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(lm *LibraryManager) {
		lm.now = now
	}
}

// NewLibraryManager wires the repositories over db.
func NewLibraryManager(db *Database, options ...Option) *LibraryManager {
	lm := &LibraryManager{
		db:      db,
		books:   NewRepository[*Book](db, bookCodec{}),
		members: NewRepository[*Member](db, memberCodec{}),
		loans:   NewLoanStore(db),
		now:     time.Now,
	}
	for _, option := range options {
		option(lm)
	}
	return lm
}

// OpenLibraryManager prepares the database at dbPath and returns a manager over it.
func OpenLibraryManager(dbPath string, options ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	return NewLibraryManager(db, options...), nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Loans exposes the loan record store.
func (lm *LibraryManager) Loans() *LoanStore { return lm.loans }

func (lm *LibraryManager) today() time.Time { return civilDate(lm.now()) }

// Today returns the manager's current date.
func (lm *LibraryManager) Today() time.Time { return lm.today() }

// ------------------ Catalog and membership ------------------

// RegisterMember inserts or updates a member.
func (lm *LibraryManager) RegisterMember(ctx context.Context, m *Member) error {
	if m.ID <= 0 {
		return fmt.Errorf("register member: %w", ErrMissingID)
	}
	return lm.members.Save(ctx, m)
}

// AddBook inserts or updates a book.
func (lm *LibraryManager) AddBook(ctx context.Context, b *Book) error {
	if b.ID <= 0 {
		return fmt.Errorf("add book: %w", ErrMissingID)
	}
	return lm.books.Save(ctx, b)
}

// RemoveBook deletes a book. A book that is out on loan cannot be removed;
// returned loan history is kept.
func (lm *LibraryManager) RemoveBook(ctx context.Context, id int64) error {
	borrowed, err := lm.loans.IsBorrowed(ctx, id)
	if err != nil {
		return err
	}
	if borrowed {
		return fmt.Errorf("remove book %d: %w", id, ErrActiveLoans)
	}
	if err := lm.books.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("Book removed", "book_id", id)
	return nil
}

// RemoveMember deletes a member. A member holding books cannot be removed.
func (lm *LibraryManager) RemoveMember(ctx context.Context, id int64) error {
	active, err := lm.loans.CountActiveForMember(ctx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("remove member %d (%d books out): %w", id, active, ErrActiveLoans)
	}
	if err := lm.members.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("Member removed", "member_id", id)
	return nil
}

func (lm *LibraryManager) Book(ctx context.Context, id int64) (*Book, error) {
	return lm.books.FindByID(ctx, id)
}

func (lm *LibraryManager) Books(ctx context.Context) ([]*Book, error) {
	return lm.books.FindAll(ctx)
}

// Member loads a member together with every loan on record for them.
func (lm *LibraryManager) Member(ctx context.Context, id int64) (*Member, error) {
	m, err := lm.members.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	catalog, err := lm.books.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if m.Loans, err = lm.loans.LoadForMember(ctx, id, catalog); err != nil {
		return nil, err
	}
	return m, nil
}

// Members returns all members without their loans.
func (lm *LibraryManager) Members(ctx context.Context) ([]*Member, error) {
	return lm.members.FindAll(ctx)
}

func (lm *LibraryManager) NextBookID(ctx context.Context) (int64, error) {
	return lm.books.NextID(ctx)
}

func (lm *LibraryManager) NextMemberID(ctx context.Context) (int64, error) {
	return lm.members.NextID(ctx)
}

// Report counts the persisted books and members.
func (lm *LibraryManager) Report(ctx context.Context) (*Report, error) {
	books, err := lm.books.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	members, err := lm.members.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return &Report{TotalBooks: books, TotalMembers: members}, nil
}

// ------------------ Circulation ------------------

// BorrowBook lends b to m until dueDate, starting today.
func (lm *LibraryManager) BorrowBook(ctx context.Context, m *Member, b *Book, dueDate time.Time) (*BorrowedBook, error) {
	if !b.Available {
		return nil, fmt.Errorf("book %d: %w", b.ID, ErrBookUnavailable)
	}
	borrowed, err := lm.loans.IsBorrowed(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if borrowed {
		return nil, fmt.Errorf("book %d: %w", b.ID, ErrBookUnavailable)
	}

	bb := NewBorrowedBook(b, m.ID, lm.today(), dueDate)
	if err := lm.loans.Insert(ctx, m.ID, bb); err != nil {
		return nil, err
	}

	b.Available = false
	m.Borrow(bb)

	if err := lm.members.Save(ctx, m); err != nil {
		return nil, err
	}
	if err := lm.books.Save(ctx, b); err != nil {
		return nil, err
	}

	logger.Info("Book borrowed", "book_id", b.ID, "member_id", m.ID, "due", formatDate(bb.DueDate))
	return bb, nil
}

// ReturnBook closes the loan bb held by m. Fines are recomputed first; a
// positive balance blocks the return and leaves the loan and book as they were.
func (lm *LibraryManager) ReturnBook(ctx context.Context, m *Member, bb *BorrowedBook) error {
	if bb.IsReturned() {
		return fmt.Errorf("loan %d: %w", bb.ID, ErrAlreadyReturned)
	}
	if bb.MemberID != 0 && bb.MemberID != m.ID {
		return fmt.Errorf("%w: book is borrowed by member ID %d", ErrNotBorrower, bb.MemberID)
	}

	if err := lm.UpdateMemberFines(ctx, m); err != nil {
		return err
	}
	if m.Balance.IsPositive() {
		return fmt.Errorf("%w of $%s", ErrOutstandingFine, m.Balance.StringFixed(2))
	}

	today := lm.today()
	if err := lm.loans.MarkReturned(ctx, bb.bookID(), today); err != nil {
		return err
	}
	bb.MarkReturned(today)
	bb.Book.Available = true

	if err := lm.members.Save(ctx, m); err != nil {
		return err
	}
	if err := lm.books.Save(ctx, bb.Book); err != nil {
		return err
	}

	logger.Info("Book returned", "book_id", bb.bookID(), "member_id", m.ID)
	return nil
}

// ReturnBookFor returns b for m, finding the loan in m's list or, failing
// that, in the store. The store's loan must belong to m.
func (lm *LibraryManager) ReturnBookFor(ctx context.Context, m *Member, b *Book) error {
	bb := m.ActiveLoan(b.ID)
	if bb != nil {
		// m may have been loaded separately from b; return through the caller's copy.
		bb.Book = b
	} else {
		stored, err := lm.loans.ActiveLoan(ctx, b.ID)
		if err != nil {
			return err
		}
		if stored.MemberID != m.ID {
			return fmt.Errorf("%w: book is borrowed by member ID %d", ErrNotBorrower, stored.MemberID)
		}
		stored.Book = b
		m.Borrow(stored)
		bb = stored
	}
	return lm.ReturnBook(ctx, m, bb)
}
