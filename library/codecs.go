package library

import (
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type bookRow struct {
	ID        int64          `db:"id"`
	Title     string         `db:"title"`
	Author    string         `db:"author"`
	Available bool           `db:"available"`
	CoverPath sql.NullString `db:"cover_path"`
}

type bookCodec struct{}

func (bookCodec) Table() string { return "books" }

func (bookCodec) Columns() []string {
	return []string{"id", "title", "author", "available", "cover_path"}
}

func (bookCodec) ID(b *Book) int64 { return b.ID }

func (bookCodec) Record(b *Book) goqu.Record {
	var cover any
	if b.CoverPath != "" {
		cover = b.CoverPath
	}
	available := 0
	if b.Available {
		available = 1
	}
	return goqu.Record{
		"title":      b.Title,
		"author":     b.Author,
		"available":  available,
		"cover_path": cover,
	}
}

func (bookCodec) Decode(rows *sqlx.Rows) (*Book, error) {
	var row bookRow
	if err := rows.StructScan(&row); err != nil {
		return nil, err
	}
	return &Book{
		ID:        row.ID,
		Title:     row.Title,
		Author:    row.Author,
		Available: row.Available,
		CoverPath: row.CoverPath.String,
	}, nil
}

type memberRow struct {
	ID       int64           `db:"id"`
	Name     string          `db:"name"`
	Password string          `db:"password"`
	Balance  decimal.Decimal `db:"balance"`
}

type memberCodec struct{}

func (memberCodec) Table() string { return "members" }

func (memberCodec) Columns() []string {
	return []string{"id", "name", "password", "balance"}
}

func (memberCodec) ID(m *Member) int64 { return m.ID }

// Record leaves out the loan list; loans live in borrowed_books.
func (memberCodec) Record(m *Member) goqu.Record {
	return goqu.Record{
		"name":     m.Name,
		"password": m.Password,
		"balance":  m.Balance.InexactFloat64(),
	}
}

func (memberCodec) Decode(rows *sqlx.Rows) (*Member, error) {
	var row memberRow
	if err := rows.StructScan(&row); err != nil {
		return nil, err
	}
	return &Member{
		ID:       row.ID,
		Name:     row.Name,
		Password: row.Password,
		Balance:  row.Balance,
	}, nil
}
