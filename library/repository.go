package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"github.com/jmoiron/sqlx"

	"library-lending/logger"
)

const colID = "id"

var dialect = goqu.Dialect("sqlite3")

// Codec is what a Repository needs to know about one entity type: where it
// lives, how it is identified and how it maps to and from a row.
type Codec[T any] interface {
	Table() string
	// Columns lists the selected columns in the order Decode expects.
	Columns() []string
	ID(entity T) int64
	// Record returns the column values written on insert and update,
	// without the id column.
	Record(entity T) goqu.Record
	Decode(rows *sqlx.Rows) (T, error)
}

// Repository is CRUD by integer id over one table.
type Repository[T any] struct {
	db    *Database
	codec Codec[T]
}

func NewRepository[T any](db *Database, codec Codec[T]) *Repository[T] {
	return &Repository[T]{db: db, codec: codec}
}

// Save upserts each entity by id: update when the id exists, insert
// otherwise. Entities are written one statement at a time; an error stops
// the loop and earlier writes stay.
func (r *Repository[T]) Save(ctx context.Context, entities ...T) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return err
	}

	table := r.codec.Table()
	for _, entity := range entities {
		id := r.codec.ID(entity)
		if id <= 0 {
			return fmt.Errorf("save %s: %w", table, ErrMissingID)
		}

		exists, err := r.exists(ctx, conn, id)
		if err != nil {
			logger.Error("Error saving", "table", table, "id", id, "error", err)
			return fmt.Errorf("save %s %d: %w", table, id, err)
		}

		if exists {
			err = r.update(ctx, conn, id, entity)
		} else {
			err = r.insert(ctx, conn, id, entity)
		}
		if err != nil {
			logger.Error("Error saving", "table", table, "id", id, "error", err)
			return fmt.Errorf("save %s %d: %w", table, id, err)
		}
	}
	return nil
}

// FindAll returns every row ordered by id.
func (r *Repository[T]) FindAll(ctx context.Context) ([]T, error) {
	query, args, err := r.selectDataset().Order(goqu.C(colID).Asc()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select %s: %w", r.codec.Table(), err)
	}
	return r.query(ctx, query, args...)
}

// FindByID returns the entity with the given id or ErrNotFound.
func (r *Repository[T]) FindByID(ctx context.Context, id int64) (T, error) {
	var zero T
	query, args, err := r.selectDataset().Where(goqu.C(colID).Eq(id)).Limit(1).ToSQL()
	if err != nil {
		return zero, fmt.Errorf("build select %s: %w", r.codec.Table(), err)
	}
	found, err := r.query(ctx, query, args...)
	if err != nil {
		return zero, err
	}
	if len(found) == 0 {
		return zero, fmt.Errorf("%s %d: %w", r.codec.Table(), id, ErrNotFound)
	}
	return found[0], nil
}

// Delete removes the row with the given id. Deleting a missing id is not an error.
func (r *Repository[T]) Delete(ctx context.Context, id int64) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return err
	}
	query, args, err := dialect.Delete(r.codec.Table()).Prepared(true).
		Where(goqu.C(colID).Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete %s: %w", r.codec.Table(), err)
	}
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		logger.Error("Error deleting", "table", r.codec.Table(), "id", id, "error", err)
		return fmt.Errorf("delete %s %d: %w", r.codec.Table(), id, err)
	}
	return nil
}

// Count returns the number of rows in the table.
func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	var n int
	ds := dialect.From(r.codec.Table()).Prepared(true).Select(goqu.COUNT(goqu.Star()))
	if err := r.scalar(ctx, ds, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// NextID returns one past the highest id in use, 1 for an empty table.
func (r *Repository[T]) NextID(ctx context.Context) (int64, error) {
	var maxID int64
	ds := dialect.From(r.codec.Table()).Prepared(true).
		Select(goqu.COALESCE(goqu.MAX(colID), 0))
	if err := r.scalar(ctx, ds, &maxID); err != nil {
		return 0, err
	}
	return maxID + 1, nil
}

func (r *Repository[T]) selectDataset() *goqu.SelectDataset {
	cols := make([]any, 0, len(r.codec.Columns()))
	for _, c := range r.codec.Columns() {
		cols = append(cols, c)
	}
	return dialect.From(r.codec.Table()).Prepared(true).Select(cols...)
}

func (r *Repository[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryxContext(ctx, query, args...)
	if err != nil {
		logger.Error("Error reading", "table", r.codec.Table(), "error", err)
		return nil, fmt.Errorf("read %s: %w", r.codec.Table(), err)
	}
	defer rows.Close()

	entities := make([]T, 0)
	for rows.Next() {
		entity, err := r.codec.Decode(rows)
		if err != nil {
			logger.Error("Error decoding row", "table", r.codec.Table(), "error", err)
			return nil, fmt.Errorf("decode %s: %w", r.codec.Table(), err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.codec.Table(), err)
	}
	return entities, nil
}

func (r *Repository[T]) scalar(ctx context.Context, ds *goqu.SelectDataset, dest any) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return err
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("build query %s: %w", r.codec.Table(), err)
	}
	if err := conn.GetContext(ctx, dest, query, args...); err != nil {
		logger.Error("Error reading", "table", r.codec.Table(), "error", err)
		return fmt.Errorf("read %s: %w", r.codec.Table(), err)
	}
	return nil
}

func (r *Repository[T]) exists(ctx context.Context, conn *sqlx.DB, id int64) (bool, error) {
	query, args, err := dialect.From(r.codec.Table()).Prepared(true).
		Select(goqu.C(colID)).Where(goqu.C(colID).Eq(id)).Limit(1).ToSQL()
	if err != nil {
		return false, err
	}
	var found int64
	err = conn.GetContext(ctx, &found, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository[T]) insert(ctx context.Context, conn *sqlx.DB, id int64, entity T) error {
	rec := r.codec.Record(entity)
	rec[colID] = id
	query, args, err := dialect.Insert(r.codec.Table()).Prepared(true).Rows(rec).ToSQL()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository[T]) update(ctx context.Context, conn *sqlx.DB, id int64, entity T) error {
	query, args, err := dialect.Update(r.codec.Table()).Prepared(true).
		Set(r.codec.Record(entity)).Where(goqu.C(colID).Eq(id)).ToSQL()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, query, args...)
	return err
}
