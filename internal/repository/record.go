package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/fintrack/internal/model"
	"golang.org/x/text/cases"
)

var (
	ErrRecordNotFound = errors.New("record not found")
)

const recordColumns = `id, user_id, title, description, amount, currency_code, attachment, created_at, updated_at`

// RecordRepository stores records of a single kind. Every lookup and mutation is
// scoped by the owning user; a record owned by someone else is reported exactly
// like a missing one.
type RecordRepository interface {
	Create(record *model.Record) error
	ByID(userID, id string) (*model.Record, error)
	Records(userID, titleContains string) ([]*model.Record, error)
	Latest(userID string) (*model.Record, error)
	Update(record *model.Record) (*model.Record, error)
	ClearAttachment(userID, id, name string) (*model.Record, error)
	Delete(userID, id string) (*model.Record, error)
}

type recordRepository struct {
	db    *sqlx.DB
	table string
}

func NewRecordRepository(db *sqlx.DB, kind model.Kind) RecordRepository {
	return &recordRepository{db: db, table: kind.Table()}
}

func (r *recordRepository) Create(record *model.Record) error {
	query := `INSERT INTO ` + r.table + ` (id, user_id, title, title_search, description, amount, currency_code, attachment, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(query,
		record.ID,
		record.UserID,
		record.Title,
		foldTitle(record.Title),
		record.Description,
		record.Amount,
		record.CurrencyCode,
		record.Attachment,
		record.CreatedAt,
		record.UpdatedAt,
	)

	return err
}

func (r *recordRepository) ByID(userID, id string) (*model.Record, error) {
	return r.byID(r.db, userID, id)
}

func (r *recordRepository) byID(q sqlx.Queryer, userID, id string) (*model.Record, error) {
	record := &model.Record{}
	query := `SELECT ` + recordColumns + ` FROM ` + r.table + ` WHERE id = $1 AND user_id = $2`

	err := sqlx.Get(q, record, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (r *recordRepository) Records(userID, titleContains string) ([]*model.Record, error) {
	records := []*model.Record{}

	query := `SELECT ` + recordColumns + ` FROM ` + r.table + ` WHERE user_id = $1`
	args := []any{userID}

	// title_search holds the case-folded title; SQLite's LOWER only folds ASCII
	titleContains = strings.TrimSpace(titleContains)
	if titleContains != "" {
		query += ` AND title_search LIKE $2 ESCAPE '\'`
		args = append(args, "%"+escapeLike(foldTitle(titleContains))+"%")
	}
	query += ` ORDER BY created_at DESC`

	err := r.db.Select(&records, query, args...)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *recordRepository) Latest(userID string) (*model.Record, error) {
	record := &model.Record{}
	query := `SELECT ` + recordColumns + ` FROM ` + r.table + ` WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`

	err := r.db.Get(record, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Update replaces title, description, amount and currency and returns the stored
// record. A nil Attachment leaves the stored pointer as it is, so an update without
// a new file cannot bring back a pointer that was cleared in the meantime.
func (r *recordRepository) Update(record *model.Record) (*model.Record, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE ` + r.table + `
	          SET title = $1, title_search = $2, description = $3, amount = $4, currency_code = $5,
	              attachment = COALESCE($6, attachment), updated_at = $7
	          WHERE id = $8 AND user_id = $9`

	result, err := tx.Exec(query,
		record.Title,
		foldTitle(record.Title),
		record.Description,
		record.Amount,
		record.CurrencyCode,
		record.Attachment,
		time.Now().UTC(),
		record.ID,
		record.UserID,
	)
	if err != nil {
		return nil, err
	}
	err = expectRow(result)
	if err != nil {
		return nil, err
	}

	stored, err := r.byID(tx, record.UserID, record.ID)
	if err != nil {
		return nil, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return stored, nil
}

// ClearAttachment drops the attachment pointer, but only while it still names the
// given file. A pointer replaced in the meantime is left alone and reported as not found.
func (r *recordRepository) ClearAttachment(userID, id, name string) (*model.Record, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE ` + r.table + `
	          SET attachment = NULL, updated_at = $1
	          WHERE id = $2 AND user_id = $3 AND attachment = $4`

	result, err := tx.Exec(query, time.Now().UTC(), id, userID, name)
	if err != nil {
		return nil, err
	}
	err = expectRow(result)
	if err != nil {
		return nil, err
	}

	record, err := r.byID(tx, userID, id)
	if err != nil {
		return nil, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return record, nil
}

// Delete removes the record and returns it as it was, so the caller can still see
// which attachment it referenced.
func (r *recordRepository) Delete(userID, id string) (*model.Record, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	record, err := r.byID(tx, userID, id)
	if err != nil {
		return nil, err
	}

	query := `DELETE FROM ` + r.table + ` WHERE id = $1 AND user_id = $2`
	result, err := tx.Exec(query, id, userID)
	if err != nil {
		return nil, err
	}
	err = expectRow(result)
	if err != nil {
		return nil, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return record, nil
}

func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrRecordNotFound
	}

	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// foldTitle returns the form titles are matched in. A Caser is not safe for
// concurrent use, so one is made per call.
func foldTitle(title string) string {
	return cases.Fold().String(title)
}
