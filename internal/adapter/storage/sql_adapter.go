package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
	"github.com/rl1809/warehouse-inventory/internal/port"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

const recordColumns = `record_id, label_id, storage_location, quantity_on_pallet, product_description,
	scheduled_for_deletion, latest_transaction_id, version, created_at, updated_at`

const entryColumns = `id, inventory_record_id, action, occurred_at, performed_by, performed_by_name,
	previous_quantity, new_quantity, previous_location, new_location`

const associateColumns = `id, name, password_hash, is_manager, created_at`

// SQLAdapter stores inventory records, their transaction history and
// associates in MySQL, Postgres or SQLite.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return NewSQLAdapter(db, DialectMySQL)
}

// OpenSQLAdapter connects to the database named by driver, applies the schema
// and returns the adapter together with a func that closes the pool.
func OpenSQLAdapter(ctx context.Context, driver, dsn string, pool PoolConfig) (*SQLAdapter, func() error, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := Open(ctx, dialect, dsn, pool)
	if err != nil {
		return nil, nil, err
	}
	adapter := NewSQLAdapter(db, dialect)
	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return adapter, db.Close, nil
}

// Migrate creates the tables when they do not exist yet.
func (a *SQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range schemas[a.dialect] {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", a.dialect, err)
		}
	}
	return nil
}

func (a *SQLAdapter) q(query string) string {
	return a.dialect.rebind(query)
}

func (a *SQLAdapter) CreateRecord(ctx context.Context, record domain.InventoryRecord, entry domain.TransactionRecord) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, a.q(`
		INSERT INTO inventory_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		record.RecordID, record.LabelID, record.StorageLocation, record.QuantityOnPallet,
		record.ProductDescription, nullableNanos(record.ScheduledForDeletion),
		record.LatestTransactionID, record.Version,
		toNanos(record.CreatedAt), toNanos(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert inventory record: %w", err)
	}

	if err := a.insertEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (a *SQLAdapter) MutateRecord(ctx context.Context, recordID int64, fn port.MutateFunc) (*domain.InventoryRecord, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	record, err := scanRecord(tx.QueryRowContext(ctx, a.q(`
		SELECT `+recordColumns+`
		FROM inventory_records WHERE record_id = ?`+a.dialect.lockClause()), recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{ID: recordID}
	}
	if err != nil {
		return nil, fmt.Errorf("select inventory record: %w", err)
	}

	version := record.Version
	entry, err := fn(record)
	if err != nil {
		return nil, err
	}

	if err := a.insertEntry(ctx, tx, *entry); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, a.q(`
		UPDATE inventory_records
		SET storage_location = ?, quantity_on_pallet = ?, scheduled_for_deletion = ?,
			latest_transaction_id = ?, version = version + 1, updated_at = ?
		WHERE record_id = ? AND version = ?`),
		record.StorageLocation, record.QuantityOnPallet, nullableNanos(record.ScheduledForDeletion),
		record.LatestTransactionID, toNanos(record.UpdatedAt),
		record.RecordID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("update inventory record: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrOptimisticLock
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	record.Version = version + 1
	return record, nil
}

func (a *SQLAdapter) insertEntry(ctx context.Context, tx *sql.Tx, entry domain.TransactionRecord) error {
	_, err := tx.ExecContext(ctx, a.q(`
		INSERT INTO transaction_history (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.InventoryRecordID, entry.Action.String(), toNanos(entry.Timestamp),
		entry.PerformedBy, entry.PerformedByName,
		nullableInt(entry.PreviousQuantity), nullableInt(entry.NewQuantity),
		nullableString(entry.PreviousLocation), nullableString(entry.NewLocation),
	)
	if err != nil {
		return fmt.Errorf("insert transaction history: %w", err)
	}
	return nil
}

func (a *SQLAdapter) GetRecord(ctx context.Context, recordID int64) (*domain.InventoryRecord, error) {
	record, err := scanRecord(a.db.QueryRowContext(ctx, a.q(`
		SELECT `+recordColumns+`
		FROM inventory_records WHERE record_id = ?`), recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{ID: recordID}
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory record: %w", err)
	}
	return record, nil
}

func (a *SQLAdapter) FindRecords(ctx context.Context, criteria domain.Criteria) ([]domain.InventoryRecord, error) {
	var (
		conds []string
		args  []any
	)
	if criteria.RecordID != nil {
		conds = append(conds, "record_id = ?")
		args = append(args, *criteria.RecordID)
	}
	if criteria.LabelID != nil {
		conds = append(conds, "LOWER(label_id) LIKE LOWER(?) ESCAPE '!'")
		args = append(args, containsPattern(*criteria.LabelID))
	}
	if criteria.StorageLocation != nil {
		conds = append(conds, "LOWER(storage_location) LIKE LOWER(?) ESCAPE '!'")
		args = append(args, containsPattern(*criteria.StorageLocation))
	}
	if criteria.QuantityOnPallet != nil {
		conds = append(conds, "quantity_on_pallet = ?")
		args = append(args, *criteria.QuantityOnPallet)
	}
	if criteria.ProductDescription != nil {
		conds = append(conds, "LOWER(product_description) LIKE LOWER(?) ESCAPE '!'")
		args = append(args, containsPattern(*criteria.ProductDescription))
	}
	if criteria.OnlyScheduledForDeletion {
		conds = append(conds, "scheduled_for_deletion IS NOT NULL")
	}

	query := `SELECT ` + recordColumns + ` FROM inventory_records`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY record_id ASC`

	rows, err := a.db.QueryContext(ctx, a.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query inventory records: %w", err)
	}
	defer rows.Close()

	records := []domain.InventoryRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory records: %w", err)
	}
	return records, nil
}

func (a *SQLAdapter) History(ctx context.Context, recordID int64) ([]domain.TransactionRecord, error) {
	var one int
	err := a.db.QueryRowContext(ctx, a.q(`SELECT 1 FROM inventory_records WHERE record_id = ?`), recordID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{ID: recordID}
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory record: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, a.q(`
		SELECT `+entryColumns+`
		FROM transaction_history WHERE inventory_record_id = ?
		ORDER BY occurred_at DESC, id DESC`), recordID)
	if err != nil {
		return nil, fmt.Errorf("query transaction history: %w", err)
	}
	defer rows.Close()

	entries := []domain.TransactionRecord{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction history: %w", err)
	}
	return entries, nil
}

func (a *SQLAdapter) CreateAssociate(ctx context.Context, associate domain.Associate) error {
	_, err := a.db.ExecContext(ctx, a.q(`
		INSERT INTO associates (`+associateColumns+`)
		VALUES (?, ?, ?, ?, ?)`),
		associate.ID, associate.Name, associate.PasswordHash, associate.IsManager, toNanos(associate.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert associate: %w", err)
	}
	return nil
}

func (a *SQLAdapter) GetAssociateByName(ctx context.Context, name string) (*domain.Associate, error) {
	associate, err := scanAssociate(a.db.QueryRowContext(ctx, a.q(`
		SELECT `+associateColumns+` FROM associates WHERE name = ?`), name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "associate", Key: name}
	}
	if err != nil {
		return nil, fmt.Errorf("query associate: %w", err)
	}
	return associate, nil
}

func (a *SQLAdapter) GetAssociateByID(ctx context.Context, id int64) (*domain.Associate, error) {
	associate, err := scanAssociate(a.db.QueryRowContext(ctx, a.q(`
		SELECT `+associateColumns+` FROM associates WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "associate", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query associate: %w", err)
	}
	return associate, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.InventoryRecord, error) {
	var (
		r                domain.InventoryRecord
		deletion         sql.NullInt64
		created, updated int64
	)
	err := row.Scan(&r.RecordID, &r.LabelID, &r.StorageLocation, &r.QuantityOnPallet,
		&r.ProductDescription, &deletion, &r.LatestTransactionID, &r.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	if deletion.Valid {
		at := fromNanos(deletion.Int64)
		r.ScheduledForDeletion = &at
	}
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	return &r, nil
}

func scanEntry(row rowScanner) (*domain.TransactionRecord, error) {
	var (
		e               domain.TransactionRecord
		action          string
		occurred        int64
		prevQty, newQty sql.NullInt64
		prevLoc, newLoc sql.NullString
	)
	err := row.Scan(&e.ID, &e.InventoryRecordID, &action, &occurred, &e.PerformedBy, &e.PerformedByName,
		&prevQty, &newQty, &prevLoc, &newLoc)
	if err != nil {
		return nil, fmt.Errorf("scan transaction history: %w", err)
	}
	if e.Action, err = domain.ParseAction(action); err != nil {
		return nil, fmt.Errorf("transaction %d: %w", e.ID, err)
	}
	e.Timestamp = fromNanos(occurred)
	if prevQty.Valid {
		e.PreviousQuantity = domain.IntPtr(int(prevQty.Int64))
	}
	if newQty.Valid {
		e.NewQuantity = domain.IntPtr(int(newQty.Int64))
	}
	if prevLoc.Valid {
		e.PreviousLocation = domain.StringPtr(prevLoc.String)
	}
	if newLoc.Valid {
		e.NewLocation = domain.StringPtr(newLoc.String)
	}
	return &e, nil
}

func scanAssociate(row rowScanner) (*domain.Associate, error) {
	var (
		a       domain.Associate
		created int64
	)
	if err := row.Scan(&a.ID, &a.Name, &a.PasswordHash, &a.IsManager, &created); err != nil {
		return nil, err
	}
	a.CreatedAt = fromNanos(created)
	return &a, nil
}

// Timestamps are stored as Unix nanoseconds so every driver round-trips them
// the same way.
func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// containsPattern builds a LIKE pattern matching value anywhere, escaping
// wildcards with '!'.
func containsPattern(value string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(value) + "%"
}
