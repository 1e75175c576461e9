package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"courier/internal/constants"
	"courier/internal/migrations"
	"courier/internal/models"
	"courier/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the outbox store: the system of record for message
// lifecycle. All status and claim mutation goes through TryClaim,
// MarkSent, MarkFailedAttempt and ApplyStatusUpdate; no other path
// touches those columns.
type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateStatePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(migrations.Schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// InsertMessage stores a new message record and fills in its assigned ID.
func (d *Database) InsertMessage(ctx context.Context, record *models.MessageRecord) error {
	result, err := d.db.ExecContext(ctx, insertMessageQuery,
		record.ChatID,
		record.Sender,
		record.Destination,
		record.Body,
		record.MediaURL,
		record.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted message ID: %w", err)
	}
	record.ID = id

	return nil
}

// ListClaimable returns approved, unclaimed records with remaining
// attempts, oldest first.
func (d *Database) ListClaimable(ctx context.Context, limit, maxAttempts int) ([]*models.MessageRecord, error) {
	rows, err := d.db.QueryContext(ctx, selectClaimableQuery, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimable messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// TryClaim attempts to take exclusive ownership of a record. It returns
// true only when this caller flipped in_progress; a false return with a
// nil error means another worker won the claim, which is not an error.
func (d *Database) TryClaim(ctx context.Context, id int64) (bool, error) {
	result, err := d.db.ExecContext(ctx, tryClaimQuery, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim message %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows == 1, nil
}

// MarkSent moves a record to the terminal sent state and releases the claim.
func (d *Database) MarkSent(ctx context.Context, id int64, remoteMessageID string) error {
	_, err := d.db.ExecContext(ctx, markSentQuery, remoteMessageID, id)
	if err != nil {
		return fmt.Errorf("failed to mark message %d sent: %w", id, err)
	}
	return nil
}

// MarkFailedAttempt records a failed send. The attempts value is applied
// as a floor, never a decrease. The record becomes terminal failed once
// the effective count reaches maxAttempts; otherwise it returns to the
// claimable set. The claim is always released.
func (d *Database) MarkFailedAttempt(ctx context.Context, id int64, attempts, maxAttempts int) error {
	_, err := d.db.ExecContext(ctx, markFailedAttemptQuery, attempts, attempts, maxAttempts, id)
	if err != nil {
		return fmt.Errorf("failed to mark attempt for message %d: %w", id, err)
	}
	return nil
}

// ApplyStatusUpdate replays a diverted status write from the fallback
// queue. A missing row is treated as success; the write is moot.
func (d *Database) ApplyStatusUpdate(ctx context.Context, update models.StatusUpdatePayload) error {
	_, err := d.db.ExecContext(ctx, applyStatusUpdateQuery,
		update.Status,
		update.AttemptCount,
		update.AttemptCount,
		update.RemoteMessageID,
		update.MessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply status update for message %d: %w", update.MessageID, err)
	}
	return nil
}

// GetMessage returns a record by ID, or nil when not found.
func (d *Database) GetMessage(ctx context.Context, id int64) (*models.MessageRecord, error) {
	record := &models.MessageRecord{}
	err := d.db.QueryRowContext(ctx, selectMessageByIDQuery, id).Scan(
		&record.ID,
		&record.ChatID,
		&record.Sender,
		&record.Destination,
		&record.Body,
		&record.MediaURL,
		&record.Status,
		&record.InProgress,
		&record.AttemptCount,
		&record.RemoteMessageID,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}

	return record, nil
}

// ListMessages serves the read-only listing surface.
func (d *Database) ListMessages(ctx context.Context, filter models.MessageFilter) ([]*models.MessageRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = d.db.QueryContext(ctx, selectMessagesByStatusQuery, filter.Status, limit)
	} else {
		rows, err = d.db.QueryContext(ctx, selectMessagesQuery, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// InsertAudit appends a dispatch lifecycle event to the audit trail.
func (d *Database) InsertAudit(ctx context.Context, entry models.AuditPayload) error {
	_, err := d.db.ExecContext(ctx, insertAuditQuery, entry.MessageID, entry.Event, entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]*models.MessageRecord, error) {
	var records []*models.MessageRecord
	for rows.Next() {
		record := &models.MessageRecord{}
		err := rows.Scan(
			&record.ID,
			&record.ChatID,
			&record.Sender,
			&record.Destination,
			&record.Body,
			&record.MediaURL,
			&record.Status,
			&record.InProgress,
			&record.AttemptCount,
			&record.RemoteMessageID,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}

	return records, nil
}
