package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fellowship-chat/internal/models"
	"fellowship-chat/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &PostgresDB{pool: pool}
	if err := db.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Connected to database successfully")
	return db, nil
}

func (db *PostgresDB) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_type TEXT NOT NULL,
			author_id TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			recipient_id TEXT,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			delivered BOOLEAN NOT NULL DEFAULT FALSE,
			delivered_at TIMESTAMPTZ,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at TIMESTAMPTZ,
			reactions JSONB NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_messages_scope_created ON messages (chat_type, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages (recipient_id) WHERE recipient_id IS NOT NULL;
		CREATE TABLE IF NOT EXISTS read_watermarks (
			user_id TEXT NOT NULL,
			scope TEXT NOT NULL,
			last_read_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, scope)
		);`

	_, err := db.pool.Exec(ctx, schema)
	return err
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

const messageColumns = `id, chat_type, author_id, author_name, recipient_id, content, created_at, delivered, delivered_at, read, read_at, reactions`

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var recipientID *string
	var reactions []byte
	err := row.Scan(
		&msg.ID, &msg.Scope, &msg.AuthorID, &msg.AuthorName, &recipientID, &msg.Content,
		&msg.CreatedAt, &msg.Delivered, &msg.DeliveredAt, &msg.Read, &msg.ReadAt, &reactions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if recipientID != nil {
		msg.RecipientID = *recipientID
	}
	if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
		return nil, fmt.Errorf("failed to decode reactions: %w", err)
	}
	if msg.Reactions == nil {
		msg.Reactions = make(map[string]models.Reaction)
	}
	return msg, nil
}

func (db *PostgresDB) SaveMessage(ctx context.Context, msg *models.Message) error {
	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return fmt.Errorf("failed to encode reactions: %w", err)
	}

	var recipientID *string
	if msg.RecipientID != "" {
		recipientID = &msg.RecipientID
	}

	query := `
		INSERT INTO messages (id, chat_type, author_id, author_name, recipient_id, content, created_at, delivered, delivered_at, read, read_at, reactions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = db.pool.Exec(ctx, query,
		msg.ID, msg.Scope, msg.AuthorID, msg.AuthorName, recipientID, msg.Content,
		msg.CreatedAt, msg.Delivered, msg.DeliveredAt, msg.Read, msg.ReadAt, reactions,
	)
	return err
}

func (db *PostgresDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return scanMessage(db.pool.QueryRow(ctx, query, id))
}

func (db *PostgresDB) ListCommunityMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE recipient_id IS NULL AND chat_type <> 'admin'
		ORDER BY created_at ASC
		LIMIT $1`
	return db.listMessages(ctx, query, limit)
}

func (db *PostgresDB) ListAdminMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE chat_type = 'admin'
		ORDER BY created_at ASC
		LIMIT $1`
	return db.listMessages(ctx, query, limit)
}

func (db *PostgresDB) ListPrivateMessages(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE (author_id = $1 AND recipient_id = $2) OR (author_id = $2 AND recipient_id = $1)
		ORDER BY created_at ASC`
	return db.listMessages(ctx, query, userA, userB)
}

func (db *PostgresDB) listMessages(ctx context.Context, query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PostgresDB) MarkDelivered(ctx context.Context, id string, at time.Time) (*models.Message, error) {
	query := `
		UPDATE messages
		SET delivered = TRUE, delivered_at = COALESCE(delivered_at, $2)
		WHERE id = $1
		RETURNING ` + messageColumns
	return scanMessage(db.pool.QueryRow(ctx, query, id, at))
}

func (db *PostgresDB) MarkRead(ctx context.Context, id string, at time.Time) (*models.Message, error) {
	query := `
		UPDATE messages
		SET read = TRUE, read_at = COALESCE(read_at, $2),
		    delivered = TRUE, delivered_at = COALESCE(delivered_at, $2)
		WHERE id = $1
		RETURNING ` + messageColumns
	return scanMessage(db.pool.QueryRow(ctx, query, id, at))
}

func (db *PostgresDB) UpdateReactions(ctx context.Context, id string, reactions map[string]models.Reaction) error {
	encoded, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("failed to encode reactions: %w", err)
	}

	tag, err := db.pool.Exec(ctx, `UPDATE messages SET reactions = $2 WHERE id = $1`, id, encoded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) CountUnreadPrivate(ctx context.Context, userID string) (map[string]int, error) {
	query := `
		SELECT author_id, COUNT(*)
		FROM messages
		WHERE recipient_id = $1 AND read = FALSE
		GROUP BY author_id`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var authorID string
		var count int
		if err := rows.Scan(&authorID, &count); err != nil {
			return nil, err
		}
		counts[authorID] = count
	}

	return counts, rows.Err()
}

func (db *PostgresDB) CountUnreadSince(ctx context.Context, scope models.ChatScope, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE chat_type = $1 AND author_id <> $2 AND read = FALSE AND created_at >= $3`

	var count int
	err := db.pool.QueryRow(ctx, query, scope, userID, since).Scan(&count)
	return count, err
}

func (db *PostgresDB) GetWatermark(ctx context.Context, userID string, scope models.ChatScope) (time.Time, error) {
	query := `SELECT last_read_at FROM read_watermarks WHERE user_id = $1 AND scope = $2`

	var at time.Time
	err := db.pool.QueryRow(ctx, query, userID, scope).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return at, nil
}

func (db *PostgresDB) SetWatermark(ctx context.Context, userID string, scope models.ChatScope, at time.Time) error {
	query := `
		INSERT INTO read_watermarks (user_id, scope, last_read_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, scope) DO UPDATE SET last_read_at = EXCLUDED.last_read_at`

	_, err := db.pool.Exec(ctx, query, userID, scope, at)
	return err
}
