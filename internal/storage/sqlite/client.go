package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docchat/backend/internal/storage/models"
	"github.com/docchat/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_id TEXT UNIQUE NOT NULL,
		active_membership INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_external ON users(external_id);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		content_type TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user_doc ON chat_messages(user_id, document_id);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON chat_messages(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// GetOrCreateUser provisions a free-tier user record on first contact.
// The unique constraint on external_id makes concurrent calls safe.
func (c *Client) GetOrCreateUser(externalID string) (*models.User, error) {
	_, err := c.db.Exec(
		`INSERT OR IGNORE INTO users (id, external_id, active_membership, created_at) VALUES (?, ?, 0, ?)`,
		uuid.New().String(),
		externalID,
		time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	var user models.User
	var active int
	var createdAt int64

	err = c.db.QueryRow(
		`SELECT id, external_id, active_membership, created_at FROM users WHERE external_id = ?`,
		externalID,
	).Scan(&user.ID, &user.ExternalID, &active, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.ActiveMembership = active == 1
	user.CreatedAt = time.Unix(createdAt, 0)

	return &user, nil
}

func (c *Client) SetMembership(externalID string, active bool) error {
	val := 0
	if active {
		val = 1
	}

	_, err := c.db.Exec(
		`UPDATE users SET active_membership = ? WHERE external_id = ?`,
		val,
		externalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}

	logger.Info("Membership updated",
		zap.String("external_id", externalID),
		zap.Bool("active", active),
	)

	return nil
}

func (c *Client) InsertDocument(doc *models.Document) error {
	_, err := c.db.Exec(
		`INSERT INTO documents (id, user_id, name, storage_path, size_bytes, content_type, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID,
		doc.UserID,
		doc.Name,
		doc.StoragePath,
		doc.SizeBytes,
		doc.ContentType,
		doc.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("user_id", doc.UserID))
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	var doc models.Document
	var createdAt int64

	err := c.db.QueryRow(
		`SELECT id, user_id, name, storage_path, size_bytes, content_type, created_at FROM documents WHERE id = ?`,
		id,
	).Scan(&doc.ID, &doc.UserID, &doc.Name, &doc.StoragePath, &doc.SizeBytes, &doc.ContentType, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.CreatedAt = time.Unix(createdAt, 0)
	return &doc, nil
}

func (c *Client) ListDocuments(userID string) ([]models.Document, error) {
	rows, err := c.db.Query(
		`SELECT id, user_id, name, storage_path, size_bytes, content_type, created_at FROM documents WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var createdAt int64

		err := rows.Scan(&doc.ID, &doc.UserID, &doc.Name, &doc.StoragePath, &doc.SizeBytes, &doc.ContentType, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.CreatedAt = time.Unix(createdAt, 0)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (c *Client) CountDocuments(userID string) (int, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM documents WHERE user_id = ?`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// DeleteDocument removes the document row. Deleting a missing document is
// not an error so the cascade delete stays retryable.
func (c *Client) DeleteDocument(id string) error {
	_, err := c.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (c *Client) InsertMessage(msg *models.ChatMessage) error {
	_, err := c.db.Exec(
		`INSERT INTO chat_messages (id, user_id, document_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.UserID,
		msg.DocumentID,
		msg.Role,
		msg.Content,
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessages returns all messages for the (user, document) pair, most
// recent first. Rowid breaks ties for messages created in the same instant.
func (c *Client) GetMessages(userID, documentID string) ([]models.ChatMessage, error) {
	rows, err := c.db.Query(
		`SELECT id, user_id, document_id, role, content, created_at FROM chat_messages
		 WHERE user_id = ? AND document_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		userID,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var createdAt int64

		err := rows.Scan(&m.ID, &m.UserID, &m.DocumentID, &m.Role, &m.Content, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.CreatedAt = time.Unix(0, createdAt)
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func (c *Client) CountUserMessages(userID, documentID string) (int, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM chat_messages WHERE user_id = ? AND document_id = ? AND role = ?`,
		userID,
		documentID,
		models.RoleUser,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
