package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Idempotent. Ids are ObjectID hex strings
// (generated in the repos) so that id ordering matches creation ordering on
// both store backends.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(100) UNIQUE NOT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			gender VARCHAR(10),
			role VARCHAR(10) NOT NULL DEFAULT 'user',
			is_online BOOLEAN DEFAULT FALSE,
			last_seen DATETIME DEFAULT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			receiver_name TEXT NOT NULL,
			content TEXT DEFAULT '',
			is_file BOOLEAN DEFAULT 0,
			is_image BOOLEAN DEFAULT 0,
			file_name TEXT DEFAULT '',
			file_type TEXT DEFAULT '',
			file_data TEXT DEFAULT '',
			file_size INTEGER DEFAULT 0,
			is_voice BOOLEAN DEFAULT 0,
			voice_data TEXT DEFAULT '',
			voice_duration REAL DEFAULT 0,
			delivered BOOLEAN DEFAULT 0,
			seen BOOLEAN DEFAULT 0,
			seen_at DATETIME DEFAULT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (sender_id) REFERENCES users(id),
			FOREIGN KEY (receiver_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, seen);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
