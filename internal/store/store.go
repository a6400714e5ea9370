// Package store handles SQLite persistence for users, finished sessions,
// custom texts, and the achievement ledger.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	models "tajpado/internal/models"

	_ "modernc.org/sqlite" // SQLite driver.
)

var (
	ErrTextExclusivity = errors.New("exactly one of textId and customText must be set")
	ErrEmailTaken      = errors.New("email already registered")
	ErrNotFound        = errors.New("not found")
)

// Store wraps SQLite access. Session rows are append-only: a finished session
// is written once and never mutated.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			wpm REAL NOT NULL,
			accuracy REAL NOT NULL,
			error_count INTEGER NOT NULL,
			elapsed_seconds INTEGER NOT NULL,
			mode TEXT NOT NULL,
			text_id TEXT,
			custom_text TEXT,
			keystrokes TEXT NOT NULL,
			ended_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS texts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS achievements (
			user_id TEXT PRIMARY KEY,
			xp INTEGER NOT NULL,
			streak INTEGER NOT NULL,
			badges TEXT NOT NULL,
			last_session TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_mode ON sessions(mode);`,
		`CREATE INDEX IF NOT EXISTS idx_texts_user ON texts(user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateUser registers a new user.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (models.User, error) {
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		var exists int
		row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = ?`, email)
		if scanErr := row.Scan(&exists); scanErr == nil && exists > 0 {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

// UserByEmail looks up a user for login.
func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	var createdAt string
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return models.User{}, err
	}
	user.CreatedAt = parsed
	return user, nil
}

// UserEmails batch-resolves user ids to emails. Unknown ids are simply absent
// from the result map.
func (s *Store) UserEmails(ctx context.Context, userIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(userIDs))
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, email FROM users WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		result[id] = email
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveSession appends a finished session and updates the owner's achievement
// ledger in the same transaction. It enforces the textId/customText
// exclusivity invariant.
func (s *Store) SaveSession(ctx context.Context, fs models.FinishedSession) (string, error) {
	hasText := fs.TextID != ""
	hasCustom := fs.CustomText != ""
	if hasText == hasCustom {
		return "", ErrTextExclusivity
	}

	keystrokes, err := json.Marshal(fs.Keystrokes)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	id := fs.ID
	if id == "" {
		id = uuid.NewString()
	}
	var textID, customText any
	if hasText {
		textID = fs.TextID
	}
	if hasCustom {
		customText = fs.CustomText
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, wpm, accuracy, error_count, elapsed_seconds, mode, text_id, custom_text, keystrokes, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fs.UserID, fs.WPM, fs.Accuracy, fs.ErrorCount, fs.ElapsedSeconds,
		fs.Mode, textID, customText, string(keystrokes), fs.EndedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", err
	}

	if err = s.updateAchievements(ctx, tx, fs); err != nil {
		return "", err
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListSessions returns all finished sessions of a user, most recent first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]models.FinishedSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, wpm, accuracy, error_count, elapsed_seconds, mode, text_id, custom_text, keystrokes, ended_at
		 FROM sessions WHERE user_id = ? ORDER BY ended_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []models.FinishedSession
	for rows.Next() {
		fs, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// LeaderboardRows returns every session row for a mode in storage order.
// Ranking and truncation are a read-time concern of the caller.
func (s *Store) LeaderboardRows(ctx context.Context, mode string) ([]models.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, wpm, accuracy, ended_at FROM sessions WHERE mode = ? ORDER BY ended_at ASC`, mode)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var entry models.LeaderboardEntry
		var endedAt string
		if err := rows.Scan(&entry.UserID, &entry.WPM, &entry.Accuracy, &endedAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		entry.EndedAt = parsed
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveText stores a user-owned custom text.
func (s *Store) SaveText(ctx context.Context, userID, title, content string) (models.TextEntry, error) {
	entry := models.TextEntry{
		ID:      uuid.NewString(),
		UserID:  userID,
		Title:   title,
		Content: content,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO texts (id, user_id, title, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Title, entry.Content, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return models.TextEntry{}, err
	}
	return entry, nil
}

// ListTexts returns the user's custom texts, oldest first.
func (s *Store) ListTexts(ctx context.Context, userID string) ([]models.TextEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, content FROM texts WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	texts := []models.TextEntry{}
	for rows.Next() {
		var entry models.TextEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Title, &entry.Content); err != nil {
			return nil, err
		}
		texts = append(texts, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return texts, nil
}

// TextByID fetches one of the user's custom texts.
func (s *Store) TextByID(ctx context.Context, userID, id string) (models.TextEntry, error) {
	var entry models.TextEntry
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content FROM texts WHERE id = ? AND user_id = ?`, id, userID)
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.Title, &entry.Content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TextEntry{}, ErrNotFound
		}
		return models.TextEntry{}, err
	}
	return entry, nil
}

// Achievements reads the user's ledger; a user with no sessions yet gets the
// zero record.
func (s *Store) Achievements(ctx context.Context, userID string) (models.AchievementRecord, error) {
	record := models.AchievementRecord{UserID: userID, Badges: []string{}}
	var badges string
	var lastSession sql.NullString
	row := s.db.QueryRowContext(ctx,
		`SELECT xp, streak, badges, last_session FROM achievements WHERE user_id = ?`, userID)
	if err := row.Scan(&record.XP, &record.Streak, &badges, &lastSession); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record, nil
		}
		return models.AchievementRecord{}, err
	}
	if err := json.Unmarshal([]byte(badges), &record.Badges); err != nil {
		return models.AchievementRecord{}, err
	}
	if lastSession.Valid {
		parsed, err := time.Parse(time.RFC3339Nano, lastSession.String)
		if err != nil {
			return models.AchievementRecord{}, err
		}
		record.LastSession = &parsed
	}
	return record, nil
}

func scanSession(rows *sql.Rows) (models.FinishedSession, error) {
	var fs models.FinishedSession
	var textID, customText sql.NullString
	var keystrokes, endedAt string
	if err := rows.Scan(&fs.ID, &fs.UserID, &fs.WPM, &fs.Accuracy, &fs.ErrorCount,
		&fs.ElapsedSeconds, &fs.Mode, &textID, &customText, &keystrokes, &endedAt); err != nil {
		return models.FinishedSession{}, err
	}
	fs.TextID = textID.String
	fs.CustomText = customText.String
	if err := json.Unmarshal([]byte(keystrokes), &fs.Keystrokes); err != nil {
		return models.FinishedSession{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, endedAt)
	if err != nil {
		return models.FinishedSession{}, err
	}
	fs.EndedAt = parsed
	return fs, nil
}
