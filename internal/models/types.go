package models

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Keystroke is one accepted input character, classified against the target
// text at the position it was typed. Order of appearance is the typing order.
type Keystroke struct {
	Char      string `json:"char"`
	Correct   bool   `json:"correct"`
	Timestamp int64  `json:"timestamp"`
}

// SessionState is the live state of a typing test. It exists only in memory
// while the test is running; nothing is persisted until the session finishes.
type SessionState struct {
	Mode           string      `json:"mode"`
	TextID         string      `json:"textId,omitempty"`
	TargetText     string      `json:"targetText"`
	Input          string      `json:"input"`
	Started        bool        `json:"started"`
	StartedAt      time.Time   `json:"startedAt"`
	ElapsedSeconds int         `json:"elapsedSeconds"`
	Keystrokes     []Keystroke `json:"keystrokes"`
	Finished       bool        `json:"finished"`
	Finalized      bool        `json:"finalized"`
	LastAccessTime time.Time   `json:"lastAccessTime"`
}

// SessionMetrics is the derived score of a session at a point in time.
type SessionMetrics struct {
	WPM        float64 `json:"wpm"`
	Accuracy   float64 `json:"accuracy"`
	ErrorCount int     `json:"errorCount"`
}

// FinishedSession is the persisted, append-only record of a completed test.
// Exactly one of TextID and CustomText is set.
type FinishedSession struct {
	ID             string      `json:"id"`
	UserID         string      `json:"userId"`
	WPM            float64     `json:"wpm"`
	Accuracy       float64     `json:"accuracy"`
	ErrorCount     int         `json:"errorCount"`
	ElapsedSeconds int         `json:"elapsed"`
	Mode           string      `json:"mode"`
	TextID         string      `json:"textId,omitempty"`
	CustomText     string      `json:"customText,omitempty"`
	Keystrokes     []Keystroke `json:"keystrokes"`
	EndedAt        time.Time   `json:"endedAt"`
}

// LeaderboardEntry is a per-session leaderboard row. Users may appear more
// than once; ranking is a read-time selection over all rows for a mode.
type LeaderboardEntry struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email,omitempty"`
	WPM      float64   `json:"wpm"`
	Accuracy float64   `json:"accuracy"`
	EndedAt  time.Time `json:"endedAt"`
}

// AchievementRecord is the per-user XP/streak/badge ledger, updated as a side
// effect of every persisted session.
type AchievementRecord struct {
	UserID      string     `json:"userId"`
	XP          int        `json:"xp"`
	Streak      int        `json:"streak"`
	Badges      []string   `json:"badges"`
	LastSession *time.Time `json:"lastSession,omitempty"`
}

// TextEntry is a practice text: either a built-in entry loaded at startup
// (empty UserID) or a user-owned custom text.
type TextEntry struct {
	ID      string `json:"id"`
	UserID  string `json:"-"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type TextList struct {
	Texts []TextEntry `json:"texts"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RateLimiterEntry tracks a per-client rate limiter and its last use.
type RateLimiterEntry struct {
	Limiter    *rate.Limiter
	LastAccess time.Time
}

// App holds process-wide configuration and shared state.
type App struct {
	BuiltinTexts   []TextEntry
	TextIndex      map[string]TextEntry
	LimiterMap     map[string]*RateLimiterEntry
	LimiterMutex   sync.RWMutex
	IsProduction   bool
	StartTime      time.Time
	SessionTTL     time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	RateLimiterTTL time.Duration
}
