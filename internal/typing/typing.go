package typing

import (
	"errors"
	"math"
	"time"

	"github.com/samber/lo"
	constants "tajpado/internal/constants"
	models "tajpado/internal/models"
	util "tajpado/internal/util"
)

var (
	ErrNotFinished      = errors.New("session not finished")
	ErrAlreadyFinalized = errors.New("session already finalized")
)

// NewSession returns a fresh SessionState for the given target text. Starting
// a new session (or re-entering the same text) always begins from this empty
// state: no keystrokes, no elapsed time, not started.
func NewSession(mode, textID, targetText string) *models.SessionState {
	return &models.SessionState{
		Mode:           mode,
		TextID:         textID,
		TargetText:     targetText,
		Input:          "",
		Started:        false,
		ElapsedSeconds: 0,
		Keystrokes:     []models.Keystroke{},
		Finished:       false,
		Finalized:      false,
		LastAccessTime: time.Now(),
	}
}

// RecordInput applies one input event to the session. rawInput is the full
// input string as typed so far; it is accepted only when it extends the
// previous input by exactly one character, stays within the target length,
// and the session is still running. Anything else (paste, deletion, edits of
// earlier characters, overflow, input after finish) leaves the state
// untouched and returns false.
//
// The first accepted character starts the clock. The character that makes the
// input equal the whole target finishes the session and recomputes elapsed
// time precisely from the wall clock, replacing the tick-accumulated value.
func RecordInput(state *models.SessionState, rawInput string, now time.Time) bool {
	if state.Finished {
		return false
	}

	prev := []rune(state.Input)
	next := []rune(rawInput)
	target := []rune(state.TargetText)

	if len(next) != len(prev)+1 {
		return false
	}
	if len(next) > len(target) {
		return false
	}
	for i := range prev {
		if next[i] != prev[i] {
			return false
		}
	}

	if !state.Started {
		state.Started = true
		state.StartedAt = now
	}

	idx := len(next) - 1
	char := next[idx]
	correct := char == target[idx]
	state.Keystrokes = append(state.Keystrokes, models.Keystroke{
		Char:      string(char),
		Correct:   correct,
		Timestamp: now.UnixMilli(),
	})
	state.Input = rawInput

	if rawInput == state.TargetText {
		state.Finished = true
		state.ElapsedSeconds = int(math.Round(now.Sub(state.StartedAt).Seconds()))
		util.LogInfo("Session finished: %d keystrokes in %ds", len(state.Keystrokes), state.ElapsedSeconds)
	}

	return true
}

// Tick advances elapsed time by one second. It is the only time source while
// the test is live; it does nothing before the first keystroke or after the
// finishing one.
func Tick(state *models.SessionState) {
	if state.Started && !state.Finished {
		state.ElapsedSeconds++
	}
}

// Metrics computes the current score of the session.
//
// WPM counts every typed character, correct or not: it measures raw
// throughput, while accuracy measures correctness. With no keystrokes yet,
// accuracy is a perfect 1.0 rather than a division by zero.
func Metrics(state *models.SessionState) models.SessionMetrics {
	errorCount := lo.CountBy(state.Keystrokes, func(k models.Keystroke) bool {
		return !k.Correct
	})

	accuracy := 1.0
	if len(state.Keystrokes) > 0 {
		accuracy = float64(len(state.Keystrokes)-errorCount) / float64(len(state.Keystrokes))
	}

	wpm := 0.0
	if state.ElapsedSeconds > 0 {
		inputLen := float64(len([]rune(state.Input)))
		wpm = (inputLen / constants.CharsPerWord) / (float64(state.ElapsedSeconds) / 60.0)
	}

	return models.SessionMetrics{
		WPM:        wpm,
		Accuracy:   accuracy,
		ErrorCount: errorCount,
	}
}

// Finalize snapshots a finished session into its persistent form. It can
// succeed at most once per session: the Finalized flag guards against
// double-submission, so a retry of the persistence task never produces a
// second record. A session that somehow finished without a start timestamp
// gets zero elapsed time instead of failing.
func Finalize(state *models.SessionState, userID string, now time.Time) (models.FinishedSession, error) {
	if !state.Finished {
		return models.FinishedSession{}, ErrNotFinished
	}
	if state.Finalized {
		return models.FinishedSession{}, ErrAlreadyFinalized
	}
	if state.StartedAt.IsZero() {
		util.LogWarn("Finalizing session with no start timestamp, elapsed forced to 0")
		state.StartedAt = now
		state.ElapsedSeconds = 0
	}
	state.Finalized = true

	m := Metrics(state)
	finished := models.FinishedSession{
		UserID:         userID,
		WPM:            m.WPM,
		Accuracy:       m.Accuracy,
		ErrorCount:     m.ErrorCount,
		ElapsedSeconds: state.ElapsedSeconds,
		Mode:           state.Mode,
		Keystrokes:     append([]models.Keystroke{}, state.Keystrokes...),
		EndedAt:        now,
	}
	if state.TextID != "" {
		finished.TextID = state.TextID
	} else {
		finished.CustomText = state.TargetText
	}
	return finished, nil
}
