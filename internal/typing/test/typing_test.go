package main

import (
	"testing"
	"time"

	models "tajpado/internal/models"
	typing "tajpado/internal/typing"
)

func baseTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func typeAll(t *testing.T, state *models.SessionState, text string, start time.Time) {
	t.Helper()
	input := ""
	for i, r := range []rune(text) {
		input += string(r)
		if !typing.RecordInput(state, input, start.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("RecordInput rejected valid input %q", input)
		}
	}
}

func TestNewSessionIsEmpty(t *testing.T) {
	state := typing.NewSession("free", "default", "cat")
	if state.Started || state.Finished || state.Finalized {
		t.Error("New session must not be started, finished, or finalized")
	}
	if len(state.Keystrokes) != 0 || state.ElapsedSeconds != 0 || state.Input != "" {
		t.Error("New session must have no keystrokes, no elapsed time, and empty input")
	}
}

func TestFirstKeystrokeStartsClock(t *testing.T) {
	state := typing.NewSession("free", "", "cat")
	now := baseTime()
	if !typing.RecordInput(state, "c", now) {
		t.Fatal("Expected first keystroke to be accepted")
	}
	if !state.Started || !state.StartedAt.Equal(now) {
		t.Errorf("Expected started=true at %v, got started=%v at %v", now, state.Started, state.StartedAt)
	}
}

func TestRejectPasteDeletionOverflowAndEdit(t *testing.T) {
	state := typing.NewSession("free", "", "cat")
	now := baseTime()
	typing.RecordInput(state, "c", now)

	cases := []struct {
		name  string
		input string
	}{
		{"paste of multiple chars", "cat"},
		{"deletion", ""},
		{"same length edit", "x"},
		{"edit of earlier char", "xa"},
	}
	for _, tc := range cases {
		if typing.RecordInput(state, tc.input, now) {
			t.Errorf("%s: expected rejection for input %q", tc.name, tc.input)
		}
	}
	if state.Input != "c" || len(state.Keystrokes) != 1 {
		t.Errorf("Rejected input must not change state, got input=%q keystrokes=%d", state.Input, len(state.Keystrokes))
	}

	typing.RecordInput(state, "ca", now)
	typing.RecordInput(state, "cat", now)
	if typing.RecordInput(state, "catx", now) {
		t.Error("Expected rejection past target length")
	}
}

func TestRejectAfterFinish(t *testing.T) {
	state := typing.NewSession("free", "", "ca")
	now := baseTime()
	typeAll(t, state, "ca", now)
	if !state.Finished {
		t.Fatal("Expected session to be finished")
	}
	if typing.RecordInput(state, "cat", now) {
		t.Error("Expected rejection after finish")
	}
}

func TestFinishRequiresExactMatch(t *testing.T) {
	state := typing.NewSession("free", "", "cat")
	now := baseTime()
	typing.RecordInput(state, "c", now)
	typing.RecordInput(state, "cb", now)
	typing.RecordInput(state, "cbt", now)
	if state.Finished {
		t.Error("Full-length input with errors must not finish the session")
	}
	if len(state.Keystrokes) != 3 {
		t.Errorf("Expected 3 keystrokes, got %d", len(state.Keystrokes))
	}
}

func TestErrorAndCorrectCountsPartition(t *testing.T) {
	state := typing.NewSession("free", "", "cat")
	now := baseTime()
	typing.RecordInput(state, "c", now)
	typing.RecordInput(state, "cb", now)
	typing.RecordInput(state, "cbt", now)

	m := typing.Metrics(state)
	correct := 0
	for _, k := range state.Keystrokes {
		if k.Correct {
			correct++
		}
	}
	if m.ErrorCount+correct != len(state.Keystrokes) {
		t.Errorf("errorCount %d + correct %d != keystrokes %d", m.ErrorCount, correct, len(state.Keystrokes))
	}
	if m.ErrorCount != 1 {
		t.Errorf("Expected 1 error, got %d", m.ErrorCount)
	}
	if got, want := m.Accuracy, 2.0/3.0; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("Expected accuracy 2/3, got %v", got)
	}
}

func TestAccuracyBounds(t *testing.T) {
	state := typing.NewSession("free", "", "cat")
	if m := typing.Metrics(state); m.Accuracy != 1.0 {
		t.Errorf("Zero keystrokes must give accuracy 1.0, got %v", m.Accuracy)
	}
	now := baseTime()
	typing.RecordInput(state, "x", now)
	typing.RecordInput(state, "xx", now)
	m := typing.Metrics(state)
	if m.Accuracy < 0 || m.Accuracy > 1 {
		t.Errorf("Accuracy out of [0,1]: %v", m.Accuracy)
	}
}

func TestWPMZeroElapsedAndMonotonicity(t *testing.T) {
	state := typing.NewSession("free", "", "aaaaaaaaaa")
	now := baseTime()
	typing.RecordInput(state, "a", now)
	if m := typing.Metrics(state); m.WPM != 0 {
		t.Errorf("WPM must be 0 with zero elapsed, got %v", m.WPM)
	}

	typing.Tick(state)
	prev := typing.Metrics(state).WPM
	input := "a"
	for i := 0; i < 5; i++ {
		input += "a"
		typing.RecordInput(state, input, now)
		wpm := typing.Metrics(state).WPM
		if wpm < prev {
			t.Errorf("WPM decreased from %v to %v with longer input at fixed elapsed", prev, wpm)
		}
		prev = wpm
	}
}

func TestTickOnlyWhileRunning(t *testing.T) {
	state := typing.NewSession("free", "", "ab")
	typing.Tick(state)
	if state.ElapsedSeconds != 0 {
		t.Error("Tick before the first keystroke must be a no-op")
	}
	now := baseTime()
	typing.RecordInput(state, "a", now)
	typing.Tick(state)
	typing.Tick(state)
	if state.ElapsedSeconds != 2 {
		t.Errorf("Expected elapsed 2 after two ticks, got %d", state.ElapsedSeconds)
	}
	typing.RecordInput(state, "ab", now.Add(5*time.Second))
	typing.Tick(state)
	if state.ElapsedSeconds != 5 {
		t.Errorf("Tick after finish must not advance, got %d", state.ElapsedSeconds)
	}
}

func TestFinishOverridesTickedElapsed(t *testing.T) {
	state := typing.NewSession("free", "", "cat")
	start := baseTime()
	typing.RecordInput(state, "c", start)
	// Ticks drifted: only 2 fired although 6 wall-clock seconds pass.
	typing.Tick(state)
	typing.Tick(state)
	typing.RecordInput(state, "ca", start.Add(3*time.Second))
	typing.RecordInput(state, "cat", start.Add(6*time.Second))
	if !state.Finished {
		t.Fatal("Expected finished session")
	}
	if state.ElapsedSeconds != 6 {
		t.Errorf("Finish must recompute elapsed from the wall clock, got %d", state.ElapsedSeconds)
	}
}

func TestCatExampleEndToEnd(t *testing.T) {
	state := typing.NewSession("free", "default", "cat")
	start := baseTime()
	typing.RecordInput(state, "c", start)
	typing.RecordInput(state, "ca", start.Add(2*time.Second))
	typing.RecordInput(state, "cat", start.Add(6*time.Second))

	if !state.Finished || state.ElapsedSeconds != 6 {
		t.Fatalf("Expected finished session with elapsed 6, got finished=%v elapsed=%d", state.Finished, state.ElapsedSeconds)
	}
	m := typing.Metrics(state)
	if m.WPM < 6.0-1e-9 || m.WPM > 6.0+1e-9 {
		t.Errorf("Expected wpm 6.0, got %v", m.WPM)
	}
	if m.Accuracy != 1.0 {
		t.Errorf("Expected accuracy 1.0, got %v", m.Accuracy)
	}
	if m.ErrorCount != 0 {
		t.Errorf("Expected 0 errors, got %d", m.ErrorCount)
	}
}

func TestFinalizeOnceAndSnapshot(t *testing.T) {
	state := typing.NewSession("free", "default", "cat")
	start := baseTime()
	typeAll(t, state, "cat", start)
	endedAt := start.Add(10 * time.Second)

	if _, err := typing.Finalize(typing.NewSession("free", "", "x"), "u1", endedAt); err != typing.ErrNotFinished {
		t.Errorf("Finalize of unfinished session: expected ErrNotFinished, got %v", err)
	}

	finished, err := typing.Finalize(state, "u1", endedAt)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if finished.TextID != "default" || finished.CustomText != "" {
		t.Errorf("Reference text session must carry textId only, got textId=%q custom=%q", finished.TextID, finished.CustomText)
	}
	if finished.UserID != "u1" || !finished.EndedAt.Equal(endedAt) {
		t.Error("Finalize must snapshot user and end time")
	}
	if len(finished.Keystrokes) != 3 {
		t.Errorf("Expected full keystroke log, got %d entries", len(finished.Keystrokes))
	}

	if _, err := typing.Finalize(state, "u1", endedAt); err != typing.ErrAlreadyFinalized {
		t.Errorf("Second finalize: expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestFinalizeAdHocTextCarriesCustomText(t *testing.T) {
	state := typing.NewSession("free", "", "hi")
	start := baseTime()
	typeAll(t, state, "hi", start)
	finished, err := typing.Finalize(state, "u1", start.Add(time.Second))
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if finished.CustomText != "hi" || finished.TextID != "" {
		t.Errorf("Ad hoc session must carry customText only, got textId=%q custom=%q", finished.TextID, finished.CustomText)
	}
}

func TestFinalizeMissingStartedAt(t *testing.T) {
	state := typing.NewSession("free", "", "x")
	state.Finished = true
	state.ElapsedSeconds = 42
	now := baseTime()
	finished, err := typing.Finalize(state, "u1", now)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if finished.ElapsedSeconds != 0 {
		t.Errorf("Missing startedAt must yield zero elapsed, got %d", finished.ElapsedSeconds)
	}
}

func TestResetForNewText(t *testing.T) {
	state := typing.NewSession("free", "", "cat")
	now := baseTime()
	typing.RecordInput(state, "c", now)
	typing.Tick(state)

	state = typing.NewSession("free", "", "cat")
	if len(state.Keystrokes) != 0 || state.ElapsedSeconds != 0 || state.Finished {
		t.Error("Reset must drop keystrokes, elapsed time, and finished flag")
	}
}

func TestMultiByteTarget(t *testing.T) {
	state := typing.NewSession("free", "", "héllo")
	now := baseTime()
	if !typing.RecordInput(state, "h", now) {
		t.Fatal("Expected ascii char accepted")
	}
	if !typing.RecordInput(state, "hé", now) {
		t.Fatal("Expected multi-byte char accepted as a single keystroke")
	}
	if len(state.Keystrokes) != 2 {
		t.Errorf("Expected 2 keystrokes, got %d", len(state.Keystrokes))
	}
	if !state.Keystrokes[1].Correct {
		t.Error("Expected é to be classified correct")
	}
}
