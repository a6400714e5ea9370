package handlers

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	auth "tajpado/internal/auth"
	constants "tajpado/internal/constants"
	models "tajpado/internal/models"
	session "tajpado/internal/session"
	stats "tajpado/internal/stats"
	store "tajpado/internal/store"
	typing "tajpado/internal/typing"
	util "tajpado/internal/util"
)

// Server wires the HTTP surface to the scoring engine, the session registry,
// and the store.
type Server struct {
	App      *models.App
	Store    *store.Store
	Registry *session.Registry
	Auth     *auth.Service
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type newSessionRequest struct {
	Mode       string `json:"mode"`
	TextID     string `json:"textId"`
	CustomText string `json:"customText"`
}

type inputRequest struct {
	Input string `json:"input"`
}

type saveTextRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type userEmailsRequest struct {
	UserIDs []string `json:"userIds"`
}

func (s *Server) RegisterHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidCredentials})
		return
	}

	hash, err := s.Auth.HashPassword(req.Password)
	if err != nil {
		util.LogWarn("Failed to hash password: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	user, err := s.Store.CreateUser(c.Request.Context(), req.Email, hash)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": constants.ErrorCodeEmailTaken})
			return
		}
		util.LogWarn("Failed to create user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}

	token, err := s.Auth.IssueToken(user.ID, user.Email)
	if err != nil {
		util.LogWarn("Failed to issue token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	util.LogInfo("Registered user %s", user.ID)
	c.JSON(http.StatusCreated, gin.H{"token": token, "userId": user.ID})
}

func (s *Server) LoginHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.Store.UserByEmail(c.Request.Context(), req.Email)
	if err != nil || !s.Auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": constants.ErrorCodeInvalidCredentials})
		return
	}

	token, err := s.Auth.IssueToken(user.ID, user.Email)
	if err != nil {
		util.LogWarn("Failed to issue token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "userId": user.ID})
}

// NewSessionHandler starts a typing test. The target is a built-in text, one
// of the caller's custom texts, or an ad hoc text sent inline; with nothing
// selected the default text is used. Any previous unfinished session for the
// user is discarded.
func (s *Server) NewSessionHandler(c *gin.Context) {
	userID := auth.UserID(c)
	var req newSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	if req.TextID != "" && req.CustomText != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeTextConflict})
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = constants.DefaultMode
	}

	textID := req.TextID
	target := req.CustomText
	switch {
	case textID != "":
		if entry, ok := s.App.TextIndex[textID]; ok {
			target = entry.Content
		} else {
			entry, err := s.Store.TextByID(c.Request.Context(), userID, textID)
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": constants.ErrorCodeUnknownText})
				return
			}
			target = entry.Content
		}
	case target != "":
		// Ad hoc text, persisted inline with the session.
	default:
		textID = constants.DefaultTextID
		target = s.App.TextIndex[textID].Content
	}

	if strings.TrimSpace(target) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeEmptyText})
		return
	}

	state := typing.NewSession(mode, textID, target)
	s.Registry.Put(userID, state)
	util.LogInfo("New typing session for user %s (mode %s, %d chars)", userID, mode, len([]rune(target)))
	c.JSON(http.StatusOK, snapshot(state))
}

// InputHandler applies one input event. Invalid edits (paste, deletion,
// overflow, typing after the finish) are not errors: the state is simply
// returned unchanged. The completing keystroke finalizes the session and
// queues persistence without blocking the response.
func (s *Server) InputHandler(c *gin.Context) {
	userID := auth.UserID(c)
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}

	var resp gin.H
	found := s.Registry.With(userID, func(state *models.SessionState) {
		accepted := typing.RecordInput(state, req.Input, time.Now())

		if state.Finished && !state.Finalized {
			finished, err := typing.Finalize(state, userID, time.Now())
			if err == nil {
				s.persistAsync(finished)
			} else {
				util.LogWarn("Finalize failed for user %s: %v", userID, err)
			}
		}

		resp = snapshot(state)
		resp["accepted"] = accepted
	})
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": constants.ErrorCodeNoActiveSession})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) SessionHandler(c *gin.Context) {
	userID := auth.UserID(c)
	var resp gin.H
	found := s.Registry.With(userID, func(state *models.SessionState) {
		resp = snapshot(state)
	})
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": constants.ErrorCodeNoActiveSession})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// persistAsync writes the finished session in the background. The response
// carries the final metrics either way; a store failure is logged, never
// surfaced as a scoring error.
func (s *Server) persistAsync(finished models.FinishedSession) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		id, err := s.Store.SaveSession(ctx, finished)
		if err != nil {
			util.LogWarn("Failed to persist session for user %s: %v", finished.UserID, err)
			return
		}
		util.LogInfo("Persisted session %s for user %s (%.1f wpm)", id, finished.UserID, finished.WPM)
	}()
}

func (s *Server) ListSessionsHandler(c *gin.Context) {
	userID := auth.UserID(c)
	sessions, err := s.Store.ListSessions(c.Request.Context(), userID)
	if err != nil {
		util.LogWarn("Failed to list sessions for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"profile":  stats.Profile(sessions),
	})
}

func (s *Server) LeaderboardHandler(c *gin.Context) {
	mode := c.DefaultQuery("mode", constants.DefaultMode)
	rows, err := s.Store.LeaderboardRows(c.Request.Context(), mode)
	if err != nil {
		util.LogWarn("Failed to read leaderboard rows for mode %s: %v", mode, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	top := stats.TopLeaderboard(rows, constants.LeaderboardSize)

	userIDs := lo.Uniq(lo.Map(top, func(e models.LeaderboardEntry, _ int) string {
		return e.UserID
	}))
	emails, err := s.Store.UserEmails(c.Request.Context(), userIDs)
	if err != nil {
		util.LogWarn("Failed to resolve leaderboard emails: %v", err)
		emails = map[string]string{}
	}
	for i := range top {
		top[i].Email = emails[top[i].UserID]
	}

	c.JSON(http.StatusOK, gin.H{"mode": mode, "entries": top})
}

func (s *Server) UserEmailsHandler(c *gin.Context) {
	var req userEmailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	emails, err := s.Store.UserEmails(c.Request.Context(), req.UserIDs)
	if err != nil {
		util.LogWarn("Failed to resolve user emails: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	resp := lo.MapValues(emails, func(email string, _ string) gin.H {
		return gin.H{"email": email}
	})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListTextsHandler(c *gin.Context) {
	userID := auth.UserID(c)
	texts, err := s.Store.ListTexts(c.Request.Context(), userID)
	if err != nil {
		util.LogWarn("Failed to list texts for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	c.JSON(http.StatusOK, gin.H{"texts": texts})
}

func (s *Server) SaveTextHandler(c *gin.Context) {
	userID := auth.UserID(c)
	var req saveTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": constants.ErrorCodeEmptyText})
		return
	}
	entry, err := s.Store.SaveText(c.Request.Context(), userID, req.Title, req.Content)
	if err != nil {
		util.LogWarn("Failed to save text for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) BuiltinTextsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"texts": s.App.BuiltinTexts})
}

func (s *Server) AchievementsHandler(c *gin.Context) {
	userID := auth.UserID(c)
	record, err := s.Store.Achievements(c.Request.Context(), userID)
	if err != nil {
		util.LogWarn("Failed to read achievements for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": constants.ErrorCodeInvalidRequest})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) HealthzHandler(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(s.App.StartTime)

	s.App.LimiterMutex.RLock()
	limiterCount := len(s.App.LimiterMap)
	s.App.LimiterMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"env":             map[bool]string{true: "production", false: "development"}[s.App.IsProduction],
		"builtin_texts":   len(s.App.BuiltinTexts),
		"active_sessions": s.Registry.Count(),
		"active_limiters": limiterCount,
		"memory_alloc_mb": m.Alloc / 1024 / 1024,
		"memory_sys_mb":   m.Sys / 1024 / 1024,
		"memory_gc_count": m.NumGC,
		"uptime":          util.FormatUptime(uptime),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// snapshot renders the live session state and its current metrics. The full
// keystroke log stays server-side; per-character coloring is derivable from
// input vs target.
func snapshot(state *models.SessionState) gin.H {
	m := typing.Metrics(state)
	return gin.H{
		"mode":       state.Mode,
		"textId":     state.TextID,
		"targetText": state.TargetText,
		"input":      state.Input,
		"started":    state.Started,
		"finished":   state.Finished,
		"elapsed":    state.ElapsedSeconds,
		"keystrokes": len(state.Keystrokes),
		"metrics":    m,
	}
}
