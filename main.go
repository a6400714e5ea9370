package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"

	ginGzip "github.com/gin-contrib/gzip"

	"github.com/gin-gonic/gin"

	"github.com/samber/lo"

	auth "tajpado/internal/auth"
	constants "tajpado/internal/constants"
	handlers "tajpado/internal/handlers"
	models "tajpado/internal/models"
	session "tajpado/internal/session"
	store "tajpado/internal/store"
	util "tajpado/internal/util"
)

func main() {
	_ = godotenv.Load()

	isProduction := os.Getenv("GIN_MODE") == "release" || os.Getenv("ENV") == "production"
	util.LogInfo("Starting Tajpado in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	builtinTexts, err := loadTexts()
	if err != nil {
		util.LogFatal("Failed to load practice texts: %v", err)
	}
	util.LogInfo("Loaded %d built-in practice texts", len(builtinTexts))

	app := &models.App{
		BuiltinTexts: builtinTexts,
		TextIndex: lo.Associate(builtinTexts, func(entry models.TextEntry) (string, models.TextEntry) {
			return entry.ID, entry
		}),
		LimiterMap:     make(map[string]*models.RateLimiterEntry),
		IsProduction:   isProduction,
		StartTime:      time.Now(),
		SessionTTL:     util.GetEnvDuration("SESSION_TTL", 30*time.Minute),
		RateLimitRPS:   util.GetEnvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst: util.GetEnvInt("RATE_LIMIT_BURST", 40),
		RateLimiterTTL: util.GetEnvDuration("RATE_LIMITER_TTL", 1*time.Hour),
	}

	dbPath := util.GetEnvStr("DB_PATH", "data/tajpado.db")
	st, err := store.Open(dbPath)
	if err != nil {
		util.LogFatal("Failed to open store at %s: %v", dbPath, err)
	}
	util.LogInfo("Opened session store at %s", dbPath)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if isProduction {
			util.LogFatal("JWT_SECRET must be set in production")
		}
		util.LogWarn("JWT_SECRET not set, using development secret")
		secret = "tajpado-dev-secret"
	}
	authSvc := auth.NewService(secret, util.GetEnvDuration("TOKEN_TTL", 24*time.Hour))

	registry := session.NewRegistry(app.SessionTTL)

	server := &handlers.Server{
		App:      app,
		Store:    st,
		Registry: registry,
		Auth:     authSvc,
	}

	router := gin.Default()

	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())

	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression))

	// The API serves live, per-user state only.
	router.Use(cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	}))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		util.LogWarn("Failed to set trusted proxies: %v", err)
	}

	router.GET(constants.RouteHealthz, server.HealthzHandler)
	router.POST(constants.RouteRegister, rateLimitMiddleware(app), server.RegisterHandler)
	router.POST(constants.RouteLogin, rateLimitMiddleware(app), server.LoginHandler)

	authed := router.Group("/", authSvc.Middleware())
	authed.POST(constants.RouteNewSession, rateLimitMiddleware(app), server.NewSessionHandler)
	authed.POST(constants.RouteInput, server.InputHandler)
	authed.GET(constants.RouteSession, server.SessionHandler)
	authed.GET(constants.RouteSessions, server.ListSessionsHandler)
	authed.GET(constants.RouteLeaderboard, server.LeaderboardHandler)
	authed.POST(constants.RouteUserEmails, server.UserEmailsHandler)
	authed.GET(constants.RouteTexts, server.ListTextsHandler)
	authed.POST(constants.RouteTexts, rateLimitMiddleware(app), server.SaveTextHandler)
	authed.GET(constants.RouteBuiltinTexts, server.BuiltinTextsHandler)
	authed.GET(constants.RouteAchievements, server.AchievementsHandler)

	stop := make(chan struct{})
	registry.StartTickLoop(stop)
	registry.StartCleanup(10*time.Minute, stop)
	startLimiterCleanup(app, stop)

	startServer(router, st, stop)
}

func startServer(router *gin.Engine, st *store.Store, stop chan struct{}) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		util.LogInfo("Shutdown signal received, shutting down server gracefully...")
		close(stop)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			util.LogWarn("HTTP server Shutdown: %v", err)
		}
		if err := st.Close(); err != nil {
			util.LogWarn("Store close: %v", err)
		}
		close(idleConnsClosed)
	}()

	util.LogInfo("Server starting on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		util.LogFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	util.LogInfo("Server shutdown complete")
}

func loadTexts() ([]models.TextEntry, error) {
	data, err := os.ReadFile("data/texts.json")
	if err != nil {
		if os.IsNotExist(err) {
			util.LogWarn("data/texts.json not found, serving only the default text")
			return []models.TextEntry{defaultTextEntry()}, nil
		}
		return nil, err
	}

	var tl models.TextList
	if err := json.Unmarshal(data, &tl); err != nil {
		return nil, err
	}

	texts := lo.Filter(tl.Texts, func(entry models.TextEntry, _ int) bool {
		if entry.ID == "" || entry.Content == "" {
			util.LogWarn("Skipping practice text %q: missing id or content", entry.Title)
			return false
		}
		return true
	})

	if !lo.ContainsBy(texts, func(entry models.TextEntry) bool { return entry.ID == constants.DefaultTextID }) {
		texts = append([]models.TextEntry{defaultTextEntry()}, texts...)
	}
	return texts, nil
}

func defaultTextEntry() models.TextEntry {
	return models.TextEntry{
		ID:      constants.DefaultTextID,
		Title:   "The Babadook",
		Content: constants.DefaultText,
	}
}

func startLimiterCleanup(app *models.App, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanupStaleRateLimiters(app)
			case <-stop:
				return
			}
		}
	}()
	util.LogInfo("Started rate limiter cleanup routine")
}

func cleanupStaleRateLimiters(app *models.App) {
	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()

	cutoffTime := time.Now().Add(-app.RateLimiterTTL)
	removedCount := 0

	for key, limWithTime := range app.LimiterMap {
		if limWithTime.LastAccess.Before(cutoffTime) {
			delete(app.LimiterMap, key)
			removedCount++
		}
	}

	if len(app.LimiterMap) > 50000 {
		type limiterInfo struct {
			key        string
			lastAccess time.Time
		}

		var limiters []limiterInfo
		for key, limWithTime := range app.LimiterMap {
			limiters = append(limiters, limiterInfo{key: key, lastAccess: limWithTime.LastAccess})
		}

		sort.Slice(limiters, func(i, j int) bool {
			return limiters[i].lastAccess.Before(limiters[j].lastAccess)
		})

		entriesToRemove := len(limiters) / 2
		for i := 0; i < entriesToRemove; i++ {
			delete(app.LimiterMap, limiters[i].key)
			removedCount++
		}

		util.LogInfo("Removed %d oldest rate limiters", entriesToRemove)
	}

	if removedCount > 0 {
		util.LogInfo("Cleaned up %d stale rate limiters", removedCount)
	}
}
