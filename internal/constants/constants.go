package constants

const (
	// CharsPerWord is the standard word length used for WPM: (chars / 5) / minutes.
	CharsPerWord = 5

	LeaderboardSize = 20

	DefaultMode = "free"

	DefaultTextID = "default"
	DefaultText   = "The Babadook is watching you type. Type fast, type true, and don't let the Babadook catch you!"
)

const (
	RouteHealthz      = "/healthz"
	RouteRegister     = "/api/auth/register"
	RouteLogin        = "/api/auth/login"
	RouteNewSession   = "/api/session/new"
	RouteInput        = "/api/session/input"
	RouteSession      = "/api/session"
	RouteSessions     = "/api/sessions"
	RouteLeaderboard  = "/api/leaderboard"
	RouteUserEmails   = "/api/users/emails"
	RouteTexts        = "/api/texts"
	RouteBuiltinTexts = "/api/texts/builtin"
	RouteAchievements = "/api/achievements"
)

const (
	ErrorCodeUnauthorized       = "unauthorized"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeEmailTaken         = "email_taken"
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeNoActiveSession    = "no_active_session"
	ErrorCodeUnknownText        = "unknown_text"
	ErrorCodeTextConflict       = "text_conflict"
	ErrorCodeEmptyText          = "empty_text"
)

const (
	BadgeFirstSession    = "first-session"
	BadgeWpm50           = "wpm-50"
	BadgeWpm100          = "wpm-100"
	BadgeStreak3         = "streak-3"
	BadgeStreak7         = "streak-7"
	BadgePerfectAccuracy = "perfect-accuracy"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
)
