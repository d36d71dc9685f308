package settings

// Keys for settings stored in the settings table.
const (
	SiteNameKey               = "SITE_NAME"
	MaxLoginAttemptsKey       = "MAX_LOGIN_ATTEMPTS"
	AttemptWindowSecondsKey   = "LOGIN_ATTEMPT_WINDOW_SECONDS"
	LockoutDurationSecondsKey = "LOCKOUT_DURATION_SECONDS"
	MinPasswordLengthKey      = "MIN_PASSWORD_LENGTH"
	MaxPasswordLengthKey      = "MAX_PASSWORD_LENGTH"
	MinUsernameLengthKey      = "MIN_USERNAME_LENGTH"
	MaxUsernameLengthKey      = "MAX_USERNAME_LENGTH"
)

// Defaults used when the settings table carries no override.
const (
	DefaultSiteName               = "PestTrack"
	DefaultMaxLoginAttempts       = 5
	DefaultAttemptWindowSeconds   = 300
	DefaultLockoutDurationSeconds = 900
	DefaultMinPasswordLength      = 8
	DefaultMaxPasswordLength      = 128
	DefaultMinUsernameLength      = 3
	DefaultMaxUsernameLength      = 30
)
