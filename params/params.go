package params

import "time"

const (
	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	LockoutKeyPrefix    = "lk:"
	RateWindowKeyPrefix = "rw:"
	EnrollmentKeyPrefix = "me:"

	DefaultLockoutThreshold   = 5                // failed attempts per principal before locking
	DefaultIPLockoutThreshold = 10               // failed attempts per source IP before locking
	DefaultLockoutDuration    = 30 * time.Minute // how long a lock lasts
	DefaultFailureWindow      = 15 * time.Minute // counter lifetime without reaching the threshold

	DefaultSessionTTL     = 24 * time.Hour
	DefaultRememberMeTTL  = 30 * 24 * time.Hour
	DefaultMaxConcurrent  = 5 // active sessions per principal
	DefaultRateLimitQuota = 100
	DefaultRateWindow     = time.Minute

	DefaultPasswordMinLength   = 10
	DefaultPasswordMaxLength   = 128
	DefaultPasswordHistorySize = 5
	DefaultPasswordValidity    = 90 * 24 * time.Hour

	BackupCodeCount     = 10 // single-use codes issued per enrollment
	BackupCodeLength    = 10
	SessionKeyBytes     = 32 // 256 bits of entropy per session key
	EnrollmentMaxAge    = 15 * time.Minute
	ResetTokenMaxAge    = 15 * time.Minute
	StoreCallTimeout    = 200 * time.Millisecond // p99 budget for hot-path store calls
	TransientRetryDelay = 50 * time.Millisecond

	HealthCheckServerAddr = ":3001"
)
