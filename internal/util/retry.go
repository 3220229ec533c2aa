package util

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (first try included)
	InitialWait time.Duration // Initial wait duration (doubled after each failure)
	MaxWait     time.Duration // Maximum wait duration between attempts

	// Retryable decides whether an error is worth another attempt.
	// Nil means IsRetryableError.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// LockRetryConfig returns the retry policy used for SQLite write-lock
// contention: 100ms, 200ms, 400ms... capped at 2s.
func LockRetryConfig(maxAttempts int, retryable func(error) bool) *RetryConfig {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetryConfig{
		MaxAttempts: maxAttempts,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     2 * time.Second,
		Retryable:   retryable,
	}
}

// IsRetryableError checks if an error is worth retrying
// Returns true for transient network/filesystem errors
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pathError *os.PathError
	var syscallError syscall.Errno

	if errors.As(err, &pathError) {
		err = pathError.Err
	}

	if errors.As(err, &syscallError) {
		switch syscallError {
		case syscall.EAGAIN,
			syscall.ETIMEDOUT,
			syscall.ECONNRESET,
			syscall.ECONNABORTED,
			syscall.ENETDOWN,
			syscall.ENETUNREACH,
			syscall.EHOSTDOWN,
			syscall.EHOSTUNREACH,
			syscall.EIO:
			return true
		}
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"timed out",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"host is down",
		"temporary failure",
		"resource temporarily unavailable",
		"i/o error",
		"too many open files",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryWithBackoff executes a function with exponential backoff retry logic.
// Non-retryable errors are returned unchanged on first sight; running out of
// attempts returns an error wrapping both ErrRetriesExhausted and the last
// failure. Cancelling ctx aborts the wait between attempts.
func RetryWithBackoff[T any](ctx context.Context, cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	waitDuration := cfg.InitialWait

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = operation()

		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d",
					operationName, attempt, attempts)
			}
			return result, nil
		}

		if !retryable(err) {
			DebugLog("Retry: %s failed with non-retryable error: %v", operationName, err)
			return result, err
		}

		if attempt == attempts {
			WarnLog("Retry: %s failed after %d attempts: %v",
				operationName, attempts, err)
			return result, fmt.Errorf("%s: %w (%d attempts): %w",
				operationName, ErrRetriesExhausted, attempts, err)
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, attempts, waitDuration, err)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("%s: %w", operationName, ctx.Err())
		case <-timer.C:
		}

		waitDuration *= 2
		if waitDuration > cfg.MaxWait {
			waitDuration = cfg.MaxWait
		}
	}

	return result, fmt.Errorf("unexpected retry loop exit: %w", err)
}

// Retry executes a function with retry logic (no return value)
func Retry(ctx context.Context, cfg *RetryConfig, operation func() error, operationName string) error {
	_, err := RetryWithBackoff(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}

// RetryableOpen opens a file on fsys, retrying transient errors
func RetryableOpen(ctx context.Context, fsys afero.Fs, path string, cfg *RetryConfig) (afero.File, error) {
	return RetryWithBackoff(ctx, cfg, func() (afero.File, error) {
		return fsys.Open(path)
	}, fmt.Sprintf("open(%s)", path))
}

// RetryableStat stats a file on fsys, retrying transient errors
func RetryableStat(ctx context.Context, fsys afero.Fs, path string, cfg *RetryConfig) (fs.FileInfo, error) {
	return RetryWithBackoff(ctx, cfg, func() (fs.FileInfo, error) {
		return fsys.Stat(path)
	}, fmt.Sprintf("stat(%s)", path))
}
