package sudo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acolita/ptyd/internal/config"
	"github.com/acolita/ptyd/internal/security"
)

// PasswordStore is long-term storage for the sudo password of the account
// ptyd runs as. *security.KeyringStore implements it.
type PasswordStore interface {
	SudoPassword(account string) ([]byte, error)
	StoreSudoPassword(account string, password []byte) error
}

// Service applies policy around an Executor: command filtering, per-session
// lockout after wrong passwords, and password caching.
type Service struct {
	exec    *Executor
	cache   *security.SudoCache
	limiter *security.AuthRateLimiter
	filter  *security.CommandFilter
	store   PasswordStore
	account string
	logger  *slog.Logger
	observe func(outcome string, d time.Duration)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache caches successful passwords per session.
func WithCache(c *security.SudoCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithRateLimiter locks sessions after repeated wrong passwords.
func WithRateLimiter(l *security.AuthRateLimiter) ServiceOption {
	return func(s *Service) { s.limiter = l }
}

// WithCommandFilter rejects commands matching the filter.
func WithCommandFilter(f *security.CommandFilter) ServiceOption {
	return func(s *Service) { s.filter = f }
}

// WithPasswordStore falls back to store for account when no password is
// supplied or cached, and saves passwords that worked.
func WithPasswordStore(store PasswordStore, account string) ServiceOption {
	return func(s *Service) {
		s.store = store
		s.account = account
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithObserver is called after every executed command with one of
// "success", "failure", "auth_failure" or "timeout".
func WithObserver(fn func(outcome string, d time.Duration)) ServiceOption {
	return func(s *Service) { s.observe = fn }
}

// NewService wraps exec. Without options there is no caching, no lockout
// and the default blocklist.
func NewService(exec *Executor, opts ...ServiceOption) *Service {
	s := &Service{exec: exec, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.filter == nil {
		s.filter, _ = security.NewCommandFilter(nil, nil)
	}
	return s
}

// NewServiceFromConfig builds the executor, cache, limiter and filter from cfg.
func NewServiceFromConfig(cfg config.SudoConfig, opts ...ServiceOption) (*Service, error) {
	filter, err := security.NewCommandFilter(cfg.Blocklist, cfg.Allowlist)
	if err != nil {
		return nil, err
	}
	base := []ServiceOption{
		WithCache(security.NewSudoCache(cfg.CacheTTL)),
		WithRateLimiter(security.NewAuthRateLimiter(cfg.MaxFailures, cfg.LockoutDuration)),
		WithCommandFilter(filter),
	}
	return NewService(NewExecutor(cfg.Binary, cfg.Timeout), append(base, opts...)...), nil
}

// Configure applies a reloaded sudo section.
func (s *Service) Configure(cfg config.SudoConfig) error {
	if err := s.filter.Update(cfg.Blocklist, cfg.Allowlist); err != nil {
		return err
	}
	s.exec.Configure(cfg.Binary, cfg.Timeout)
	if s.cache != nil {
		s.cache.SetTTL(cfg.CacheTTL)
	}
	if s.limiter != nil {
		s.limiter.SetLimits(cfg.MaxFailures, cfg.LockoutDuration)
	}
	return nil
}

// Executor returns the underlying executor.
func (s *Service) Executor() *Executor {
	return s.exec
}

// Forget drops any cached password for sessionID.
func (s *Service) Forget(sessionID string) {
	if s.cache != nil {
		s.cache.Clear(sessionID)
	}
}

// Run executes req under policy. The password comes from req, then the
// session cache, then the password store. Every password copy is wiped
// before Run returns; req.Password itself is left to the caller.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	key := req.SessionID
	if s.limiter != nil {
		if locked, remaining := s.limiter.IsLocked(key); locked {
			return nil, fmt.Errorf("%w: retry in %s", ErrLocked, remaining.Round(time.Second))
		}
	}
	if ok, reason := s.filter.IsAllowed(StripSudoPrefix(req.Command)); !ok {
		s.logger.Warn("sudo command rejected", slog.String("session_id", key), slog.String("reason", reason))
		return nil, fmt.Errorf("%w: %s", ErrBlocked, reason)
	}

	pw, supplied := s.password(key, req.Password)
	if len(pw) == 0 {
		return nil, ErrPasswordRequired
	}
	defer security.WipeBytes(pw)

	req.Password = pw
	res, err := s.exec.Execute(ctx, req)
	if err != nil {
		if res != nil && res.TimedOut {
			s.record("timeout", res.Duration)
		}
		return res, err
	}

	if res.ErrorType == ErrorWrongPassword {
		s.record("auth_failure", res.Duration)
		if s.cache != nil {
			s.cache.Clear(key)
		}
		if s.limiter != nil && s.limiter.RecordFailure(key) {
			s.logger.Warn("sudo locked for session", slog.String("session_id", key))
		}
		return res, ErrAuthFailed
	}

	if s.limiter != nil {
		s.limiter.RecordSuccess(key)
	}
	if s.cache != nil && res.ErrorType == ErrorNone {
		s.cache.Set(key, pw)
	}
	if supplied && s.store != nil && res.ErrorType == ErrorNone {
		if err := s.store.StoreSudoPassword(s.account, pw); err != nil {
			s.logger.Debug("keyring store failed", slog.String("error", err.Error()))
		}
	}

	if res.Success {
		s.record("success", res.Duration)
	} else {
		s.record("failure", res.Duration)
	}
	return res, nil
}

// password returns a private copy of the password to use and whether it
// came from the caller.
func (s *Service) password(key string, given []byte) ([]byte, bool) {
	if len(given) > 0 {
		return append([]byte(nil), given...), true
	}
	if s.cache != nil {
		if pw := s.cache.Get(key); len(pw) > 0 {
			return pw, false
		}
	}
	if s.store != nil {
		pw, err := s.store.SudoPassword(s.account)
		if err != nil {
			s.logger.Debug("keyring lookup failed", slog.String("error", err.Error()))
		}
		return pw, false
	}
	return nil, false
}

func (s *Service) record(outcome string, d time.Duration) {
	if s.observe != nil {
		s.observe(outcome, d)
	}
}
