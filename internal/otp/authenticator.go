// Package otp implements the one-time-password challenge guarding the admin
// entry point, the failure-lockout policy around it, and the opaque session
// tokens issued on success.
package otp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/notify"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/ratelimit"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/store"
)

// Status classifies the outcome of a verification attempt.
type Status string

const (
	StatusVerified Status = "verified"
	StatusInvalid  Status = "invalid"
	StatusLocked   Status = "locked"
)

const (
	challengePrefix = "otp:"
	sessionPrefix   = "session:"

	codeSpace = 1000000 // codes are uniform over 000000-999999

	sessionTokenBytes = 32
)

// VerifyResult reports the verification outcome. AttemptsLeft is set on
// invalid attempts; RetryAfter on lockouts.
type VerifyResult struct {
	Status       Status
	AttemptsLeft int
	RetryAfter   time.Duration
	SessionToken string
}

// RetryAfterSeconds rounds the lockout wait up to whole seconds for HTTP
// headers and user-facing notices.
func (r VerifyResult) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int((r.RetryAfter + time.Second - 1) / time.Second)
}

// Options carries the authenticator's tunable policy.
type Options struct {
	ChallengeTTL time.Duration
	MaxAttempts  int
	Lockout      time.Duration
	SessionTTL   time.Duration
}

func (o *Options) fillDefaults() {
	if o.ChallengeTTL <= 0 {
		o.ChallengeTTL = 5 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Lockout <= 0 {
		o.Lockout = 15 * time.Minute
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 12 * time.Hour
	}
}

// Authenticator manages OTP challenges and admin sessions.
type Authenticator struct {
	store    store.StateStore
	limiter  *ratelimit.Limiter
	notifier notify.Notifier
	opts     Options
	logger   *zap.Logger
}

// New wires dependencies. Zero option fields take production defaults.
func New(st store.StateStore, limiter *ratelimit.Limiter, notifier notify.Notifier, opts Options, logger *zap.Logger) *Authenticator {
	opts.fillDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{store: st, limiter: limiter, notifier: notifier, opts: opts, logger: logger}
}

func failureKey(subject string) string {
	return "otp_fail_" + subject
}

// RequestChallenge generates a fresh 6-digit code for subject, replacing any
// prior challenge, and hands it to the notifier. A delivery failure removes
// the stored challenge and propagates: an undelivered code is unusable.
func (a *Authenticator) RequestChallenge(ctx context.Context, subject string) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	key := challengePrefix + subject
	if err := a.store.SetWithExpiry(ctx, key, code, a.opts.ChallengeTTL); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	text := fmt.Sprintf("Support login code: %s (valid %d minutes)", code, int(a.opts.ChallengeTTL.Minutes()))
	if err := a.notifier.Send(ctx, text); err != nil {
		_ = a.store.Delete(ctx, key)
		return fmt.Errorf("deliver challenge: %w", err)
	}

	a.logger.Info("otp challenge issued", zap.String("subject", subject))
	return nil
}

// VerifyChallenge checks the submitted code for subject. The lockout probe
// runs first, so a locked subject gets no information about the stored
// challenge, correct code or not. The caller-facing invalid result does not
// distinguish a wrong code from an expired one.
func (a *Authenticator) VerifyChallenge(ctx context.Context, subject, submitted string) (VerifyResult, error) {
	locked, err := a.limiter.Locked(ctx, failureKey(subject))
	if err != nil {
		return VerifyResult{}, fmt.Errorf("lockout probe: %w", err)
	}
	if locked.Limited {
		return VerifyResult{Status: StatusLocked, RetryAfter: locked.RetryAfter}, nil
	}

	consumed, err := a.store.CompareAndDelete(ctx, challengePrefix+subject, submitted)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("consume challenge: %w", err)
	}
	if consumed {
		if err := a.limiter.ClearCounter(ctx, failureKey(subject)); err != nil {
			a.logger.Warn("failure counter clear failed", zap.String("subject", subject), zap.Error(err))
		}
		token, err := a.IssueSession(ctx, subject)
		if err != nil {
			return VerifyResult{}, err
		}
		a.logger.Info("otp verified", zap.String("subject", subject))
		return VerifyResult{Status: StatusVerified, SessionToken: token}, nil
	}

	failures, err := a.limiter.Count(ctx, failureKey(subject), a.opts.Lockout)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("count failure: %w", err)
	}
	if failures >= int64(a.opts.MaxAttempts) {
		if err := a.limiter.Lock(ctx, failureKey(subject), a.opts.Lockout, "otp_lockout"); err != nil {
			return VerifyResult{}, err
		}
		if err := a.limiter.ClearCounter(ctx, failureKey(subject)); err != nil {
			a.logger.Warn("failure counter clear failed", zap.String("subject", subject), zap.Error(err))
		}
		return VerifyResult{Status: StatusLocked, RetryAfter: a.opts.Lockout}, nil
	}

	return VerifyResult{
		Status:       StatusInvalid,
		AttemptsLeft: a.opts.MaxAttempts - int(failures),
	}, nil
}

// IssueSession mints an opaque 256-bit session token for subject. The token
// TTL slides forward on every successful validation.
func (a *Authenticator) IssueSession(ctx context.Context, subject string) (string, error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(raw)
	if err := a.store.SetWithExpiry(ctx, sessionPrefix+token, subject, a.opts.SessionTTL); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// ValidateSession resolves token to its subject and pushes the expiry
// forward to the full session TTL again. Returns "" for unknown or expired
// tokens.
func (a *Authenticator) ValidateSession(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	subject, found, err := a.store.Get(ctx, sessionPrefix+token)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if !found {
		return "", nil
	}
	if err := a.store.SetWithExpiry(ctx, sessionPrefix+token, subject, a.opts.SessionTTL); err != nil {
		return "", fmt.Errorf("slide session: %w", err)
	}
	return subject, nil
}

// RevokeSession deletes token immediately.
func (a *Authenticator) RevokeSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.store.Delete(ctx, sessionPrefix+token)
}

// generateCode draws a uniform 6-digit code from crypto/rand. big.Int's
// bounded Int avoids modulo bias.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
