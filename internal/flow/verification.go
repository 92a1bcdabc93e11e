package flow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// AuthAPI is the slice of the backend the verification flow drives.
// internal/client provides the HTTP implementation; tests substitute
// fakes.
type AuthAPI interface {
	Register(ctx context.Context, name, email, password string) error
	VerifyOTP(ctx context.Context, email, code string) error
	ResendOTP(ctx context.Context, email string) error
	VerifyLink(ctx context.Context, token string) error
	ResendVerificationLink(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

// APIError is a backend rejection carrying the server's own message.
// The flow surfaces Message verbatim; any other error kind falls back
// to a generic message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// State identifies where the verification flow currently is.
type State int

const (
	// StateIdle is the initial state, before registration is submitted.
	StateIdle State = iota
	// StateSubmittingRegistration covers the in-flight registration call.
	StateSubmittingRegistration
	// StateOTPPending means the account exists and the flow is waiting
	// for the 6-digit code.
	StateOTPPending
	// StateVerifying covers an in-flight OTP submission.
	StateVerifying
	// StateVerified is terminal: the email is confirmed.
	StateVerified
)

const (
	// OTPLength is the number of digits in a one-time code.
	OTPLength = 6
	// InitialCountdownSeconds is the resend lockout seeded right after
	// registration.
	InitialCountdownSeconds = 179
	// ResendCountdownSeconds is the lockout seeded after each resend.
	ResendCountdownSeconds = 60

	fallbackErrMsg = "Something went wrong. Please try again."
)

var flowEmailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

type linkState int

const (
	linkNotStarted linkState = iota
	linkInFlight
	linkDone
)

// Verification is the email-verification state machine. It owns the
// OTP input buffer, the resend countdown, and the one-shot link-verify
// latch. All methods are safe for concurrent use; network calls run
// outside the lock so ticks keep flowing while a request is in flight.
type Verification struct {
	mu        sync.Mutex
	api       AuthAPI
	state     State
	email     string
	code      string
	timeLeft  int
	lastError string
	verifying bool
	link      linkState
}

// NewVerification constructs an idle verification flow backed by api.
func NewVerification(api AuthAPI) *Verification {
	return &Verification{api: api}
}

// State reports the current flow state.
func (v *Verification) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Email reports the address the flow is verifying.
func (v *Verification) Email() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.email
}

// Code reports the digits entered so far.
func (v *Verification) Code() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.code
}

// LastError reports the most recent user-facing failure message, or ""
// when the last operation succeeded.
func (v *Verification) LastError() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastError
}

// Register validates the form locally, submits it, and on success moves
// to StateOTPPending with the initial resend countdown running.
func (v *Verification) Register(ctx context.Context, name, email, password string) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if err := v.validateRegistration(name, email, password); err != nil {
		return err
	}

	v.mu.Lock()
	if v.state != StateIdle {
		v.mu.Unlock()
		return errors.New("registration already submitted")
	}
	v.state = StateSubmittingRegistration
	v.lastError = ""
	v.mu.Unlock()

	err := v.api.Register(ctx, name, email, password)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.state = StateIdle
		v.lastError = userMessage(err)
		return err
	}
	v.state = StateOTPPending
	v.email = email
	v.code = ""
	v.timeLeft = InitialCountdownSeconds
	return nil
}

func (v *Verification) validateRegistration(name, email, password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case name == "":
		v.lastError = "Name is required"
	case !flowEmailPattern.MatchString(email):
		v.lastError = "Please enter a valid email address"
	case len(password) < 6:
		v.lastError = "Password must be at least 6 characters"
	default:
		return nil
	}
	return errors.New(v.lastError)
}

// SetCode replaces the OTP buffer with the digits of raw, truncated to
// six. Reaching exactly six digits submits automatically.
func (v *Verification) SetCode(ctx context.Context, raw string) {
	v.mu.Lock()
	if v.state != StateOTPPending {
		v.mu.Unlock()
		return
	}
	digits := make([]byte, 0, OTPLength)
	for i := 0; i < len(raw) && len(digits) < OTPLength; i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	v.code = string(digits)
	full := len(v.code) == OTPLength
	v.mu.Unlock()

	if full {
		_ = v.Submit(ctx)
	}
}

// Submit sends the buffered code for verification. A submission already
// in flight swallows the duplicate; a short buffer is rejected locally.
func (v *Verification) Submit(ctx context.Context) error {
	v.mu.Lock()
	if v.state != StateOTPPending {
		v.mu.Unlock()
		return errors.New("no verification pending")
	}
	if len(v.code) != OTPLength {
		v.lastError = "Please enter a valid 6-digit OTP"
		v.mu.Unlock()
		return errors.New(v.lastError)
	}
	if v.verifying {
		v.mu.Unlock()
		return nil
	}
	v.verifying = true
	v.state = StateVerifying
	v.lastError = ""
	email, code := v.email, v.code
	v.mu.Unlock()

	err := v.api.VerifyOTP(ctx, email, code)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.verifying = false
	if err != nil {
		// Recoverable: back to entry. The buffer is kept so the user
		// can correct and resubmit.
		v.state = StateOTPPending
		v.lastError = userMessage(err)
		return err
	}
	v.state = StateVerified
	return nil
}

// Tick advances the resend countdown by one second. Driven by a Clock.
func (v *Verification) Tick() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timeLeft > 0 {
		v.timeLeft--
	}
}

// RunCountdown consumes ticks from clock until ctx is done.
func (v *Verification) RunCountdown(ctx context.Context, clock Clock) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-clock.Ticks():
			v.Tick()
		}
	}
}

// TimeLeft reports the remaining resend lockout in seconds.
func (v *Verification) TimeLeft() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timeLeft
}

// FormatTimeLeft renders the countdown as m:ss for display.
func (v *Verification) FormatTimeLeft() string {
	left := v.TimeLeft()
	return fmt.Sprintf("%d:%02d", left/60, left%60)
}

// CanResend reports whether the resend action is currently available:
// the countdown has elapsed and no resend is in flight.
func (v *Verification) CanResend() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.canResendLocked()
}

func (v *Verification) canResendLocked() bool {
	return v.state == StateOTPPending && v.timeLeft <= 0 && !v.verifying
}

// Resend requests a fresh code. The countdown re-arms in the same step
// that claims the resend, so racing calls cannot skip the lockout, and
// it stays armed even when the send fails.
func (v *Verification) Resend(ctx context.Context) error {
	v.mu.Lock()
	if !v.canResendLocked() {
		v.mu.Unlock()
		return errors.New("resend not available yet")
	}
	v.timeLeft = ResendCountdownSeconds
	v.lastError = ""
	email := v.email
	v.mu.Unlock()

	err := v.api.ResendOTP(ctx, email)
	if err != nil {
		return v.failWith(err)
	}
	return nil
}

// VerifyLink consumes a verification link token. The latch flips before
// the network call, so the backend sees at most one request no matter
// how many times the caller fires; duplicates return nil.
func (v *Verification) VerifyLink(ctx context.Context, token string) error {
	v.mu.Lock()
	if v.link != linkNotStarted {
		v.mu.Unlock()
		return nil
	}
	v.link = linkInFlight
	v.mu.Unlock()

	err := v.api.VerifyLink(ctx, token)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.link = linkDone
	if err != nil {
		v.lastError = userMessage(err)
		return err
	}
	v.state = StateVerified
	return nil
}

// ResendVerificationLink requests a fresh verification email for the
// given address.
func (v *Verification) ResendVerificationLink(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !flowEmailPattern.MatchString(email) {
		return v.fail("Please enter a valid email address")
	}
	if err := v.api.ResendVerificationLink(ctx, email); err != nil {
		return v.failWith(err)
	}
	return nil
}

// RequestPasswordReset asks the backend to email a reset link.
func (v *Verification) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !flowEmailPattern.MatchString(email) {
		return v.fail("Please enter a valid email address")
	}
	if err := v.api.RequestPasswordReset(ctx, email); err != nil {
		return v.failWith(err)
	}
	return nil
}

// ResetPassword checks the confirmation locally and submits the new
// password against the emailed token.
func (v *Verification) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if len(password) < 6 {
		return v.fail("Password must be at least 6 characters")
	}
	if password != confirm {
		return v.fail("Passwords do not match")
	}
	if err := v.api.ResetPassword(ctx, token, password); err != nil {
		return v.failWith(err)
	}
	return nil
}

func (v *Verification) fail(msg string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastError = msg
	return errors.New(msg)
}

func (v *Verification) failWith(err error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastError = userMessage(err)
	return err
}

// userMessage extracts the server's message from an APIError, falling
// back to a generic message for transport-level failures.
func userMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallbackErrMsg
}
