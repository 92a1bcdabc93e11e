package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthAPI struct {
	mu sync.Mutex

	registerErr error
	verifyErr   error
	resendErr   error
	linkErr     error

	registerCalls int
	verifyCalls   int
	resendCalls   int
	linkCalls     int

	lastCode  string
	lastToken string

	verifyEntered chan struct{}
	verifyRelease chan struct{}
	linkEntered   chan struct{}
	linkRelease   chan struct{}
}

func (f *fakeAuthAPI) Register(ctx context.Context, name, email, password string) error {
	f.mu.Lock()
	f.registerCalls++
	err := f.registerErr
	f.mu.Unlock()
	return err
}

func (f *fakeAuthAPI) VerifyOTP(ctx context.Context, email, code string) error {
	f.mu.Lock()
	f.verifyCalls++
	f.lastCode = code
	err := f.verifyErr
	entered, release := f.verifyEntered, f.verifyRelease
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return err
}

func (f *fakeAuthAPI) ResendOTP(ctx context.Context, email string) error {
	f.mu.Lock()
	f.resendCalls++
	err := f.resendErr
	f.mu.Unlock()
	return err
}

func (f *fakeAuthAPI) VerifyLink(ctx context.Context, token string) error {
	f.mu.Lock()
	f.linkCalls++
	f.lastToken = token
	err := f.linkErr
	entered, release := f.linkEntered, f.linkRelease
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return err
}

func (f *fakeAuthAPI) ResendVerificationLink(ctx context.Context, email string) error {
	return nil
}

func (f *fakeAuthAPI) RequestPasswordReset(ctx context.Context, email string) error {
	return nil
}

func (f *fakeAuthAPI) ResetPassword(ctx context.Context, token, password string) error {
	return nil
}

func registeredFlow(t *testing.T, api *fakeAuthAPI) *Verification {
	t.Helper()
	v := NewVerification(api)
	require.NoError(t, v.Register(context.Background(), "Ada", "ada@example.com", "hunter22"))
	return v
}

func TestRegisterMovesToOTPPending(t *testing.T) {
	api := &fakeAuthAPI{}
	v := registeredFlow(t, api)

	assert.Equal(t, StateOTPPending, v.State())
	assert.Equal(t, "ada@example.com", v.Email())
	assert.Equal(t, InitialCountdownSeconds, v.TimeLeft())
	assert.False(t, v.CanResend())
	assert.Equal(t, "2:59", v.FormatTimeLeft())
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		email    string
		password string
		wantMsg  string
	}{
		{"missing name", "", "ada@example.com", "hunter22", "Name is required"},
		{"bad email", "Ada", "not-an-email", "hunter22", "Please enter a valid email address"},
		{"short password", "Ada", "ada@example.com", "abc", "Password must be at least 6 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAuthAPI{}
			v := NewVerification(api)

			err := v.Register(context.Background(), tt.userName, tt.email, tt.password)

			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, v.LastError())
			assert.Equal(t, StateIdle, v.State())
			assert.Zero(t, api.registerCalls)
		})
	}
}

func TestRegisterFailureSurfacesServerMessage(t *testing.T) {
	api := &fakeAuthAPI{registerErr: &APIError{Status: 409, Message: "email already registered"}}
	v := NewVerification(api)

	err := v.Register(context.Background(), "Ada", "ada@example.com", "hunter22")

	require.Error(t, err)
	assert.Equal(t, "email already registered", v.LastError())
	assert.Equal(t, StateIdle, v.State())
}

func TestRegisterTransportFailureFallsBack(t *testing.T) {
	api := &fakeAuthAPI{registerErr: errors.New("connection refused")}
	v := NewVerification(api)

	err := v.Register(context.Background(), "Ada", "ada@example.com", "hunter22")

	require.Error(t, err)
	assert.Equal(t, fallbackErrMsg, v.LastError())
}

func TestSetCodeFiltersNonDigits(t *testing.T) {
	api := &fakeAuthAPI{}
	v := registeredFlow(t, api)

	v.SetCode(context.Background(), "12a-3 4b5")

	assert.Equal(t, "12345", v.Code())
	assert.Zero(t, api.verifyCalls, "incomplete code must not submit")
	assert.Equal(t, StateOTPPending, v.State())
}

func TestSetCodeAutoSubmitsAtSixDigits(t *testing.T) {
	api := &fakeAuthAPI{}
	v := registeredFlow(t, api)

	v.SetCode(context.Background(), "123456")

	assert.Equal(t, 1, api.verifyCalls)
	assert.Equal(t, "123456", api.lastCode)
	assert.Equal(t, StateVerified, v.State())
}

func TestSetCodeTruncatesToSixDigits(t *testing.T) {
	api := &fakeAuthAPI{}
	v := registeredFlow(t, api)

	v.SetCode(context.Background(), "1234567890")

	assert.Equal(t, "123456", api.lastCode)
	assert.Equal(t, 1, api.verifyCalls)
}

func TestSubmitRejectsShortCode(t *testing.T) {
	api := &fakeAuthAPI{}
	v := registeredFlow(t, api)

	v.SetCode(context.Background(), "123")
	err := v.Submit(context.Background())

	require.Error(t, err)
	assert.Equal(t, "Please enter a valid 6-digit OTP", v.LastError())
	assert.Zero(t, api.verifyCalls)
}

func TestSubmitFailureIsRecoverable(t *testing.T) {
	api := &fakeAuthAPI{verifyErr: &APIError{Status: 400, Message: "Invalid OTP"}}
	v := registeredFlow(t, api)

	v.SetCode(context.Background(), "123456")

	assert.Equal(t, StateOTPPending, v.State(), "failed verification returns to code entry")
	assert.Equal(t, "123456", v.Code(), "buffer is kept so the user can correct it")
	assert.Equal(t, "Invalid OTP", v.LastError())

	// A corrected code goes through.
	api.mu.Lock()
	api.verifyErr = nil
	api.mu.Unlock()
	v.SetCode(context.Background(), "654321")
	assert.Equal(t, StateVerified, v.State())
}

func TestSubmitSingleFlight(t *testing.T) {
	api := &fakeAuthAPI{
		verifyEntered: make(chan struct{}, 1),
		verifyRelease: make(chan struct{}),
	}
	v := registeredFlow(t, api)
	v.mu.Lock()
	v.code = "123456"
	v.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- v.Submit(context.Background()) }()
	<-api.verifyEntered

	// Second submission while the first is outstanding is dropped.
	require.NoError(t, v.Submit(context.Background()))

	close(api.verifyRelease)
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.verifyCalls)
	assert.Equal(t, StateVerified, v.State())
}

func TestResendGatedOnCountdown(t *testing.T) {
	api := &fakeAuthAPI{}
	v := registeredFlow(t, api)

	require.Error(t, v.Resend(context.Background()))
	assert.Zero(t, api.resendCalls)

	for i := 0; i < InitialCountdownSeconds; i++ {
		v.Tick()
	}
	require.True(t, v.CanResend())

	require.NoError(t, v.Resend(context.Background()))
	assert.Equal(t, 1, api.resendCalls)
	assert.Equal(t, ResendCountdownSeconds, v.TimeLeft(), "resend re-arms the countdown")
	assert.False(t, v.CanResend())
}

func TestResendRearmsEvenOnFailure(t *testing.T) {
	api := &fakeAuthAPI{resendErr: &APIError{Status: 429, Message: "Please wait before requesting a new OTP"}}
	v := registeredFlow(t, api)
	for i := 0; i < InitialCountdownSeconds; i++ {
		v.Tick()
	}

	err := v.Resend(context.Background())

	require.Error(t, err)
	assert.Equal(t, "Please wait before requesting a new OTP", v.LastError())
	assert.Equal(t, ResendCountdownSeconds, v.TimeLeft(), "the lockout is armed before the request goes out")
	assert.False(t, v.CanResend())
}

func TestVerifyLinkFiresExactlyOnce(t *testing.T) {
	api := &fakeAuthAPI{}
	v := NewVerification(api)

	require.NoError(t, v.VerifyLink(context.Background(), "tok-1"))
	require.NoError(t, v.VerifyLink(context.Background(), "tok-1"))

	assert.Equal(t, 1, api.linkCalls)
	assert.Equal(t, StateVerified, v.State())
}

func TestVerifyLinkConcurrentDuplicateDropped(t *testing.T) {
	api := &fakeAuthAPI{
		linkEntered: make(chan struct{}, 1),
		linkRelease: make(chan struct{}),
	}
	v := NewVerification(api)

	done := make(chan error, 1)
	go func() { done <- v.VerifyLink(context.Background(), "tok-1") }()
	<-api.linkEntered

	require.NoError(t, v.VerifyLink(context.Background(), "tok-1"))

	close(api.linkRelease)
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.linkCalls)
}

func TestVerifyLinkFailureStillLatches(t *testing.T) {
	api := &fakeAuthAPI{linkErr: &APIError{Status: 400, Message: "Token already used"}}
	v := NewVerification(api)

	require.Error(t, v.VerifyLink(context.Background(), "tok-1"))
	assert.Equal(t, "Token already used", v.LastError())

	// Retrying the same page load does not re-hit the backend.
	require.NoError(t, v.VerifyLink(context.Background(), "tok-1"))
	assert.Equal(t, 1, api.linkCalls)
}

func TestResetPasswordLocalChecks(t *testing.T) {
	api := &fakeAuthAPI{}
	v := NewVerification(api)

	err := v.ResetPassword(context.Background(), "tok", "abc", "abc")
	require.Error(t, err)
	assert.Equal(t, "Password must be at least 6 characters", v.LastError())

	err = v.ResetPassword(context.Background(), "tok", "hunter22", "hunter23")
	require.Error(t, err)
	assert.Equal(t, "Passwords do not match", v.LastError())

	require.NoError(t, v.ResetPassword(context.Background(), "tok", "hunter22", "hunter22"))
}
