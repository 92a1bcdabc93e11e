/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBackend fakes the API surface the lifecycle commands hit:
// it answers the login and echoes a message for everything else, while
// recording every request it receives.
type recordingBackend struct {
	mu    sync.Mutex
	calls []string
	srv   *httptest.Server
}

func newRecordingBackend(t *testing.T) *recordingBackend {
	b := &recordingBackend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls = append(b.calls, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/auth/login" {
			fmt.Fprint(w, `{"token":"test-token"}`)
			return
		}
		fmt.Fprint(w, `{"message":"ok"}`)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *recordingBackend) requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// runLifecycle invokes a lifecycle command's RunE against the fake
// backend with the given terminal input.
func runLifecycle(t *testing.T, b *recordingBackend, command *cobra.Command, input, id string) error {
	t.Helper()

	oldURL, oldEmail, oldPassword := clientServerURL, clientEmail, clientPassword
	t.Cleanup(func() {
		clientServerURL, clientEmail, clientPassword = oldURL, oldEmail, oldPassword
	})
	clientServerURL = b.srv.URL
	clientEmail = "ada@example.com"
	clientPassword = "secret123"

	command.SetIn(strings.NewReader(input))
	command.SetContext(context.Background())
	return command.RunE(command, []string{id})
}

func TestTrashDeclinedIssuesNoRequest(t *testing.T) {
	backend := newRecordingBackend(t)

	err := runLifecycle(t, backend, clientTrashCmd, "n\n", "5")

	require.NoError(t, err)
	assert.Empty(t, backend.requests(), "a declined prompt must not reach the backend, not even for login")
}

func TestTrashConfirmedCallsBackend(t *testing.T) {
	backend := newRecordingBackend(t)

	err := runLifecycle(t, backend, clientTrashCmd, "y\n", "7")

	require.NoError(t, err)
	assert.Equal(t, []string{"POST /auth/login", "DELETE /products/7"}, backend.requests())
}

func TestPurgeRequiresTypedConfirmation(t *testing.T) {
	backend := newRecordingBackend(t)

	// A bare "yes" is not enough for the irreversible delete.
	err := runLifecycle(t, backend, clientPurgeCmd, "yes\n", "7")
	require.NoError(t, err)
	assert.Empty(t, backend.requests())

	err = runLifecycle(t, backend, clientPurgeCmd, "delete\n", "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /auth/login", "DELETE /products/7/force"}, backend.requests())
}

func TestRestoreNeedsNoConfirmation(t *testing.T) {
	backend := newRecordingBackend(t)

	err := runLifecycle(t, backend, clientRestoreCmd, "", "3")

	require.NoError(t, err)
	assert.Equal(t, []string{"POST /auth/login", "PUT /products/3/restore"}, backend.requests())
}
