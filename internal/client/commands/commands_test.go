package commands

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure.link/config"
	"secure.link/internal/api"
	"secure.link/internal/crypto"
	"secure.link/internal/secrets"
	"secure.link/internal/store"
)

func newTestServer(t *testing.T) string {
	t.Helper()

	svc := secrets.NewService(store.NewMemoryStore(), crypto.SHA256Hasher{})
	srv := httptest.NewServer(api.SetupRouter(svc, config.Default(), nil, nil))
	t.Cleanup(srv.Close)
	return srv.URL
}

// run executes one CLI invocation and returns stdout.
func run(t *testing.T, server, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", server}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func createJSON(t *testing.T, server string, args ...string) api.CreateResponse {
	t.Helper()

	out, err := run(t, server, "", append([]string{"--json", "create"}, args...)...)
	require.NoError(t, err)

	var created api.CreateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	return created
}

func TestCreateAndView(t *testing.T) {
	server := newTestServer(t)

	created := createJSON(t, server, "top secret")
	require.NotEmpty(t, created.ID)

	out, err := run(t, server, "", "view", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "top secret\n", out)

	_, err = run(t, server, "", "view", created.ID)
	assert.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestCreateFromStdin(t *testing.T) {
	server := newTestServer(t)

	out, err := run(t, server, "from stdin\n", "create")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin token:")

	_, err = run(t, server, "", "create")
	assert.EqualError(t, err, "content is required")
}

func TestStatusAndCheck(t *testing.T) {
	server := newTestServer(t)

	created := createJSON(t, server, "--password", "pin", "--ttl", "60", "x")

	out, err := run(t, server, "", "status", created.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "active\n"))

	out, err = run(t, server, "", "check", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "password required, 3 attempts remaining\n", out)
}

func TestViewWrongPassword(t *testing.T) {
	server := newTestServer(t)

	created := createJSON(t, server, "-p", "pin", "x")

	_, err := run(t, server, "", "view", "-p", "nope", created.ID)
	assert.EqualError(t, err, "incorrect password, 2 attempts remaining")

	out, err := run(t, server, "", "view", "-p", "pin", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "x\n", out)
}

func TestBurn(t *testing.T) {
	server := newTestServer(t)

	created := createJSON(t, server, "x")

	_, err := run(t, server, "", "burn", "--token", "nope", created.ID)
	assert.ErrorIs(t, err, secrets.ErrUnauthorized)

	out, err := run(t, server, "", "burn", "--token", created.AdminToken, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "burned\n", out)

	out, err = run(t, server, "", "status", created.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "inactive")
}

func TestBurnRequiresToken(t *testing.T) {
	server := newTestServer(t)

	_, err := run(t, server, "", "burn", "some-id")
	assert.Error(t, err)
}
