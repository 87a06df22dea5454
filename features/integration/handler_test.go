package integration_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpora/apps/ingest/features/integration"
)

type memIntegrationRepo struct {
	tokens map[string]string
}

func (m *memIntegrationRepo) key(userID, provider string) string { return userID + "|" + provider }

func (m *memIntegrationRepo) Upsert(_ context.Context, userID, provider, token string) error {
	m.tokens[m.key(userID, provider)] = token
	return nil
}

func (m *memIntegrationRepo) AccessToken(_ context.Context, userID, provider string) (string, error) {
	tok, ok := m.tokens[m.key(userID, provider)]
	if !ok {
		return "", integration.ErrNotConnected
	}
	return tok, nil
}

func (m *memIntegrationRepo) Disconnect(_ context.Context, userID, provider string) error {
	delete(m.tokens, m.key(userID, provider))
	return nil
}

func TestHandler_ConnectAndDisconnect(t *testing.T) {
	repo := &memIntegrationRepo{tokens: map[string]string{}}
	h := integration.NewHandler(repo)

	body := `{"user_id":"u1","provider":"notion","access_token":"tok-1"}`
	req := httptest.NewRequest(http.MethodPost, "/integrations", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Connect(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	tok, err := repo.AccessToken(context.Background(), "u1", "notion")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	req = httptest.NewRequest(http.MethodDelete, "/integrations/notion?user_id=u1", nil)
	req.SetPathValue("provider", "notion")
	rec = httptest.NewRecorder()
	h.Disconnect(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	_, err = repo.AccessToken(context.Background(), "u1", "notion")
	assert.ErrorIs(t, err, integration.ErrNotConnected)
}

func TestHandler_ConnectRejectsMissingFields(t *testing.T) {
	h := integration.NewHandler(&memIntegrationRepo{tokens: map[string]string{}})

	req := httptest.NewRequest(http.MethodPost, "/integrations", strings.NewReader(`{"user_id":"u1"}`))
	rec := httptest.NewRecorder()
	h.Connect(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
