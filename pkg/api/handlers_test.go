package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/ledger"
	"github.com/ssargent/tweetdb/pkg/program"
	"github.com/ssargent/tweetdb/pkg/storage"
	"github.com/ssargent/tweetdb/pkg/store"
)

const testAPIKey = "test-key"

type testEnv struct {
	server  *Server
	handler http.Handler
	ledger  *ledger.Ledger
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	metrics := NewMetrics(nil)
	l := ledger.New(program.NewHandler(store.New(storage.NewMemoryBackend())), ledger.Config{},
		ledger.WithObserver(metrics.ObserveInstruction))
	t.Cleanup(func() { l.Close() })

	server := NewServer(l, ServerConfig{APIKey: testAPIKey}, WithMetrics(metrics))
	return &testEnv{server: server, handler: server.Routes(), ledger: l}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("X-API-Key", testAPIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var response APIResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

// decodeData re-decodes the envelope's data into out
func decodeData(t *testing.T, response APIResponse, out any) {
	t.Helper()
	raw, err := json.Marshal(response.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func newKeypair(t *testing.T) *identity.Keypair {
	t.Helper()
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func txBody(t *testing.T, ix program.Instruction, kps ...*identity.Keypair) []byte {
	t.Helper()
	tx := ledger.NewTransaction(ix)
	require.NoError(t, tx.Sign(kps...))
	body, err := json.Marshal(tx)
	require.NoError(t, err)
	return body
}

func TestServer_handleHealth(t *testing.T) {
	env := setupTestServer(t)

	w, response := env.do(t, "GET", "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, response.Success)
	assert.Equal(t, map[string]any{"status": "healthy"}, response.Data)
}

func TestServer_RequiresAPIKey(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// metrics and docs stay open
	for _, path := range []string{"/metrics", "/swagger/doc.json", "/swagger/index.html"} {
		w = httptest.NewRecorder()
		env.handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestServer_RecordLifecycle(t *testing.T) {
	env := setupTestServer(t)
	owner, record := newKeypair(t), newKeypair(t)

	w, response := env.do(t, "POST", "/api/v1/transactions",
		txBody(t, program.Create(record.PublicKey(), owner.PublicKey(), "solana", "gm"), owner, record))
	require.Equal(t, http.StatusOK, w.Code, response.Error)

	var receipt ledger.Receipt
	decodeData(t, response, &receipt)
	assert.Equal(t, uint64(1), receipt.Slot)
	assert.Equal(t, "create_tweet", receipt.Kind)
	require.NotNil(t, receipt.Record)
	assert.Equal(t, record.PublicKey(), receipt.Record.ID)

	w, response = env.do(t, "GET", "/api/v1/records/"+record.PublicKey().String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched store.Record
	decodeData(t, response, &fetched)
	assert.Equal(t, owner.PublicKey(), fetched.Owner)
	assert.Equal(t, "solana", fetched.Topic)
	assert.Equal(t, "gm", fetched.Content)
	assert.Equal(t, receipt.Record.CreatedAt, fetched.CreatedAt)

	w, response = env.do(t, "POST", "/api/v1/transactions",
		txBody(t, program.Update(record.PublicKey(), owner.PublicKey(), "solana", "gn"), owner))
	require.Equal(t, http.StatusOK, w.Code, response.Error)

	w, response = env.do(t, "POST", "/api/v1/transactions",
		txBody(t, program.Delete(record.PublicKey(), owner.PublicKey()), owner))
	require.Equal(t, http.StatusOK, w.Code, response.Error)

	w, response = env.do(t, "GET", "/api/v1/records/"+record.PublicKey().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", response.Code)

	w, response = env.do(t, "GET", "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats StatsResponse
	decodeData(t, response, &stats)
	assert.Equal(t, StatsResponse{Records: 0, Slot: 3}, stats)
}

func TestServer_handleSubmit_Rejections(t *testing.T) {
	env := setupTestServer(t)
	owner, record, intruder := newKeypair(t), newKeypair(t), newKeypair(t)

	_, response := env.do(t, "POST", "/api/v1/transactions",
		txBody(t, program.Create(record.PublicKey(), owner.PublicKey(), "t", "c"), owner, record))
	require.True(t, response.Success)

	tests := []struct {
		name           string
		body           []byte
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "not owner",
			body:           txBody(t, program.Update(record.PublicKey(), intruder.PublicKey(), "t", "x"), intruder),
			expectedStatus: http.StatusForbidden,
			expectedCode:   "NotOwner",
		},
		{
			name:           "missing co-signature",
			body:           txBody(t, program.Create(newKeypair(t).PublicKey(), owner.PublicKey(), "t", "c"), owner),
			expectedStatus: http.StatusForbidden,
			expectedCode:   "MissingSignature",
		},
		{
			name:           "duplicate",
			body:           txBody(t, program.Create(record.PublicKey(), owner.PublicKey(), "t", "c"), owner, record),
			expectedStatus: http.StatusConflict,
			expectedCode:   "DuplicateKey",
		},
		{
			name:           "topic too long",
			body:           txBody(t, program.Update(record.PublicKey(), owner.PublicKey(), strings.Repeat("a", 51), "c"), owner),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "TopicTooLong",
		},
		{
			name:           "content too long",
			body:           txBody(t, program.Update(record.PublicKey(), owner.PublicKey(), "t", strings.Repeat("a", 281)), owner),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "ContentTooLong",
		},
		{
			name:           "read is not a transaction",
			body:           []byte(`{"kind":"read_tweet"}`),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "InvalidInstruction",
		},
		{
			name:           "not json",
			body:           []byte(`{`),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "InvalidInstruction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := env.do(t, "POST", "/api/v1/transactions", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCode, response.Code)
			assert.False(t, response.Success)
		})
	}

	// nothing above changed the record
	got, err := env.ledger.Fetch(context.Background(), record.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, "c", got.Content)
}

func TestServer_handleListRecords(t *testing.T) {
	env := setupTestServer(t)
	alice, bob := newKeypair(t), newKeypair(t)

	for _, post := range []struct {
		owner *identity.Keypair
		topic string
	}{{alice, "solana"}, {alice, "rust"}, {bob, "solana"}} {
		record := newKeypair(t)
		_, response := env.do(t, "POST", "/api/v1/transactions",
			txBody(t, program.Create(record.PublicKey(), post.owner.PublicKey(), post.topic, "body"), post.owner, record))
		require.True(t, response.Success, response.Error)
	}

	list := func(params url.Values) (int, RecordList, APIResponse) {
		w, response := env.do(t, "GET", "/api/v1/records?"+params.Encode(), nil)
		var out RecordList
		if response.Success {
			decodeData(t, response, &out)
		}
		return w.Code, out, response
	}

	code, out, _ := list(nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, out.Count)

	_, out, _ = list(url.Values{"owner": {alice.PublicKey().String()}})
	assert.Equal(t, 2, out.Count)

	_, out, _ = list(url.Values{"owner": {alice.PublicKey().String()}, "topic": {"solana"}})
	require.Equal(t, 1, out.Count)
	assert.Equal(t, alice.PublicKey(), out.Records[0].Owner)

	_, out, _ = list(url.Values{"topic_prefix": {"sol"}})
	assert.Equal(t, 2, out.Count)

	_, out, _ = list(url.Values{"topic": {"go"}})
	assert.Equal(t, 0, out.Count)
	assert.NotNil(t, out.Records)

	code, _, response := list(url.Values{"memcmp": {"-1:abc"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidFilter", response.Code)
}

func TestServer_handleGetRecord_BadID(t *testing.T) {
	env := setupTestServer(t)

	w, response := env.do(t, "GET", "/api/v1/records/not-a-key", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidInstruction", response.Code)
}
