package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/pocketfin/internal/advice"
	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
	"github.com/MrJamesThe3rd/pocketfin/internal/balance"
	"github.com/MrJamesThe3rd/pocketfin/internal/export"
	pfhttp "github.com/MrJamesThe3rd/pocketfin/internal/http"
	adviceHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/advice"
	exportHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/export"
	importHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/importcsv"
	ledgerHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/ledger"
	profileHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/profile"
	"github.com/MrJamesThe3rd/pocketfin/internal/importer"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
	ledgerStore "github.com/MrJamesThe3rd/pocketfin/internal/ledger/store"
	"github.com/MrJamesThe3rd/pocketfin/internal/profile"
	profileStore "github.com/MrJamesThe3rd/pocketfin/internal/profile/store"
	"github.com/MrJamesThe3rd/pocketfin/internal/testutil"
)

const secret = "router-test-secret"

type fakeGenerator struct {
	mu   sync.Mutex
	text string
	err  error
	got  []advice.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req advice.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.got = append(f.got, req)

	return f.text, f.err
}

func (f *fakeGenerator) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

func (f *fakeGenerator) requests() []advice.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]advice.Request(nil), f.got...)
}

type testServer struct {
	*httptest.Server
	gen *fakeGenerator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.NewDB(t)

	repo := ledgerStore.New(db)
	ledgerSvc := ledger.NewService(repo)
	agg := balance.New(repo)
	ledgerSvc.SetListener(agg)

	gen := &fakeGenerator{text: "**Save** more.\nSpend less."}
	profiles := profile.NewService(profileStore.New(db))

	router := pfhttp.New(auth.NewVerifier(secret, ""), 5*time.Second, pfhttp.Handlers{
		Ledger:  ledgerHandler.NewHandler(ledgerSvc, agg),
		Advice:  adviceHandler.NewHandler(advice.NewSummarizer(ledgerSvc, gen), profiles),
		Profile: profileHandler.NewHandler(profiles),
		Import:  importHandler.NewHandler(importer.NewService(ledgerSvc, nil)),
		Export:  exportHandler.NewHandler(export.NewService(ledgerSvc)),
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, gen: gen}
}

func token(t *testing.T, id string) string {
	t.Helper()

	tok, err := auth.IssueToken(secret, "", auth.Identity{ID: id, DisplayName: "Ada", Email: id + "@example.com"}, time.Hour)
	require.NoError(t, err)

	return tok
}

func (s *testServer) do(t *testing.T, owner, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)

		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, owner))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

type entryJSON struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Active      bool   `json:"active"`
}

type balanceJSON struct {
	Income   []entryJSON `json:"income"`
	Expense  []entryJSON `json:"expense"`
	Net      string      `json:"net"`
	Negative bool        `json:"negative"`
}

func (s *testServer) create(t *testing.T, owner, kind, desc, amount string) entryJSON {
	t.Helper()

	resp, body := s.do(t, owner, http.MethodPost, "/api/v1/entries", map[string]string{
		"kind": kind, "description": desc, "amount": amount,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var e entryJSON
	require.NoError(t, json.Unmarshal(body, &e))

	return e
}

func (s *testServer) balance(t *testing.T, owner string) balanceJSON {
	t.Helper()

	resp, body := s.do(t, owner, http.MethodGet, "/api/v1/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var b balanceJSON
	require.NoError(t, json.Unmarshal(body, &b))

	return b
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, "", http.MethodGet, "/api/v1/entries", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRouter_LedgerLifecycle(t *testing.T) {
	s := newTestServer(t)

	salary := s.create(t, "u1", "income", "Salary", "1000")
	rent := s.create(t, "u1", "expense", "Rent", "400,00")

	assert.Equal(t, "1000.00", salary.Amount)
	assert.True(t, salary.Active)
	assert.Equal(t, "600.00", s.balance(t, "u1").Net)

	resp, body := s.do(t, "u1", http.MethodPut, "/api/v1/entries/"+rent.ID+"/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "1000.00", s.balance(t, "u1").Net)

	resp, body = s.do(t, "u1", http.MethodPost, "/api/v1/entries/"+rent.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "600.00", s.balance(t, "u1").Net)

	resp, body = s.do(t, "u1", http.MethodPatch, "/api/v1/entries/"+rent.ID, map[string]string{"amount": "1200.50", "description": "Rent (new flat)"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated entryJSON
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Rent (new flat)", updated.Description)
	assert.Equal(t, "expense", updated.Kind)

	b := s.balance(t, "u1")
	assert.Equal(t, "-200.50", b.Net)
	assert.True(t, b.Negative)

	resp, body = s.do(t, "u1", http.MethodGet, "/api/v1/entries?kind=income", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var incomes []entryJSON
	require.NoError(t, json.Unmarshal(body, &incomes))
	require.Len(t, incomes, 1)
	assert.Equal(t, salary.ID, incomes[0].ID)

	resp, _ = s.do(t, "u1", http.MethodDelete, "/api/v1/entries/"+salary.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = s.do(t, "u1", http.MethodGet, "/api/v1/entries/"+salary.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, "u1", http.MethodGet, "/api/v1/entries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var all []entryJSON
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 1)
}

func TestRouter_OwnerIsolation(t *testing.T) {
	s := newTestServer(t)

	e := s.create(t, "alice", "expense", "Coffee", "3.20")

	resp, _ := s.do(t, "bob", http.MethodGet, "/api/v1/entries/"+e.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, "bob", http.MethodDelete, "/api/v1/entries/"+e.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, "0.00", s.balance(t, "bob").Net)
	assert.Equal(t, "-3.20", s.balance(t, "alice").Net)
}

func TestRouter_StatusMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"negative amount", http.MethodPost, "/api/v1/entries", map[string]string{"kind": "income", "amount": "-1"}, http.StatusBadRequest},
		{"garbage amount", http.MethodPost, "/api/v1/entries", map[string]string{"kind": "income", "amount": "ten"}, http.StatusBadRequest},
		{"sub-cent amount", http.MethodPost, "/api/v1/entries", map[string]string{"kind": "income", "amount": "0.001"}, http.StatusBadRequest},
		{"missing amount", http.MethodPost, "/api/v1/entries", map[string]string{"kind": "income"}, http.StatusBadRequest},
		{"unknown kind", http.MethodPost, "/api/v1/entries", map[string]string{"kind": "transfer", "amount": "1"}, http.StatusBadRequest},
		{"unknown kind filter", http.MethodGet, "/api/v1/entries?kind=transfer", nil, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/v1/entries", "not an object", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/v1/entries/nope", nil, http.StatusBadRequest},
		{"absent id update", http.MethodPatch, "/api/v1/entries/6f1c1f36-1f9b-4a53-9d43-3c1b2c9d9f00", map[string]string{"description": "x"}, http.StatusNotFound},
		{"absent id toggle", http.MethodPost, "/api/v1/entries/6f1c1f36-1f9b-4a53-9d43-3c1b2c9d9f00/toggle", nil, http.StatusNotFound},
		{"set active without flag", http.MethodPut, "/api/v1/entries/6f1c1f36-1f9b-4a53-9d43-3c1b2c9d9f00/active", map[string]string{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, "u1", tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
		})
	}
}

func TestRouter_Advice(t *testing.T) {
	s := newTestServer(t)

	s.create(t, "u1", "income", "Salary", "1000")
	s.create(t, "u1", "expense", "Rent", "400")

	resp, body := s.do(t, "u1", http.MethodPost, "/api/v1/advice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Outcome     string `json:"outcome"`
		Text        string `json:"text"`
		DisplayText string `json:"display_text"`
		Error       string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "advice", out.Outcome)
	assert.Equal(t, "Save more.\n\nSpend less.", out.DisplayText)

	got := s.gen.requests()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Prompt, "Incomes: Salary (Sum of Income: 1000.00)")
	assert.Contains(t, got[0].Prompt, "I am Ada.")

	s.gen.fail(errors.New("quota exceeded"))

	resp, body = s.do(t, "u1", http.MethodPost, "/api/v1/advice", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "failed", out.Outcome)
	assert.NotContains(t, string(body), "quota")
}

func TestRouter_AdviceChat(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "u1", http.MethodPost, "/api/v1/advice/chat", map[string]any{
		"prompt": "What is this?",
		"image":  map[string]string{"mime_type": "image/png", "data": "iVBORw0K"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	got := s.gen.requests()
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Image)
	assert.Equal(t, "image/png", got[0].Image.MIMEType)

	resp, _ = s.do(t, "u1", http.MethodPost, "/api/v1/advice/chat", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_Profile(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "u1", http.MethodPatch, "/api/v1/profile", map[string]string{"display_name": "Countess"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))

	resp, body = s.do(t, "u1", http.MethodGet, "/api/v1/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"display_name":"Ada"`)

	resp, body = s.do(t, "u1", http.MethodPatch, "/api/v1/profile", map[string]string{"display_name": "Countess"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"display_name":"Countess"`)

	// Reading the profile mirrors the token again without undoing the edit.
	resp, body = s.do(t, "u1", http.MethodGet, "/api/v1/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"display_name":"Countess"`)

	// Local edits win over the token claim in the advice prompt.
	s.do(t, "u1", http.MethodPost, "/api/v1/advice", nil)
	got := s.gen.requests()
	require.NotEmpty(t, got)
	assert.Contains(t, got[len(got)-1].Prompt, "I am Countess.")

	resp, _ = s.do(t, "u1", http.MethodDelete, "/api/v1/profile", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func (s *testServer) upload(t *testing.T, owner, csv string) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "entries.csv")
	require.NoError(t, err)

	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/import", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, owner))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func TestRouter_Import(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.upload(t, "u1", "type;amount;description\nincome;10;a\nexpense;x;b\nexpense;-1;c\n")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"line":3`)
	assert.Contains(t, string(body), `"line":4`)
	assert.Equal(t, "0.00", s.balance(t, "u1").Net)

	resp, body = s.upload(t, "u1", "type;amount;description\nincome;10;a\nexpense;2,5;b\n")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"imported":2`)
	assert.Equal(t, "7.50", s.balance(t, "u1").Net)
}

func TestRouter_ExportThenImport(t *testing.T) {
	s := newTestServer(t)

	s.create(t, "u1", "income", "Salary", "1000")
	rent := s.create(t, "u1", "expense", "Rent", "400")

	resp, _ := s.do(t, "u1", http.MethodPost, "/api/v1/entries/"+rent.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, "u1", http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "expense,Rent,400.00,false")

	resp, _ = s.upload(t, "u2", string(body))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "1000.00", s.balance(t, "u2").Net)

	resp, body = s.do(t, "u1", http.MethodGet, "/api/v1/export/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("PK")))

	resp, body = s.do(t, "u1", http.MethodGet, "/api/v1/export/xlsx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, bytes.HasPrefix(body, []byte("PK")))
}

func TestRouter_BalanceStream(t *testing.T) {
	s := newTestServer(t)

	s.create(t, "u1", "income", "Salary", "100")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL+"/api/v1/balance/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, "u1"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(ctx, bufio.NewReader(resp.Body))

	first := <-events
	assert.Equal(t, "100.00", first.Net)

	s.create(t, "u1", "expense", "Lunch", "12.5")

	// Snapshots coalesce, so wait for the one that includes the expense.
	for b := range events {
		if b.Net == "87.50" {
			return
		}
	}

	t.Fatal("stream closed before the updated balance arrived")
}

func readEvents(ctx context.Context, r *bufio.Reader) <-chan balanceJSON {
	out := make(chan balanceJSON)

	go func() {
		defer close(out)

		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}

			data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
			if !ok {
				continue
			}

			var b balanceJSON
			if json.Unmarshal([]byte(data), &b) != nil {
				continue
			}

			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
