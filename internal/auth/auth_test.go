package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

var ada = Identity{ID: "uid-1", DisplayName: "Ada", Email: "ada@example.com", PictureURL: "https://example.com/ada.png"}

func TestVerifier_Verify(t *testing.T) {
	valid, err := IssueToken(secret, "pocketfin", ada, time.Hour)
	require.NoError(t, err)

	expired, err := IssueToken(secret, "pocketfin", ada, -time.Minute)
	require.NoError(t, err)

	wrongKey, err := IssueToken("other", "pocketfin", ada, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := IssueToken(secret, "someone-else", ada, time.Hour)
	require.NoError(t, err)

	noSubject, err := IssueToken(secret, "pocketfin", Identity{DisplayName: "ghost"}, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "uid-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    *Identity
		wantErr error
	}{
		{name: "valid", token: valid, want: &ada},
		{name: "empty", token: "", wantErr: ErrMissingToken},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrInvalidToken},
		{name: "expired", token: expired, wantErr: ErrInvalidToken},
		{name: "wrong key", token: wrongKey, wantErr: ErrInvalidToken},
		{name: "wrong issuer", token: otherIssuer, wantErr: ErrInvalidToken},
		{name: "no subject", token: noSubject, wantErr: ErrInvalidToken},
		{name: "alg none", token: none, wantErr: ErrInvalidToken},
	}

	v := NewVerifier(secret, "pocketfin")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(tt.token)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifier_IssuerOptional(t *testing.T) {
	token, err := IssueToken(secret, "anyone", ada, time.Hour)
	require.NoError(t, err)

	got, err := NewVerifier(secret, "").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", got.ID)
}

func TestVerifier_Middleware(t *testing.T) {
	v := NewVerifier(secret, "")

	var seen string

	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OwnerID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := IssueToken(secret, "", ada, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantOwner  string
	}{
		{name: "valid bearer", header: "Bearer " + token, wantStatus: http.StatusNoContent, wantOwner: "uid-1"},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOwner, seen)
		})
	}
}

func TestFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := FromContext(req.Context())
	assert.False(t, ok)
	assert.Empty(t, OwnerID(req.Context()))
}
