package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	domainauth "github.com/matiasleandrokruk/chatroute/internal/domain/auth"
	pkgauth "github.com/matiasleandrokruk/chatroute/pkg/auth"
)

func newAuthHandler(t *testing.T) *AuthHandler {
	t.Helper()
	return NewAuthHandler(domainauth.NewAuthService(mustOpenDB(t), nil))
}

// ===== REGISTER =====

func TestAuthHandler_Register_Success(t *testing.T) {
	t.Parallel()

	h := newAuthHandler(t)
	rr := httptest.NewRecorder()
	h.Register(rr, jsonRequest(t, http.MethodPost, "/auth/register", CredentialsRequest{Username: "alice", Password: "pw"}))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[TokenResponse](t, rr)
	if resp.TokenType != "bearer" || resp.Username != "alice" {
		t.Errorf("unexpected response: %+v", resp)
	}
	claims, err := pkgauth.ParseJWT(resp.AccessToken)
	if err != nil || claims.Username != "alice" {
		t.Errorf("token does not identify alice: %v", err)
	}
}

func TestAuthHandler_Register_Duplicate(t *testing.T) {
	t.Parallel()

	h := newAuthHandler(t)
	body := CredentialsRequest{Username: "alice", Password: "pw"}
	h.Register(httptest.NewRecorder(), jsonRequest(t, http.MethodPost, "/auth/register", body))

	rr := httptest.NewRecorder()
	h.Register(rr, jsonRequest(t, http.MethodPost, "/auth/register", body))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestAuthHandler_Register_BadInput(t *testing.T) {
	t.Parallel()

	h := newAuthHandler(t)
	cases := map[string]*http.Request{
		"invalid json":  httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{")),
		"missing pw":    jsonRequest(t, http.MethodPost, "/auth/register", CredentialsRequest{Username: "a"}),
		"slash in name": jsonRequest(t, http.MethodPost, "/auth/register", CredentialsRequest{Username: "a/b", Password: "pw"}),
		"missing user":  jsonRequest(t, http.MethodPost, "/auth/register", CredentialsRequest{Password: "pw"}),
	}
	for name, req := range cases {
		rr := httptest.NewRecorder()
		h.Register(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

// ===== LOGIN =====

func TestAuthHandler_Login_JSONAndForm(t *testing.T) {
	t.Parallel()

	h := newAuthHandler(t)
	h.Register(httptest.NewRecorder(), jsonRequest(t, http.MethodPost, "/auth/register", CredentialsRequest{Username: "alice", Password: "pw"}))

	rr := httptest.NewRecorder()
	h.Login(rr, jsonRequest(t, http.MethodPost, "/auth/login", CredentialsRequest{Username: "alice", Password: "pw"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("json login: expected 200, got %d", rr.Code)
	}

	form := url.Values{"username": {"alice"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	h.Login(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("form login: expected 200, got %d", rr.Code)
	}
	if resp := decodeBody[TokenResponse](t, rr); resp.AccessToken == "" {
		t.Error("form login returned no token")
	}
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	t.Parallel()

	h := newAuthHandler(t)
	h.Register(httptest.NewRecorder(), jsonRequest(t, http.MethodPost, "/auth/register", CredentialsRequest{Username: "alice", Password: "pw"}))

	for _, creds := range []CredentialsRequest{
		{Username: "alice", Password: "nope"},
		{Username: "ghost", Password: "pw"},
	} {
		rr := httptest.NewRecorder()
		h.Login(rr, jsonRequest(t, http.MethodPost, "/auth/login", creds))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", creds.Username, rr.Code)
		}
	}
}
