package handlers

import (
	"errors"
	"net/http"
	"strings"

	domainauth "github.com/matiasleandrokruk/chatroute/internal/domain/auth"
)

// AuthHandler handles the public register and login endpoints.
type AuthHandler struct {
	authService domainauth.AuthService
}

// NewAuthHandler creates a new AuthHandler backed by the provided AuthService.
func NewAuthHandler(authService domainauth.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// CredentialsRequest is the body of POST /auth/register and POST /auth/login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned after a successful register or login. The field
// names follow the OAuth2 password flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
}

// Register handles POST /auth/register.
//
// Response codes:
//   - 201 Created: registration successful
//   - 400 Bad Request: invalid body or username/password rejected
//   - 409 Conflict: username already registered
//   - 500 Internal Server Error: unexpected failure
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := readCredentials(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.Register(r.Context(), domainauth.RegisterInput{
		Username: req.Username,
		Password: req.Password,
	})
	switch {
	case errors.Is(err, domainauth.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username already registered")
		return
	case errors.Is(err, domainauth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, TokenResponse{
		AccessToken: result.Token,
		TokenType:   "bearer",
		Username:    result.Username,
	})
}

// Login handles POST /auth/login. It accepts a JSON body or the
// form-encoded username/password of the OAuth2 password flow.
//
// Response codes:
//   - 200 OK: login successful
//   - 400 Bad Request: invalid body or missing fields
//   - 401 Unauthorized: invalid credentials (same answer for unknown users)
//   - 500 Internal Server Error: unexpected failure
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := readCredentials(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.Login(r.Context(), domainauth.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, domainauth.ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "incorrect username or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: result.Token,
		TokenType:   "bearer",
		Username:    result.Username,
	})
}

// readCredentials reads a JSON or form-encoded body and checks that both
// fields are present.
func readCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, error) {
	var req CredentialsRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return req, errors.New("invalid request body")
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		return req, errors.New("invalid request body")
	}

	if req.Username == "" {
		return req, errors.New("username is required")
	}
	if req.Password == "" {
		return req, errors.New("password is required")
	}
	return req, nil
}
