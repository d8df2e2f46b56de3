package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/matiasleandrokruk/chatroute/internal/domain/generation"
	"github.com/matiasleandrokruk/chatroute/internal/domain/settings"
)

// SettingsHandler exposes the generation configuration record.
type SettingsHandler struct {
	store *settings.Store
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// SettingsRequest is the body of PUT /api/v1/settings. Omitted or null fields
// keep their stored value. mode wins over the legacy isLocal/isApi pair;
// domainName is the legacy spelling of providerName.
type SettingsRequest struct {
	Mode         *string  `json:"mode"`
	IsLocal      *bool    `json:"isLocal"`
	IsAPI        *bool    `json:"isApi"`
	ProviderName *string  `json:"providerName"`
	DomainName   *string  `json:"domainName"`
	ModelName    *string  `json:"modelName"`
	APIKey       *string  `json:"apiKey"`
	Temperature  *float64 `json:"temperature"`
	SystemPrompt *string  `json:"systemPrompt"`
}

// SettingsResponse never carries the raw credential.
type SettingsResponse struct {
	Mode         string    `json:"mode"`
	IsLocal      bool      `json:"isLocal"`
	IsAPI        bool      `json:"isApi"`
	ProviderName string    `json:"providerName"`
	DomainName   string    `json:"domainName"`
	ModelName    string    `json:"modelName"`
	APIKey       string    `json:"apiKey"`
	Temperature  *float64  `json:"temperature"`
	SystemPrompt string    `json:"systemPrompt"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

func toSettingsResponse(s settings.Settings) SettingsResponse {
	return SettingsResponse{
		Mode:         s.Mode.String(),
		IsLocal:      s.Mode == generation.ModeLocal,
		IsAPI:        s.Mode == generation.ModeRemoteAPI,
		ProviderName: s.ProviderName,
		DomainName:   s.ProviderName,
		ModelName:    s.ModelName,
		APIKey:       generation.MaskSecret(s.APIKey),
		Temperature:  s.Temperature,
		SystemPrompt: s.SystemPrompt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (req SettingsRequest) toUpdate() settings.Update {
	u := settings.Update{
		IsLocal:      req.IsLocal,
		IsAPI:        req.IsAPI,
		ProviderName: req.ProviderName,
		ModelName:    req.ModelName,
		APIKey:       req.APIKey,
		Temperature:  req.Temperature,
		SystemPrompt: req.SystemPrompt,
	}
	if req.Mode != nil {
		m := generation.Mode(*req.Mode)
		u.Mode = &m
	}
	if u.ProviderName == nil {
		u.ProviderName = req.DomainName
	}
	return u
}

// Get handles GET /api/v1/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}

// Update handles PUT /api/v1/settings.
//
// Response codes:
//   - 200 OK: updated record (credential masked)
//   - 400 Bad Request: invalid body, ambiguous mode flags, bad temperature
//   - 500 Internal Server Error: unexpected failure
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.store.Update(r.Context(), req.toUpdate())
	if err != nil {
		if errors.Is(err, settings.ErrInvalidUpdate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}

// Delete handles DELETE /api/v1/settings: the record returns to the
// unconfigured state.
func (h *SettingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "settings reset"})
}
