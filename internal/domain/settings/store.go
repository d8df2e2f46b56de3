// Package settings persists the single generation configuration record.
// The record is re-read on every prompt, so a write through the settings API
// takes effect on the next prompt of every open session.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matiasleandrokruk/chatroute/internal/domain/generation"
)

// ErrInvalidUpdate wraps rejected partial updates.
var ErrInvalidUpdate = errors.New("settings: invalid update")

const recordID = 1

// Settings is the stored generation configuration.
type Settings struct {
	Mode         generation.Mode
	ProviderName string
	ModelName    string
	APIKey       string
	Temperature  *float64
	SystemPrompt string
	UpdatedAt    time.Time
}

// Configuration converts the stored record into the value the dispatcher
// reads.
func (s Settings) Configuration() generation.Configuration {
	return generation.Configuration{
		Mode:         s.Mode,
		ProviderName: s.ProviderName,
		ModelID:      s.ModelName,
		Credential:   s.APIKey,
		Temperature:  s.Temperature,
		SystemPrompt: s.SystemPrompt,
	}
}

// Update is a partial update: nil fields keep their stored value. Mode wins
// over the legacy IsLocal/IsAPI pair when both are given.
type Update struct {
	Mode         *generation.Mode
	IsLocal      *bool
	IsAPI        *bool
	ProviderName *string
	ModelName    *string
	APIKey       *string
	Temperature  *float64
	SystemPrompt *string
}

// Apply returns cur with the update applied.
func (u Update) Apply(cur Settings) (Settings, error) {
	next := cur
	switch {
	case u.Mode != nil:
		m, err := generation.ParseMode(string(*u.Mode))
		if err != nil {
			return cur, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
		next.Mode = m
	case u.IsLocal != nil || u.IsAPI != nil:
		isLocal := cur.Mode == generation.ModeLocal
		isAPI := cur.Mode == generation.ModeRemoteAPI
		if u.IsLocal != nil {
			isLocal = *u.IsLocal
		}
		if u.IsAPI != nil {
			isAPI = *u.IsAPI
		}
		// Setting one flag alone switches modes; both true is ambiguous.
		if u.IsLocal != nil && u.IsAPI == nil && isLocal {
			isAPI = false
		}
		if u.IsAPI != nil && u.IsLocal == nil && isAPI {
			isLocal = false
		}
		m, err := generation.ResolveMode(isLocal, isAPI)
		if err != nil {
			return cur, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
		next.Mode = m
	}
	if u.ProviderName != nil {
		next.ProviderName = strings.TrimSpace(*u.ProviderName)
	}
	if u.ModelName != nil {
		next.ModelName = strings.TrimSpace(*u.ModelName)
	}
	if u.APIKey != nil {
		next.APIKey = *u.APIKey
	}
	if u.Temperature != nil {
		t := *u.Temperature
		if t < 0 || t > 2 {
			return cur, fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidUpdate)
		}
		next.Temperature = &t
	}
	if u.SystemPrompt != nil {
		next.SystemPrompt = *u.SystemPrompt
	}
	return next, nil
}

// Store is the SQLite-backed settings record. It implements
// generation.ConfigProvider.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ generation.ConfigProvider = (*Store)(nil)

// EnsureDefault creates the empty (unconfigured) record if it is missing.
func (s *Store) EnsureDefault(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO setting (id, updated_at) VALUES (?, ?)`,
		recordID, now())
	if err != nil {
		return fmt.Errorf("settings: ensure default: %w", err)
	}
	return nil
}

// Get returns the stored record. A missing record reads as the zero
// (unconfigured) Settings.
func (s *Store) Get(ctx context.Context) (Settings, error) {
	return get(ctx, s.db)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q queryer) (Settings, error) {
	var (
		out       Settings
		mode      string
		temp      sql.NullFloat64
		updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT mode, provider_name, model_name, api_key, temperature, system_prompt, updated_at
		FROM setting WHERE id = ?
	`, recordID).Scan(&mode, &out.ProviderName, &out.ModelName, &out.APIKey, &temp, &out.SystemPrompt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: get: %w", err)
	}
	out.Mode = generation.Mode(mode)
	if temp.Valid {
		t := temp.Float64
		out.Temperature = &t
	}
	out.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return out, nil
}

// Update applies u to the stored record in one transaction and returns the
// result.
func (s *Store) Update(ctx context.Context, u Update) (Settings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := get(ctx, tx)
	if err != nil {
		return Settings{}, err
	}
	next, err := u.Apply(cur)
	if err != nil {
		return Settings{}, err
	}
	var temp sql.NullFloat64
	if next.Temperature != nil {
		temp = sql.NullFloat64{Float64: *next.Temperature, Valid: true}
	}
	stamp := now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO setting (id, mode, provider_name, model_name, api_key, temperature, system_prompt, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			mode = excluded.mode,
			provider_name = excluded.provider_name,
			model_name = excluded.model_name,
			api_key = excluded.api_key,
			temperature = excluded.temperature,
			system_prompt = excluded.system_prompt,
			updated_at = excluded.updated_at
	`, recordID, string(next.Mode), next.ProviderName, next.ModelName, next.APIKey, temp, next.SystemPrompt, stamp)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Settings{}, fmt.Errorf("settings: commit: %w", err)
	}
	next.UpdatedAt, _ = time.Parse(time.RFC3339Nano, stamp)
	return next, nil
}

// Reset returns the record to the unconfigured state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO setting (id, updated_at) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET
			mode = '', provider_name = '', model_name = '', api_key = '',
			temperature = NULL, system_prompt = '', updated_at = excluded.updated_at
	`, recordID, now())
	if err != nil {
		return fmt.Errorf("settings: reset: %w", err)
	}
	return nil
}

// CurrentConfig implements generation.ConfigProvider.
func (s *Store) CurrentConfig(ctx context.Context) (generation.Configuration, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return generation.Configuration{}, err
	}
	return st.Configuration(), nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
