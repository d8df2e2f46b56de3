package generation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMode(t *testing.T) {
	t.Parallel()

	m, err := ResolveMode(true, false)
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, m)

	m, err = ResolveMode(false, true)
	require.NoError(t, err)
	assert.Equal(t, ModeRemoteAPI, m)

	m, err = ResolveMode(false, false)
	require.NoError(t, err)
	assert.Equal(t, ModeUnconfigured, m)

	_, err = ResolveMode(true, true)
	assert.ErrorIs(t, err, ErrAmbiguousMode)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{
		"":             ModeUnconfigured,
		"unconfigured": ModeUnconfigured,
		"LOCAL":        ModeLocal,
		"remote_api":   ModeRemoteAPI,
		"api":          ModeRemoteAPI,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("cloud")
	assert.Error(t, err)
}

func TestConfiguration_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Configuration
		ok   bool
	}{
		{"unconfigured", Configuration{}, true},
		{"local ok", Configuration{Mode: ModeLocal, ModelID: "echo"}, true},
		{"local missing model", Configuration{Mode: ModeLocal}, false},
		{"remote ok", Configuration{Mode: ModeRemoteAPI, ProviderName: "huggingface", ModelID: "gpt2", Credential: "k"}, true},
		{"remote missing credential", Configuration{Mode: ModeRemoteAPI, ProviderName: "huggingface", ModelID: "gpt2"}, false},
		{"remote missing provider", Configuration{Mode: ModeRemoteAPI, ModelID: "gpt2", Credential: "k"}, false},
		{"bad temperature", Configuration{Mode: ModeLocal, ModelID: "echo", Temperature: ptr(3.5)}, false},
		{"unknown mode", Configuration{Mode: Mode("gpu")}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok {
			assert.NoError(t, err, tc.name)
		} else {
			assert.ErrorIs(t, err, ErrInvalidConfig, tc.name)
		}
	}
}

func TestConfiguration_EffectiveTemperature(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.7, Configuration{}.EffectiveTemperature(), 1e-9)
	assert.InDelta(t, 0.0, Configuration{Temperature: ptr(0.0)}.EffectiveTemperature(), 1e-9)
	assert.InDelta(t, 1.2, Configuration{Temperature: ptr(1.2)}.EffectiveTemperature(), 1e-9)
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "****cdef", MaskSecret("hf_0123456789abcdef"))
}

func TestConfiguration_StringMasksCredential(t *testing.T) {
	t.Parallel()

	cfg := Configuration{Mode: ModeRemoteAPI, ProviderName: "huggingface", ModelID: "gpt2", Credential: "hf_supersecret_value"}
	s := fmt.Sprintf("%v", cfg)
	assert.NotContains(t, s, "hf_supersecret_value")
	assert.Contains(t, s, "****alue")
}

func TestStaticConfig(t *testing.T) {
	t.Parallel()

	cfg, err := StaticConfig{Mode: ModeLocal, ModelID: "echo"}.CurrentConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, cfg.Mode)
}
