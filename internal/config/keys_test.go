package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := Default()

	_, err := APIKey(cfg)
	assert.ErrorIs(t, err, ErrNoAPIKey)
	assert.Equal(t, KeySourceNone, APIKeySource(cfg))

	cfg.Anthropic.APIKey = "${TG_UNSET_KEY}"
	assert.Equal(t, KeySourceNone, APIKeySource(cfg))

	cfg.Anthropic.APIKey = "sk-ant-config-key-123456"
	key, err := APIKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-config-key-123456", key)
	assert.Equal(t, KeySourceConfig, APIKeySource(cfg))

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key-1234567")
	key, err = APIKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-env-key-1234567", key)
	assert.Equal(t, KeySourceEnv, APIKeySource(nil))
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"", true},
		{"sk-live-1234567890abcdef", true},
		{"sk-ant-123", true},
		{"sk-ant-api03-1234567890", false},
	}
	for _, tt := range tests {
		err := ValidateAPIKey(tt.key)
		assert.Equal(t, tt.wantErr, err != nil, "key %q", tt.key)
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "(not set)", MaskAPIKey(""))
	assert.Equal(t, "***", MaskAPIKey("sk-ant-short"))
	assert.Equal(t, "sk-ant-...wxyz", MaskAPIKey("sk-ant-api03-abcdwxyz"))
}
