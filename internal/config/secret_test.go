package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretStringRedacts(t *testing.T) {
	var empty Secret
	assert.Equal(t, "", empty.String())

	s := Secret("top-secret")
	assert.Equal(t, "[REDACTED]", s.String())
}

func TestSecretMarshalJSONRedacts(t *testing.T) {
	s := Secret("top-secret")
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(b))
}

func TestSecretMarshalYAMLRedacts(t *testing.T) {
	s := Secret("top-secret")
	v, err := s.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", v)

	var empty Secret
	v, err = empty.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "", v)
}
