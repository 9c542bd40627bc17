package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSign_Deterministic(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event":"job.completed","job_id":"abc"}`)
	first := Sign("secret-1", payload)
	second := Sign("secret-1", payload)
	require.Equal(t, first, second)
	require.Len(t, first, 64) // hex sha256
	require.True(t, VerifySignature("secret-1", payload, first))
}

func TestSign_PayloadByteFlipChangesSignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event":"job.completed","job_id":"abc"}`)
	sig := Sign("secret-1", payload)

	altered := make([]byte, len(payload))
	copy(altered, payload)
	altered[len(altered)-2] ^= 1

	require.NotEqual(t, sig, Sign("secret-1", altered))
	require.False(t, VerifySignature("secret-1", altered, sig))
}

func TestSign_SecretMatters(t *testing.T) {
	t.Parallel()

	payload := []byte("payload")
	require.NotEqual(t, Sign("secret-1", payload), Sign("secret-2", payload))
}
