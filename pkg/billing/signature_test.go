package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billstate/billstate/pkg/billing"
)

func TestSignatureVerifier(t *testing.T) {
	t.Parallel()

	verifier := billing.NewSignatureVerifier("whsec_test")
	payload := []byte(`{"event":"subscription.charged","created_at":100}`)

	t.Run("valid signature", func(t *testing.T) {
		t.Parallel()
		sig := verifier.Sign(payload)
		assert.True(t, verifier.Verify(payload, sig))
	})

	t.Run("missing header", func(t *testing.T) {
		t.Parallel()
		assert.False(t, verifier.Verify(payload, ""))
	})

	t.Run("empty payload", func(t *testing.T) {
		t.Parallel()
		assert.False(t, verifier.Verify(nil, verifier.Sign(payload)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		other := billing.NewSignatureVerifier("whsec_other")
		assert.False(t, verifier.Verify(payload, other.Sign(payload)))
	})

	t.Run("any single byte mutation breaks the signature", func(t *testing.T) {
		t.Parallel()
		sig := verifier.Sign(payload)
		for i := range payload {
			mutated := make([]byte, len(payload))
			copy(mutated, payload)
			mutated[i] ^= 0x01
			require.False(t, verifier.Verify(mutated, sig), "mutation at byte %d accepted", i)
		}
	})

	t.Run("empty secret panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { billing.NewSignatureVerifier("") })
	})
}
