package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifier(t *testing.T) {
	v := NewVerifier("whsec_test")
	body := []byte(`{"event":"payment_confirmed"}`)

	sig := v.Sign(body)
	assert.NoError(t, v.Verify(body, sig))
	assert.NoError(t, v.Verify(body, "  "+sig+" "))

	assert.ErrorIs(t, v.Verify(body, ""), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify(body, "sha256=zz"), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify(body, sig[len("sha256="):]), ErrInvalidSignature, "prefix is required")
	assert.ErrorIs(t, v.Verify([]byte(`{"event":"subscription_canceled"}`), sig), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify(body, NewVerifier("other").Sign(body)), ErrInvalidSignature)
}

func TestVerifierDisabled(t *testing.T) {
	v := NewVerifier("")
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify([]byte("anything"), ""))
}
