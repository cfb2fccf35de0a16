package otp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_generateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generateCode() error = %v", err)
		}
		if !IsWellFormedCode(code) {
			t.Fatalf("generateCode() = %q, not a 6-digit code", code)
		}
		if code[0] == '0' {
			t.Fatalf("generateCode() = %q, leading zero", code)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes must vary")
}

func TestIsWellFormedCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{code: "123456", want: true},
		{code: "100000", want: true},
		{code: "999999", want: true},
		{code: "12345"},
		{code: "1234567"},
		{code: "12a456"},
		{code: " 123456"},
		{code: "１２３４５６"}, // fullwidth digits
		{code: ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWellFormedCode(tt.code))
		})
	}
}

func Test_codeSigner(t *testing.T) {
	signer := newCodeSigner("secret")
	hash := signer.sign("challenge-1", "123456")

	assert.True(t, signer.verify("challenge-1", "123456", hash))
	assert.False(t, signer.verify("challenge-1", "654321", hash), "other code")
	assert.False(t, signer.verify("challenge-2", "123456", hash), "other challenge")
	assert.False(t, newCodeSigner("other secret").verify("challenge-1", "123456", hash), "other key")
	assert.NotEqual(t, hash, signer.sign("challenge-2", "123456"), "same code, different challenge")
}

func Test_humanizeDuration(t *testing.T) {
	assert.Equal(t, "10 minutes", humanizeDuration(10*time.Minute))
	assert.Equal(t, "1 minute", humanizeDuration(time.Minute))
	assert.Equal(t, "1m30s", humanizeDuration(90*time.Second))
}
