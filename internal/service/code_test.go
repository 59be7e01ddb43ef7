package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerificationCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		code, err := generateVerificationCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[1-9][0-9]{5}$`, code)
		assert.Empty(t, ValidateCode(code))
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 450, "codes should be spread across the range")
}
