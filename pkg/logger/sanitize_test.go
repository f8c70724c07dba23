package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("password=hunter2"))
	assert.True(t, SanitizeQueryString("next=/home&TOKEN=abc"))
	assert.False(t, SanitizeQueryString("page=2&sort=name"))
	assert.False(t, SanitizeQueryString(""))
}

func TestMaskedEmail(t *testing.T) {
	assert.Equal(t, "a****@*******.com", MaskedEmail("admin@example.com"))
	assert.Equal(t, "[invalid-email]", MaskedEmail("not-an-email"))
}
