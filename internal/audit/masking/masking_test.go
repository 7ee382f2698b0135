package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j****@example.com", MaskEmail("jane.doe@example.com"))
	assert.Equal(t, "a****@example.com", MaskEmail("a@example.com"))
	assert.Equal(t, "****", MaskEmail("not-an-email"))
	assert.Equal(t, "****", MaskEmail(""))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****6789", MaskSecret("123456789"))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "", MaskSecret(""))
}
