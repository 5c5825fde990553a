package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMd5ThenHex(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Md5ThenHex(nil))
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", Md5ThenHex([]byte("abc")))
}
