package admintoken

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	assert.True(t, Verify("s3cret", encoded))
	assert.False(t, Verify("s3cret ", encoded))
	assert.False(t, Verify("s3cret", "$argon2i$v=19$m=1,t=1,p=1$AA$AA"))
	assert.False(t, Verify("s3cret", "not-a-hash"))

	other, err := Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, other)
}

func TestChecker(t *testing.T) {
	c, err := NewChecker("", "")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.False(t, c.Check("anything"))

	c, err = NewChecker("admin-token", "")
	require.NoError(t, err)
	assert.True(t, c.Check("admin-token"))
	assert.False(t, c.Check("admin"))
	assert.False(t, c.Check(""))

	encoded, err := Hash("hashed-token")
	require.NoError(t, err)
	c, err = NewChecker("admin-token", encoded)
	require.NoError(t, err)
	assert.True(t, c.Check("hashed-token"))
	assert.False(t, c.Check("admin-token"))

	_, err = NewChecker("", "$argon2id$v=19$m=x")
	require.Error(t, err)
}
