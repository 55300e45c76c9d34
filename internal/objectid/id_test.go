package objectid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsEmpty(t *testing.T) {
	_, err := New("", "name.txt")
	require.Error(t, err)

	_, err = New("bucket", "")
	require.Error(t, err)
}

func TestEncodedName(t *testing.T) {
	id, err := New("my-bucket", "a dir/b file.txt")
	require.NoError(t, err)

	assert.Equal(t, "a%20dir%2Fb%20file.txt", id.EncodedName())
	assert.Equal(t, "https://storage.googleapis.com/my-bucket/a%20dir%2Fb%20file.txt", id.DownloadURL())
	assert.Equal(t, "/my-bucket/a%20dir%2Fb%20file.txt", id.Resource())
}

func TestWithGeneration(t *testing.T) {
	id, err := New("b", "o")
	require.NoError(t, err)

	_, err = id.WithGeneration(0)
	require.Error(t, err)

	_, err = id.WithGeneration(-5)
	require.Error(t, err)

	scoped, err := id.WithGeneration(42)
	require.NoError(t, err)

	gen, ok := scoped.Generation()
	assert.True(t, ok)
	assert.Equal(t, int64(42), gen)

	_, ok = id.Generation()
	assert.False(t, ok, "original ID must remain unscoped")
}

func TestString(t *testing.T) {
	id, err := New("b", "o")
	require.NoError(t, err)
	assert.Equal(t, "gs://b/o", id.String())

	scoped, err := id.WithGeneration(7)
	require.NoError(t, err)
	assert.Equal(t, "gs://b/o#7", scoped.String())
}
