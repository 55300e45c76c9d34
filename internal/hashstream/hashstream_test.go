package hashstream

import (
	"encoding/base64"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_CRC32CMatch(t *testing.T) {
	data := []byte("hello")

	s := New()
	n, err := s.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	sum := crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))
	raw := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	expected := base64.StdEncoding.EncodeToString(raw)

	assert.True(t, s.Test(CRC32C, expected))
}

func TestStream_CRC32C_8ByteServerEncoding(t *testing.T) {
	data := []byte("hello")

	s := New()
	_, _ = s.Write(data)

	sum := crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))
	// Server emits 8 bytes; only the trailing 4 are the real CRC32C.
	raw := []byte{0xAA, 0xBB, 0xCC, 0xDD, byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	expected := base64.StdEncoding.EncodeToString(raw)

	assert.True(t, s.Test(CRC32C, expected))
}

func TestStream_MD5Mismatch(t *testing.T) {
	s := New()
	_, _ = s.Write([]byte("hellx"))

	assert.False(t, s.Test(MD5, "XUFAKrxLKna5cZ2REBfFkg=="))
}

func TestStream_Backpressure_NoInternalBuffering(t *testing.T) {
	s := New()

	for i := 0; i < 3; i++ {
		n, err := s.Write([]byte{byte(i)})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	assert.NotEmpty(t, s.SumCRC32C())
	assert.NotEmpty(t, s.SumMD5())
}

func TestDecodeCRC32C_InvalidLength(t *testing.T) {
	_, ok := decodeCRC32C(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	assert.False(t, ok)
}
