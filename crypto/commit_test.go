package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSalt() [SaltSize]byte {
	var s [SaltSize]byte
	for i := range s {
		s[i] = byte(i * 7)
	}
	return s
}

func TestCommitRoundTrip(t *testing.T) {
	for _, h := range []HashFunc{SHA256, BLAKE2b256} {
		c := NewCommitter(h)
		salt := testSalt()
		for move := uint32(1); move <= 3; move++ {
			d := c.Commit(move, salt)
			assert.Equal(t, d, c.Commit(move, salt), "deterministic")
			assert.True(t, c.Verify(move, salt, d))
		}
	}
}

func TestCommitBitFlipSensitivity(t *testing.T) {
	c := NewCommitter(nil)
	salt := testSalt()
	d := c.Commit(2, salt)

	for bit := 0; bit < 32; bit++ {
		assert.False(t, c.Verify(2^(1<<bit), salt, d), "move bit %d", bit)
	}
	for i := 0; i < SaltSize; i++ {
		for bit := 0; bit < 8; bit++ {
			flipped := salt
			flipped[i] ^= 1 << bit
			assert.False(t, c.Verify(2, flipped, d), "salt byte %d bit %d", i, bit)
		}
	}
	bad := d
	bad[31] ^= 1
	assert.False(t, c.Verify(2, salt, bad))
}

func TestCommitPreimageLayout(t *testing.T) {
	salt := testSalt()
	pre := append([]byte{0, 0, 0, 3}, salt[:]...)
	require.Len(t, pre, CommitInputSize)
	assert.Equal(t, SHA256(pre), NewCommitter(nil).Commit(3, salt))

	// SHA-256 of BE32(1) followed by 32 zero bytes.
	var zero [SaltSize]byte
	got := NewCommitter(SHA256).Commit(1, zero)
	want := SHA256(append([]byte{0, 0, 0, 1}, zero[:]...))
	assert.Equal(t, hex.EncodeToString(want[:]), hex.EncodeToString(got[:]))
}

func TestHashByName(t *testing.T) {
	h, err := HashByName("")
	require.NoError(t, err)
	assert.Equal(t, SHA256([]byte("x")), h([]byte("x")))

	h, err = HashByName("blake2b")
	require.NoError(t, err)
	assert.Equal(t, BLAKE2b256([]byte("x")), h([]byte("x")))

	_, err = HashByName("md5")
	assert.Error(t, err)
}
