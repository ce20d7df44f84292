package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Valid 32-byte key in hex (64 chars)
const testAESKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestAESEncryptionService_NewInvalidKey(t *testing.T) {
	_, err := NewAESEncryptionService("shortkey")
	assert.Error(t, err)

	_, err = NewAESEncryptionService("zz")
	assert.Error(t, err)
}

func TestAESEncryptionService_EncryptDecrypt(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	plaintext := "JBSWY3DPEHPK3PXP"
	ciphertext, err := svc.Encrypt(plaintext, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := svc.Decrypt(ciphertext, "user-1")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESEncryptionService_DifferentNonces(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	c1, err := svc.Encrypt("secret", "user-1")
	require.NoError(t, err)
	c2, err := svc.Encrypt("secret", "user-1")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2, "same plaintext should produce different ciphertext due to random nonce")

	d1, _ := svc.Decrypt(c1, "user-1")
	d2, _ := svc.Decrypt(c2, "user-1")
	assert.Equal(t, d1, d2)
}

func TestAESEncryptionService_WrongAssociatedData(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("secret", "user-1")
	require.NoError(t, err)

	_, err = svc.Decrypt(ciphertext, "user-2")
	assert.Error(t, err, "secret sealed for one wallet must not open for another")
}

func TestAESEncryptionService_TamperedCiphertext(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("secret", "user-1")
	require.NoError(t, err)

	last := ciphertext[len(ciphertext)-2:]
	flipped := "ff"
	if last == "ff" {
		flipped = "00"
	}
	_, err = svc.Decrypt(ciphertext[:len(ciphertext)-2]+flipped, "user-1")
	assert.Error(t, err)
}

func TestAESEncryptionService_WrongKey(t *testing.T) {
	svc1, _ := NewAESEncryptionService(testAESKey)
	otherKey := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	svc2, _ := NewAESEncryptionService(otherKey)

	ciphertext, err := svc1.Encrypt("secret", "user-1")
	require.NoError(t, err)

	_, err = svc2.Decrypt(ciphertext, "user-1")
	assert.Error(t, err)
}

func TestAESEncryptionService_InvalidCiphertext(t *testing.T) {
	svc, _ := NewAESEncryptionService(testAESKey)

	_, err := svc.Decrypt("not-hex-at-all!!!", "")
	assert.Error(t, err)

	_, err = svc.Decrypt("abcdef", "")
	assert.Error(t, err)
}
