package builder

import (
	"crypto/aes"
	"crypto/cipher"

	"quiccore/internal/qerr"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
)

// aesGCMKey implements Key over AES-GCM payload protection with AES-ECB
// header protection, the ciphersuite pairing RFC 9001 5.4.3 specifies for
// the AES cipher suites. It is the reference implementation SPEC_FULL.md's
// domain-stack wiring names for tests and for any caller that doesn't
// bring its own crypto collaborator.
type aesGCMKey struct {
	aead  cipher.AEAD
	hpKey cipher.Block
	iv    []byte
}

// NewAESGCMKey derives an AES-GCM Key from a 16- or 32-byte AEAD key, its
// matching header-protection key, and a 12-byte IV.
func NewAESGCMKey(aeadKey, hpKey, iv []byte) (Key, error) {
	block, err := aes.NewCipher(aeadKey)
	if err != nil {
		return nil, qerr.New(qerr.KindEncryptionFailure, err.Error())
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, qerr.New(qerr.KindEncryptionFailure, err.Error())
	}
	hpBlock, err := aes.NewCipher(hpKey)
	if err != nil {
		return nil, qerr.New(qerr.KindEncryptionFailure, err.Error())
	}
	return &aesGCMKey{aead: aead, hpKey: hpBlock, iv: append([]byte{}, iv...)}, nil
}

func (k *aesGCMKey) Seal(dst, nonce, plaintext, ad []byte) []byte {
	return k.aead.Seal(dst, nonce, plaintext, ad)
}

func (k *aesGCMKey) Open(dst, nonce, ciphertext, ad []byte) ([]byte, error) {
	out, err := k.aead.Open(dst, nonce, ciphertext, ad)
	if err != nil {
		return nil, qerr.New(qerr.KindEncryptionFailure, err.Error())
	}
	return out, nil
}

func (k *aesGCMKey) Overhead() int { return k.aead.Overhead() }

func (k *aesGCMKey) IV() []byte { return k.iv }

// HeaderProtectionMask computes mask = AES-ECB(hp_key, sample)[0:5], per
// RFC 9001 5.4.3. sample must be exactly protocol.SampleLength bytes.
func (k *aesGCMKey) HeaderProtectionMask(sample []byte) ([]byte, error) {
	if len(sample) != k.hpKey.BlockSize() {
		return nil, qerr.New(qerr.KindEncryptionFailure, "header protection sample has the wrong length")
	}
	out := make([]byte, k.hpKey.BlockSize())
	k.hpKey.Encrypt(out, sample)
	return out[:5], nil
}

// chacha20Key implements Key over ChaCha20-Poly1305 payload protection
// with the ChaCha20-based header protection RFC 9001 5.4.4 specifies.
type chacha20Key struct {
	aead  cipher.AEAD
	hpKey []byte
	iv    []byte
}

// NewChaCha20Key derives a ChaCha20-Poly1305 Key from a 32-byte AEAD key,
// its matching 32-byte header-protection key, and a 12-byte IV.
func NewChaCha20Key(aeadKey, hpKey, iv []byte) (Key, error) {
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, qerr.New(qerr.KindEncryptionFailure, err.Error())
	}
	return &chacha20Key{aead: aead, hpKey: append([]byte{}, hpKey...), iv: append([]byte{}, iv...)}, nil
}

func (k *chacha20Key) Seal(dst, nonce, plaintext, ad []byte) []byte {
	return k.aead.Seal(dst, nonce, plaintext, ad)
}

func (k *chacha20Key) Open(dst, nonce, ciphertext, ad []byte) ([]byte, error) {
	out, err := k.aead.Open(dst, nonce, ciphertext, ad)
	if err != nil {
		return nil, qerr.New(qerr.KindEncryptionFailure, err.Error())
	}
	return out, nil
}

func (k *chacha20Key) Overhead() int { return k.aead.Overhead() }

func (k *chacha20Key) IV() []byte { return k.iv }

// HeaderProtectionMask computes mask = ChaCha20(hp_key, counter, nonce)[0:5]
// where counter is the first 4 sample bytes (little-endian) and nonce is
// the remaining 12, per RFC 9001 5.4.4.
func (k *chacha20Key) HeaderProtectionMask(sample []byte) ([]byte, error) {
	if len(sample) != 16 {
		return nil, qerr.New(qerr.KindEncryptionFailure, "header protection sample has the wrong length")
	}
	counter := uint32(sample[0]) | uint32(sample[1])<<8 | uint32(sample[2])<<16 | uint32(sample[3])<<24
	c, err := chacha20.NewUnauthenticatedCipher(k.hpKey, sample[4:16])
	if err != nil {
		return nil, qerr.New(qerr.KindEncryptionFailure, err.Error())
	}
	c.SetCounter(counter)
	mask := make([]byte, 5)
	zeroes := make([]byte, 5)
	c.XORKeyStream(mask, zeroes)
	return mask, nil
}
