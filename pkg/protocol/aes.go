package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// SharedSecretLen is the length of the shared secret negotiated during
// login, used as both key and IV.
const SharedSecretLen = 16

// cfb8 is AES in cipher feedback mode with a one-byte feedback register,
// as the 1.8 wire cipher requires. Go's cipher.NewCFBEncrypter works on
// whole blocks, so the byte-granular variant is implemented here.
type cfb8 struct {
	block   cipher.Block
	sr      [aes.BlockSize]byte
	decrypt bool
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) *cfb8 {
	c := &cfb8{block: block, decrypt: decrypt}
	copy(c.sr[:], iv)
	return c
}

func (c *cfb8) process(dst, src []byte) {
	var ks [aes.BlockSize]byte
	for i := range src {
		c.block.Encrypt(ks[:], c.sr[:])
		o := src[i] ^ ks[0]
		fb := o
		if c.decrypt {
			fb = src[i]
		}
		copy(c.sr[:], c.sr[1:])
		c.sr[aes.BlockSize-1] = fb
		dst[i] = o
	}
}

// AESTransformer encrypts the whole byte stream in both directions once
// the login handshake has established a shared secret.
type AESTransformer struct {
	toggle
	enc *cfb8
	dec *cfb8
}

// NewAESTransformer creates an encryption transformer. Setup must be
// called with the shared secret before Start.
func NewAESTransformer() *AESTransformer {
	return &AESTransformer{}
}

// Setup keys the cipher with the 16-byte shared secret, used as both
// key and IV. Must precede Start.
func (t *AESTransformer) Setup(secret []byte) error {
	if len(secret) != SharedSecretLen {
		return fmt.Errorf("aes transformer: shared secret length %d, expected %d", len(secret), SharedSecretLen)
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return fmt.Errorf("aes transformer: %w", err)
	}
	t.enc = newCFB8(block, secret, false)
	t.dec = newCFB8(block, secret, true)
	return nil
}

// Start implements Transformer.
func (t *AESTransformer) Start() error {
	if t.enc == nil || t.dec == nil {
		return fmt.Errorf("aes transformer: started before setup")
	}
	return t.toggle.Start()
}

// TransformIn implements Transformer.
func (t *AESTransformer) TransformIn(data []byte) ([]byte, int, error) {
	out := make([]byte, len(data))
	t.dec.process(out, data)
	return out, len(data), nil
}

// TransformOut implements Transformer.
func (t *AESTransformer) TransformOut(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	t.enc.process(out, data)
	return out, nil
}

// InEnough implements Transformer. Encryption is length-preserving, so
// any amount of input can be processed.
func (t *AESTransformer) InEnough(data []byte) InStatus { return InReady }

// EstimateIn implements Transformer.
func (t *AESTransformer) EstimateIn(n int) int { return n }

// EstimateOut implements Transformer.
func (t *AESTransformer) EstimateOut(n int) int { return n }
