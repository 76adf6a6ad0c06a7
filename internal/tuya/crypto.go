package tuya

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5" // nolint:gosec
	"encoding/hex"
	"errors"
	"fmt"
)

// LocalKeySize is the length of a Tuya local key; it doubles as the AES-128 key.
const LocalKeySize = 16

var errBadPadding = errors.New("bad padding after decrypt")

// localCipher is the payload cipher of protocols 3.1 to 3.3: AES-128 in ECB
// mode with PKCS7 padding, keyed by the device's local key.
type localCipher struct {
	block cipher.Block
}

func newLocalCipher(localKey string) (localCipher, error) {
	if len(localKey) != LocalKeySize {
		return localCipher{}, fmt.Errorf("local key must be %d bytes, got %d", LocalKeySize, len(localKey))
	}
	block, err := aes.NewCipher([]byte(localKey))
	if err != nil {
		return localCipher{}, err
	}
	return localCipher{block: block}, nil
}

// seal pads plaintext to whole blocks and encrypts it block by block.
func (c localCipher) seal(plaintext []byte) []byte {
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	out := make([]byte, len(plaintext)+pad)
	copy(out, plaintext)
	for i := len(plaintext); i < len(out); i++ {
		out[i] = byte(pad)
	}
	for off := 0; off < len(out); off += aes.BlockSize {
		c.block.Encrypt(out[off:off+aes.BlockSize], out[off:off+aes.BlockSize])
	}
	return out
}

// open decrypts a device payload. A wrong local key almost always shows up as
// errBadPadding.
func (c localCipher) open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("payload of %d bytes is not whole AES blocks", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	for off := 0; off < len(out); off += aes.BlockSize {
		c.block.Decrypt(out[off:off+aes.BlockSize], ciphertext[off:off+aes.BlockSize])
	}
	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || !bytes.HasSuffix(out, bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, errBadPadding
	}
	return out[:len(out)-pad], nil
}

// signV31 is the signature a 3.1 device expects in front of a base64 control
// payload: the middle 16 hex digits of md5("data=<b64>||lpv=3.1||<key>").
func signV31(encoded, localKey string) string {
	sum := md5.Sum([]byte("data=" + encoded + "||lpv=" + string(Version31) + "||" + localKey)) // nolint:gosec
	return hex.EncodeToString(sum[:])[8:24]
}
