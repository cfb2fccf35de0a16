package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
	"regexp"
	"strconv"
)

const (
	codeMin = 100000
	codeMax = 999999
)

var (
	salt      = []byte("masomo.core.otp.code")
	codeRegex = regexp.MustCompile(`^\d{6}$`)
)

// generateCode draws a code uniformly at random in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// IsWellFormedCode reports whether s looks like a code: exactly 6 ASCII digits.
func IsWellFormedCode(s string) bool {
	return codeRegex.MatchString(s)
}

// codeSigner hashes codes so that they are never stored in clear.
type codeSigner struct {
	key [sha256.Size]byte
}

func newCodeSigner(secretKey string) codeSigner {
	material := make([]byte, 0, len(salt)+len(secretKey))
	material = append(material, salt...)
	material = append(material, secretKey...)
	return codeSigner{key: sha256.Sum256(material)}
}

// sign binds the code to its challenge: the same code never hashes the same way twice.
func (s codeSigner) sign(challengeID, code string) []byte {
	h := hmac.New(sha256.New, s.key[:])
	h.Write([]byte(challengeID))
	h.Write([]byte{0})
	h.Write([]byte(code))
	return h.Sum(nil)
}

func (s codeSigner) verify(challengeID, code string, hash []byte) bool {
	return subtle.ConstantTimeCompare(s.sign(challengeID, code), hash) == 1
}
