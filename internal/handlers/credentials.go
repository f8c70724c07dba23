package handlers

import (
	"crypto/subtle"

	pkgauth "github.com/mateit-cloudware/mate-sentinel/pkg/auth"
)

// StaticCredentialVerifier authenticates the single operator account
// configured at startup. Suits deployments where sentinel's admin API is the
// only authenticated surface; anything larger should plug in a real user
// store via CredentialVerifier.
type StaticCredentialVerifier struct {
	email        string
	passwordHash string
}

func NewStaticCredentialVerifier(email, passwordHash string) *StaticCredentialVerifier {
	return &StaticCredentialVerifier{email: email, passwordHash: passwordHash}
}

func (v *StaticCredentialVerifier) Verify(email, password string) (string, string, bool) {
	emailMatch := subtle.ConstantTimeCompare([]byte(email), []byte(v.email)) == 1
	// Always run the hash comparison so unknown emails cost the same.
	passwordMatch := pkgauth.VerifyPassword(password, v.passwordHash)

	if !emailMatch || !passwordMatch {
		return "", "", false
	}
	return "admin", "admin", true
}
