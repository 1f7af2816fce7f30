package tunnelauth

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTSigner is the default concrete Signer: the "signature" is a compact
// JWT whose "challenge" claim carries the challenge bytes, HMAC-signed with a per-pubkey
// secret resolved by lookupSecret. The signature primitive proper is out of
// scope (§1); this is one legitimate concrete choice, grounded on the
// teacher's own use of golang-jwt/jwt/v5 for its web auth tokens.
type JWTSigner struct {
	lookupSecret func(pubkey string) ([]byte, bool)
}

func NewJWTSigner(lookupSecret func(pubkey string) ([]byte, bool)) *JWTSigner {
	return &JWTSigner{lookupSecret: lookupSecret}
}

type challengeClaims struct {
	Challenge string `json:"challenge"`
	jwt.RegisteredClaims
}

func (s *JWTSigner) Verify(pubkey string, message []byte, signature string) bool {
	secret, ok := s.lookupSecret(pubkey)
	if !ok {
		return false
	}

	claims := &challengeClaims{}
	token, err := jwt.ParseWithClaims(signature, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return false
	}

	return claims.Challenge == string(message)
}

// Sign produces a JWT signature over challenge for pubkey, the counterpart
// a client-side signer would use; exposed for tests and for any in-process
// caller that needs to produce a valid response.
func Sign(secret []byte, pubkey, challenge string) (string, error) {
	claims := challengeClaims{Challenge: challenge}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
