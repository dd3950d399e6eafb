// Package rtc issues signed entry credentials for the third-party realtime
// audio/video service that hosts consultation rooms. The service validates
// the HMAC signature with the shared application secret; this package never
// talks to it directly.
package rtc

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialTTL is the validity window the realtime service grants a signed
// room credential.
const CredentialTTL = 7200 * time.Second

// Credential is handed to the client on room entry and relayed verbatim to
// the realtime service.
type Credential struct {
	AppID     string    `json:"app_id"`
	UserID    string    `json:"user_id"`
	RoomNum   string    `json:"room_num"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type roomClaims struct {
	jwt.RegisteredClaims
	RoomNum string `json:"room_num"`
	Role    string `json:"role"`
}

// Issuer signs room credentials with the shared application secret.
type Issuer struct {
	appID  string
	secret []byte
	now    func() time.Time
}

func NewIssuer(appID, secret string) *Issuer {
	return &Issuer{appID: appID, secret: []byte(secret), now: time.Now}
}

// Issue produces a credential scoped to one user in one room.
func (i *Issuer) Issue(userID, role, roomNum string) (*Credential, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if roomNum == "" {
		return nil, fmt.Errorf("room number is required")
	}

	issuedAt := i.now()
	expiresAt := issuedAt.Add(CredentialTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, roomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.appID,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		RoomNum: roomNum,
		Role:    role,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign room credential: %w", err)
	}

	return &Credential{
		AppID:     i.appID,
		UserID:    userID,
		RoomNum:   roomNum,
		Token:     signed,
		ExpiresAt: expiresAt,
	}, nil
}
