package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"push-device-service/internal/apierror"
)

var ErrDeviceMismatch = errors.New("token issued for another device")

// DeviceClaims are carried by tokens a registered device signs with its own
// private key.
type DeviceClaims struct {
	DeviceID  string `json:"did,omitempty"`
	Challenge string `json:"chg,omitempty"`
	jwt.RegisteredClaims
}

const deviceTokenLeeway = 30 * time.Second

// ValidateDeviceToken checks that tokenString was signed by the key in
// publicKeyB64, is unexpired, and, if it names a device, names deviceID.
func ValidateDeviceToken(tokenString, publicKeyB64, deviceID string) error {
	pub, err := ParsePublicKey(publicKeyB64)
	if err != nil {
		return err
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(t *jwt.Token) (interface{}, error) {
		return pub, nil
	},
		jwt.WithValidMethods(methodsFor(pub)),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(deviceTokenLeeway),
	)
	if err != nil {
		return apierror.Wrap(err, apierror.KindClient, "validate device token")
	}

	claims, ok := parsed.Claims.(*DeviceClaims)
	if !ok || !parsed.Valid {
		return apierror.Wrap(jwt.ErrTokenInvalidClaims, apierror.KindClient, "validate device token")
	}
	if claims.DeviceID != "" && claims.DeviceID != deviceID {
		return apierror.Wrap(ErrDeviceMismatch, apierror.KindClient, "validate device token")
	}
	return nil
}

func methodsFor(pub crypto.PublicKey) []string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}
	case *ecdsa.PublicKey:
		return []string{"ES256"}
	case ed25519.PublicKey:
		return []string{"EdDSA"}
	}
	return nil
}

// UnverifiedDeviceID reads the did claim without checking the signature. The
// result only selects which stored key ValidateDeviceToken must verify against.
func UnverifiedDeviceID(tokenString string) string {
	var claims DeviceClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return ""
	}
	return claims.DeviceID
}
