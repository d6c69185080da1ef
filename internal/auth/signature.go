package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"push-device-service/internal/apierror"
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnsupportedKey   = errors.New("unsupported public key algorithm")
)

const minRSABits = 2048

// ParsePublicKey decodes a base64 X.509 SubjectPublicKeyInfo. A bare 32 byte
// value is accepted as a raw Ed25519 key.
func ParsePublicKey(publicKeyB64 string) (crypto.PublicKey, error) {
	der, err := decodeBase64(publicKeyB64)
	if err != nil || len(der) == 0 {
		return nil, apierror.Wrap(ErrInvalidPublicKey, apierror.KindInvalidKey, "decode public key")
	}
	if len(der) == ed25519.PublicKeySize {
		return ed25519.PublicKey(der), nil
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, apierror.Wrap(fmt.Errorf("%w: %v", ErrInvalidPublicKey, err), apierror.KindInvalidKey, "parse public key")
	}

	switch key := pub.(type) {
	case *rsa.PublicKey:
		if key.N.BitLen() < minRSABits {
			return nil, apierror.Wrap(ErrInvalidPublicKey, apierror.KindInvalidKey, "rsa key too short")
		}
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() {
			return nil, apierror.Wrap(ErrUnsupportedKey, apierror.KindAlgorithm, "ecdsa curve "+key.Curve.Params().Name)
		}
	case ed25519.PublicKey:
	default:
		return nil, apierror.Wrap(ErrUnsupportedKey, apierror.KindAlgorithm, fmt.Sprintf("key type %T", pub))
	}
	return pub, nil
}

// ChallengeMessage is the byte string a device signs during registration.
func ChallengeMessage(challenge, pushID string) []byte {
	return []byte(challenge + "." + pushID)
}

func VerifyChallenge(publicKeyB64, challenge, pushID, signatureB64 string) error {
	pub, err := ParsePublicKey(publicKeyB64)
	if err != nil {
		return err
	}
	return VerifySignature(pub, ChallengeMessage(challenge, pushID), signatureB64)
}

// VerifySignature checks signatureB64 over message: RSA PKCS#1 v1.5 and ECDSA
// (ASN.1) over SHA-256, Ed25519 over the message itself.
func VerifySignature(pub crypto.PublicKey, message []byte, signatureB64 string) error {
	signature, err := decodeBase64(signatureB64)
	if err != nil || len(signature) == 0 {
		return apierror.Wrap(ErrInvalidSignature, apierror.KindClient, "decode signature")
	}

	digest := sha256.Sum256(message)
	var ok bool
	switch key := pub.(type) {
	case *rsa.PublicKey:
		ok = rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature) == nil
	case *ecdsa.PublicKey:
		ok = ecdsa.VerifyASN1(key, digest[:], signature)
	case ed25519.PublicKey:
		ok = len(signature) == ed25519.SignatureSize && ed25519.Verify(key, message, signature)
	default:
		return apierror.Wrap(ErrUnsupportedKey, apierror.KindAlgorithm, fmt.Sprintf("key type %T", pub))
	}
	if !ok {
		return apierror.Wrap(ErrInvalidSignature, apierror.KindClient, "verify signature")
	}
	return nil
}

// decodeBase64 accepts standard and URL alphabets, padded or not. Mobile
// clients often wrap long values, so whitespace is ignored.
func decodeBase64(value string) ([]byte, error) {
	value = strings.Join(strings.Fields(value), "")
	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		decoded, err := enc.DecodeString(value)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
