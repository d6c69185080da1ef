package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"push-device-service/internal/auth"
	"push-device-service/internal/devicehandler"
	"push-device-service/internal/hub"
	"push-device-service/internal/middleware"
	"push-device-service/internal/service"
	"push-device-service/internal/store"
	"push-device-service/internal/userstore"
)

const testBasePath = "/api/users/v1"

var testTokenConfig = auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

type testServer struct {
	router *gin.Engine
	store  *store.MemoryStore
	hub    *hub.Hub
}

func newTestServer(t *testing.T, mobileLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	users := userstore.NewStatic(nil, true)
	h := hub.New()
	handler := devicehandler.New(st, users, h, devicehandler.Config{
		Host:         "https://id.example.com",
		BasePath:     testBasePath,
		ChallengeTTL: time.Minute,
	})
	limiter := middleware.NewRateLimiter(mobileLimit, time.Minute)
	t.Cleanup(limiter.Close)

	r := NewRouter(Deps{
		Service:       service.New(handler, nil),
		Hub:           h,
		Users:         users,
		TokenConfig:   testTokenConfig,
		BasePath:      testBasePath,
		TenantDomain:  "carbon.super",
		MobileLimiter: limiter,
		Version:       "test",
	})
	return &testServer{router: r, store: st, hub: h}
}

func sessionToken(t *testing.T, username string) string {
	t.Helper()
	tok, err := auth.CreateToken(username, "carbon.super", testTokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, testBasePath+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func newRecorder() *httptest.ResponseRecorder { return httptest.NewRecorder() }

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

type mobileDevice struct {
	key       *ecdsa.PrivateKey
	publicKey string
}

func newMobileDevice(t *testing.T) mobileDevice {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return mobileDevice{key: key, publicKey: base64.StdEncoding.EncodeToString(der)}
}

func (m mobileDevice) signChallenge(t *testing.T, challenge, pushID string) string {
	t.Helper()
	digest := sha256.Sum256([]byte(challenge + "." + pushID))
	sig, err := ecdsa.SignASN1(rand.Reader, m.key, digest[:])
	if err != nil {
		t.Fatalf("SignASN1: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func (m mobileDevice) removalToken(t *testing.T, deviceID string) string {
	t.Helper()
	claims := auth.DeviceClaims{
		DeviceID:         deviceID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(m.key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return tok
}

// registerDevice runs discovery and registration for username and returns the device id.
func (s *testServer) registerDevice(t *testing.T, username, kind string, m mobileDevice) string {
	t.Helper()
	w := s.do(t, http.MethodGet, "/me/"+kind+"-auth/discovery-data", sessionToken(t, username), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("discovery: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var data map[string]string
	decode(t, w, &data)

	w = s.do(t, http.MethodPost, "/me/"+kind+"-auth/devices", "", map[string]string{
		"id":        data["did"],
		"name":      "My Phone",
		"model":     "Pixel 8",
		"pushId":    "fcm-token",
		"publickey": m.publicKey,
		"signature": m.signChallenge(t, data["chg"], "fcm-token"),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["id"] != data["did"] || resp["status"] != "SUCCESSFUL" {
		t.Fatalf("unexpected registration response: %v", resp)
	}
	return resp["id"]
}

// aliceUserID resolves the implicit user-store id of alice.
func aliceUserID(t *testing.T) string {
	t.Helper()
	u, err := userstore.NewStatic(nil, true).ResolveUser(context.Background(), "alice", "carbon.super")
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	return u.ID
}
