package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealth(t *testing.T) {
	s := newTestServer(t, 30)
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	w := newRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	s := newTestServer(t, 30)
	alice := sessionToken(t, "alice")
	phone := newMobileDevice(t)

	// empty list is [] rather than null
	w := s.do(t, http.MethodGet, "/me/push-auth/devices", alice, nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("expected empty list, got %d: %s", w.Code, w.Body.String())
	}

	deviceID := s.registerDevice(t, "alice", "push", phone)

	w = s.do(t, http.MethodGet, "/me/push-auth/devices", alice, nil)
	var list []map[string]any
	decode(t, w, &list)
	if len(list) != 1 || list[0]["id"] != deviceID {
		t.Fatalf("unexpected list: %s", w.Body.String())
	}
	if _, ok := list[0]["pushId"]; ok {
		t.Fatalf("list items must not carry pushId: %s", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/me/push-auth/devices/"+deviceID, alice, nil)
	var device map[string]any
	decode(t, w, &device)
	if w.Code != http.StatusOK || device["pushId"] != "fcm-token" || device["model"] != "Pixel 8" {
		t.Fatalf("unexpected device: %d %s", w.Code, w.Body.String())
	}
	if _, ok := device["publicKey"]; ok {
		t.Fatalf("public key must not be exposed")
	}

	w = s.do(t, http.MethodPatch, "/me/push-auth/devices/"+deviceID, alice, map[string]string{"name": "Work phone"})
	decode(t, w, &device)
	if w.Code != http.StatusOK || device["name"] != "Work phone" {
		t.Fatalf("unexpected patch result: %d %s", w.Code, w.Body.String())
	}

	// the device is invisible under the biometric resources
	w = s.do(t, http.MethodGet, "/me/biometric-auth/devices/"+deviceID, alice, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across kinds, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/me/push-auth/devices/"+deviceID+"/remove", "",
		map[string]string{"token": phone.removalToken(t, deviceID)})
	var status map[string]string
	decode(t, w, &status)
	if w.Code != http.StatusOK || status["status"] != "SUCCESSFUL" || status["operation"] != "DELETE" || status["deviceId"] != deviceID {
		t.Fatalf("unexpected removal status: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/me/push-auth/devices/"+deviceID, alice, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after removal, got %d", w.Code)
	}
}

func TestSessionDeleteAndOwnership(t *testing.T) {
	s := newTestServer(t, 30)
	deviceID := s.registerDevice(t, "alice", "biometric", newMobileDevice(t))

	w := s.do(t, http.MethodDelete, "/me/biometric-auth/devices/"+deviceID, sessionToken(t, "bob"), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign device, got %d", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["code"] != "PDM-10002" || body["description"] != "Device "+deviceID+" could not be removed." {
		t.Fatalf("unexpected error body: %v", body)
	}

	w = s.do(t, http.MethodDelete, "/me/biometric-auth/devices/"+deviceID, sessionToken(t, "alice"), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodDelete, "/me/biometric-auth/devices/"+deviceID, sessionToken(t, "alice"), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for removed device, got %d", w.Code)
	}
}

func TestMobileRemoval_FailuresAnswer200(t *testing.T) {
	s := newTestServer(t, 30)
	phone := newMobileDevice(t)
	deviceID := s.registerDevice(t, "alice", "push", phone)
	intruder := newMobileDevice(t)

	for name, token := range map[string]string{
		"garbage":         "not-a-jwt",
		"other key":       intruder.removalToken(t, deviceID),
		"other device id": phone.removalToken(t, "someone-else"),
		"empty":           "",
	} {
		w := s.do(t, http.MethodPost, "/me/push-auth/devices/"+deviceID+"/remove", "", map[string]string{"token": token})
		var status map[string]string
		decode(t, w, &status)
		if w.Code != http.StatusOK || status["status"] != "FAILED" || status["deviceId"] != deviceID || status["operation"] != "DELETE" {
			t.Fatalf("%s: unexpected response %d %s", name, w.Code, w.Body.String())
		}
	}

	w := s.do(t, http.MethodPost, "/me/push-auth/devices/unknown/remove", "", map[string]string{"token": phone.removalToken(t, "unknown")})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown device, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/me/push-auth/devices/"+deviceID, sessionToken(t, "alice"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("device must survive failed removals, got %d", w.Code)
	}
}

func TestMobileRemoval_ByTokenOnly(t *testing.T) {
	s := newTestServer(t, 30)
	phone := newMobileDevice(t)
	deviceID := s.registerDevice(t, "alice", "push", phone)

	w := s.do(t, http.MethodPost, "/me/push-auth/devices/remove", "", map[string]string{"token": phone.removalToken(t, deviceID)})
	var status map[string]string
	decode(t, w, &status)
	if w.Code != http.StatusOK || status["status"] != "SUCCESSFUL" || status["deviceId"] != deviceID {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestRegistration_Rejections(t *testing.T) {
	s := newTestServer(t, 30)
	alice := sessionToken(t, "alice")
	phone := newMobileDevice(t)

	w := s.do(t, http.MethodGet, "/me/push-auth/discovery-data", alice, nil)
	var data map[string]string
	decode(t, w, &data)
	if data["re"] != testBasePath+"/me/push-auth/devices" || data["un"] != "alice" || data["td"] != "carbon.super" {
		t.Fatalf("unexpected discovery data: %v", data)
	}

	register := func(sig string) int {
		return s.do(t, http.MethodPost, "/me/push-auth/devices", "", map[string]string{
			"id": data["did"], "pushId": "p", "publickey": phone.publicKey, "signature": sig,
		}).Code
	}
	if code := register(phone.signChallenge(t, "wrong", "p")); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", code)
	}
	// the failed attempt consumed the challenge
	if code := register(phone.signChallenge(t, data["chg"], "p")); code != http.StatusBadRequest {
		t.Fatalf("expected 400 after challenge consumed, got %d", code)
	}

	w = s.do(t, http.MethodGet, "/me/push-auth/discovery-data", alice, nil)
	decode(t, w, &data)
	w = s.do(t, http.MethodPost, "/me/push-auth/devices", "", map[string]string{
		"id": data["did"], "pushId": "p", "publickey": "bm90IGEga2V5", "signature": "c2ln",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed key, got %d", w.Code)
	}

	req, _ := http.NewRequest(http.MethodPost, testBasePath+"/me/push-auth/devices", nil)
	w = newRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing body, got %d", w.Code)
	}
}

func TestSessionRequired(t *testing.T) {
	s := newTestServer(t, 30)
	for _, path := range []string{"/me/push-auth/devices", "/me/push-auth/discovery-data", "/me/biometric-auth/devices/x"} {
		w := s.do(t, http.MethodGet, path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestMobileRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	s := newTestServer(t, 2)
	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, testBasePath+"/me/push-auth/devices/x/remove",
			strings.NewReader(`{"token":"t"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, codes)
		}
	}
}

func TestMobileEndpointsAreRateLimited(t *testing.T) {
	s := newTestServer(t, 2)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/me/push-auth/devices/x/remove", "", map[string]string{"token": "t"})
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}
