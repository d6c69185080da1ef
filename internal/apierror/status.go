package apierror

import "net/http"

var statusByKind = map[Kind]int{
	KindClient:          http.StatusBadRequest,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindUnauthenticated: http.StatusUnauthorized,
	KindInvalidKey:      http.StatusUnauthorized,
	KindUserStore:       http.StatusInternalServerError,
	KindSignature:       http.StatusInternalServerError,
	KindEncoding:        http.StatusInternalServerError,
	KindSerialization:   http.StatusInternalServerError,
	KindAlgorithm:       http.StatusInternalServerError,
	KindStorage:         http.StatusInternalServerError,
	KindServer:          http.StatusInternalServerError,
}

// StatusFor maps a kind to its HTTP status. Unclassified failures are treated
// as bad requests.
func StatusFor(kind Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusBadRequest
}
