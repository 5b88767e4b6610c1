package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prasetyo/pos-orders/internal/pos"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	var e *pos.Error
	if errors.As(err, &e) {
		writeJSON(w, e.HTTPStatus(), map[string]string{"error": e.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
