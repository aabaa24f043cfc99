// utilitários pequenos para formatar valores em headers e escrever respostas JSON.

package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
