// Package respond формирует JSON-ответы API в едином конверте.
package respond

import (
	"encoding/json"
	"net/http"
)

// Envelope оборачивает все ответы API.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSON пишет успешный ответ.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Success: true, Message: message, Data: data})
}

// Error пишет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Success: false, Message: message})
}

func write(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
