package response

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// The public API speaks flat JSON: success payloads as-is and failures
// as {"error": message}. Devices consume these responses from shell
// scripts and microcontrollers, so there is no envelope.

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RateLimited emits the 429 body devices parse to schedule their next
// attempt, plus the standard Retry-After header.
func RateLimited(w http.ResponseWriter, message string, waitSeconds int) {
	if waitSeconds < 1 {
		waitSeconds = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", waitSeconds))
	JSON(w, http.StatusTooManyRequests, map[string]any{
		"error": message,
		"wait":  waitSeconds,
	})
}

func Success(w http.ResponseWriter) {
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
