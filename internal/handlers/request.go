package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/crediexpress/corebanking/internal/middleware"
	"github.com/crediexpress/corebanking/internal/services"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1_048_576

// decodeJSON reads exactly one JSON object into dst and writes the 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	body["success"] = true
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// currentUser writes a 401 when the request carries no authenticated user.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid "+name, http.StatusBadRequest, nil)
		return 0, false
	}
	return id, true
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		services.SendErrorResponse(w, "limit must be an integer", http.StatusBadRequest, nil)
		return 0, false
	}
	return limit, true
}

func accountNumberParam(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper) (string, bool) {
	accountNumber := chi.URLParam(r, "accountNumber")
	if err := v.ValidateVar(accountNumber, "min=8,max=20"); err != nil {
		services.SendErrorResponse(w, "Invalid account number", http.StatusBadRequest, nil)
		return "", false
	}
	return accountNumber, true
}
