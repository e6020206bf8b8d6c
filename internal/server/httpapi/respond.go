package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dsmirnov82/authuser/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// writeDomainError maps a service-layer sentinel to an HTTP status and a
// stable machine-readable error code. Unknown errors become a 500 with no
// detail leaked to the client.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input")
	case errors.Is(err, common.ErrWrongPassword):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, common.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, common.ErrAlreadyAssigned):
		writeError(w, http.StatusConflict, "role_already_assigned")
	case errors.Is(err, common.ErrNotAssigned):
		writeError(w, http.StatusConflict, "role_not_assigned")
	case errors.Is(err, common.ErrLastRole):
		writeError(w, http.StatusConflict, "last_role")
	case errors.Is(err, common.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, common.ErrConfig):
		writeError(w, http.StatusInternalServerError, "configuration_error")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}
