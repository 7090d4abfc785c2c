package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed      = "method_not_allowed"
	codeNotFound              = "not_found"
	codeInvalidRequestBody    = "invalid_request_body"
	codeMissingRequiredField  = "missing_required_field"
	codeInvalidDateRange      = "invalid_date_range"
	codeInvalidQuantity       = "invalid_quantity"
	codeInvalidGuestCount     = "invalid_guest_count"
	codeInvalidID             = "invalid_id"
	codeCurrencyMismatch      = "currency_mismatch"
	codeRoomNotFound          = "room_not_found"
	codeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	codeHoldNotFound          = "hold_not_found"
	codeForbidden             = "forbidden"
	codeUnauthorized          = "unauthorized"
	codeInvalidSignature      = "invalid_signature"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
