package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/digiloans/voicebot/internal/outbound"
)

type startRequest struct {
	DialoutSettings *dialoutSettings `json:"dialout_settings"`
}

type dialoutSettings struct {
	// Callers send the number as a string or a bare JSON number.
	PhoneNumber  json.RawMessage `json:"phone_number"`
	CustomerName string          `json:"customer_name"`
}

type startResponse struct {
	CallSID      string `json:"call_sid"`
	Status       string `json:"status"`
	PhoneNumber  string `json:"phone_number"`
	CustomerName string `json:"customer_name"`
}

// phoneNumber renders the raw phone_number value as text. null, "" and a
// missing field all yield "".
func (d *dialoutSettings) phoneNumber() string {
	raw := bytes.TrimSpace(d.PhoneNumber)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// handleStart places an outbound call and leaves its context for the media
// stream Exotel opens once the callee answers.
func (r *Router) handleStart(w http.ResponseWriter, req *http.Request) {
	if r.calls.IsDraining() {
		writeDetail(w, http.StatusServiceUnavailable, "server is draining")
		return
	}

	var body startRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if body.DialoutSettings == nil {
		writeDetail(w, http.StatusBadRequest, "Missing 'dialout_settings' in the request body")
		return
	}
	phone := body.DialoutSettings.phoneNumber()
	if phone == "" {
		writeDetail(w, http.StatusBadRequest, "Missing 'phone_number' in dialout_settings")
		return
	}
	customer := body.DialoutSettings.CustomerName
	r.logger.Printf("httpapi: outbound call requested to %s, customer %q", phone, customer)

	res, err := r.initiator.Initiate(req.Context(), outbound.Request{
		PhoneNumber:  phone,
		CustomerName: customer,
	})
	switch {
	case errors.Is(err, outbound.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, "Too many outbound calls, try again later")
		return
	case errors.Is(err, outbound.ErrMissingPhoneNumber):
		writeDetail(w, http.StatusBadRequest, "Missing 'phone_number' in dialout_settings")
		return
	case err != nil:
		r.logger.Printf("httpapi: failed to initiate call to %s: %v", phone, err)
		captureError(req, err, "start: failed to initiate call")
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Failed to initiate call: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, startResponse{
		CallSID:      res.CallSID,
		Status:       "call_initiated",
		PhoneNumber:  res.PhoneNumber,
		CustomerName: res.CustomerName,
	})
}
