// Package edge implements the per-request logic (EdgeHandler): the four
// templates T1-T4 from spec §4.6, wired to gorilla/mux routes.
package edge

import (
	"encoding/json"
	"net/http"

	"github.com/oddscache/oddscache/internal/apierr"
)

// envelope is the downstream HTTP response shape from spec §6.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func writeOK(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	body, _ := json.Marshal(envelope{Success: true, Data: rawOrNull(data)})
	w.Write(body)
}

func writeErr(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		apiErr = apierr.Internalf(err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode())
	body, _ := json.Marshal(envelope{Success: false, Error: apiErr.Msg})
	w.Write(body)
}

func rawOrNull(data []byte) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return data
}

// upstreamErr preserves a provider's tagged error kind (transport vs.
// semantic) rather than collapsing every fetch failure into one kind.
func upstreamErr(err error, fallbackMsg string) *apierr.Error {
	if apiErr, ok := err.(*apierr.Error); ok {
		return apiErr
	}
	return apierr.UpstreamTransportf(fallbackMsg)
}
