package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/linguaplay/internal/observe"
	"github.com/MrWong99/linguaplay/internal/practice"
	"github.com/MrWong99/linguaplay/pkg/provider/stt"
)

// errResp is the body of every error response.
type errResp struct {
	Error string `json:"error"`
}

// errBadRequest marks client input errors that have no sentinel of their own.
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes it as JSON. Server-side
// failures are logged; their detail is still returned to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", code),
			slog.Any("err", err),
		)
	}
	writeJSON(w, code, errResp{Error: err.Error()})
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, practice.ErrUnknownLanguage),
		errors.Is(err, stt.ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.Is(err, practice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, practice.ErrNoChallenge),
		errors.Is(err, practice.ErrChallengeChanged):
		return http.StatusConflict
	case errors.Is(err, practice.ErrNoTranscriber):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body of at most maxJSONBody bytes into v. An empty
// body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}
