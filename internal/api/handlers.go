package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/linguaplay/internal/challenge"
	"github.com/MrWong99/linguaplay/internal/practice"
	"github.com/MrWong99/linguaplay/pkg/provider/stt"
	"github.com/MrWong99/linguaplay/pkg/scoring"
)

type scoreRequest struct {
	Phrase     string `json:"phrase"`
	Transcript string `json:"transcript"`
	Tier       string `json:"tier"`
}

type createSessionRequest struct {
	Language string `json:"language"`
}

type attemptRequest struct {
	Transcript string `json:"transcript"`
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res := s.svc.Score(r.Context(), req.Phrase, req.Transcript, scoring.ParseTier(req.Tier))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = s.defaultLanguage()
	}
	sess, err := s.svc.StartSession(r.Context(), lang)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Sessions().Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.EndSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) nextChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.NextChallenge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{Challenge: c, Prompt: c.Prompt()})
}

// challengeResponse adds the learner-facing instruction to a challenge.
type challengeResponse struct {
	challenge.Challenge
	Prompt string `json:"prompt"`
}

// attempt accepts either a JSON transcript or a multipart audio upload.
func (s *Server) attempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		s.audioAttempt(w, r, id)
		return
	}

	var req attemptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.Attempt(r.Context(), id, req.Transcript)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) audioAttempt(w http.ResponseWriter, r *http.Request, id string) {
	if !s.svc.CanTranscribe() {
		writeError(w, r, practice.ErrNoTranscriber)
		return
	}

	audio, err := readAudio(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.AttemptAudio(r.Context(), id, audio)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// readAudio extracts the "file" part of a multipart upload. Optional form
// fields: "language" (recognition hint), and "sample_rate" plus "channels"
// when the file is raw 16-bit PCM rather than an encoded container.
func readAudio(w http.ResponseWriter, r *http.Request) (stt.Audio, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBody)
	if err := r.ParseMultipartForm(maxAudioBody); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return stt.Audio{}, err
		}
		return stt.Audio{}, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err)
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return stt.Audio{}, fmt.Errorf("%w: missing audio file field %q", errBadRequest, "file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return stt.Audio{}, fmt.Errorf("api: read audio: %w", err)
	}

	audio := stt.Audio{
		Data:     data,
		Filename: hdr.Filename,
		Language: r.FormValue("language"),
	}
	if v := r.FormValue("sample_rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return stt.Audio{}, fmt.Errorf("%w: invalid sample_rate %q", errBadRequest, v)
		}
		audio.SampleRate = rate
		audio.Channels = 1
	}
	if v := r.FormValue("channels"); v != "" {
		ch, err := strconv.Atoi(v)
		if err != nil || ch <= 0 {
			return stt.Audio{}, fmt.Errorf("%w: invalid channels %q", errBadRequest, v)
		}
		audio.Channels = ch
	}
	return audio, nil
}
