// Package whisper provides a batch STT provider backed by a whisper HTTP
// server.
//
// Two server flavours are supported:
//
//   - [ModeWhisperCpp]: the whisper.cpp whisper-server binary, which exposes
//     POST /inference and answers {"text": "..."}.
//   - [ModeFastAPI]: the Python FastAPI wrapper, which exposes
//     POST /transcribe/ and answers {"original": "...", "corrected": "..."}
//     or {"error": "..."}.
//
// Raw PCM input (stt.Audio.SampleRate > 0) is wrapped in a RIFF/WAV
// container before upload; encoded files are sent unchanged.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("fr"))
//	tr, err := p.Transcribe(ctx, stt.Audio{Data: wav, Filename: "take.wav"})
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/linguaplay/pkg/provider/stt"
)

// Mode selects the server API flavour.
type Mode string

const (
	ModeWhisperCpp Mode = "whispercpp"
	ModeFastAPI    Mode = "fastapi"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper expects.
	bitsPerSample = 16

	defaultFilename = "audio.wav"
	defaultTimeout  = 60 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

var _ stt.Provider = (*Provider)(nil)

// ParseMode validates a mode string. Empty selects [ModeWhisperCpp].
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeWhisperCpp:
		return ModeWhisperCpp, nil
	case ModeFastAPI:
		return ModeFastAPI, nil
	default:
		return "", fmt.Errorf("whisper: unknown api mode %q (want %q or %q)", s, ModeWhisperCpp, ModeFastAPI)
	}
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithMode selects the server API flavour. Defaults to [ModeWhisperCpp].
func WithMode(m Mode) Option {
	return func(p *Provider) {
		p.mode = m
	}
}

// WithModel sets the model identifier forwarded to the server (e.g.
// "base", "small"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language hint used when stt.Audio.Language
// is empty.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. Defaults to a client with a 60 s
// timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper HTTP server.
type Provider struct {
	serverURL  string
	mode       Mode
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that talks to the server at serverURL (e.g.
// "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		mode:       ModeWhisperCpp,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := ParseMode(string(p.mode)); err != nil {
		return nil, err
	}
	return p, nil
}

// Mode returns the configured server API flavour.
func (p *Provider) Mode() Mode { return p.mode }

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if len(audio.Data) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}

	data := audio.Data
	filename := audio.Filename
	if audio.IsPCM() {
		channels := audio.Channels
		if channels <= 0 {
			channels = 1
		}
		data = encodeWAV(audio.Data, audio.SampleRate, channels)
		filename = defaultFilename
	}
	if filename == "" {
		filename = defaultFilename
	}

	lang := audio.Language
	if lang == "" {
		lang = p.language
	}
	lang = baseLanguage(lang)

	body, contentType, err := p.buildForm(data, filename, lang)
	if err != nil {
		return stt.Transcript{}, err
	}

	endpoint := p.serverURL + "/inference"
	if p.mode == ModeFastAPI {
		endpoint = p.serverURL + "/transcribe/"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	tr, err := p.decode(raw)
	if err != nil {
		return stt.Transcript{}, err
	}
	tr.Language = lang
	return tr, nil
}

// buildForm writes the multipart body: the audio under "file" plus the
// optional language and model hints.
func (p *Provider) buildForm(data []byte, filename, lang string) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", fmt.Errorf("whisper: write audio data: %w", err)
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return nil, "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return nil, "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if p.mode == ModeWhisperCpp {
		if err := mw.WriteField("response_format", "json"); err != nil {
			return nil, "", fmt.Errorf("whisper: write response_format field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// decode parses a 200 response according to the configured mode.
func (p *Provider) decode(raw []byte) (stt.Transcript, error) {
	if p.mode == ModeFastAPI {
		var result struct {
			Original  string `json:"original"`
			Corrected string `json:"corrected"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
		}
		if result.Error != "" {
			return stt.Transcript{}, fmt.Errorf("whisper: server error: %s", result.Error)
		}
		return stt.Transcript{
			Text:      strings.TrimSpace(result.Original),
			Corrected: strings.TrimSpace(result.Corrected),
		}, nil
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return stt.Transcript{Text: strings.TrimSpace(result.Text)}, nil
}

// baseLanguage reduces a BCP-47 tag such as "fr-FR" to the primary subtag
// whisper understands.
func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
