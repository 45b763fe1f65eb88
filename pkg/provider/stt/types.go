package stt

// Audio is one recorded utterance handed to a Provider.
type Audio struct {
	// Data holds either an encoded audio file (WAV, WebM, MP3, ...) or, when
	// SampleRate is positive, raw 16-bit signed little-endian PCM.
	Data []byte

	// Filename is forwarded to the backend as the multipart file name. Some
	// servers sniff the container format from its extension.
	Filename string

	// Language is the BCP-47 code (e.g. "fr" or "fr-FR") used as a
	// recognition hint. Empty leaves the provider default in place.
	Language string

	// SampleRate in Hz marks Data as raw PCM. Zero means Data is already an
	// encoded file.
	SampleRate int

	// Channels is the PCM channel count. Ignored unless SampleRate is set;
	// zero means mono.
	Channels int
}

// IsPCM reports whether Data is raw PCM that must be wrapped before upload.
func (a Audio) IsPCM() bool { return a.SampleRate > 0 }

// Transcript is the result of a single Transcribe call.
type Transcript struct {
	// Text is the recognised speech as returned by the backend.
	Text string

	// Corrected is a cleaned-up variant of Text when the backend produces
	// one (the FastAPI backend runs a grammar pass). Empty otherwise.
	Corrected string

	// Language is the language the backend reports or was asked for.
	Language string
}
