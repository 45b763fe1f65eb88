// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (a whisper.cpp
// server, or the FastAPI whisper backend) behind a single call: one recorded
// utterance in, one Transcript out. The practice service feeds the resulting
// text to the scorer.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by Transcribe when Audio.Data is empty.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe uploads audio and waits for the recognised text.
	//
	// Returns an error if the backend rejects the request, reports a
	// transcription failure, or ctx is cancelled before a response arrives.
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)
}
