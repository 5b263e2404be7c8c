// Package speech synthesizes assistant utterances into PCM audio.
package speech

import (
	"context"
	"errors"
	"time"
)

// ErrSynthesis wraps every provider failure
var ErrSynthesis = errors.New("speech synthesis failed")

// FormatPCM16 is 16-bit little-endian mono PCM
const FormatPCM16 = "pcm_s16le"

// Audio is one synthesized utterance
type Audio struct {
	Format     string
	SampleRate int
	Data       []byte
}

// Duration is the playback length of the audio
func (a *Audio) Duration() time.Duration {
	if a == nil || a.SampleRate <= 0 {
		return 0
	}
	samples := len(a.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(a.SampleRate)
}

// Synthesizer turns text into audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// SilentSynthesizer produces silence sized to the text. It stands in for a
// voice provider in console mode and tests so that playback still takes time.
type SilentSynthesizer struct {
	SampleRate int
	PerWord    time.Duration
}

// Synthesize returns PerWord of silence for each word in text
func (s SilentSynthesizer) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	words := 0
	inWord := false
	for _, r := range text {
		space := r == ' ' || r == '\t' || r == '\n'
		if !space && !inWord {
			words++
		}
		inWord = !space
	}

	samples := int(s.PerWord.Seconds()*float64(rate)) * words
	return &Audio{Format: FormatPCM16, SampleRate: rate, Data: make([]byte, samples*2)}, nil
}
