// Package speech defines the text-to-speech sink the stream consumer
// forwards fragments to. Audio playback itself lives outside the core.
package speech

// Synthesizer receives streamed text for speech synthesis. StreamText
// with an empty string signals end-of-utterance.
type Synthesizer interface {
	StreamText(fragment string) error
	Stop()
	Supported() bool
}

// Null is a synthesizer that is never active.
type Null struct{}

func (Null) StreamText(string) error { return nil }
func (Null) Stop()                   {}
func (Null) Supported() bool         { return false }
