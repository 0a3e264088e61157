// Package relay streams text-generation output from an upstream provider to
// a downstream consumer as a lazy sequence of frames. A stream always ends
// with a terminal frame (done or error), never silent truncation.
package relay

import "fmt"

// FrameKind discriminates the frame variants.
type FrameKind int

const (
	// FrameChunk carries one incremental text delta.
	FrameChunk FrameKind = iota
	// FrameDone marks successful completion of the stream.
	FrameDone
	// FrameError carries an in-band failure message and terminates the stream.
	FrameError
)

// Frame is one discrete unit of streamed output.
type Frame struct {
	Kind    FrameKind
	Text    string // set when Kind == FrameChunk
	Message string // set when Kind == FrameError
}

// Chunk builds a text frame.
func Chunk(text string) Frame {
	return Frame{Kind: FrameChunk, Text: text}
}

// Done builds the completion sentinel.
func Done() Frame {
	return Frame{Kind: FrameDone}
}

// Errorf builds an error frame with a formatted message.
func Errorf(format string, args ...interface{}) Frame {
	return Frame{Kind: FrameError, Message: fmt.Sprintf(format, args...)}
}
