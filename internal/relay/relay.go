package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Relay turns an upstream push-callback stream into a pull-based frame
// sequence. The frame channel is unbuffered: the upstream is only drained
// as fast as the consumer receives, and an abandoned consumer stops the
// upstream instead of buffering without bound.
type Relay struct {
	client      Streamer
	idleTimeout time.Duration
	logger      *slog.Logger
}

// New creates a Relay. idleTimeout converts upstream silence into an error
// frame; zero disables the watchdog.
func New(client Streamer, idleTimeout time.Duration, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		client:      client,
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

// errConsumerGone aborts the upstream read when the downstream consumer
// stopped pulling frames.
var errConsumerGone = errors.New("downstream consumer gone")

// Stream opens one upstream generation request for prompt and returns the
// resulting frame sequence. The channel is closed after the terminal frame
// (done or error). Cancelling ctx cancels the upstream request and ends the
// stream; a new call opens a new upstream request.
func (r *Relay) Stream(ctx context.Context, prompt string) <-chan Frame {
	frames := make(chan Frame)

	go func() {
		defer close(frames)

		upstreamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Idle watchdog: cancels the upstream when no delta arrives for
		// idleTimeout. idleFired distinguishes this from consumer cancel.
		var idleFired atomic.Bool
		var idle *time.Timer
		if r.idleTimeout > 0 {
			idle = time.AfterFunc(r.idleTimeout, func() {
				idleFired.Store(true)
				cancel()
			})
			defer idle.Stop()
		}

		send := func(f Frame) bool {
			select {
			case frames <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := r.client.StreamCompletion(upstreamCtx, prompt, func(delta string) error {
			if idle != nil {
				idle.Reset(r.idleTimeout)
			}
			if !send(Chunk(delta)) {
				return errConsumerGone
			}
			return nil
		})

		switch {
		case err == nil:
			send(Done())
		case idleFired.Load():
			r.logger.Warn("upstream stream idle timeout", slog.Duration("idle_timeout", r.idleTimeout))
			send(Errorf("generation timed out: no output received for %s", r.idleTimeout))
		case errors.Is(err, errConsumerGone) || ctx.Err() != nil:
			// Consumer disconnected; nobody is listening for a terminal frame.
			r.logger.Debug("stream consumer disconnected")
		default:
			r.logger.Error("upstream stream failed", slog.String("error", err.Error()))
			send(Errorf("generation failed: %s", err.Error()))
		}
	}()

	return frames
}
