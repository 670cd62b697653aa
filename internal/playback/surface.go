package playback

import (
	"context"
	"errors"
)

// Sentinel errors a Surface implementation uses to report classified
// playback rejections. Anything else maps to FailureUnknown.
var (
	ErrNotAllowed   = errors.New("playback not allowed")
	ErrNotSupported = errors.New("audio format not supported")
	ErrAborted      = errors.New("playback aborted")
)

// Element is one attached audio resource. Each playback request gets its
// own element; elements are never reused.
type Element interface {
	// Play begins playback, returning once playback has started or with a
	// classified rejection.
	Play(ctx context.Context) error
	// Done delivers the terminal playback outcome exactly once: nil for a
	// completed playback, a classified error otherwise.
	Done() <-chan error
	// Detach removes the resource from the rendering document. Idempotent.
	Detach()
}

// Surface renders audio on the client. The production implementation
// bridges to the browser over the websocket; tests substitute a fake.
type Surface interface {
	Attach(ctx context.Context, payload []byte) (Element, error)
}
