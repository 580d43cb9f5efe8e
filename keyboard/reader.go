package keyboard

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/pkg/buffer"
)

// shutdownSentinel is posted to every subscriber when the reader is told
// to stop, unblocking consumers parked on a Subscribe channel read even if
// stdin itself is still open (spec.md §4.5).
const shutdownSentinel = "\x00hermes:keyboard:shutdown\x00"

// perConsumerCapacity bounds how far a slow consumer can lag before the
// reader blocks on it. Each consumer has its own buffer, so consumers read
// at their own pace until one falls this many lines behind; broadcast then
// blocks on that consumer, and no subscriber receives further lines until
// it reads (spec.md §4.5).
const perConsumerCapacity = 256

// Reader is the single per-host stdin line reader. Exactly one Reader
// should run per host; every Node, Storage, and the Broker subscribe to
// it to receive operator keystrokes (spec.md §4.5).
type Reader struct {
	stdin  io.Reader
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[string]buffer.Buffer[string]
	closed      bool

	done chan struct{}
}

// New constructs a Reader over the given input source (os.Stdin in
// production, a bytes.Reader or io.Pipe in tests).
func New(stdin io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		stdin:       stdin,
		logger:      logger.With("component", "keyboard"),
		subscribers: make(map[string]buffer.Buffer[string]),
		done:        make(chan struct{}),
	}
}

// Subscribe registers a named consumer and returns its feed. Each
// subscriber sees every line posted after it subscribes, exactly once.
// Subscribers read independently until one has perConsumerCapacity unread
// lines; delivery to every subscriber then waits until that one reads.
func (r *Reader) Subscribe(name string) (buffer.Buffer[string], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.WrapInvalid(errors.ErrAlreadyStopped, "keyboard.Reader", "Subscribe", "reader already stopped")
	}
	if _, exists := r.subscribers[name]; exists {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "keyboard.Reader", "Subscribe", "duplicate subscriber: "+name)
	}

	feed, err := buffer.NewCircularBuffer[string](perConsumerCapacity, buffer.WithOverflowPolicy[string](buffer.Block))
	if err != nil {
		return nil, errors.Wrap(err, "keyboard.Reader", "Subscribe", "create subscriber buffer")
	}
	r.subscribers[name] = feed
	return feed, nil
}

// Run reads stdin line by line and broadcasts each line to every
// subscriber until ctx is cancelled or stdin returns EOF/error. Run blocks
// on the calling goroutine; callers run it as the host's dedicated
// keyboard daemon goroutine.
func (r *Reader) Run(ctx context.Context) error {
	defer close(r.done)

	scanner := bufio.NewScanner(r.stdin)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			r.broadcast(shutdownSentinel)
			return nil
		case line, ok := <-lines:
			if !ok {
				err := <-scanErr
				r.broadcast(shutdownSentinel)
				return err
			}
			r.broadcast(line)
		}
	}
}

// Shutdown posts the shutdown sentinel to every subscriber and marks the
// reader closed, intended to be called when the Broker enters DRAIN.
func (r *Reader) Shutdown() {
	r.broadcast(shutdownSentinel)
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// IsShutdownLine reports whether line is the cooperative shutdown
// sentinel, so a consumer's read loop knows to stop.
func IsShutdownLine(line string) bool {
	return line == shutdownSentinel
}

func (r *Reader) broadcast(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, feed := range r.subscribers {
		if err := feed.Write(line); err != nil {
			r.logger.Warn("dropped keyboard line for subscriber", "subscriber", name, "error", err)
		}
	}
}

// WaitDone blocks until Run has returned, or the deadline elapses.
func (r *Reader) WaitDone(timeout time.Duration) bool {
	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
