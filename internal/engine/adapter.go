// Package engine implements C1, the single-owner connection to the external
// audio engine's control port (§4.1). All other components reach the engine
// exclusively through this package's Adapter — never by opening their own
// connection (§4.1's "central lesson of the source").
package engine

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aircast/coordinator/internal/coreerrors"
	"github.com/aircast/coordinator/internal/domain"
)

// Config configures the adapter's transport, timeouts, and reconnect policy.
type Config struct {
	ControlAddr    string
	IngestHTTPBase string // empty disables the HTTP PUT ingestion path
	QueueName      string
	CommandTimeout time.Duration
	EnqueueTimeout time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
}

// request is one unit of work submitted to the adapter's single worker.
type request struct {
	do       func(rw *bufio.ReadWriter) (any, error)
	respond  chan<- result
	deadline time.Time
}

type result struct {
	value any
	err   error
}

// Adapter serializes every interaction with the audio engine behind one
// request queue and one long-lived connection, reconnecting with
// exponential backoff on failure (§4.1, §5).
type Adapter struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.RWMutex
	conn        net.Conn
	rw          *bufio.ReadWriter
	isConnected bool
	backoff     time.Duration

	httpClient *http.Client
	queue      chan request

	reconnects int64
}

// New constructs an adapter. Run must be running for requests to be served;
// the connection is dialed lazily by the first request.
func New(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = time.Second
	}
	if cfg.EnqueueTimeout == 0 {
		cfg.EnqueueTimeout = 3 * time.Second
	}
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = 100 * time.Millisecond
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 5 * time.Second
	}
	return &Adapter{
		cfg:        cfg,
		logger:     logger,
		backoff:    cfg.ReconnectMin,
		httpClient: &http.Client{Timeout: cfg.EnqueueTimeout},
		queue:      make(chan request, 64),
	}
}

// Run is the adapter's single worker loop: one request in flight at a time,
// reconnecting between requests as needed. It returns when ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.disconnect()
			return
		case req := <-a.queue:
			a.serve(ctx, req)
		}
	}
}

func (a *Adapter) serve(ctx context.Context, req request) {
	if err := a.ensureConnected(ctx); err != nil {
		req.respond <- result{err: err}
		return
	}

	_ = a.conn.SetDeadline(req.deadline)
	val, err := req.do(a.rw)
	if err != nil {
		a.logger.Warn("engine command failed, tearing down connection", zap.Error(err))
		a.disconnect()
	}
	req.respond <- result{value: val, err: err}
}

func (a *Adapter) ensureConnected(ctx context.Context) error {
	a.mu.RLock()
	connected := a.isConnected
	a.mu.RUnlock()
	if connected {
		return nil
	}
	return a.connect(ctx)
}

func (a *Adapter) connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isConnected {
		return nil
	}

	d := net.Dialer{Timeout: a.cfg.CommandTimeout}
	conn, err := d.DialContext(ctx, "tcp", a.cfg.ControlAddr)
	if err != nil {
		a.reconnects++
		delay := a.backoff
		a.backoff = minDuration(a.backoff*2, a.cfg.ReconnectMax)
		a.logger.Warn("engine connect failed, backing off",
			zap.Error(err), zap.Duration("next_retry_in", delay))
		time.Sleep(delay)
		return fmt.Errorf("%w: %v", coreerrors.ErrEngineUnavailable, err)
	}

	a.conn = conn
	a.rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	a.isConnected = true
	a.backoff = a.cfg.ReconnectMin
	a.logger.Info("engine control connection established", zap.String("addr", a.cfg.ControlAddr))
	return nil
}

func (a *Adapter) disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
	}
	a.conn = nil
	a.rw = nil
	a.isConnected = false
}

// submit enqueues a command and blocks for its result, never holding the
// connection lock across the caller's own computation (§4.1).
func (a *Adapter) submit(ctx context.Context, timeout time.Duration, do func(rw *bufio.ReadWriter) (any, error)) (any, error) {
	respond := make(chan result, 1)
	select {
	case a.queue <- request{do: do, respond: respond, deadline: time.Now().Add(timeout)}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-respond:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout + time.Second):
		return nil, coreerrors.ErrTimeout
	}
}

// Now returns the current track. §4.1.
func (a *Adapter) Now(ctx context.Context) (domain.NowSnapshot, error) {
	val, err := a.submit(ctx, a.cfg.CommandTimeout, func(rw *bufio.ReadWriter) (any, error) {
		if _, err := fmt.Fprintf(rw, "request.metadata current\n"); err != nil {
			return nil, err
		}
		if err := rw.Flush(); err != nil {
			return nil, err
		}
		fields, err := readBlock(rw.Reader)
		if err != nil {
			return nil, err
		}
		return fields, nil
	})
	if err != nil {
		return domain.NowSnapshot{}, classifyErr(err)
	}

	fields := val.(map[string]string)
	return domain.NowSnapshot{
		Title:      fields["title"],
		Artist:     fields["artist"],
		Album:      fields["album"],
		ArtworkRef: fields["artwork"],
	}, nil
}

// Upcoming returns up to n queued items, excluding the currently playing
// one. §4.1.
func (a *Adapter) Upcoming(ctx context.Context, n int) ([]domain.TrackRef, error) {
	val, err := a.submit(ctx, a.cfg.CommandTimeout, func(rw *bufio.ReadWriter) (any, error) {
		if _, err := fmt.Fprintf(rw, "request.all\n"); err != nil {
			return nil, err
		}
		if err := rw.Flush(); err != nil {
			return nil, err
		}
		ids, err := readBlock(rw.Reader)
		if err != nil {
			return nil, err
		}

		var refs []domain.TrackRef
		for i := 0; i < len(ids) && i < n; i++ {
			id := fmt.Sprintf("%d", i)
			raw, ok := ids[id]
			if !ok {
				continue
			}
			if _, err := fmt.Fprintf(rw, "request.metadata %s\n", raw); err != nil {
				return nil, err
			}
			if err := rw.Flush(); err != nil {
				return nil, err
			}
			fields, err := readBlock(rw.Reader)
			if err != nil {
				return nil, err
			}
			refs = append(refs, domain.TrackRef{
				Title:     fields["title"],
				Artist:    fields["artist"],
				Album:     fields["album"],
				SourceURI: fields["filename"],
			})
		}
		return refs, nil
	})
	if err != nil {
		return nil, classifyErr(err)
	}
	return val.([]domain.TrackRef), nil
}

// Skip requests the engine advance past the current item. §4.1.
func (a *Adapter) Skip(ctx context.Context, outputName string) error {
	_, err := a.submit(ctx, a.cfg.CommandTimeout, func(rw *bufio.ReadWriter) (any, error) {
		if _, err := fmt.Fprintf(rw, "output.%s.skip\n", outputName); err != nil {
			return nil, err
		}
		return nil, rw.Flush()
	})
	return classifyErr(err)
}

// EnqueueTTS submits a synthesized audio file for priority playback,
// preferring the HTTP PUT ingestion path when configured (§4.1, §6).
func (a *Adapter) EnqueueTTS(ctx context.Context, path string, body []byte) error {
	if a.cfg.IngestHTTPBase != "" {
		return a.enqueueHTTP(ctx, path, body)
	}
	return a.enqueueControlPort(ctx, path)
}

func (a *Adapter) enqueueControlPort(ctx context.Context, path string) error {
	_, err := a.submit(ctx, a.cfg.EnqueueTimeout, func(rw *bufio.ReadWriter) (any, error) {
		if _, err := fmt.Fprintf(rw, "%s.push %s\n", a.cfg.QueueName, path); err != nil {
			return nil, err
		}
		if err := rw.Flush(); err != nil {
			return nil, err
		}
		line, err := rw.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if parseInt(line) < 0 {
			return nil, coreerrors.ErrEngineRejected
		}
		return nil, nil
	})
	return classifyErr(err)
}

// Reconnects reports the cumulative reconnect-attempt count, for metrics.
func (a *Adapter) Reconnects() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reconnects
}

// Connected reports whether the control connection is currently live.
func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isConnected
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case coreerrors.ErrEngineUnavailable, coreerrors.ErrEngineRejected, coreerrors.ErrTimeout, context.Canceled, context.DeadlineExceeded:
		return err
	default:
		return fmt.Errorf("%w: %v", coreerrors.ErrEngineUnavailable, err)
	}
}
