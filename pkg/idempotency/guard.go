package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
)

// replayHeaders are the response headers captured alongside status and body.
var replayHeaders = []string{"Content-Type", "Location"}

// Deriver turns a raw request body into its derived key and canonical bytes.
// An error means the body has no recognised shape.
type Deriver func(body []byte) (key string, canonical []byte, err error)

type Options struct {
	MaxBodyBytes int64
	LockTTL      time.Duration
	InFlightWait time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Second
	}
	if o.InFlightWait <= 0 {
		o.InFlightWait = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	return o
}

// Guard executes a side-effecting handler at most once per derived key and
// replays the recorded response for every later request with the same key.
type Guard struct {
	log    *slog.Logger
	store  Store
	locker Locker
	opts   Options
	now    func() time.Time
	tracer trace.Tracer
}

// NewGuard builds a Guard. locker may be nil, in which case concurrent
// identical requests fall back to the store's insert-if-absent.
func NewGuard(log *slog.Logger, store Store, locker Locker, opts Options) *Guard {
	return &Guard{
		log:    log,
		store:  store,
		locker: locker,
		opts:   opts.withDefaults(),
		now:    time.Now,
		tracer: otel.Tracer("idempotency-guard"),
	}
}

func (g *Guard) Middleware(derive Deriver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next, derive)
		})
	}
}

func (g *Guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, derive Deriver) {
	ctx, span := g.tracer.Start(r.Context(), "idempotency.guard")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	key, canonical, err := derive(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(attribute.String("idempotency.key", key))

	if supplied := r.Header.Get(HeaderKey); supplied != "" && supplied != key {
		writeError(w, http.StatusBadRequest, "Idempotency-Key does not match request payload")
		return
	}

	if rec, ok, err := g.store.Get(ctx, key); err != nil {
		g.log.Error("idempotency lookup failed", "derived_key", key, "err", err)
		writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
		return
	} else if ok {
		g.replay(w, rec)
		return
	}

	if g.locker != nil {
		unlock, err := g.locker.Acquire(ctx, key, g.opts.LockTTL)
		switch {
		case errors.Is(err, ErrLocked):
			g.awaitInFlight(ctx, w, key)
			return
		case err != nil:
			g.log.Warn("idempotency lock unavailable, continuing unlocked", "derived_key", key, "err", err)
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					g.log.Warn("idempotency unlock failed", "derived_key", key, "err", err)
				}
			}()
			// the previous holder may have finished between Get and Acquire
			if rec, ok, err := g.store.Get(ctx, key); err == nil && ok {
				g.replay(w, rec)
				return
			}
		}
	}

	r = r.WithContext(ctx)
	r.Body = io.NopCloser(bytes.NewReader(body))
	cw := newCaptureWriter()
	next.ServeHTTP(cw, r)

	rec := Record{
		Key:              key,
		StatusCode:       cw.status,
		Body:             cw.body.Bytes(),
		Headers:          cw.replayable(),
		CanonicalPayload: canonical,
		CreatedAt:        g.now().UTC(),
	}

	// failures caused by infrastructure must re-execute on retry
	if rec.StatusCode >= http.StatusInternalServerError {
		cw.forward(w, key)
		return
	}

	stored, created, err := g.store.PutIfAbsent(context.WithoutCancel(ctx), rec)
	switch {
	case err != nil:
		g.log.Error("idempotency record not persisted", "derived_key", key, "status", rec.StatusCode, "err", err)
		cw.forward(w, key)
	case !created:
		g.log.Warn("idempotency race lost, replaying winner", "derived_key", key)
		g.replay(w, stored)
	default:
		cw.forward(w, key)
	}
}

// awaitInFlight polls for the record of a concurrent identical request.
func (g *Guard) awaitInFlight(ctx context.Context, w http.ResponseWriter, key string) {
	deadline := time.NewTimer(g.opts.InFlightWait)
	defer deadline.Stop()
	tick := time.NewTicker(g.opts.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			writeError(w, http.StatusConflict, "an identical request is still being processed")
			return
		case <-tick.C:
			rec, ok, err := g.store.Get(ctx, key)
			if err != nil {
				g.log.Error("idempotency lookup failed", "derived_key", key, "err", err)
				writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
				return
			}
			if ok {
				g.replay(w, rec)
				return
			}
		}
	}
}

func (g *Guard) replay(w http.ResponseWriter, rec Record) {
	for k, v := range rec.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set(HeaderKey, rec.Key)
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(rec.StatusCode)
	_, _ = w.Write(rec.Body)
}

type captureWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header), status: http.StatusOK}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true
	c.status = status
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.wroteHeader = true
	return c.body.Write(p)
}

func (c *captureWriter) replayable() map[string]string {
	out := make(map[string]string, len(replayHeaders))
	for _, k := range replayHeaders {
		if v := c.header.Get(k); v != "" {
			out[k] = v
		}
	}
	return out
}

func (c *captureWriter) forward(w http.ResponseWriter, key string) {
	for k, vs := range c.header {
		w.Header()[k] = vs
	}
	w.Header().Set(HeaderKey, key)
	w.WriteHeader(c.status)
	_, _ = w.Write(c.body.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
