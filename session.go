package stdiorpc

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xizhibei/go-stdio-rpc/jsonrpc"
	"github.com/xizhibei/go-stdio-rpc/stdio"
	"github.com/xizhibei/go-stdio-rpc/telemetry"
	"github.com/xizhibei/go-stdio-rpc/transcript"
)

// Session drives one linear JSON-RPC conversation over a Channel.
// It exclusively owns the channel and closes it on Close.
type Session struct {
	log     *zap.SugaredLogger
	ch      Channel
	proc    *stdio.Process
	options *sessionOptions
	limiter *rate.Limiter
	tel     *telemetry.Telemetry

	seq         atomic.Uint64
	closed      atomic.Bool
	initialized atomic.Bool

	sendMu  sync.Mutex
	recvMu  sync.Mutex
	pending chan readResult

	cbList        []OnAfterExchangeCallback
	afterExchPool sync.Pool
}

type readResult struct {
	line []byte
	err  error
}

// New creates a session over an already open channel.
func New(ch Channel, options ...Option) *Session {
	o := sessionOptions{
		name:            uuid.New().String(),
		limiterInterval: time.Second,
		limiterBurst:    5,
		protocolVersion: jsonrpc.ProtocolVersion,
		clientInfo: jsonrpc.Implementation{
			Name:    DefaultClientName,
			Version: DefaultClientVersion,
		},
	}

	for _, option := range options {
		option(&o)
	}

	tel := o.telemetry
	if tel == nil {
		tel, _ = telemetry.NewNoop()
	}

	return &Session{
		log:     zap.S().With("module", "stdiorpc.session", "session", o.name),
		ch:      ch,
		options: &o,
		limiter: rate.NewLimiter(rate.Every(o.limiterInterval), o.limiterBurst),
		tel:     tel,
		afterExchPool: sync.Pool{
			New: func() interface{} {
				return new(AfterExchangeEvent)
			},
		},
	}
}

// Start launches the peer described by cfg and returns a live session over its stdio.
// Options given here override those derived from cfg.
func Start(ctx context.Context, cfg Config, options ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	proc, err := stdio.Start(ctx, stdio.Config{
		Path: cfg.ExecutablePath,
		Args: cfg.Args,
		Env:  cfg.Env,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "launch %s", cfg.ExecutablePath), ErrProcessLaunch)
	}

	s := New(proc, append(cfg.Options(), options...)...)
	s.proc = proc
	s.log.Infof("Session started, pid %d", proc.Pid())
	return s, nil
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.options.name
}

// Process returns the peer process, or nil for sessions created with New.
func (s *Session) Process() *stdio.Process {
	return s.proc
}

// NextID returns the next value of the outbound message sequence, starting at 0.
func (s *Session) NextID() uint64 {
	return s.seq.Inc() - 1
}

// Send writes msg as one line of JSON followed by '\n' in a single write.
func (s *Session) Send(ctx context.Context, msg *jsonrpc.Request) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	if err := s.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return errors.Mark(errors.Wrapf(ctx.Err(), "send %s", msg.Method), ErrReadTimeout)
		}
		return errors.Mark(errors.Wrapf(err, "send %s", msg.Method), ErrTooFrequent)
	}

	data, err := jsonrpc.EncodeLine(msg)
	if err != nil {
		return errors.Wrapf(err, "encode %s", msg.Method)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if _, err := s.ch.Write(data); err != nil {
		return errors.Mark(errors.Wrapf(err, "write %s", msg.Method), ErrChannelClosed)
	}

	s.trace(transcript.Outbound, data)
	return nil
}

// Notify sends a notification. It consumes a sequence number without sending it.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	s.NextID()
	return s.Send(ctx, jsonrpc.NewNotification(method, params))
}

// ReceiveLine returns the next line from the peer including its '\n'.
// It returns ErrChannelClosed once the peer closed its output with nothing pending.
// The wait is bounded by ctx and the read timeout; on expiry it returns ErrReadTimeout
// and the line, once it arrives, is returned by the next call.
func (s *Session) ReceiveLine(ctx context.Context) ([]byte, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	if s.pending == nil {
		pending := make(chan readResult, 1)
		s.pending = pending
		go func() {
			line, err := s.ch.ReadLine()
			pending <- readResult{line: line, err: err}
		}()
	}

	var timeout <-chan time.Time
	if d := s.options.readTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-s.pending:
		s.pending = nil
		if r.err != nil {
			if errors.Is(r.err, io.EOF) {
				return nil, ErrChannelClosed
			}
			return nil, errors.Mark(errors.Wrap(r.err, "read line"), ErrChannelClosed)
		}
		s.trace(transcript.Inbound, r.line)
		return r.line, nil
	case <-ctx.Done():
		return nil, errors.Mark(errors.Wrap(ctx.Err(), "receive line"), ErrReadTimeout)
	case <-timeout:
		return nil, errors.Wrapf(ErrReadTimeout, "no line within %v", s.options.readTimeout)
	}
}

// Call sends a request and waits for its response. Notifications pushed by the
// peer in between are skipped. A JSON-RPC error object is returned as *jsonrpc.Error
// together with the response.
func (s *Session) Call(ctx context.Context, method string, params any) (res *jsonrpc.Response, err error) {
	id := s.NextID()
	start := time.Now()

	ctx, span := s.tel.StartSpan(ctx, "STDIORPC.Session.Call "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
			attribute.Int64("rpc.jsonrpc.request_id", int64(id)),
			attribute.String("session", s.options.name),
		),
	)

	defer func() {
		duration := time.Since(start).Round(time.Millisecond)
		status := StatusOf(err)

		s.tel.RecordExchange(ctx, duration, method, status, err)
		telemetry.EndSpan(span, err)

		if s.options.logTraffic {
			s.log.Infof("Exchange %s #%d [%d] (%v)", method, id, status, duration)
		}

		evt := s.afterExchPool.Get().(*AfterExchangeEvent)
		evt.Method = method
		evt.ID = id
		evt.Duration = duration
		evt.Status = status
		evt.Res = res
		evt.Err = err
		s.emitAfterExchange(evt)
	}()

	if err = s.Send(ctx, jsonrpc.NewRequest(id, method, params)); err != nil {
		return nil, err
	}

	return s.awaitResponse(ctx, id)
}

func (s *Session) awaitResponse(ctx context.Context, id uint64) (*jsonrpc.Response, error) {
	for {
		line, err := s.ReceiveLine(ctx)
		if err != nil {
			return nil, err
		}

		res, err := jsonrpc.DecodeLine(line)
		if err != nil {
			return nil, newMalformed(bytes.TrimRight(line, "\r\n"), "not a JSON object", err)
		}

		if res.IsNotification() {
			s.log.Debugf("Skipping notification %s while waiting for #%d", res.Method, id)
			continue
		}

		got, ok := res.IDNum()
		if !ok {
			if res.Error != nil {
				return res, res.Error
			}
			return res, newMalformed(res.Raw, "missing id", nil)
		}
		if got != id {
			return res, newMalformed(res.Raw, "unexpected id "+string(res.ID), nil)
		}
		if !res.HasOutcome() {
			return res, newMalformed(res.Raw, "neither result nor error", nil)
		}
		if res.Error != nil {
			return res, res.Error
		}
		return res, nil
	}
}

// Close closes the channel and, for started sessions, asks the peer to terminate.
// It does not wait for the peer to exit. Calling Close more than once is a no-op.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.log.Infof("Closing session")
	return s.ch.Close()
}

func (s *Session) trace(dir transcript.Direction, line []byte) {
	if s.options.recorder != nil {
		s.options.recorder.Record(dir, line)
	}
	if s.options.logTraffic {
		s.log.Infof("%s %s", dir, bytes.TrimRight(line, "\r\n"))
	} else {
		s.log.Debugf("%s %s", dir, bytes.TrimRight(line, "\r\n"))
	}
}
