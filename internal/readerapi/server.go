// Package readerapi is the TCP ingress for card readers: one goroutine per
// accepted connection, one request and one response per connection.
package readerapi

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BrandonDHaskell/refectory/internal/readerproto"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

var ErrServerClosed = errors.New("readerapi: server closed")

type Swiper interface {
	Validate(ctx context.Context, req types.SwipeRequest) types.SwipeOutcome
}

type HeartbeatRecorder interface {
	Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error)
}

type Dependencies struct {
	Logger           *log.Logger
	Addr             string
	SwipeService     Swiper
	HeartbeatService HeartbeatRecorder

	ReadTimeout     time.Duration // per-connection receive budget, default 5s
	WriteTimeout    time.Duration // default 5s
	HandleTimeout   time.Duration // bound on service work per request, default 10s
	MaxRequestBytes int           // default 4096

	// AcceptRate limits new connections per second; 0 disables throttling.
	AcceptRate  float64
	AcceptBurst int
}

type Server struct {
	logger   *log.Logger
	addr     string
	swipes   Swiper
	beats    HeartbeatRecorder
	readTO   time.Duration
	writeTO  time.Duration
	handleTO time.Duration
	maxBytes int
	limiter  *rate.Limiter
	stopCtx  context.Context
	stop     context.CancelFunc
	conns    sync.WaitGroup
	mu       sync.Mutex
	listener net.Listener
	shutdown bool
}

func NewServer(d Dependencies) *Server {
	if d.ReadTimeout <= 0 {
		d.ReadTimeout = 5 * time.Second
	}
	if d.WriteTimeout <= 0 {
		d.WriteTimeout = 5 * time.Second
	}
	if d.HandleTimeout <= 0 {
		d.HandleTimeout = 10 * time.Second
	}
	if d.MaxRequestBytes <= 0 {
		d.MaxRequestBytes = 4096
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if d.AcceptRate > 0 {
		burst := d.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(d.AcceptRate), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:   d.Logger,
		addr:     d.Addr,
		swipes:   d.SwipeService,
		beats:    d.HeartbeatService,
		readTO:   d.ReadTimeout,
		writeTO:  d.WriteTimeout,
		handleTO: d.HandleTimeout,
		maxBytes: d.MaxRequestBytes,
		limiter:  limiter,
		stopCtx:  ctx,
		stop:     cancel,
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It always returns a
// non-nil error; ErrServerClosed after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	var tempDelay time.Duration
	for {
		if err := s.limiter.Wait(s.stopCtx); err != nil {
			return ErrServerClosed
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.isShutdown() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.logger.Printf("reader: accept error: %v; retrying in %s", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		s.conns.Add(1)
		go s.handleConn(conn)
	}
}

// Addr is the bound listener address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and waits for in-flight connections or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	ln := s.listener
	s.mu.Unlock()

	s.stop()
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	var msg readerproto.Message
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("reader: %s: panic: %v", conn.RemoteAddr(), r)
			// A decoded swipe is still answered.
			if msg.Kind == readerproto.KindSwipe && msg.Swipe != nil {
				resp := readerproto.Reject(msg.Swipe.Info, types.OutcomeInternalError)
				_ = conn.SetWriteDeadline(time.Now().Add(s.writeTO))
				_, _ = conn.Write(resp.Encode())
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTO))
	raw, err := readRequest(conn, s.maxBytes)
	if err != nil {
		s.logger.Printf("reader: %s: read: %v", conn.RemoteAddr(), err)
		return
	}

	msg, err = readerproto.Decode(raw)
	if err != nil {
		s.logger.Printf("reader: %s: dropped: %v", conn.RemoteAddr(), err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.handleTO)
	defer cancel()

	var resp readerproto.Response
	switch msg.Kind {
	case readerproto.KindHeartbeat:
		if _, err := s.beats.Record(ctx, *msg.Heartbeat); err != nil {
			s.logger.Printf("reader: heartbeat from %s: %v", msg.Heartbeat.DeviceSN, err)
		}
		resp = readerproto.HeartbeatAck(msg.Heartbeat.Info)
	case readerproto.KindSwipe:
		out := s.swipes.Validate(ctx, *msg.Swipe)
		resp = readerproto.ForOutcome(msg.Swipe.Info, out)
	default:
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTO))
	if _, err := conn.Write(resp.Encode()); err != nil {
		s.logger.Printf("reader: %s: write: %v", conn.RemoteAddr(), err)
	}
}

// readRequest reads until the buffer holds a complete request, the limit
// is reached, or the peer stops sending. A partial buffer is returned when
// the deadline expires after some bytes arrived.
func readRequest(conn net.Conn, limit int) ([]byte, error) {
	buf := make([]byte, 0, 1024)
	chunk := make([]byte, 1024)
	for len(buf) < limit {
		n := len(chunk)
		if rest := limit - len(buf); rest < n {
			n = rest
		}
		got, err := conn.Read(chunk[:n])
		buf = append(buf, chunk[:got]...)
		if readerproto.Complete(buf) {
			return buf, nil
		}
		if err != nil {
			if len(buf) > 0 && (errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded)) {
				return buf, nil
			}
			return nil, err
		}
	}
	return buf, nil
}
