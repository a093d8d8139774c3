package tls

import (
	"bufio"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"
)

// recordTypeHandshake is the first byte of every TLS ClientHello.
const recordTypeHandshake = 0x16

// DefaultSniffTimeout bounds how long a new connection may stay silent
// before it is dropped.
const DefaultSniffTimeout = 10 * time.Second

// Listener serves TLS and plaintext on one port. Each accepted connection
// is classified by its first byte; handshakes are wrapped in a server-side
// *tls.Conn and everything else is passed through unchanged.
type Listener struct {
	inner   net.Listener
	config  *tls.Config
	timeout time.Duration
	log     *slog.Logger

	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
	err   error
}

// NewListener starts classifying connections accepted from inner.
func NewListener(inner net.Listener, config *tls.Config, timeout time.Duration, log *slog.Logger) *Listener {
	if timeout <= 0 {
		timeout = DefaultSniffTimeout
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	l := &Listener{
		inner:   inner,
		config:  config,
		timeout: timeout,
		log:     log,
		conns:   make(chan net.Conn),
		done:    make(chan struct{}),
	}
	go l.acceptLoop()
	return l
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.inner.Accept()
		if err != nil {
			l.fail(err)
			return
		}
		go l.classify(conn)
	}
}

func (l *Listener) classify(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(l.timeout))
	br := bufio.NewReader(conn)
	first, err := br.Peek(1)
	if err != nil {
		l.log.Debug("connection closed before first byte", "remote", conn.RemoteAddr(), "error", err)
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	var out net.Conn = &peekedConn{Conn: conn, r: br}
	if first[0] == recordTypeHandshake {
		out = tls.Server(out, l.config)
	}

	select {
	case l.conns <- out:
	case <-l.done:
		_ = conn.Close()
	}
}

func (l *Listener) fail(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.done)
	})
}

// Accept returns the next classified connection.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, l.err
	}
}

// Close stops accepting. Connections still being classified are closed.
func (l *Listener) Close() error {
	l.fail(net.ErrClosed)
	return l.inner.Close()
}

// Addr returns the address of the underlying listener.
func (l *Listener) Addr() net.Addr {
	return l.inner.Addr()
}

// peekedConn replays the bytes buffered while classifying.
type peekedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *peekedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

var _ net.Listener = (*Listener)(nil)
