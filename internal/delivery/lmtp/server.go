package lmtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"mailsearch/internal/conf"
	"mailsearch/internal/delivery/storage"
)

var metricDeliveries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mailsearch_lmtp_deliveries_total",
		Help: "Per-recipient LMTP deliveries by result.",
	},
	[]string{
		"result", // ok, error
	},
)

// Server represents an LMTP server delivering into the mail store
type Server struct {
	config   conf.LMTPConfig
	delivery conf.DeliveryConfig
	storage  *storage.Storage
	log      *zap.Logger
	smtp     *smtp.Server

	// ctx is canceled by Shutdown and bounds in-flight deliveries
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners []listener
	wg        sync.WaitGroup
}

type listener struct {
	net.Listener
	kind string
}

// NewServer creates a new LMTP server
func NewServer(cfg *conf.Config, stor *storage.Storage, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg.LMTP,
		delivery: cfg.Delivery,
		storage:  stor,
		log:      logger.Named("lmtp"),
		ctx:      ctx,
		cancel:   cancel,
	}

	srv := smtp.NewServer(s)
	srv.LMTP = true
	srv.Domain = cfg.LMTP.Hostname
	srv.MaxMessageBytes = cfg.LMTP.MaxSize
	srv.MaxRecipients = cfg.LMTP.MaxRecipients
	srv.ReadTimeout = time.Duration(cfg.LMTP.Timeout) * time.Second
	srv.WriteTimeout = time.Duration(cfg.LMTP.Timeout) * time.Second
	srv.ErrorLog = zap.NewStdLog(s.log)
	s.smtp = srv
	return s
}

// NewSession is called by the protocol layer for every connection.
func (s *Server) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := c.Conn().RemoteAddr().String()
	s.log.Debug("new connection", zap.String("remote", remote))
	return newSession(s, remote), nil
}

// Start listens on the configured listeners and serves until Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen opens the configured UNIX socket and TCP listeners.
func (s *Server) Listen() error {
	if s.config.UnixSocket != "" {
		if err := s.startUnixListener(); err != nil {
			return fmt.Errorf("failed to start UNIX listener: %w", err)
		}
	}
	if s.config.TCPAddress != "" {
		if err := s.startTCPListener(); err != nil {
			return fmt.Errorf("failed to start TCP listener: %w", err)
		}
	}
	return nil
}

// startUnixListener starts listening on a UNIX socket
func (s *Server) startUnixListener() error {
	// a stale socket file from an earlier run blocks the bind
	_ = os.Remove(s.config.UnixSocket)

	l, err := net.Listen("unix", s.config.UnixSocket)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.config.UnixSocket, 0666); err != nil {
		s.log.Warn("failed to set socket permissions", zap.Error(err))
	}
	s.addListener(l, "unix")
	return nil
}

// startTCPListener starts listening on a TCP address
func (s *Server) startTCPListener() error {
	l, err := net.Listen("tcp", s.config.TCPAddress)
	if err != nil {
		return err
	}
	s.addListener(l, "tcp")
	return nil
}

func (s *Server) addListener(l net.Listener, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener{Listener: l, kind: kind})
	s.log.Info("LMTP server listening", zap.String("type", kind), zap.Stringer("address", l.Addr()))
}

// Addrs returns the addresses of the open listeners.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, l := range s.listeners {
		addrs = append(addrs, l.Addr())
	}
	return addrs
}

// Serve accepts connections on every open listener and blocks until all of
// them are closed.
func (s *Server) Serve() error {
	s.mu.Lock()
	listeners := append([]listener(nil), s.listeners...)
	s.mu.Unlock()
	if len(listeners) == 0 {
		return fmt.Errorf("no LMTP listener configured")
	}

	errs := make(chan error, len(listeners))
	for _, l := range listeners {
		s.wg.Add(1)
		go func(l listener) {
			defer s.wg.Done()
			err := s.smtp.Serve(l)
			if err != nil && !errors.Is(err, smtp.ErrServerClosed) {
				s.log.Error("listener stopped", zap.String("type", l.kind), zap.Error(err))
				errs <- err
			}
		}(l)
	}
	s.wg.Wait()
	close(errs)
	s.log.Info("all connections closed")
	return <-errs
}

// Shutdown closes the listeners and every open connection.
func (s *Server) Shutdown() error {
	s.log.Info("shutting down LMTP server")
	s.cancel()
	err := s.smtp.Close()
	if s.config.UnixSocket != "" {
		_ = os.Remove(s.config.UnixSocket)
	}
	if err != nil && !errors.Is(err, smtp.ErrServerClosed) {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
