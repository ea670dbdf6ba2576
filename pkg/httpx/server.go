// Package httpx serves the operator API over the configured transport:
// net/http by default, fasthttp when server.engine selects it. Handlers are
// plain http.Handler either way; the fasthttp path goes through the adaptor.
package httpx

import (
	"context"
	"net"
	"net/http"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"ingestd/pkg/config"
	"ingestd/pkg/logger"
)

// Server runs the operator HTTP surface on one of the supported engines.
type Server struct {
	addr    string
	engine  string
	handler http.Handler
	tls     config.TLSConfig

	ln   net.Listener
	srv  *http.Server
	fsrv *fasthttp.Server
}

// New builds a server. engine is "nethttp" or "fasthttp"; anything else
// falls back to nethttp.
func New(addr, engine string, h http.Handler, tls config.TLSConfig) *Server {
	return &Server{addr: addr, engine: engine, handler: h, tls: tls}
}

// Start binds the listener and serves in a goroutine. The returned channel
// carries the terminal serve error (http.ErrServerClosed after Shutdown).
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- err
		return errCh
	}
	s.ln = ln
	logger.Info("http_listening", "addr", ln.Addr().String(), "engine", s.engineName(), "tls", s.tls.CertFile != "")

	switch s.engineName() {
	case "fasthttp":
		s.fsrv = &fasthttp.Server{
			Handler: fasthttpadaptor.NewFastHTTPHandler(s.handler),
			Name:    "ingestd",
		}
		go func() {
			if s.tls.CertFile != "" && s.tls.KeyFile != "" {
				errCh <- s.fsrv.ServeTLS(ln, s.tls.CertFile, s.tls.KeyFile)
			} else {
				errCh <- s.fsrv.Serve(ln)
			}
		}()
	default:
		s.srv = &http.Server{Handler: s.handler}
		go func() {
			if s.tls.CertFile != "" && s.tls.KeyFile != "" {
				errCh <- s.srv.ServeTLS(ln, s.tls.CertFile, s.tls.KeyFile)
			} else {
				errCh <- s.srv.Serve(ln)
			}
		}()
	}
	return errCh
}

// Addr returns the bound address, useful when the port was 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.fsrv != nil {
		return s.fsrv.ShutdownWithContext(ctx)
	}
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) engineName() string {
	if s.engine == "fasthttp" {
		return "fasthttp"
	}
	return "nethttp"
}
