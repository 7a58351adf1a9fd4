// internal/netguard/guard.go

// Package netguard runs the loopback proxy the application under test is
// pointed at. Desktop builds phone home on launch; the guard pins egress to
// an allowlist so smoke runs stay hermetic and records what it refused.
package netguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
)

// Guard is an HTTP(S) forward proxy that admits loopback traffic and hosts
// on the allowlist, and refuses everything else. HTTPS is tunneled, never
// intercepted; the gate is the CONNECT host.
type Guard struct {
	proxy  *goproxy.ProxyHttpServer
	logger *zap.Logger
	allow  []string

	mu      sync.Mutex
	ln      net.Listener
	server  *http.Server
	refused map[string]int
}

// New builds a guard admitting loopback plus the given host suffixes.
func New(allow []string, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		proxy:   goproxy.NewProxyHttpServer(),
		logger:  logger.Named("netguard"),
		allow:   append([]string(nil), allow...),
		refused: make(map[string]int),
	}
	g.setupHandlers()
	return g
}

// setupHandlers wires the admission decision into both the plain-HTTP and
// the CONNECT paths.
func (g *Guard) setupHandlers() {
	g.proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		if g.Allowed(host) {
			return goproxy.OkConnect, host
		}
		g.recordRefusal(host)
		return goproxy.RejectConnect, host
	}))

	g.proxy.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		host := r.URL.Hostname()
		if g.Allowed(host) {
			return r, nil
		}
		g.recordRefusal(host)
		return r, goproxy.NewResponse(r, goproxy.ContentTypeText, http.StatusForbidden,
			fmt.Sprintf("egress blocked by netguard: %s", host))
	})
}

// Allowed reports whether host may be reached through the guard. Loopback
// is always admitted; other hosts must equal an allowlist entry or be a
// subdomain of one.
func (g *Guard) Allowed(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	for _, suffix := range g.allow {
		s := strings.ToLower(suffix)
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

func (g *Guard) recordRefusal(hostport string) {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	g.mu.Lock()
	g.refused[host]++
	g.mu.Unlock()
	g.logger.Warn("Refused egress.", zap.String("host", host))
}

// Refused returns the distinct hosts the guard turned away, sorted.
func (g *Guard) Refused() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	hosts := make([]string, 0, len(g.refused))
	for h := range g.refused {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Listen binds the guard to addr. The bound address, with the real port
// when addr asked for :0, is available from Addr afterwards.
func (g *Guard) Listen(addr string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ln != nil {
		return errors.New("netguard already listening")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding netguard on %s: %w", addr, err)
	}
	g.ln = ln
	return nil
}

// Addr returns the bound listen address, or "" before Listen.
func (g *Guard) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ln == nil {
		return ""
	}
	return g.ln.Addr().String()
}

// Serve runs the proxy on the listener until ctx is canceled, then shuts
// down gracefully. Listen must have been called.
func (g *Guard) Serve(ctx context.Context) error {
	g.mu.Lock()
	if g.ln == nil {
		g.mu.Unlock()
		return errors.New("netguard: Serve called before Listen")
	}
	if g.server != nil {
		g.mu.Unlock()
		return errors.New("netguard already serving")
	}
	server := &http.Server{
		Handler:      g.proxy,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     zap.NewStdLog(g.logger.Named("http_server")),
	}
	g.server = server
	ln := g.ln
	g.mu.Unlock()

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		g.logger.Info("Shutdown signal received, stopping netguard.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	g.logger.Info("Netguard proxy listening.",
		zap.String("address", ln.Addr().String()),
		zap.Strings("allow", g.allow))
	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		err = <-shutdownErr
	}

	g.mu.Lock()
	if g.server == server {
		g.server = nil
		g.ln = nil
	}
	g.mu.Unlock()

	if err != nil {
		return fmt.Errorf("netguard server failed: %w", err)
	}
	g.logger.Info("Netguard stopped gracefully.")
	return nil
}
