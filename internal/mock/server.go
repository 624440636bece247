package mock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the graceful shutdown of the listener
const shutdownTimeout = 5 * time.Second

// route is a Route with its matcher compiled and its status cursor
type route struct {
	Route
	re     *regexp.Regexp
	cursor atomic.Uint64
}

// nextStatus returns the status for the next request on this route. A
// Statuses sequence is served in order and wraps around.
func (r *route) nextStatus() int {
	if n := len(r.Statuses); n > 0 {
		i := r.cursor.Add(1) - 1
		return r.Statuses[i%uint64(n)]
	}
	if r.Status != 0 {
		return r.Status
	}
	return http.StatusOK
}

func (r *route) matches(method, path string) bool {
	if !strings.EqualFold(r.Method, method) {
		return false
	}
	switch r.PathType {
	case "prefix":
		return strings.HasPrefix(path, r.Path)
	case "regex":
		return r.re.MatchString(path)
	default:
		return r.Path == path
	}
}

func (r *route) label() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%s %s", r.Method, r.Path)
}

// Server represents the mock HTTP server
type Server struct {
	config  *Config
	routes  []*route
	workdir string
	logger  *zap.Logger

	httpServer *http.Server

	served   atomic.Int64
	countsMu sync.Mutex
	counts   map[int]int64
}

// NewServer validates the configuration and prepares a mock server. Relative
// body files are resolved against workdir.
func NewServer(config *Config, workdir string, logger *zap.Logger) (*Server, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	routes := make([]*route, 0, len(config.Routes))
	for _, r := range config.Routes {
		compiled := &route{Route: r}
		if r.PathType == "regex" {
			compiled.re = regexp.MustCompile(r.Path)
		}
		routes = append(routes, compiled)
	}

	return &Server{
		config:  config,
		routes:  routes,
		workdir: workdir,
		logger:  logger,
		counts:  make(map[int]int64),
	}, nil
}

// Handler returns the request handler serving all routes
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleRequest)
}

// Listen opens the configured address
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return ln, nil
}

// Run listens on the configured address and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("mock server listening", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mock server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// handleRequest handles incoming HTTP requests
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	rt := s.findMatchingRoute(r.Method, r.URL.Path)

	var status int
	var responseBody string
	matchedRule := "none"

	if rt == nil {
		status = http.StatusNotFound
		responseBody = fmt.Sprintf("Mock server: No route configured for %s %s", r.Method, r.URL.Path)
	} else {
		if rt.Delay > 0 {
			time.Sleep(time.Duration(rt.Delay) * time.Millisecond)
		}

		status = rt.nextStatus()

		for key, value := range rt.Headers {
			w.Header().Set(key, value)
		}

		if rt.BodyFile != "" {
			filePath := rt.BodyFile
			if !filepath.IsAbs(filePath) {
				filePath = filepath.Join(s.workdir, filePath)
			}
			bodyBytes, err := os.ReadFile(filePath)
			if err != nil {
				status = http.StatusInternalServerError
				responseBody = fmt.Sprintf("Mock server: Failed to read body file %s: %v", rt.BodyFile, err)
			} else {
				responseBody = string(bodyBytes)
			}
		} else {
			responseBody = rt.Body
		}

		matchedRule = rt.label()
	}

	w.WriteHeader(status)
	w.Write([]byte(responseBody))

	s.record(status)

	if s.config.Logging {
		s.logger.Debug("mock request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("rule", matchedRule),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)))
	}
}

// findMatchingRoute finds the first route that matches the method and path
func (s *Server) findMatchingRoute(method, path string) *route {
	for _, r := range s.routes {
		if r.matches(method, path) {
			return r
		}
	}
	return nil
}

func (s *Server) record(status int) {
	s.served.Add(1)

	s.countsMu.Lock()
	s.counts[status]++
	s.countsMu.Unlock()
}

// Served returns the number of requests answered so far
func (s *Server) Served() int64 {
	return s.served.Load()
}

// StatusCounts returns how many responses were sent per status code
func (s *Server) StatusCounts() map[int]int64 {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()

	counts := make(map[int]int64, len(s.counts))
	for status, n := range s.counts {
		counts[status] = n
	}
	return counts
}

// GetAddress returns the configured server address
func (s *Server) GetAddress() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port)))
}
