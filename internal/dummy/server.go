package dummy

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"kmsload/internal/kmspath"
	"kmsload/internal/scenario"
)

type ServerConfig struct {
	Port     int
	BasePath string

	// Every response is delayed by a duration drawn from this range.
	MinLatency time.Duration
	MaxLatency time.Duration

	// Fraction of requests answered with a 500.
	ErrorRate float64

	Log *zap.SugaredLogger
}

// Server is a stand-in for KMS. It sits behind the same single decode the
// API gateway applies, so a pattern sent with a plain %2F slash falls apart
// into extra path segments and 404s, exactly like the real deployment.
type Server struct {
	cfg    ServerConfig
	router *mux.Router

	mu   sync.Mutex
	rng  *rand.Rand
	seen map[string][]string
	hits map[string]uint64
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	s := &Server{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		seen: make(map[string][]string),
		hits: make(map[string]uint64),
	}

	s.router = mux.NewRouter().SkipClean(true)
	r := s.router
	if base := kmspath.NormalizeBasePath(cfg.BasePath); base != "" {
		r = s.router.PathPrefix(base).Subrouter()
	}
	r.Use(s.delay, s.count)

	r.HandleFunc(scenario.PathConcept, s.valueHandler("conceptId")).Methods(http.MethodGet).Name(scenario.PathConcept)
	r.HandleFunc(scenario.PathPattern, s.valueHandler("pattern")).Methods(http.MethodGet).Name(scenario.PathPattern)
	r.HandleFunc(scenario.PathScheme, s.valueHandler("conceptScheme")).Methods(http.MethodGet).Name(scenario.PathScheme)
	r.HandleFunc(scenario.PathFullPath, s.valueHandler("conceptId")).Methods(http.MethodGet).Name(scenario.PathFullPath)
	r.HandleFunc(scenario.PathRoot, s.listHandler).Methods(http.MethodGet).Name(scenario.PathRoot)
	r.HandleFunc(scenario.PathConcepts, s.listHandler).Methods(http.MethodGet).Name(scenario.PathConcepts)
	r.HandleFunc(scenario.PathTreeAll, s.listHandler).Methods(http.MethodGet).Name(scenario.PathTreeAll)
	return s
}

// Handler returns the router wrapped in the gateway decode.
func (s *Server) Handler() http.Handler {
	return gatewayDecode(s.router)
}

// gatewayDecode percent-decodes the request path once and forgets the raw
// form, as the gateway in front of KMS does.
func gatewayDecode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decoded, err := kmspath.DecodeOnce(r.URL.EscapedPath())
		if err != nil {
			http.Error(w, "bad request path", http.StatusBadRequest)
			return
		}
		r.URL.Path = decoded
		r.URL.RawPath = ""
		next.ServeHTTP(w, r)
	})
}

func (s *Server) delay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := s.jitter(); d > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(d):
			}
		}
		if s.fail() {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("500 Internal Server Error"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil {
			s.mu.Lock()
			s.hits[route.GetName()]++
			s.mu.Unlock()
		}
		s.cfg.Log.Debugw("dummy request", "path", r.URL.Path, "query", r.URL.RawQuery)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jitter() time.Duration {
	min, max := s.cfg.MinLatency, s.cfg.MaxLatency
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

func (s *Server) fail() bool {
	if s.cfg.ErrorRate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.cfg.ErrorRate
}

// valueHandler decodes the path variable once more, the way the KMS app
// does after the gateway, and echoes it back.
func (s *Server) valueHandler(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value, err := kmspath.DecodeOnce(mux.Vars(r)[key])
		if err != nil {
			http.Error(w, "bad path value", http.StatusBadRequest)
			return
		}
		name := mux.CurrentRoute(r).GetName()
		s.mu.Lock()
		s.seen[name] = append(s.seen[name], value)
		s.mu.Unlock()

		s.write(w, r, map[string]string{key: value})
	}
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, map[string]any{
		"hits":     1,
		"concepts": []map[string]string{{"prefLabel": "EARTH SCIENCE", "uuid": "e9f67a66-e9fc-435c-b720-ae32a2c3d8f5"}},
	})
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, body any) {
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		cw := csv.NewWriter(w)
		cw.Write([]string{"Keyword", "UUID"})
		cw.Write([]string{fmt.Sprint(body), "e9f67a66-e9fc-435c-b720-ae32a2c3d8f5"})
		cw.Flush()
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

// Seen returns the decoded values a route received, in arrival order.
func (s *Server) Seen(route string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen[route]...)
}

// Hits counts requests matched to route.
func (s *Server) Hits(route string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	fmt.Printf("👻 Dummy KMS running on http://localhost%s%s\n", addr, kmspath.NormalizeBasePath(s.cfg.BasePath))
	fmt.Println("   Endpoints: /concept/{id}, /concepts/pattern/{p}, /concepts/concept_scheme/{s}, /concept_fullpaths/concept_uuid/{id}, /concepts, /concepts/root, /tree/concept_scheme/all")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
