package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/capture"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
)

type Dependencies struct {
	Logger              logrus.FieldLogger
	Addr                string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	HeartbeatService    *service.HeartbeatService
	VerificationService *service.VerificationService
	EnrollmentService   *service.EnrollmentService
	Events              store.AccessEventStore
	Device              capture.Device
	Metrics             *metrics.Metrics
}

type Server struct {
	httpServer   *http.Server
	log          logrus.FieldLogger
	heartbeats   *service.HeartbeatService
	verification *service.VerificationService
	enrollment   *service.EnrollmentService
	events       store.AccessEventStore
	device       capture.Device
	metrics      *metrics.Metrics
}

func NewServer(d Dependencies) *Server {
	log := d.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	s := &Server{
		log:          log.WithField("component", "http"),
		heartbeats:   d.HeartbeatService,
		verification: d.VerificationService,
		enrollment:   d.EnrollmentService,
		events:       d.Events,
		device:       d.Device,
		metrics:      d.Metrics,
	}

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       d.ReadTimeout,
		WriteTimeout:      d.WriteTimeout,
		IdleTimeout:       d.IdleTimeout,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/heartbeat", s.handleHeartbeat)
		r.Post("/verifications", s.handleVerify)

		r.Route("/enrollments/{subjectID}", func(r chi.Router) {
			r.Post("/", s.handleEnroll)
			r.Post("/activate", s.handleActivate)
			r.Post("/deactivate", s.handleDeactivate)
		})

		r.Get("/access_events", s.handleListEvents)

		r.Get("/capture/device", s.handleCaptureDevice)
	})

	return r
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads a JSON body, rejecting unknown fields.  An empty body
// leaves v untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
