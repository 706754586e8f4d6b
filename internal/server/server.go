// Package server exposes the meeting assistant over HTTP and pushes its
// events to websocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"go.aimuz.me/huddle/audiocapture"
	"go.aimuz.me/huddle/internal/metrics"
	"go.aimuz.me/huddle/meeting"
	"go.aimuz.me/huddle/stt"
)

// Controller is the part of *meeting.Assistant the API drives.
type Controller interface {
	StartListening() error
	StopListening() error
	Status() meeting.Status
	AskQuestion(question string) (string, error)
	GenerateSummary() (string, error)
	ExtractActionItems() (string, error)
	Transcript() string
	ClearTranscript()
	History() []meeting.Exchange
	ClearHistory()
	SetSpeechEnabled(on bool)
	SpeechEnabled() bool
	StopSpeaking()
}

// Options configures a Server.
type Options struct {
	Version   string
	Devices   func() ([]audiocapture.Device, error) // nil disables /api/devices
	Metrics   *metrics.Metrics                      // nil disables /metrics
	Providers func() []stt.Info                     // transcription providers shown in /api/status
}

// Server is the control API.
type Server struct {
	e    *echo.Echo
	hub  *Hub
	ctl  Controller
	opts Options
}

// New builds the router. Call Run to listen.
func New(ctl Controller, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(localCORS())
	e.Use(rejectForeignOrigin())

	s := &Server{e: e, hub: NewHub(), ctl: ctl, opts: opts}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	s.e.GET("/ws", s.hub.serve)
	if s.opts.Metrics != nil {
		s.e.GET("/metrics", echo.WrapHandler(s.opts.Metrics.Handler()))
	}

	api := s.e.Group("/api")
	api.GET("/status", s.status)
	api.POST("/listen/start", s.startListening)
	api.POST("/listen/stop", s.stopListening)
	api.POST("/ask", s.ask)
	api.POST("/summary", s.enqueue(s.ctl.GenerateSummary))
	api.POST("/action-items", s.enqueue(s.ctl.ExtractActionItems))
	api.GET("/transcript", s.transcript)
	api.DELETE("/transcript", s.clearTranscript)
	api.GET("/history", s.history)
	api.DELETE("/history", s.clearHistory)
	api.PUT("/speech", s.setSpeech)
	api.POST("/speech/stop", s.stopSpeaking)
	api.GET("/devices", s.devices)
}

// Handler returns the router for use with httptest or a custom listener.
func (s *Server) Handler() http.Handler { return s.e }

// Hub returns the event hub. Register hub.Broadcast as the assistant
// observer.
func (s *Server) Hub() *Hub { return s.hub }

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		slog.Info("control api listening", "addr", addr)
		errc <- s.e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type statusResponse struct {
	meeting.Status
	Version       string     `json:"version,omitempty"`
	Transcription []stt.Info `json:"transcription,omitempty"`
}

func (s *Server) status(c echo.Context) error {
	resp := statusResponse{Status: s.ctl.Status(), Version: s.opts.Version}
	if s.opts.Providers != nil {
		resp.Transcription = s.opts.Providers()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) startListening(c echo.Context) error {
	if err := s.ctl.StartListening(); err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, s.ctl.Status())
}

func (s *Server) stopListening(c echo.Context) error {
	if err := s.ctl.StopListening(); err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, s.ctl.Status())
}

type askRequest struct {
	Question string `json:"question"`
}

type queuedResponse struct {
	ID string `json:"id"`
}

func (s *Server) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id, err := s.ctl.AskQuestion(req.Question)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusAccepted, queuedResponse{ID: id})
}

func (s *Server) enqueue(submit func() (string, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := submit()
		if err != nil {
			return apiError(err)
		}
		return c.JSON(http.StatusAccepted, queuedResponse{ID: id})
	}
}

type transcriptResponse struct {
	Text string `json:"text"`
}

func (s *Server) transcript(c echo.Context) error {
	return c.JSON(http.StatusOK, transcriptResponse{Text: s.ctl.Transcript()})
}

func (s *Server) clearTranscript(c echo.Context) error {
	s.ctl.ClearTranscript()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) history(c echo.Context) error {
	h := s.ctl.History()
	if h == nil {
		h = []meeting.Exchange{}
	}
	return c.JSON(http.StatusOK, h)
}

func (s *Server) clearHistory(c echo.Context) error {
	s.ctl.ClearHistory()
	return c.NoContent(http.StatusNoContent)
}

type speechRequest struct {
	Enabled *bool `json:"enabled"`
}

type speechResponse struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setSpeech(c echo.Context) error {
	var req speechRequest
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, `body must be {"enabled": bool}`)
	}
	s.ctl.SetSpeechEnabled(*req.Enabled)
	return c.JSON(http.StatusOK, speechResponse{Enabled: s.ctl.SpeechEnabled()})
}

func (s *Server) stopSpeaking(c echo.Context) error {
	s.ctl.StopSpeaking()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) devices(c echo.Context) error {
	if s.opts.Devices == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "device enumeration unavailable")
	}
	devices, err := s.opts.Devices()
	if err != nil {
		return apiError(err)
	}
	if devices == nil {
		devices = []audiocapture.Device{}
	}
	return c.JSON(http.StatusOK, devices)
}

// apiError maps core errors onto HTTP statuses.
func apiError(err error) error {
	switch {
	case errors.Is(err, meeting.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, meeting.ErrClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, audiocapture.ErrUnsupported):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	}
	var devErr *audiocapture.DeviceError
	if errors.As(err, &devErr) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// requestLogger sends one slog record per request.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				slog.Warn("http request", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Debug("http request", attrs...)
			return nil
		},
	})
}
