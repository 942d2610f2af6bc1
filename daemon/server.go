package daemon

import (
	"context"
	"net/http"
	"strconv"

	errors2 "errors"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nikosalonen/macrod/catalog"
	"github.com/nikosalonen/macrod/log"
	"github.com/nikosalonen/macrod/macro"
)

// Server is the HTTP control surface over one controller and one catalog.
type Server struct {
	log  log.Logger
	conf *Config
	ctrl *macro.Controller
	cat  *catalog.Catalog
	echo *echo.Echo
}

// NewServer creates the server and registers its routes.
func NewServer(logger log.Logger, conf *Config, ctrl *macro.Controller, cat *catalog.Catalog) *Server {
	if logger == nil {
		panic("nil logger given")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		log:  logger,
		conf: conf,
		ctrl: ctrl,
		cat:  cat,
		echo: e,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/health", s.health)
	e.GET("/v1/status", s.status)
	e.GET("/v1/events", s.events)

	e.POST("/v1/capture/start", s.startCapture)
	e.POST("/v1/capture/stop", s.stopCapture)
	e.POST("/v1/playback/start", s.startPlayback)
	e.POST("/v1/playback/stop", s.stopPlayback)

	e.POST("/v1/sequence/save", s.saveSequence)
	e.POST("/v1/sequence/load", s.loadSequence)

	e.POST("/v1/recordings", s.saveRecording)
	e.GET("/v1/recordings", s.listRecordings)
	e.POST("/v1/recordings/:name/load", s.loadRecording)
	e.DELETE("/v1/recordings/:name", s.deleteRecording)
}

// Start serves until Shutdown. It returns http.ErrServerClosed on a clean
// shutdown, like the underlying server.
func (s *Server) Start() error {
	s.log.Debugf("listening on %s", s.conf.ListenAddr)
	return s.echo.Start(s.conf.ListenAddr)
}

// Shutdown stops any active capture or playback, then drains the HTTP
// server within the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ctrl.StopPlayback()
	s.ctrl.StopCapture()
	return s.echo.Shutdown(ctx)
}

// reject maps controller and catalog errors onto status codes: activity
// conflicts are 409, unknown names 404, bad requests 400.
func (s *Server) reject(c echo.Context, err error) error {
	switch {
	case errors2.Is(err, macro.ErrCaptureActive),
		errors2.Is(err, macro.ErrPlaybackActive),
		errors2.Is(err, macro.ErrNoEvents):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors2.Is(err, catalog.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.log.Errorf("request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// Health returns health status.
// GET /health
func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// status reports the controller state for pollers.
// GET /v1/status
func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Status())
}

// events returns the captured sequence from an index onward, so a poller
// can follow a recording as it grows.
// GET /v1/events?since=N
func (s *Server) events(c echo.Context) error {
	since := 0
	if raw := c.QueryParam("since"); raw != "" {
		var err error
		since, err = strconv.Atoi(raw)
		if err != nil || since < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "since must be a non-negative integer"})
		}
	}
	events := s.ctrl.Events(since)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"next":   since + len(events),
	})
}

// startCapture begins a new recording.
// POST /v1/capture/start
func (s *Server) startCapture(c echo.Context) error {
	if err := s.ctrl.StartCapture(); err != nil {
		return s.reject(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// stopCapture ends the recording, if one is active.
// POST /v1/capture/stop
func (s *Server) stopCapture(c echo.Context) error {
	s.ctrl.StopCapture()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":     true,
		"events": s.ctrl.Status().Events,
	})
}

// PlaybackRequest is the request to start playback. Omitted fields default
// to a single loop at recorded speed.
type PlaybackRequest struct {
	Loops *int     `json:"loops"`
	Speed *float64 `json:"speed"`
}

// startPlayback replays the current sequence.
// POST /v1/playback/start
func (s *Server) startPlayback(c echo.Context) error {
	var req PlaybackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	loops := 1
	if req.Loops != nil {
		loops = *req.Loops
	}
	speed := 1.0
	if req.Speed != nil {
		speed = *req.Speed
	}

	if err := s.ctrl.Play(loops, speed); err != nil {
		switch {
		case errors2.Is(err, macro.ErrCaptureActive),
			errors2.Is(err, macro.ErrPlaybackActive),
			errors2.Is(err, macro.ErrNoEvents):
			return s.reject(c, err)
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// stopPlayback asks the active playback to end.
// POST /v1/playback/stop
func (s *Server) stopPlayback(c echo.Context) error {
	s.ctrl.StopPlayback()
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// PathRequest names a file on the daemon host.
type PathRequest struct {
	Path string `json:"path"`
}

// saveSequence writes the current sequence to a file.
// POST /v1/sequence/save
func (s *Server) saveSequence(c echo.Context) error {
	var req PathRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path is required"})
	}
	if err := s.ctrl.SaveFile(req.Path); err != nil {
		return s.reject(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":     true,
		"events": s.ctrl.Status().Events,
	})
}

// loadSequence replaces the current sequence with a file's contents.
// POST /v1/sequence/load
func (s *Server) loadSequence(c echo.Context) error {
	var req PathRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path is required"})
	}
	if err := s.ctrl.LoadFile(req.Path); err != nil {
		switch {
		case errors2.Is(err, macro.ErrCaptureActive), errors2.Is(err, macro.ErrPlaybackActive):
			return s.reject(c, err)
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":     true,
		"events": s.ctrl.Status().Events,
	})
}

// SaveRecordingRequest names a recording in the catalog.
type SaveRecordingRequest struct {
	Name string `json:"name"`
}

// saveRecording stores the current sequence in the catalog.
// POST /v1/recordings
func (s *Server) saveRecording(c echo.Context) error {
	var req SaveRecordingRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}
	rec, err := s.cat.Save(req.Name, s.ctrl.Snapshot())
	if err != nil {
		return s.reject(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":        true,
		"recording": rec,
	})
}

// listRecordings lists the catalog contents.
// GET /v1/recordings
func (s *Server) listRecordings(c echo.Context) error {
	recordings, err := s.cat.List()
	if err != nil {
		return s.reject(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"recordings": recordings})
}

// loadRecording replaces the current sequence with a catalog recording.
// POST /v1/recordings/:name/load
func (s *Server) loadRecording(c echo.Context) error {
	events, err := s.cat.Load(c.Param("name"))
	if err != nil {
		return s.reject(c, err)
	}
	if err := s.ctrl.SetEvents(events); err != nil {
		return s.reject(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":     true,
		"events": len(events),
	})
}

// deleteRecording removes a catalog recording.
// DELETE /v1/recordings/:name
func (s *Server) deleteRecording(c echo.Context) error {
	if err := s.cat.Delete(c.Param("name")); err != nil {
		return s.reject(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}
