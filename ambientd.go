// Package ambientd is an ambient lighting daemon. Color sources send target
// colors over HTTP and the daemon fades three PWM LED channels towards them.
package ambientd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/gobwas/ws"
	"golang.org/x/sync/errgroup"
	"gopkg.in/typ.v4/sync2"
	"libdb.so/hrt"

	"dev.acmcsuf.com/ambientd/config"
	"dev.acmcsuf.com/ambientd/session"
)

// ExternalScale is the channel range used by /color/get and /ws.
const ExternalScale = 255

// ServerOpts are options for a server.
type ServerOpts struct {
	// Controller is the controller driving the LEDs.
	Controller *Controller
	// Config is the configuration store exposed under /config.
	Config *config.Store
	// Static is served for every other GET request. Optional.
	Static fs.FS
	// Logger is the logger to use for the server.
	Logger *slog.Logger
	// Metrics is the metrics to update. Optional.
	Metrics *Metrics
	// HTTPUpgrader is the HTTP-to-Websocket upgrader to use for /ws.
	HTTPUpgrader ws.HTTPUpgrader
	// FrameRate is the maximum number of frames per second sent to each
	// viewer. Defaults to 20.
	FrameRate int
}

// Server handles all HTTP requests of the public listener.
type Server struct {
	*chi.Mux
	opts    ServerOpts
	viewers sync2.Map[*Viewer, viewerControl]
}

type viewerControl struct {
	cancel context.CancelCauseFunc
}

// NewServer creates a new server.
func NewServer(opts ServerOpts) *Server {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 20
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	s := &Server{
		Mux:  chi.NewRouter(),
		opts: opts,
	}

	s.Use(httplog.RequestLogger(&httplog.Logger{
		Logger: opts.Logger,
		Options: httplog.Options{
			LogLevel: slog.LevelDebug,
			Concise:  true,
		},
	}, []string{"/color/set", "/color/get", "/ws"}))

	s.Get("/color/set", s.setColor)
	s.Get("/ws", s.serveViewer)

	s.Group(func(r chi.Router) {
		r.Use(hrt.Use(hrt.Opts{
			Encoder: hrt.CombinedEncoder{
				Encoder: hrt.JSONEncoder,
				Decoder: hrt.URLDecoder,
			},
			ErrorWriter: hrt.TextErrorWriter,
		}))

		r.Get("/color/get", hrt.Wrap(s.getColor))
		r.Get("/restart", hrt.Wrap(s.restart))
		r.Get("/config", hrt.Wrap(s.getConfig))
	})

	s.Group(func(r chi.Router) {
		r.Use(hrt.Use(hrt.Opts{
			Encoder:     hrt.JSONEncoder,
			ErrorWriter: hrt.TextErrorWriter,
		}))

		r.Post("/config", hrt.Wrap(s.postConfig))
	})

	if opts.Static != nil {
		s.Mount("/", http.FileServer(http.FS(opts.Static)))
	}

	return s
}

func (s *Server) setColor(w http.ResponseWriter, r *http.Request) {
	params, err := ParseColorParams(r.URL.RawQuery, DefaultColorParams(s.opts.Controller.peekCurrent(), r.RemoteAddr))
	if err != nil {
		s.opts.Logger.Info(
			"could not parse color request, expected e.g. ?r=2048&g=512&b=0&cps=1",
			"query", r.URL.RawQuery,
			"error", err)

		s.opts.Metrics.ColorRequests.WithLabelValues("", resultInvalid).Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	accepted, err := s.opts.Controller.SetColor(params.Request())
	if err != nil {
		if errors.Is(err, session.ErrFenced) {
			s.opts.Metrics.ColorRequests.WithLabelValues(params.Mode.String(), resultFenced).Inc()
			w.WriteHeader(http.StatusConflict)
			return
		}

		s.opts.Logger.Error(
			"failed to set color",
			"error", err)

		http.Error(w, "fade engine unavailable", http.StatusInternalServerError)
		return
	}

	result := resultAccepted
	if !accepted {
		result = resultIgnored
	}
	s.opts.Metrics.ColorRequests.WithLabelValues(params.Mode.String(), result).Inc()

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
}

type getColorRequest struct{}

func (s *Server) getColor(ctx context.Context, req getColorRequest) (ColorFrame, error) {
	c, err := s.opts.Controller.Color(ExternalScale)
	if err != nil {
		return ColorFrame{}, err
	}
	return colorFrame(c), nil
}

type restartRequest struct{}

func (s *Server) restart(ctx context.Context, req restartRequest) (hrt.None, error) {
	s.opts.Controller.Restart()
	s.KickAllViewers("restarting")
	return hrt.Empty, nil
}

type getConfigRequest struct{}

func (s *Server) getConfig(ctx context.Context, req getConfigRequest) (map[string]string, error) {
	return s.opts.Config.All(), nil
}

func (s *Server) postConfig(ctx context.Context, req map[string]any) (hrt.None, error) {
	if len(req) == 0 {
		return hrt.Empty, hrt.NewHTTPError(http.StatusBadRequest, "no values were provided")
	}

	values := make(map[string]string, len(req))
	for k, v := range req {
		str, err := configValue(v)
		if err != nil {
			return hrt.Empty, hrt.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s: %v", k, err))
		}
		values[k] = str
	}

	if err := s.opts.Config.Update(values); err != nil {
		return hrt.Empty, fmt.Errorf("failed to update config: %w", err)
	}

	s.opts.Logger.Info(
		"config updated",
		"keys", len(values))

	return hrt.Empty, nil
}

// configValue flattens a JSON value into its config file representation.
func configValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}

// KickAllViewers disconnects every /ws client with the given reason.
func (s *Server) KickAllViewers(reason string) {
	err := fmt.Errorf("kicked: %s", reason)
	s.viewers.Range(func(v *Viewer, ctrl viewerControl) bool {
		ctrl.cancel(err)
		return true
	})
}

func (s *Server) serveViewer(w http.ResponseWriter, r *http.Request) {
	wsconn, _, _, err := s.opts.HTTPUpgrader.Upgrade(r, w)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to upgrade HTTP: %v", err), http.StatusBadRequest)
		return
	}

	logger := s.opts.Logger.With("addr", wsconn.RemoteAddr())
	viewer := &Viewer{
		ws:         newWebsocketServer(wsconn, logger),
		logger:     logger,
		controller: s.opts.Controller,
		frameRate:  s.opts.FrameRate,
	}

	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)

	s.viewers.Store(viewer, viewerControl{cancel: cancel})
	s.opts.Metrics.Viewers.Inc()
	defer func() {
		s.viewers.Delete(viewer)
		s.opts.Metrics.Viewers.Dec()
	}()

	if err := viewer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug(
			"viewer disconnected",
			"error", err)
	}
}

// Viewer streams the current output color to one websocket client.
type Viewer struct {
	ws         *websocketServer
	logger     *slog.Logger
	controller *Controller
	frameRate  int
}

// Start streams until ctx is done or the client goes away.
func (v *Viewer) Start(ctx context.Context) error {
	errg, ctx := errgroup.WithContext(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errg.Go(func() error {
		return v.ws.Start(ctx)
	})

	errg.Go(func() error {
		if err := v.mainLoop(ctx); err != nil {
			return v.ws.SendError(ctx, err)
		}
		return nil
	})

	return errg.Wait()
}

func (v *Viewer) mainLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(v.frameRate))
	defer ticker.Stop()

	var last ColorFrame
	first := true

	for {
		c, err := v.controller.Color(ExternalScale)
		if err != nil {
			return fmt.Errorf("failed to read color: %w", err)
		}

		if frame := colorFrame(c); first || frame != last {
			if err := v.ws.Send(ctx, frame); err != nil {
				return nil
			}
			last = frame
			first = false
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
