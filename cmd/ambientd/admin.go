package main

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"libdb.so/hrt"

	"dev.acmcsuf.com/ambientd"
)

type adminHandler struct {
	*chi.Mux
	server     *ambientd.Server
	controller *ambientd.Controller
}

func newAdminHandler(server *ambientd.Server, controller *ambientd.Controller, registry *prometheus.Registry) *adminHandler {
	h := &adminHandler{
		Mux:        chi.NewRouter(),
		server:     server,
		controller: controller,
	}

	h.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	h.Group(func(r chi.Router) {
		r.Use(hrt.Use(hrt.Opts{
			Encoder: hrt.CombinedEncoder{
				Encoder: hrt.JSONEncoder,
				Decoder: hrt.URLDecoder,
			},
			ErrorWriter: hrt.TextErrorWriter,
		}))

		r.Post("/kick-feed", hrt.Wrap(h.kickFeed))
		r.Post("/kick-viewers", hrt.Wrap(h.kickViewers))
	})

	return h
}

type kickFeedRequest struct{}

type kickFeedResponse struct {
	Fenced string `json:"fenced,omitempty"`
}

// kickFeed fences the continuous source currently in control, if any.
func (h *adminHandler) kickFeed(ctx context.Context, req kickFeedRequest) (kickFeedResponse, error) {
	id, ok := h.controller.Arbiter().Depose()
	if ok {
		slog.InfoContext(ctx,
			"continuous source kicked by admin",
			"source", id)
	}
	return kickFeedResponse{Fenced: id}, nil
}

type kickViewersRequest struct {
	Reason string `query:"reason"`
}

func (h *adminHandler) kickViewers(ctx context.Context, req kickViewersRequest) (hrt.None, error) {
	h.server.KickAllViewers(req.Reason)
	return hrt.Empty, nil
}
