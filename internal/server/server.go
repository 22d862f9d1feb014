// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package server exposes a translator.Translator over HTTP.
//
// Routes:
//
//   - POST /v1/translate: {"text": "...", "n_best": 1} -> TranslateResponse.
//   - POST /v1/translate/batch: {"texts": ["...", ...]} -> {"translations": [TranslateResponse, ...]}.
//   - GET /healthz: HealthResponse.
package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/florischabert/translate/pkg/ml/decode"
	"github.com/florischabert/translate/pkg/ml/translator"
)

// MaxBatchSize is the maximum number of texts accepted by the batch endpoint.
const MaxBatchSize = 256

// TranslateRequest is the body of POST /v1/translate.
type TranslateRequest struct {
	Text string `json:"text"`

	// NBest is the number of hypotheses to return, if > 1.
	NBest int `json:"n_best,omitempty"`
}

// BatchRequest is the body of POST /v1/translate/batch.
type BatchRequest struct {
	Texts []string `json:"texts"`
}

// Hypothesis is one of the n-best hypotheses of a translation.
type Hypothesis struct {
	Translation     string  `json:"translation"`
	Tokens          []int   `json:"tokens"`
	Score           float32 `json:"score"`
	NormalizedScore float64 `json:"normalized_score"`
}

// TranslateResponse is the translation of one text.
type TranslateResponse struct {
	ID              string       `json:"id"`
	Translation     string       `json:"translation"`
	Tokens          []int        `json:"tokens"`
	Score           float32      `json:"score"`
	NormalizedScore float64      `json:"normalized_score"`
	MaxTimestep     int          `json:"max_timestep"`
	ElapsedMs       float64      `json:"elapsed_ms"`
	Hypotheses      []Hypothesis `json:"hypotheses,omitempty"`
}

// BatchResponse is the response of POST /v1/translate/batch.
type BatchResponse struct {
	Translations []TranslateResponse `json:"translations"`
}

// HealthResponse is the response of GET /healthz.
type HealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	Translations int64  `json:"translations"`
	BeamSize     int    `json:"beam_size"`
}

// ErrorResponse is returned with any non-200 status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server serves translations. Requests are translated one at a time.
type Server struct {
	translator *translator.Translator
	started    time.Time

	mu    sync.Mutex
	count atomic.Int64
}

// New creates a Server for the given translator.
func New(tr *translator.Translator) *Server {
	return &Server{translator: tr, started: time.Now()}
}

// Register the routes in e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/translate", s.handleTranslate)
	e.POST("/v1/translate/batch", s.handleBatch)
	e.GET("/healthz", s.handleHealth)
}

// NewEcho returns an echo instance with the standard middleware and the server routes.
func (s *Server) NewEcho() *echo.Echo {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	s.Register(e)
	return e
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout time.Duration) error {
	klog.Infof("serving translations on %s", addr)
	sc := echo.StartConfig{
		Address: addr,
		BeforeServeFunc: func(srv *http.Server) error {
			srv.ReadHeaderTimeout = readTimeout
			return nil
		},
	}
	return sc.Start(ctx, s.NewEcho())
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, errors.Wrap(err, "invalid JSON request")
	}
	return out, nil
}

func writeError(c *echo.Context, status int, err error) error {
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}

// statusFor maps translation errors to HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, decode.ErrEmptySource) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) translate(ctx context.Context, text string, nBest int) (TranslateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.translator.WithNumHypotheses(max(1, nBest))
	t, err := s.translator.Translate(ctx, text)
	if err != nil {
		return TranslateResponse{}, err
	}
	s.count.Add(1)
	resp := TranslateResponse{
		ID:              "tr_" + uuid.NewString(),
		Translation:     t.Text,
		Tokens:          t.Tokens,
		Score:           t.Score,
		NormalizedScore: t.NormalizedScore,
		ElapsedMs:       float64(t.Elapsed.Microseconds()) / 1000,
	}
	if resp.Tokens == nil {
		resp.Tokens = []int{}
	}
	if t.Beams != nil {
		resp.MaxTimestep = t.Beams.MaxTimestep
	}
	if nBest > 1 {
		for _, h := range t.Hypotheses {
			resp.Hypotheses = append(resp.Hypotheses, Hypothesis{
				Translation:     s.translator.Target.Denumberize(h.Tokens),
				Tokens:          h.Tokens,
				Score:           h.Score,
				NormalizedScore: h.NormalizedScore,
			})
		}
	}
	return resp, nil
}

func (s *Server) handleTranslate(c *echo.Context) error {
	req, err := decodeJSON[TranslateRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if strings.TrimSpace(req.Text) == "" {
		return writeError(c, http.StatusBadRequest, errors.New("text is empty"))
	}
	if req.NBest < 0 || req.NBest > s.translator.BeamSize() {
		return writeError(c, http.StatusBadRequest, errors.Errorf("n_best must be in [0, %d]", s.translator.BeamSize()))
	}
	resp, err := s.translate(c.Request().Context(), req.Text, req.NBest)
	if err != nil {
		klog.Errorf("translation failed: %+v", err)
		return writeError(c, statusFor(err), err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBatch(c *echo.Context) error {
	req, err := decodeJSON[BatchRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, err)
	}
	if len(req.Texts) == 0 || len(req.Texts) > MaxBatchSize {
		return writeError(c, http.StatusBadRequest, errors.Errorf("texts must have between 1 and %d elements", MaxBatchSize))
	}
	resp := BatchResponse{Translations: make([]TranslateResponse, 0, len(req.Texts))}
	for _, text := range req.Texts {
		tr, err := s.translate(c.Request().Context(), text, 1)
		if err != nil {
			klog.Errorf("translation failed: %+v", err)
			return writeError(c, statusFor(err), err)
		}
		resp.Translations = append(resp.Translations, tr)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:       "ok",
		Uptime:       strings.TrimSpace(humanize.RelTime(s.started, time.Now(), "", "")),
		Translations: s.count.Load(),
		BeamSize:     s.translator.BeamSize(),
	})
}
