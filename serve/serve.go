// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package serve exposes fitted models behind an HTTP endpoint for
// online inference. A Server answers POST /predict requests with
// predictions from its deployed Predictor; predictors may evaluate
// in-process or fan out to a pool of remote scorer actors.
package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigactor/model"
)

// A Predictor produces predictions for feature vectors.
type Predictor interface {
	// Predict returns the prediction for the provided features.
	Predict(ctx context.Context, features []float64) (float64, error)
}

// Model returns a predictor that evaluates the provided model
// in-process.
func Model(m *model.Linear) Predictor {
	return modelPredictor{m}
}

type modelPredictor struct {
	m *model.Linear
}

func (p modelPredictor) Predict(_ context.Context, features []float64) (float64, error) {
	return p.m.Predict(features)
}

// A Scorer is the actor hosting a model replica for remote
// inference.
type Scorer struct {
	m *model.Linear
}

// ScorerActor is the scorer's registered actor type. Its constructor
// takes the fitted model to replicate.
var ScorerActor = bigactor.Actor("scorer", func(m *model.Linear) *Scorer {
	return &Scorer{m: m}
})

// Predict returns the replica's prediction for the provided
// features.
func (s *Scorer) Predict(features []float64) (float64, error) {
	return s.m.Predict(features)
}

// Pool returns a predictor backed by size scorer actors hosting
// replicas of the provided model. Requests are spread across the
// replicas.
func Pool(ctx context.Context, sess *exec.Session, m *model.Linear, size int) (Predictor, func(context.Context) error, error) {
	pool, err := sess.NewPool(ctx, ScorerActor, size, m)
	if err != nil {
		return nil, nil, err
	}
	return poolPredictor{pool}, pool.Close, nil
}

type poolPredictor struct {
	pool *exec.Pool
}

func (p poolPredictor) Predict(ctx context.Context, features []float64) (float64, error) {
	var y float64
	if err := p.pool.Call(ctx, "Predict", features).Result(ctx, &y); err != nil {
		return 0, err
	}
	return y, nil
}

// A Server is the HTTP inference endpoint. It serves:
//
//	POST /predict  {"features": [...]} -> {"prediction": y, "model": name}
//	GET  /healthz  "ok"
//
// Until a predictor is deployed, /predict answers 503.
type Server struct {
	mu sync.Mutex

	predictor Predictor
	name      string
}

// NewServer returns a server with no deployed predictor.
func NewServer() *Server {
	return new(Server)
}

// Deploy installs the provided predictor under the provided display
// name. Deploy may be called again to replace the running predictor;
// in-flight requests finish against the predictor they started with.
func (s *Server) Deploy(p Predictor, name string) {
	s.mu.Lock()
	s.predictor, s.name = p, name
	s.mu.Unlock()
	log.Printf("serve: deployed model %s", name)
}

func (s *Server) deployed() (Predictor, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predictor, s.name
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/predict":
		s.handlePredict(w, r)
	case "/healthz":
		fmt.Fprintln(w, "ok")
	default:
		http.NotFound(w, r)
	}
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictReply struct {
	Prediction float64 `json:"prediction"`
	Model      string  `json:"model"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "predict requires POST", http.StatusMethodNotAllowed)
		return
	}
	predictor, name := s.deployed()
	if predictor == nil {
		http.Error(w, "no model deployed", http.StatusServiceUnavailable)
		return
	}
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("malformed request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Features) == 0 {
		http.Error(w, "missing features", http.StatusBadRequest)
		return
	}
	y, err := predictor.Predict(r.Context(), req.Features)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(errors.Invalid, err) {
			code = http.StatusBadRequest
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(predictReply{Prediction: y, Model: name}); err != nil {
		log.Error.Printf("serve: encoding reply: %v", err)
	}
}
