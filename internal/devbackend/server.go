// Package devbackend is a scripted assessment backend for local demos and
// end-to-end tests. It serves a fixed static battery, a configurable
// number of scripted follow-up questions, and scores a session as the sum
// of its answer values. It does no text generation.
package devbackend

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/mindbridge/mindbridge/internal/risk"
	"github.com/mindbridge/mindbridge/internal/sessionclient"
)

// Config configures the scripted backend.
type Config struct {
	Addr string `env:"DEVSERVER_ADDR"`

	// Token is the bearer token every request must carry. Empty accepts
	// any non-empty token.
	Token string `env:"DEVSERVER_TOKEN"`

	// FollowUps is how many dynamic questions each session gets.
	FollowUps int `env:"DEVSERVER_FOLLOW_UPS"`

	// FailFollowUp, when positive, makes that follow-up fetch (1-based)
	// answer 503 so the client's fail-safe path can be exercised.
	FailFollowUp int `env:"DEVSERVER_FAIL_FOLLOW_UP"`

	// Latency delays every response.
	Latency time.Duration `env:"DEVSERVER_LATENCY"`
}

// DefaultConfig returns a Config listening where the client looks by default.
func DefaultConfig() Config {
	return Config{
		Addr:      "127.0.0.1:8088",
		FollowUps: 3,
	}
}

type dynamicTurn struct {
	question question
	answered bool
	value    int
}

type session struct {
	id          string
	createdAt   time.Time
	completedAt *time.Time
	staticScore int
	staticDone  bool
	responses   []sessionclient.ResponseRecord
	turns       []*dynamicTurn
	fetches     int
	score       float64
	summary     string
	riskLevel   risk.Level
}

func (s *session) pending() *dynamicTurn {
	if n := len(s.turns); n > 0 && !s.turns[n-1].answered {
		return s.turns[n-1]
	}
	return nil
}

// Server is the scripted backend. It keeps sessions in memory.
type Server struct {
	cfg       Config
	endpoints sessionclient.Endpoints
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	order    []string
}

// New creates a Server.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.FollowUps < 0 {
		cfg.FollowUps = 0
	}
	return &Server{
		cfg:       cfg,
		endpoints: sessionclient.DefaultEndpoints(),
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler,
		Name:         "mindbridge-devbackend",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.ShutdownWithContext(shutdownCtx)
	}
}

// ListenAndServe listens on cfg.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("dev backend listening", "addr", ln.Addr().String(), "follow_ups", s.cfg.FollowUps)
	return s.Serve(ctx, ln)
}

// Handler routes a request.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	defer func() {
		s.logger.Debug("dev backend request",
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"request_id", string(ctx.Request.Header.Peek("X-Request-ID")),
			"latency_ms", time.Since(start).Milliseconds())
	}()

	if s.cfg.Latency > 0 {
		time.Sleep(s.cfg.Latency)
	}
	if !s.authorized(ctx) {
		writeError(ctx, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	path := string(ctx.Path())
	ep := s.endpoints
	switch {
	case ctx.IsPost() && path == ep.StartSession:
		s.startSession(ctx)
	case ctx.IsGet() && path == ep.Sessions:
		s.history(ctx)
	case ctx.IsGet() && strings.HasPrefix(path, ep.Sessions+"/"):
		s.detail(ctx, strings.TrimPrefix(path, ep.Sessions+"/"))
	case ctx.IsGet() && path == ep.StaticQuestions:
		writeJSON(ctx, http.StatusOK, staticBattery)
	case ctx.IsPost() && path == ep.StaticResponses:
		s.submitStatic(ctx)
	case ctx.IsPost() && path == ep.DynamicNext:
		s.nextDynamic(ctx)
	case ctx.IsPost() && path == ep.DynamicAnswer:
		s.answerDynamic(ctx)
	case ctx.IsPost() && path == ep.Complete:
		s.complete(ctx)
	default:
		writeError(ctx, http.StatusNotFound, "no route for "+string(ctx.Method())+" "+path)
	}
}

func (s *Server) authorized(ctx *fasthttp.RequestCtx) bool {
	auth := ctx.Request.Header.Peek("Authorization")
	tok, ok := bytes.CutPrefix(auth, []byte("Bearer "))
	if !ok || len(bytes.TrimSpace(tok)) == 0 {
		return false
	}
	return s.cfg.Token == "" || string(tok) == s.cfg.Token
}

func (s *Server) startSession(ctx *fasthttp.RequestCtx) {
	s.mu.Lock()
	id := uuid.NewString()
	s.sessions[id] = &session{id: id, createdAt: s.now()}
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.logger.Info("session started", "session_id", id)
	writeJSON(ctx, http.StatusCreated, map[string]string{"sessionId": id})
}

type sessionRef struct {
	SessionID    string `json:"sessionId"`
	QuestionText string `json:"questionText"`
	Answer       string `json:"answer"`
	Responses    []struct {
		QuestionID string `json:"questionId"`
		Answer     string `json:"answer"`
	} `json:"responses"`
}

// lookup decodes the body and finds its session, writing the error
// response itself when that fails. Caller must hold s.mu.
func (s *Server) lookup(ctx *fasthttp.RequestCtx) (*session, *sessionRef, bool) {
	var ref sessionRef
	if err := json.Unmarshal(ctx.PostBody(), &ref); err != nil {
		writeError(ctx, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return nil, nil, false
	}
	sess, ok := s.sessions[ref.SessionID]
	if !ok {
		writeError(ctx, http.StatusNotFound, "unknown session")
		return nil, nil, false
	}
	if sess.completedAt != nil {
		writeError(ctx, http.StatusConflict, "session already completed")
		return nil, nil, false
	}
	return sess, &ref, true
}

func (s *Server) submitStatic(ctx *fasthttp.RequestCtx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ref, ok := s.lookup(ctx)
	if !ok {
		return
	}
	if sess.staticDone {
		writeError(ctx, http.StatusConflict, "static answers already submitted")
		return
	}

	given := make(map[string]string, len(ref.Responses))
	for _, r := range ref.Responses {
		given[r.QuestionID] = r.Answer
	}
	var (
		missing []string
		score   int
		records []sessionclient.ResponseRecord
	)
	for _, q := range staticBattery {
		raw, ok := given[q.ID]
		if !ok {
			missing = append(missing, q.ID)
			continue
		}
		v, ok := validOption(q, raw)
		if !ok {
			writeError(ctx, http.StatusUnprocessableEntity, fmt.Sprintf("invalid answer %q for %s", raw, q.ID))
			return
		}
		score += v
		records = append(records, sessionclient.ResponseRecord{
			QuestionID:   q.ID,
			QuestionText: q.Text,
			Answer:       sessionclient.Value(raw),
			Origin:       sessionclient.OriginStatic,
		})
	}
	if len(missing) > 0 {
		writeError(ctx, http.StatusUnprocessableEntity, "missing answers: "+strings.Join(missing, ", "))
		return
	}

	sess.staticDone = true
	sess.staticScore = score
	sess.responses = append(sess.responses, records...)
	writeJSON(ctx, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) nextDynamic(ctx *fasthttp.RequestCtx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, _, ok := s.lookup(ctx)
	if !ok {
		return
	}
	if !sess.staticDone {
		writeError(ctx, http.StatusConflict, "static answers not submitted")
		return
	}
	if p := sess.pending(); p != nil {
		writeJSON(ctx, http.StatusOK, p.question)
		return
	}

	sess.fetches++
	if s.cfg.FailFollowUp > 0 && sess.fetches == s.cfg.FailFollowUp {
		writeError(ctx, http.StatusServiceUnavailable, "follow-up generator unavailable")
		return
	}
	n := len(sess.turns)
	if n >= s.cfg.FollowUps || n >= len(followUps) {
		ctx.SetStatusCode(http.StatusNoContent)
		return
	}

	q := scaleQuestion(fmt.Sprintf("f%d", n+1), followUps[n])
	sess.turns = append(sess.turns, &dynamicTurn{question: q})
	writeJSON(ctx, http.StatusOK, q)
}

func (s *Server) answerDynamic(ctx *fasthttp.RequestCtx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ref, ok := s.lookup(ctx)
	if !ok {
		return
	}
	turn := sess.pending()
	if turn == nil {
		writeError(ctx, http.StatusConflict, "no outstanding follow-up question")
		return
	}
	if ref.QuestionText != turn.question.Text {
		writeError(ctx, http.StatusUnprocessableEntity, "answer does not match the outstanding question")
		return
	}
	v, ok := validOption(turn.question, strings.TrimSpace(ref.Answer))
	if !ok {
		writeError(ctx, http.StatusUnprocessableEntity, fmt.Sprintf("invalid answer %q", ref.Answer))
		return
	}

	turn.answered = true
	turn.value = v
	sess.responses = append(sess.responses, sessionclient.ResponseRecord{
		QuestionID:   turn.question.ID,
		QuestionText: turn.question.Text,
		Answer:       sessionclient.Value(ref.Answer),
		Origin:       sessionclient.OriginDynamic,
	})
	writeJSON(ctx, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) complete(ctx *fasthttp.RequestCtx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, _, ok := s.lookup(ctx)
	if !ok {
		return
	}
	if !sess.staticDone {
		writeError(ctx, http.StatusConflict, "static answers not submitted")
		return
	}

	total := sess.staticScore
	for _, t := range sess.turns {
		if t.answered {
			total += t.value
		}
	}
	done := s.now()
	sess.completedAt = &done
	sess.score = float64(total)
	sess.riskLevel = risk.Classify(sess.score)
	sess.summary = fmt.Sprintf("%d static and %d follow-up answers recorded.", len(staticBattery), len(sess.turns))

	s.logger.Info("session completed", "session_id", sess.id, "score", sess.score)
	writeJSON(ctx, http.StatusOK, s.resultOf(sess))
}

func (s *Server) resultOf(sess *session) sessionclient.Result {
	score := sess.score
	return sessionclient.Result{
		SessionID:   sess.id,
		Score:       &score,
		RiskLevel:   string(sess.riskLevel),
		Summary:     sess.summary,
		CompletedAt: sess.completedAt,
	}
}

func (s *Server) summaryOf(sess *session) sessionclient.SessionSummary {
	created := sess.createdAt
	sum := sessionclient.SessionSummary{
		SessionID: sess.id,
		Status:    "in_progress",
		CreatedAt: &created,
	}
	if sess.completedAt != nil {
		score := sess.score
		sum.Status = "completed"
		sum.Score = &score
		sum.RiskLevel = string(sess.riskLevel)
		sum.CompletedAt = sess.completedAt
	}
	return sum
}

func (s *Server) history(ctx *fasthttp.RequestCtx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sessionclient.SessionSummary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.summaryOf(s.sessions[s.order[i]]))
	}
	writeJSON(ctx, http.StatusOK, out)
}

func (s *Server) detail(ctx *fasthttp.RequestCtx, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		writeError(ctx, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(ctx, http.StatusOK, sessionclient.SessionDetail{
		SessionSummary: s.summaryOf(sess),
		Summary:        sess.summary,
		Responses:      append([]sessionclient.ResponseRecord{}, sess.responses...),
	})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, http.StatusInternalServerError, "encode response: "+err.Error())
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	data, _ := json.Marshal(map[string]any{"status": status, "message": message})
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}
