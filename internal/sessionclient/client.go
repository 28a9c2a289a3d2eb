package sessionclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Client talks JSON over HTTP(S) to the assessment backend.
type Client struct {
	baseURL        string
	endpoints      Endpoints
	tokens         TokenSource
	httpClient     *http.Client
	dynamicTimeout time.Duration
	logger         *slog.Logger
}

var _ API = (*Client)(nil)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing and fail-safe warnings.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// New creates a Client. The credential comes from tokens on every request.
func New(cfg Config, tokens TokenSource, opts ...ClientOption) (*Client, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if tokens == nil {
		return nil, errors.New("sessionclient: nil TokenSource")
	}
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		endpoints:      cfg.Endpoints,
		tokens:         tokens,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
		dynamicTimeout: cfg.DynamicQuestionTimeout,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) StartSession(ctx context.Context) (string, error) {
	const op = "start session"
	resp, err := c.do(ctx, op, http.MethodPost, c.endpoints.StartSession, struct{}{})
	if err != nil {
		return "", err
	}
	if err := resp.expectSuccess(op); err != nil {
		return "", err
	}
	var out startSessionResponse
	if err := decodePayload(schemaStartSession, resp.body, &out); err != nil {
		return "", &ServiceUnavailableError{Op: op, StatusCode: resp.status, Err: err}
	}
	return out.SessionID, nil
}

func (c *Client) FetchStaticQuestions(ctx context.Context) ([]Question, error) {
	const op = "fetch static questions"
	resp, err := c.do(ctx, op, http.MethodGet, c.endpoints.StaticQuestions, nil)
	if err != nil {
		return nil, err
	}
	if err := resp.expectSuccess(op); err != nil {
		return nil, err
	}
	var questions []Question
	if err := decodePayload(schemaStaticQuestions, resp.body, &questions); err != nil {
		return nil, &ServiceUnavailableError{Op: op, StatusCode: resp.status, Err: err}
	}
	seen := make(map[string]bool, len(questions))
	for i := range questions {
		if seen[questions[i].ID] {
			return nil, &ServiceUnavailableError{
				Op:         op,
				StatusCode: resp.status,
				Err:        fmt.Errorf("%w: duplicate question id %q", ErrMalformedResponse, questions[i].ID),
			}
		}
		seen[questions[i].ID] = true
		questions[i].normalize(OriginStatic)
	}
	return questions, nil
}

func (c *Client) SubmitStaticAnswers(ctx context.Context, sessionID string, answers []Answer) error {
	const op = "submit static answers"
	resp, err := c.do(ctx, op, http.MethodPost, c.endpoints.StaticResponses, staticSubmission{
		SessionID: sessionID,
		Responses: answers,
	})
	if err != nil {
		return err
	}
	if resp.status == http.StatusBadRequest || resp.status == http.StatusUnprocessableEntity {
		return &ValidationError{Op: op, StatusCode: resp.status, Message: resp.message()}
	}
	return resp.expectSuccess(op)
}

func (c *Client) FetchNextDynamicQuestion(ctx context.Context, sessionID string) (NextQuestion, error) {
	const op = "fetch next dynamic question"

	reqCtx := ctx
	if c.dynamicTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.dynamicTimeout)
		defer cancel()
	}

	resp, err := c.do(reqCtx, op, http.MethodPost, c.endpoints.DynamicNext, sessionRef{SessionID: sessionID})
	if err != nil {
		// The caller going away is not a backend failure.
		if ctx.Err() != nil {
			return NextQuestion{}, ctx.Err()
		}
		return c.failSafe(sessionID, err), nil
	}

	if resp.status == http.StatusNoContent {
		return NextQuestion{}, nil
	}
	if err := resp.expectSuccess(op); err != nil {
		return c.failSafe(sessionID, err), nil
	}

	var q Question
	if err := decodePayload(schemaDynamicQuestion, resp.body, &q); err != nil {
		return c.failSafe(sessionID, &ServiceUnavailableError{Op: op, StatusCode: resp.status, Err: err}), nil
	}
	if q.ID == "" {
		q.ID = "dyn-" + uuid.NewString()
	}
	q.normalize(OriginDynamic)
	return NextQuestion{Question: &q}, nil
}

// failSafe downgrades a failed dynamic fetch to Final so the loop always
// terminates. It is logged so real outages stay visible.
func (c *Client) failSafe(sessionID string, cause error) NextQuestion {
	c.logger.Warn("dynamic question fetch failed; ending follow-ups",
		"session_id", sessionID,
		"error", cause,
	)
	return NextQuestion{FailSafe: cause}
}

func (c *Client) SubmitDynamicAnswer(ctx context.Context, sessionID, questionText, answer string) error {
	const op = "submit dynamic answer"
	resp, err := c.do(ctx, op, http.MethodPost, c.endpoints.DynamicAnswer, dynamicAnswer{
		SessionID:    sessionID,
		QuestionText: questionText,
		Answer:       answer,
	})
	if err != nil {
		return err
	}
	return resp.expectSuccess(op)
}

func (c *Client) CompleteSession(ctx context.Context, sessionID string) (*Result, error) {
	const op = "complete session"
	resp, err := c.do(ctx, op, http.MethodPost, c.endpoints.Complete, sessionRef{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if err := resp.expectSuccess(op); err != nil {
		return nil, err
	}
	result := &Result{SessionID: sessionID}
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return result, nil
	}
	if err := decodePayload(schemaResult, resp.body, result); err != nil {
		return nil, &ServiceUnavailableError{Op: op, StatusCode: resp.status, Err: err}
	}
	if result.SessionID == "" {
		result.SessionID = sessionID
	}
	return result, nil
}

func (c *Client) FetchHistory(ctx context.Context) ([]SessionSummary, error) {
	const op = "fetch history"
	resp, err := c.do(ctx, op, http.MethodGet, c.endpoints.Sessions, nil)
	if err != nil {
		return nil, err
	}
	if err := resp.expectSuccess(op); err != nil {
		return nil, err
	}
	var out []SessionSummary
	if err := decodePayload(schemaHistory, resp.body, &out); err != nil {
		return nil, &ServiceUnavailableError{Op: op, StatusCode: resp.status, Err: err}
	}
	return out, nil
}

func (c *Client) FetchSessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	const op = "fetch session detail"
	path := strings.TrimRight(c.endpoints.Sessions, "/") + "/" + url.PathEscape(sessionID)
	resp, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := resp.expectSuccess(op); err != nil {
		return nil, err
	}
	var out SessionDetail
	if err := decodePayload(schemaDetail, resp.body, &out); err != nil {
		return nil, &ServiceUnavailableError{Op: op, StatusCode: resp.status, Err: err}
	}
	return &out, nil
}

// rawResponse is a fully read HTTP response.
type rawResponse struct {
	status int
	body   []byte
}

func (r *rawResponse) expectSuccess(op string) error {
	if r.status >= 200 && r.status < 300 {
		return nil
	}
	return &ServiceUnavailableError{
		Op:         op,
		StatusCode: r.status,
		Err:        errors.New(r.message()),
	}
}

// maxMessageRunes caps error text taken from a non-JSON body.
const maxMessageRunes = 200

// message extracts a human-readable reason from an error body.
func (r *rawResponse) message() string {
	var eb errorBody
	if err := json.Unmarshal(r.body, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	msg := strings.TrimSpace(string(r.body))
	if runes := []rune(msg); len(runes) > maxMessageRunes {
		msg = string(runes[:maxMessageRunes]) + "..."
	}
	if msg == "" {
		msg = http.StatusText(r.status)
	}
	return msg
}

// do sends one request with the current bearer credential. Transport
// failures come back as *ServiceUnavailableError; any HTTP status is
// returned to the caller for interpretation.
func (c *Client) do(ctx context.Context, op, method, path string, in any) (*rawResponse, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "op", op, "request_id", requestID, "error", err)
		return nil, &ServiceUnavailableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ServiceUnavailableError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("request done",
		"op", op,
		"method", method,
		"path", path,
		"request_id", requestID,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &rawResponse{status: resp.StatusCode, body: data}, nil
}
