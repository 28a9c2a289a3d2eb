package sessionclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.DynamicQuestionTimeout = 200 * time.Millisecond
	c, err := New(cfg, StaticToken("test-token"))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestStartSession(t *testing.T) {
	var gotAuth, gotRequestID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/assessment/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		writeJSON(w, http.StatusCreated, map[string]any{"sessionId": "s-1"})
	})

	id, err := c.StartSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s-1", id)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.NotEmpty(t, gotRequestID)
}

func TestStartSession_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
	})

	_, err := c.StartSession(context.Background())
	var unavail *ServiceUnavailableError
	require.ErrorAs(t, err, &unavail)
	assert.Equal(t, http.StatusInternalServerError, unavail.StatusCode)
	assert.Contains(t, err.Error(), "boom")
}

func TestStartSession_MissingCredential(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	c, err := New(cfg, StaticToken(""))
	require.NoError(t, err)

	_, err = c.StartSession(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)
	assert.Zero(t, calls.Load(), "no request should be sent without a credential")
}

func TestFetchStaticQuestions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "q1", "text": "Little interest?", "options": []map[string]any{
				{"value": 0, "label": "Not at all"},
				{"value": 1, "label": "Several days"},
			}},
			{"id": "q2", "text": "Anything else?"},
		})
	})

	qs, err := c.FetchStaticQuestions(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 2)

	assert.Equal(t, ResponseSingleChoice, qs[0].ResponseType)
	assert.Equal(t, OriginStatic, qs[0].Origin)
	assert.Equal(t, Value("1"), qs[0].Options[1].Value)
	assert.True(t, qs[0].HasOption("0"))
	assert.False(t, qs[0].HasOption("7"))

	assert.Equal(t, ResponseText, qs[1].ResponseType)
}

func TestFetchStaticQuestions_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"object instead of list", `{"questions": []}`},
		{"missing text", `[{"id": "q1"}]`},
		{"duplicate ids", `[{"id": "q1", "text": "a"}, {"id": "q1", "text": "b"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.FetchStaticQuestions(context.Background())
			var unavail *ServiceUnavailableError
			require.ErrorAs(t, err, &unavail)
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.False(t, unavail.Transient())
		})
	}
}

func TestSubmitStaticAnswers(t *testing.T) {
	var got staticSubmission
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/assessment/static-responses", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.SubmitStaticAnswers(context.Background(), "s-1", []Answer{
		{QuestionID: "q1", Value: "2"},
		{QuestionID: "q2", Value: "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.SessionID)
	assert.Equal(t, []Answer{{QuestionID: "q1", Value: "2"}, {QuestionID: "q2", Value: "3"}}, got.Responses)
}

func TestSubmitStaticAnswers_Rejected(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnprocessableEntity} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, status, map[string]any{"message": "missing answer for q3"})
		})
		err := c.SubmitStaticAnswers(context.Background(), "s-1", nil)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, status, verr.StatusCode)
		assert.Equal(t, "missing answer for q3", verr.Message)
	}
}

func TestSubmitStaticAnswers_LongPlainTextMessage(t *testing.T) {
	body := strings.Repeat("é", 250)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, body)
	})

	err := c.SubmitStaticAnswers(context.Background(), "s-1", nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, utf8.ValidString(verr.Message))
	assert.Equal(t, strings.Repeat("é", 200)+"...", verr.Message)
}

func TestSubmitStaticAnswers_Unavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := c.SubmitStaticAnswers(context.Background(), "s-1", nil)
	var unavail *ServiceUnavailableError
	require.ErrorAs(t, err, &unavail)
	assert.True(t, unavail.Transient())
}

func TestFetchNextDynamicQuestion_Question(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var ref sessionRef
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ref))
		assert.Equal(t, "s-1", ref.SessionID)
		writeJSON(w, http.StatusOK, map[string]any{
			"text":    "How often does this affect your sleep?",
			"options": []map[string]any{{"value": "1", "label": "Rarely"}},
		})
	})

	next, err := c.FetchNextDynamicQuestion(context.Background(), "s-1")
	require.NoError(t, err)
	require.False(t, next.Final())
	assert.Nil(t, next.FailSafe)
	assert.Equal(t, OriginDynamic, next.Question.Origin)
	assert.NotEmpty(t, next.Question.ID, "dynamic questions get a client id when the server omits one")
	assert.Equal(t, ResponseSingleChoice, next.Question.ResponseType)
}

func TestFetchNextDynamicQuestion_NoContentIsFinal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	next, err := c.FetchNextDynamicQuestion(context.Background(), "s-1")
	require.NoError(t, err)
	assert.True(t, next.Final())
	assert.Nil(t, next.FailSafe, "204 is a normal terminal signal")
}

func TestFetchNextDynamicQuestion_FailuresBecomeFinal(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, `{"question": 42`)
		}},
		{"wrong shape", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"text": ""})
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			next, err := c.FetchNextDynamicQuestion(context.Background(), "s-1")
			require.NoError(t, err)
			assert.True(t, next.Final())
			assert.Error(t, next.FailSafe)
		})
	}
}

func TestFetchNextDynamicQuestion_CallerCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchNextDynamicQuestion(ctx, "s-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmitDynamicAnswer(t *testing.T) {
	var got dynamicAnswer
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	err := c.SubmitDynamicAnswer(context.Background(), "s-1", "How are you sleeping?", "2")
	require.NoError(t, err)
	assert.Equal(t, dynamicAnswer{SessionID: "s-1", QuestionText: "How are you sleeping?", Answer: "2"}, got)
}

func TestCompleteSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"sessionId": "s-1", "score": 17.5, "summary": "ok"})
	})

	res, err := c.CompleteSession(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, res.Score)
	assert.Equal(t, 17.5, *res.Score)
	assert.Equal(t, "ok", res.Summary)
}

func TestCompleteSession_EmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	res, err := c.CompleteSession(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", res.SessionID)
	assert.Nil(t, res.Score)
}

func TestFetchHistoryAndDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/assessment/sessions":
			writeJSON(w, http.StatusOK, []map[string]any{
				{"sessionId": "s-1", "score": 4},
				{"sessionId": "s-2", "score": nil},
			})
		case "/api/assessment/sessions/s-1":
			writeJSON(w, http.StatusOK, map[string]any{
				"sessionId": "s-1",
				"score":     4,
				"responses": []map[string]any{{"questionText": "q", "answer": 2}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	hist, err := c.FetchHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Nil(t, hist[1].Score)

	detail, err := c.FetchSessionDetail(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", detail.SessionID)
	require.Len(t, detail.Responses, 1)
	assert.Equal(t, Value("2"), detail.Responses[0].Answer)

	_, err = c.FetchSessionDetail(context.Background(), "missing")
	var unavail *ServiceUnavailableError
	require.True(t, errors.As(err, &unavail))
	assert.Equal(t, http.StatusNotFound, unavail.StatusCode)
}

func TestValueNumeric(t *testing.T) {
	for _, tc := range []struct {
		in   Value
		want float64
		ok   bool
	}{
		{"3", 3, true},
		{" 2.5 ", 2.5, true},
		{"-1", -1, true},
		{"NaN", 0, false},
		{"inf", 0, false},
		{"-infinity", 0, false},
		{"1e400", 0, false},
		{"often", 0, false},
		{"", 0, false},
	} {
		got, ok := tc.in.Numeric()
		assert.Equal(t, tc.ok, ok, "Numeric(%q)", tc.in)
		assert.Equal(t, tc.want, got, "Numeric(%q)", tc.in)
	}
}
