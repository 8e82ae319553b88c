package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/docexam/internal/document"
	"github.com/pavelanni/docexam/internal/exam"
	appI18n "github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/store"
)

// scriptGen answers prompts by their opening words.
type scriptGen struct {
	mu        sync.Mutex
	fail      map[string]error
	questions int
}

func (g *scriptGen) setFail(kind string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.fail, kind)
		return
	}
	g.fail[kind] = err
}

func (g *scriptGen) Generate(_ context.Context, prompt string, tier llm.Tier) (llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var kind, text string
	switch {
	case strings.HasPrefix(prompt, "You are analyzing"):
		kind, text = "analyze", "**Type:** tutorial\n**Summary:** Energy in cells."
	case strings.HasPrefix(prompt, "You are preparing"):
		kind, text = "focus", "1. respiration\n2. photosynthesis\n3. enzymes\n4. membranes\n5. signalling"
	case strings.HasPrefix(prompt, "Generate examination question"):
		kind = "question"
	case strings.HasPrefix(prompt, "Rephrase"):
		kind, text = "rephrase", "Put simply, what is ATP?"
	case strings.HasPrefix(prompt, "Evaluate"):
		kind, text = "evaluate", "**Marks: 6/10**\nFair."
	default:
		kind, text = "summary", "Keep reading."
	}
	if err := g.fail[kind]; err != nil {
		return llm.Result{}, err
	}
	if kind == "question" {
		g.questions++
		text = "What is question " + strings.Repeat("I", g.questions) + "?"
	}
	return llm.Result{Text: text, Model: "model-" + string(tier)}, nil
}

type stubParser struct{ pages []string }

func (p stubParser) Name() string { return "stub" }

func (p stubParser) Parse(string) (document.Parsed, error) {
	return document.Parsed{Pages: p.pages}, nil
}

var cellPages = []string{
	strings.Repeat("Mitochondria produce ATP through cellular respiration. ", 40),
	strings.Repeat("Chloroplasts capture light during photosynthesis. ", 40),
}

type testEnv struct {
	router http.Handler
	gen    *scriptGen
	store  *store.Store
	reg    *Registry
}

func newTestEnv(t *testing.T, pages []string) *testEnv {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, st.SetAdminPasswordHash(string(hash)))

	gen := &scriptGen{fail: map[string]error{}}
	ing := &exam.Ingestor{Extractor: document.NewExtractorWith(stubParser{pages: pages}, nil)}
	reg := NewRegistry(time.Hour, nil)
	h, err := New(reg, st, func() *exam.Session {
		return exam.New(gen, ing, exam.Config{MaxQuestions: 10})
	}, Config{})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	return &testEnv{router: r, gen: gen, store: st, reg: reg}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, numQuestions string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if numQuestions != "" {
		require.NoError(t, mw.WriteField("num_questions", numQuestions))
	}
	fw, err := mw.CreateFormFile("file", "cells.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 stub"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type stepBody struct {
	Session      *sessionView    `json:"session"`
	Evaluation   *evaluationView `json:"evaluation"`
	Question     *questionView   `json:"question"`
	Summary      *summaryView    `json:"summary"`
	PendingError *apiError       `json:"pending_error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) create(t *testing.T, numQuestions string) stepBody {
	t.Helper()
	rec := e.do(t, uploadRequest(t, numQuestions))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[stepBody](t, rec)
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t, cellPages)
	resp := env.create(t, "3")

	require.NotNil(t, resp.Session)
	require.NotNil(t, resp.Question)
	assert.Nil(t, resp.PendingError)
	assert.Equal(t, 1, resp.Question.Number)
	assert.Equal(t, 3, resp.Question.Total)
	assert.Equal(t, "What is question I?", resp.Question.Text)
	assert.Equal(t, "respiration", resp.Question.FocusArea)

	sv := resp.Session
	assert.Equal(t, exam.PhaseEvaluating, sv.Phase)
	assert.Equal(t, "cells", sv.Document.Title, "title defaults to the upload name")
	assert.Equal(t, 2, sv.Document.Pages)
	assert.Equal(t, "tutorial", string(sv.DocumentType))
	assert.Equal(t, counterView{Current: 1, Total: 3}, sv.Progress)
	assert.Equal(t, lifelinesView{Remaining: 1, Total: 1}, sv.Lifelines)
	assert.Equal(t, "What is question I?", sv.PendingQuestion)
	assert.Equal(t, 1, env.reg.Len())

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sv.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sv.ID, decode[sessionView](t, rec).ID)
}

func TestFullExaminationOverHTTP(t *testing.T) {
	env := newTestEnv(t, cellPages)
	id := env.create(t, "3").Session.ID

	var last stepBody
	for i := 1; i <= 3; i++ {
		rec := env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/answers", `{"answer":"ATP stores energy"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		last = decode[stepBody](t, rec)
		require.NotNil(t, last.Evaluation)
		assert.Equal(t, i, last.Evaluation.Number)
		assert.Equal(t, 6, last.Evaluation.Mark)
		if i < 3 {
			require.NotNil(t, last.Question)
			assert.Equal(t, i+1, last.Question.Number)
		}
	}
	require.NotNil(t, last.Summary)
	assert.True(t, last.Evaluation.Complete)
	assert.Equal(t, "Keep reading.", last.Summary.Text)
	assert.Equal(t, "model-premium", last.Summary.Model)
	assert.Equal(t, 18, last.Summary.Score.TotalMarks)
	assert.Equal(t, exam.PhaseComplete, last.Session.Phase)

	stored, err := env.store.GetResult(id)
	require.NoError(t, err)
	assert.Len(t, stored.Questions, 3)
	assert.Equal(t, "Keep reading.", stored.FinalEvaluation)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/report?format=html", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="cells_`)
	assert.Equal(t, 3, strings.Count(rec.Body.String(), `class="question"`))

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/questions/next", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeInvalidState, decode[errorEnvelope](t, rec).Error.Code)
}

func TestAnswerValidation(t *testing.T) {
	env := newTestEnv(t, cellPages)
	id := env.create(t, "3").Session.ID

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"empty answer", "/api/sessions/" + id + "/answers", `{"answer":"  "}`, http.StatusBadRequest, CodeInvalidPayload},
		{"bad json", "/api/sessions/" + id + "/answers", `{`, http.StatusBadRequest, CodeInvalidPayload},
		{"unknown session", "/api/sessions/6f1c1d36-0b8e-4c55-9d43-2b7f5e0f3a11/answers", `{"answer":"x"}`, http.StatusNotFound, CodeNotFound},
		{"malformed id", "/api/sessions/nope/answers", `{"answer":"x"}`, http.StatusNotFound, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, jsonRequest(http.MethodPost, tt.target, tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[errorEnvelope](t, rec).Error.Code)
		})
	}
}

func TestLifelineEndpoint(t *testing.T) {
	env := newTestEnv(t, cellPages)
	id := env.create(t, "3").Session.ID

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/lifelines/skip", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/lifelines/rephrase", ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[stepBody](t, rec)
	assert.Equal(t, "Put simply, what is ATP?", resp.Question.Text)
	assert.Equal(t, "rephrase", string(resp.Question.Lifeline))
	assert.Equal(t, 0, resp.Session.Lifelines.Remaining)
	assert.Equal(t, 1, resp.Session.Progress.Current)

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/lifelines/new", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)
	env2 := decode[errorEnvelope](t, rec)
	assert.Equal(t, CodeInvalidState, env2.Error.Code)
	assert.Equal(t, "No lifeline is available for this question.", env2.Error.Message)
}

func TestCreateErrors(t *testing.T) {
	t.Run("short document", func(t *testing.T) {
		env := newTestEnv(t, []string{"Too short."})
		rec := env.do(t, uploadRequest(t, ""))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, CodeExtractionFailed, decode[errorEnvelope](t, rec).Error.Code)
		assert.Zero(t, env.reg.Len())
	})

	t.Run("rate limited", func(t *testing.T) {
		env := newTestEnv(t, cellPages)
		env.gen.setFail("analyze", &llm.Error{Kind: llm.ErrRateLimited, Tier: llm.TierStandard})
		rec := env.do(t, uploadRequest(t, ""))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, CodeRateLimited, decode[errorEnvelope](t, rec).Error.Code)
	})

	t.Run("no file", func(t *testing.T) {
		env := newTestEnv(t, cellPages)
		rec := env.do(t, jsonRequest(http.MethodPost, "/api/sessions", `{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, CodeInvalidPayload, decode[errorEnvelope](t, rec).Error.Code)
	})

	t.Run("bad question count", func(t *testing.T) {
		env := newTestEnv(t, cellPages)
		rec := env.do(t, uploadRequest(t, "many"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestQuestionRetryAfterFailure(t *testing.T) {
	env := newTestEnv(t, cellPages)
	env.gen.setFail("question", &llm.Error{Kind: llm.ErrModelUnavailable, Tier: llm.TierStandard})

	resp := env.create(t, "3")
	require.NotNil(t, resp.PendingError)
	assert.Equal(t, CodeModelUnavailable, resp.PendingError.Code)
	assert.Nil(t, resp.Question)
	assert.Equal(t, 0, resp.Session.Progress.Current)
	id := resp.Session.ID

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/report?format=json", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeExportFailed, decode[errorEnvelope](t, rec).Error.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/questions/next", ""))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.gen.setFail("question", nil)
	rec = env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/questions/next", ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[stepBody](t, rec).Question.Number)
}

func TestSummaryRequiresAnswers(t *testing.T) {
	env := newTestEnv(t, cellPages)
	id := env.create(t, "3").Session.ID

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/summary", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/answers", `{"answer":"energy"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/summary", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 60.0, decode[stepBody](t, rec).Summary.Score.Percentage)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, cellPages)
	id := env.create(t, "3").Session.ID

	rec := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, env.reg.Len())

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocalizedErrors(t *testing.T) {
	env := newTestEnv(t, cellPages)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/6f1c1d36-0b8e-4c55-9d43-2b7f5e0f3a11", nil)
	req.Header.Set("Accept-Language", "ru")
	rec := env.do(t, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Сессия не найдена.", decode[errorEnvelope](t, rec).Error.Message)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t, cellPages)
	id := env.create(t, "3").Session.ID

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/admin/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.SetBasicAuth("admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, env.do(t, req).Code)

	auth := func(method, target string) *http.Request {
		req := httptest.NewRequest(method, target, nil)
		req.SetBasicAuth("admin", "secret")
		return req
	}

	rec = env.do(t, auth(http.MethodGet, "/admin/sessions"))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	assert.Equal(t, 1, list.Count)

	rec = env.do(t, auth(http.MethodGet, "/admin/sessions/"+id))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "What is question I?")

	rec = env.do(t, auth(http.MethodGet, "/admin/sessions/"+id+"/report?format=json"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = env.do(t, auth(http.MethodGet, "/admin/export"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = env.do(t, auth(http.MethodDelete, "/admin/sessions/"+id))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, auth(http.MethodGet, "/admin/sessions/"+id))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, cellPages)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, rec.Body.String())
}

func TestRegistryEvictionResetsSession(t *testing.T) {
	gen := &scriptGen{fail: map[string]error{}}
	s := exam.New(gen, nil, exam.Config{})
	doc := document.Document{Title: "Cells", Pages: 2, Text: strings.Join(cellPages, "\n")}
	require.NoError(t, s.Begin(context.Background(), doc, 3))

	reg := NewRegistry(20*time.Millisecond, nil)
	reg.Add(s)
	_, ok := reg.Get(s.ID())
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return s.Snapshot().Phase() == exam.PhaseIdle
	}, 2*time.Second, 10*time.Millisecond)
	_, ok = reg.Get(s.ID())
	assert.False(t, ok)
}
