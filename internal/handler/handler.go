// Package handler serves the examination over a JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/docexam/internal/exam"
	"github.com/pavelanni/docexam/internal/model"
	"github.com/pavelanni/docexam/internal/report"
	"github.com/pavelanni/docexam/internal/store"
)

// Config holds HTTP-level settings.
type Config struct {
	// MaxUploadMB bounds the PDF upload size.
	MaxUploadMB int
	// NumQuestions is used when a request does not ask for a count.
	// Zero derives the count from the page count.
	NumQuestions int
	// ReportFormat is the default report format.
	ReportFormat report.Format
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	sessions   *Registry
	store      *store.Store
	newSession func() *exam.Session
	config     Config
	now        func() time.Time
}

// New creates a new Handler. st may be nil, which disables persistence
// and the admin routes.
func New(reg *Registry, st *store.Store, newSession func() *exam.Session, cfg Config) (*Handler, error) {
	if reg == nil || newSession == nil {
		return nil, errors.New("handler needs a registry and a session factory")
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}
	if cfg.ReportFormat == "" {
		cfg.ReportFormat = report.FormatPDF
	}
	return &Handler{sessions: reg, store: st, newSession: newSession, config: cfg, now: time.Now}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)
			r.Post("/answers", h.handleAnswer)
			r.Post("/questions/next", h.handleNextQuestion)
			r.Post("/lifelines/{kind}", h.handleLifeline)
			r.Post("/summary", h.handleSummary)
			r.Get("/report", h.handleReport)
		})
	})
	if h.store != nil {
		r.Route("/admin", h.adminRoutes)
	}
}

type documentView struct {
	Title      string `json:"title"`
	Author     string `json:"author,omitempty"`
	Pages      int    `json:"pages"`
	Words      int    `json:"words"`
	Characters int    `json:"characters"`
	Chunks     int    `json:"chunks"`
}

type counterView struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type lifelinesView struct {
	Remaining int `json:"remaining"`
	Total     int `json:"total"`
}

type sessionView struct {
	ID              string             `json:"id"`
	Phase           exam.Phase         `json:"phase"`
	Document        documentView       `json:"document"`
	DocumentType    model.DocumentType `json:"document_type"`
	Summary         string             `json:"summary,omitempty"`
	FocusAreas      []string           `json:"focus_areas"`
	Progress        counterView        `json:"progress"`
	Lifelines       lifelinesView      `json:"lifelines"`
	PendingQuestion string             `json:"pending_question,omitempty"`
	Score           *model.Score       `json:"score,omitempty"`
	FinalEvaluation string             `json:"final_evaluation,omitempty"`
	Model           string             `json:"model,omitempty"`
}

type questionView struct {
	Number    int                `json:"number"`
	Total     int                `json:"total"`
	Text      string             `json:"text"`
	FocusArea string             `json:"focus_area,omitempty"`
	Model     string             `json:"model,omitempty"`
	Lifeline  model.LifelineKind `json:"lifeline,omitempty"`
}

type evaluationView struct {
	Number   int    `json:"number"`
	Text     string `json:"text"`
	Mark     int    `json:"mark"`
	Model    string `json:"model,omitempty"`
	Complete bool   `json:"complete"`
}

type summaryView struct {
	Text  string      `json:"text"`
	Score model.Score `json:"score"`
	Model string      `json:"model,omitempty"`
}

// stepResponse reports a completed step together with what follows it.
// PendingError is set when the step succeeded but the follow-up call
// failed; the client retries the follow-up on its own endpoint.
type stepResponse struct {
	Session      *sessionView    `json:"session,omitempty"`
	Evaluation   *evaluationView `json:"evaluation,omitempty"`
	Question     *questionView   `json:"question,omitempty"`
	Summary      *summaryView    `json:"summary,omitempty"`
	PendingError *apiError       `json:"pending_error,omitempty"`
}

func viewOf(s *exam.Session) *sessionView {
	st := s.Snapshot()
	v := &sessionView{
		ID:    s.ID(),
		Phase: st.Phase(),
		Document: documentView{
			Title:      st.DocumentTitle,
			Author:     st.DocumentInfo.Author,
			Pages:      st.DocumentInfo.Pages,
			Words:      st.DocumentInfo.Words,
			Characters: st.DocumentInfo.Characters,
			Chunks:     st.DocumentInfo.Chunks,
		},
		DocumentType:    st.DocumentType,
		Summary:         st.DocumentSummary,
		FocusAreas:      st.FocusAreas,
		Progress:        counterView{Current: st.CurrentQuestionIndex, Total: st.TotalQuestions},
		Lifelines:       lifelinesView{Remaining: st.LifelinesRemaining, Total: st.LifelinesTotal},
		Score:           st.FinalScore,
		FinalEvaluation: st.FinalEvaluation,
		Model:           st.LastModel,
	}
	if len(st.QuestionsAsked) > len(st.AnswersGiven) {
		v.PendingQuestion = st.QuestionsAsked[len(st.QuestionsAsked)-1]
	}
	return v
}

func questionViewOf(q exam.Question) *questionView {
	return &questionView{
		Number:    q.Number,
		Total:     q.Total,
		Text:      q.Text,
		FocusArea: q.FocusArea,
		Model:     q.Model,
		Lifeline:  q.Lifeline,
	}
}

func summaryViewOf(s exam.Summary) *summaryView {
	return &summaryView{Text: s.Text, Score: s.Score, Model: s.Model}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.sessions.Len()})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.config.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeCode(w, r, http.StatusBadRequest, CodeInvalidPayload, "ErrNoFile")
		return
	}

	requested := h.config.NumQuestions
	if raw := strings.TrimSpace(r.FormValue("num_questions")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeCode(w, r, http.StatusBadRequest, CodeInvalidPayload, "ErrInvalidPayload")
			return
		}
		requested = n
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeCode(w, r, http.StatusBadRequest, CodeInvalidPayload, "ErrNoFile")
		return
	}
	defer file.Close()

	path, err := saveUpload(file, header.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer os.RemoveAll(filepath.Dir(path))

	s := h.newSession()
	if err := s.Start(r.Context(), path, requested); err != nil {
		writeError(w, r, err)
		return
	}
	h.sessions.Add(s)
	slog.Info("session created", "session", s.ID(), "file", header.Filename)

	resp := stepResponse{}
	q, err := s.NextQuestion(r.Context())
	if err != nil {
		_, e := apiErrorFor(r, err)
		resp.PendingError = &e
	} else {
		resp.Question = questionViewOf(q)
		h.persist(s)
	}
	resp.Session = viewOf(s)
	writeJSON(w, http.StatusCreated, resp)
}

// saveUpload copies an uploaded PDF into a fresh temporary directory,
// keeping its base name so the document title can default to it.
func saveUpload(src io.Reader, name string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(filepath.Clean("/"+name)), filepath.Ext(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "document"
	}
	dir, err := os.MkdirTemp("", "docexam-*")
	if err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, base+".pdf")
	f, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*exam.Session, bool) {
	s, ok := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeCode(w, r, http.StatusNotFound, CodeNotFound, "ErrNotFound")
	}
	return s, ok
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(chi.URLParam(r, "sessionID")) {
		writeCode(w, r, http.StatusNotFound, CodeNotFound, "ErrNotFound")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil || strings.TrimSpace(body.Answer) == "" {
		writeCode(w, r, http.StatusBadRequest, CodeInvalidPayload, "ErrInvalidPayload")
		return
	}

	ev, err := s.EvaluateAnswer(r.Context(), strings.TrimSpace(body.Answer))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := stepResponse{Evaluation: &evaluationView{
		Number:   ev.Number,
		Text:     ev.Text,
		Mark:     ev.Mark,
		Model:    ev.Model,
		Complete: ev.Complete,
	}}

	if ev.Complete {
		sum, err := s.FinalSummary(r.Context())
		if err != nil {
			_, e := apiErrorFor(r, err)
			resp.PendingError = &e
		} else {
			resp.Summary = summaryViewOf(sum)
		}
	} else {
		q, err := s.NextQuestion(r.Context())
		if err != nil {
			_, e := apiErrorFor(r, err)
			resp.PendingError = &e
		} else {
			resp.Question = questionViewOf(q)
		}
	}
	h.persist(s)
	resp.Session = viewOf(s)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	q, err := s.NextQuestion(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if q.Done {
		writeError(w, r, fmt.Errorf("%w: all questions have been asked", exam.ErrState))
		return
	}
	h.persist(s)
	writeJSON(w, http.StatusOK, stepResponse{Question: questionViewOf(q), Session: viewOf(s)})
}

func (h *Handler) handleLifeline(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	kind := model.LifelineKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeCode(w, r, http.StatusBadRequest, CodeInvalidPayload, "ErrInvalidPayload")
		return
	}
	if !s.UseLifeline(kind) {
		writeCode(w, r, http.StatusConflict, CodeInvalidState, "ErrNoLifeline")
		return
	}
	q, err := s.NextQuestion(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.persist(s)
	writeJSON(w, http.StatusOK, stepResponse{Question: questionViewOf(q), Session: viewOf(s)})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	sum, err := s.FinalSummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.persist(s)
	writeJSON(w, http.StatusOK, stepResponse{Summary: summaryViewOf(sum), Session: viewOf(s)})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeReport(w, r, s.Result())
}

func (h *Handler) writeReport(w http.ResponseWriter, r *http.Request, res model.SessionResult) {
	format := h.config.ReportFormat
	if raw := r.URL.Query().Get("format"); raw != "" {
		f, err := report.ParseFormat(raw)
		if err != nil {
			writeCode(w, r, http.StatusBadRequest, CodeInvalidPayload, "ErrInvalidPayload")
			return
		}
		format = f
	}
	now := h.now()
	data, err := report.Render(r.Context(), format, res, now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(res.DocumentTitle, format, now)))
	if _, err := w.Write(data); err != nil {
		slog.Error("write report", "error", err)
	}
}

// persist stores the session's current result. Failures are logged.
func (h *Handler) persist(s *exam.Session) {
	if h.store == nil {
		return
	}
	res := s.Result()
	if len(res.Questions) == 0 {
		return
	}
	if err := h.store.SaveResult(res); err != nil {
		slog.Error("persist session", "session", s.ID(), "error", err)
	}
}
