package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pavelanni/docexam/internal/exam"
	appI18n "github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/model"
	"github.com/pavelanni/docexam/internal/report"
	"github.com/pavelanni/docexam/internal/store"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	questionStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	passStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func examCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam <file.pdf>",
		Short: "Run an interactive examination in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  runExam,
	}
	f := cmd.Flags()
	f.String("db", "", "SQLite database path to save the result (empty disables)")
	addEngineFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func runExam(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx, cancel := context.WithCancel(appI18n.WithLang(cmd.Context(), lang))
	defer cancel()

	eng, err := newEngine(ctx, v, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer eng.Close()

	var db *store.Store
	if path := v.GetString("db"); path != "" {
		db, err = store.New(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
	}

	format, err := report.ParseFormat(v.GetString("report-format"))
	if err != nil {
		return err
	}

	t := &terminal{
		ctx:    ctx,
		in:     bufio.NewScanner(os.Stdin),
		out:    cmd.OutOrStdout(),
		s:      eng.NewSession(),
		db:     db,
		format: format,
	}
	defer func() {
		if err := t.s.Reset(context.Background()); err != nil {
			slog.Warn("reset session", "error", err)
		}
	}()
	return t.run(args[0], v.GetInt("num-questions"))
}

// terminal drives one session from stdin.
type terminal struct {
	ctx    context.Context
	in     *bufio.Scanner
	out    io.Writer
	s      *exam.Session
	db     *store.Store
	format report.Format
}

var errQuit = errors.New("quit")

func (t *terminal) run(path string, requested int) error {
	fmt.Fprintln(t.out, mutedStyle.Render("Reading "+path+" ..."))
	if err := t.s.Start(t.ctx, path, requested); err != nil {
		return err
	}

	st := t.s.Snapshot()
	fmt.Fprintln(t.out, titleStyle.Render(appI18n.Td(t.ctx, "ExamReady", map[string]any{
		"Title": st.DocumentTitle,
		"Type":  string(st.DocumentType),
	})))
	if st.DocumentSummary != "" {
		fmt.Fprintln(t.out, st.DocumentSummary)
	}
	fmt.Fprintln(t.out, mutedStyle.Render(appI18n.Tp(t.ctx, "QuestionsAvailable", st.TotalQuestions)+" "+
		appI18n.Tp(t.ctx, "LifelinesLeft", st.LifelinesRemaining)))
	fmt.Fprintln(t.out, mutedStyle.Render(appI18n.T(t.ctx, "ExamHelp")))

	if err := t.loop(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return t.finish()
}

func (t *terminal) loop() error {
	for {
		var q exam.Question
		err := t.retry(func() error {
			var err error
			q, err = t.s.NextQuestion(t.ctx)
			return err
		})
		if err != nil {
			return err
		}
		if q.Done {
			return nil
		}
		t.showQuestion(q)

		complete, err := t.answer()
		if err != nil {
			return err
		}
		if complete {
			return nil
		}
	}
}

// answer reads lines until the pending question is answered. Lifeline
// commands leave the question pending and return to NextQuestion.
func (t *terminal) answer() (complete bool, err error) {
	for {
		fmt.Fprint(t.out, questionStyle.Render(appI18n.T(t.ctx, "ExamAnswerPrompt")+": "))
		line, ok := t.readLine()
		if !ok {
			return false, errQuit
		}
		cmdName := strings.ToLower(line)
		switch cmdName {
		case "":
			continue
		case "/quit":
			return false, errQuit
		case "/status":
			t.showStatus()
			continue
		case "/rephrase", "/new":
			kind := model.LifelineRephrase
			if cmdName == "/new" {
				kind = model.LifelineNew
			}
			if !t.s.UseLifeline(kind) {
				fmt.Fprintln(t.out, errorStyle.Render(appI18n.T(t.ctx, "ExamNoLifeline")))
				continue
			}
			// A failed lifeline leaves the question pending and the
			// lifeline spent, so the user answers the question as it stands.
			q, err := t.s.NextQuestion(t.ctx)
			if err != nil {
				slog.Error("lifeline failed", "kind", kind, "error", err)
				fmt.Fprintln(t.out, errorStyle.Render(err.Error()))
				if text, ok := t.s.PendingQuestion(); ok {
					current, total := t.s.Progress()
					t.showQuestion(exam.Question{Number: current, Total: total, Text: text})
				}
				continue
			}
			t.showQuestion(q)
			continue
		}

		var ev exam.Evaluation
		if err := t.retry(func() error {
			var err error
			ev, err = t.s.EvaluateAnswer(t.ctx, line)
			return err
		}); err != nil {
			return false, err
		}
		fmt.Fprintln(t.out, boxStyle.Render(ev.Text))
		fmt.Fprintln(t.out, mutedStyle.Render(fmt.Sprintf("%d/10 · %s", ev.Mark, ev.Model)))
		t.save()
		return ev.Complete, nil
	}
}

// retry runs fn until it succeeds, asking the user after each failure.
// Session state is unchanged by a failed step, so repeating is safe.
func (t *terminal) retry(fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, exam.ErrState) {
			return err
		}
		slog.Error("step failed", "error", err)
		fmt.Fprintln(t.out, errorStyle.Render(err.Error()))
		fmt.Fprintln(t.out, mutedStyle.Render(appI18n.T(t.ctx, "ExamRetry")))
		line, ok := t.readLine()
		if !ok || strings.EqualFold(line, "/quit") {
			return errQuit
		}
	}
}

func (t *terminal) readLine() (string, bool) {
	if !t.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(t.in.Text()), true
}

func (t *terminal) showQuestion(q exam.Question) {
	fmt.Fprintln(t.out)
	header := appI18n.Td(t.ctx, "ExamProgress", map[string]any{"Current": q.Number, "Total": q.Total})
	if q.FocusArea != "" {
		header += " · " + q.FocusArea
	}
	fmt.Fprintln(t.out, mutedStyle.Render(header))
	fmt.Fprintln(t.out, questionStyle.Render(q.Text))
}

func (t *terminal) showStatus() {
	current, total := t.s.Progress()
	remaining, _ := t.s.Lifelines()
	fmt.Fprintln(t.out, mutedStyle.Render(
		appI18n.Td(t.ctx, "ExamProgress", map[string]any{"Current": current, "Total": total})+" · "+
			appI18n.Tp(t.ctx, "LifelinesLeft", remaining)))
}

// finish summarizes what was answered and writes the report.
func (t *terminal) finish() error {
	if len(t.s.Snapshot().AnswersGiven) == 0 {
		return nil
	}

	var sum exam.Summary
	if err := t.retry(func() error {
		var err error
		sum, err = t.s.FinalSummary(t.ctx)
		return err
	}); err != nil {
		if errors.Is(err, errQuit) {
			return nil
		}
		return err
	}

	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, titleStyle.Render(appI18n.T(t.ctx, "ExamComplete")))
	fmt.Fprintln(t.out, sum.Text)
	status := failStyle
	if sum.Score.Status == model.StatusPass {
		status = passStyle
	}
	fmt.Fprintln(t.out, status.Render(fmt.Sprintf("%d/%d (%.1f%%) %s",
		sum.Score.TotalMarks, sum.Score.MaxMarks, sum.Score.Percentage,
		appI18n.T(t.ctx, "Status"+string(sum.Score.Status)))))
	t.save()

	res := t.s.Result()
	now := time.Now()
	data, err := report.Render(t.ctx, t.format, res, now)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	path, err := report.WriteTemp(res.DocumentTitle, t.format, data, now)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintln(t.out, mutedStyle.Render(appI18n.Td(t.ctx, "ReportSaved", map[string]any{"Path": path})))
	return nil
}

func (t *terminal) save() {
	if t.db == nil {
		return
	}
	if err := t.db.SaveResult(t.s.Result()); err != nil {
		slog.Warn("save result", "error", err)
	}
}
