package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLang(context.Background(), lang)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "ReportTitle"); got != "Examination Report" {
		t.Errorf("T(ReportTitle) = %q, want 'Examination Report'", got)
	}
	if got := T(ctx, "StatusPASS"); got != "PASS" {
		t.Errorf("T(StatusPASS) = %q, want 'PASS'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "ReportTitle"); got != "Отчёт об экзамене" {
		t.Errorf("T(ReportTitle) = %q, want 'Отчёт об экзамене'", got)
	}
	if got := T(ctx, "ErrNotFound"); got != "Сессия не найдена." {
		t.Errorf("T(ErrNotFound) = %q, want 'Сессия не найдена.'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"en", 1, "1 lifeline left"},
		{"en", 3, "3 lifelines left"},
		{"ru", 1, "осталась 1 подсказка"},
		{"ru", 3, "осталось 3 подсказки"},
		{"ru", 5, "осталось 5 подсказок"},
		{"ru", 21, "осталась 21 подсказка"},
	}
	for _, tt := range tests {
		ctx := initLang(t, tt.lang)
		if got := Tp(ctx, "LifelinesLeft", tt.count); got != tt.want {
			t.Errorf("Tp(LifelinesLeft, %d) [%s] = %q, want %q", tt.count, tt.lang, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ReportQuestionN", map[string]any{"Number": 4})
	if got != "Question 4" {
		t.Errorf("Td(ReportQuestionN, Number=4) = %q, want 'Question 4'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	ctx := initLang(t, "de")

	if got := T(ctx, "ReportAnswer"); got != "Answer" {
		t.Errorf("T(ReportAnswer) [de] = %q, want 'Answer'", got)
	}
}

func TestContextWithoutLocalizer(t *testing.T) {
	if got := T(context.Background(), "ReportMark"); got != "Mark" {
		t.Errorf("T(ReportMark) = %q, want 'Mark'", got)
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ReportAnswer")
	}))

	tests := []struct {
		name   string
		target string
		accept string
		want   string
	}{
		{"default", "/", "", "Answer"},
		{"accept-language", "/", "ru-RU,ru;q=0.9", "Ответ"},
		{"query wins", "/?lang=en", "ru", "Answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
