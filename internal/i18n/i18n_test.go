package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Recap" {
		t.Errorf("T(AppTitle) = %q, want 'Recap'", got)
	}

	got = T(ctx, "GenerateQuiz")
	if got != "Generate quiz" {
		t.Errorf("T(GenerateQuiz) = %q, want 'Generate quiz'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "AppTitle")
	if got != "Повторение" {
		t.Errorf("T(AppTitle) = %q, want 'Повторение'", got)
	}

	got = T(ctx, "GenerateQuiz")
	if got != "Создать тест" {
		t.Errorf("T(GenerateQuiz) = %q, want 'Создать тест'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"en", 1, "1 question"},
		{"en", 5, "5 questions"},
		{"ru", 1, "1 вопрос"},
		{"ru", 3, "3 вопроса"},
		{"ru", 5, "5 вопросов"},
	}
	for _, tt := range tests {
		ctx := initLang(t, tt.lang)
		got := Tp(ctx, "QuestionsCount", tt.count)
		if got != tt.want {
			t.Errorf("[%s] Tp(QuestionsCount, %d) = %q, want %q", tt.lang, tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "QuestionN", map[string]any{"N": 2, "Total": 5})
	if got != "Question 2 of 5" {
		t.Errorf("Td(QuestionN) = %q, want 'Question 2 of 5'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	tests := []struct {
		accept string
		want   string
	}{
		{"", "Recap"},
		{"ru-RU,ru;q=0.9", "Повторение"},
		{"ja", "Recap"},
	}
	for _, tt := range tests {
		var got string
		h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = T(r.Context(), "AppTitle")
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.accept != "" {
			req.Header.Set("Accept-Language", tt.accept)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.accept, got, tt.want)
		}
	}
}

func TestLanguageNames(t *testing.T) {
	tests := []struct {
		code, self, english string
	}{
		{"en", "English", "English"},
		{"ru", "русский", "Russian"},
		{"de", "Deutsch", "German"},
		{"!!", "!!", "!!"},
	}
	for _, tt := range tests {
		if got := LanguageName(tt.code); got != tt.self {
			t.Errorf("LanguageName(%q) = %q, want %q", tt.code, got, tt.self)
		}
		if got := EnglishName(tt.code); got != tt.english {
			t.Errorf("EnglishName(%q) = %q, want %q", tt.code, got, tt.english)
		}
	}
	if got := EnglishName(""); got != "English" {
		t.Errorf("EnglishName(\"\") = %q, want English", got)
	}
}

func TestSupported(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	got := map[string]bool{}
	for _, tag := range Supported() {
		got[tag.String()] = true
	}
	for _, want := range []string{"en", "ru"} {
		if !got[want] {
			t.Errorf("Supported() missing %q: %v", want, Supported())
		}
	}
}
