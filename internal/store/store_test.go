package store

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/recap/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSummary() model.Summary {
	mc := model.Question{
		Kind:   model.KindMultipleChoice,
		Prompt: "Which are primes?",
		Options: []model.Option{
			{Index: 0, Text: "2", Correct: true},
			{Index: 1, Text: "4"},
			{Index: 2, Text: "3", Correct: true},
		},
	}
	ref := "Photosynthesis"
	free := model.Question{
		Kind:            model.KindFreeAnswer,
		Prompt:          "How do plants make food?",
		ReferenceAnswer: &ref,
	}
	want1, want2 := "2, 3", "Plants use light to make sugar."
	return model.Summary{
		Title: "Mixed",
		Score: 1,
		Total: 2,
		Answers: []model.UserAnswer{
			{ID: uuid.New(), Question: mc, Answer: []string{"2", "3"}, IsCorrect: true, CorrectAnswer: &want1, Feedback: "ok"},
			{ID: uuid.New(), Question: free, Answer: []string{"sunlight"}, CorrectAnswer: &want2, Feedback: "Too short."},
		},
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := newTestStore(t)

	st, err := s.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if st.APIKey != "" {
		t.Errorf("expected empty api key, got %q", st.APIKey)
	}
	if st.ModelName != model.DefaultModel {
		t.Errorf("expected model %q, got %q", model.DefaultModel, st.ModelName)
	}
}

func TestSettingsSaveAndLoad(t *testing.T) {
	s := newTestStore(t)

	want := model.Settings{APIKey: "AIza-test", ModelName: model.ModelGeminiFlash}
	if err := s.SaveSettings(want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err := s.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	// Saving again overwrites.
	want.APIKey = "other"
	if err := s.SaveSettings(want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, _ = s.LoadSettings()
	if got.APIKey != "other" {
		t.Errorf("expected overwritten key, got %q", got.APIKey)
	}
}

func TestGetSettingMissing(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetSetting("nope")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value, got %q", v)
	}

	if err := s.SaveSettings(model.Settings{APIKey: "yes", ModelName: model.DefaultModel}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	v, _ = s.GetSetting(keyAPIKey)
	if v != "yes" {
		t.Errorf("expected yes, got %q", v)
	}
	if v, _ = s.GetSetting("nope"); v != "" {
		t.Errorf("expected empty value, got %q", v)
	}
}

func TestSaveAndGetResult(t *testing.T) {
	s := newTestStore(t)

	id, err := s.SaveResult(testSummary(), model.ResultMeta{Model: model.ModelGeminiFlash, Language: "en"})
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	r, err := s.GetResult(id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if r == nil {
		t.Fatal("expected result, got nil")
	}
	if r.Title != "Mixed" || r.Score != 1 || r.Total != 2 {
		t.Errorf("unexpected result header: %+v", r)
	}
	if r.Model != model.ModelGeminiFlash || r.Language != "en" {
		t.Errorf("unexpected meta: model=%q language=%q", r.Model, r.Language)
	}
	if len(r.Answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(r.Answers))
	}

	first := r.Answers[0]
	if first.Position != 0 || first.Kind != model.KindMultipleChoice {
		t.Errorf("unexpected first answer: %+v", first)
	}
	if len(first.Answer) != 2 || first.Answer[0] != "2" || first.Answer[1] != "3" {
		t.Errorf("expected answer [2 3], got %v", first.Answer)
	}
	if !first.IsCorrect || first.CorrectAnswer != "2, 3" {
		t.Errorf("unexpected grading of first answer: %+v", first)
	}

	second := r.Answers[1]
	if second.IsCorrect {
		t.Error("expected second answer to be incorrect")
	}
	if second.Feedback != "Too short." {
		t.Errorf("expected feedback 'Too short.', got %q", second.Feedback)
	}
}

func TestGetResultMissing(t *testing.T) {
	s := newTestStore(t)

	r, err := s.GetResult("does-not-exist")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if r != nil {
		t.Errorf("expected nil, got %+v", r)
	}
}

func TestListResults(t *testing.T) {
	s := newTestStore(t)

	list, err := s.ListResults()
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	first, err := s.SaveResult(testSummary(), model.ResultMeta{})
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	second, err := s.SaveResult(testSummary(), model.ResultMeta{})
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	list, err = s.ListResults()
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 results, got %d", len(list))
	}
	if list[0].ID != second || list[1].ID != first {
		t.Errorf("expected newest first, got %s then %s", list[0].ID, list[1].ID)
	}
	if list[0].Answers != nil {
		t.Error("expected list entries without answers")
	}

	count, err := s.ResultCount()
	if err != nil {
		t.Fatalf("ResultCount: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestExportAll(t *testing.T) {
	s := newTestStore(t)

	exp, err := s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(exp.Results) != 0 {
		t.Errorf("expected no results, got %d", len(exp.Results))
	}

	if _, err := s.SaveResult(testSummary(), model.ResultMeta{Language: "ru"}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	exp, err = s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(exp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(exp.Results))
	}
	if len(exp.Results[0].Answers) != 2 {
		t.Errorf("expected 2 answers in export, got %d", len(exp.Results[0].Answers))
	}
	if exp.ExportedAt.IsZero() {
		t.Error("expected export timestamp")
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)

	token, err := s.CreateAuthSession()
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d", len(token))
	}

	ok, err := s.ValidAuthSession(token)
	if err != nil {
		t.Fatalf("ValidAuthSession: %v", err)
	}
	if !ok {
		t.Error("expected fresh session to be valid")
	}

	ok, _ = s.ValidAuthSession("bogus")
	if ok {
		t.Error("expected unknown token to be invalid")
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	ok, _ = s.ValidAuthSession(token)
	if ok {
		t.Error("expected deleted session to be invalid")
	}
}

func TestAuthSessionExpired(t *testing.T) {
	s := newTestStore(t)

	past := time.Now().Add(-2 * authSessionTTL)
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, created_at, expires_at) VALUES (?, ?, ?)`,
		"old", past, past.Add(time.Hour),
	); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err := s.ValidAuthSession("old")
	if err != nil {
		t.Fatalf("ValidAuthSession: %v", err)
	}
	if ok {
		t.Error("expected expired session to be invalid")
	}

	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, created_at, expires_at) VALUES (?, ?, ?)`,
		"old2", past, past.Add(time.Hour),
	); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.CleanupExpiredSessions(); err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM auth_sessions`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected expired sessions removed, got %d", n)
	}
}
