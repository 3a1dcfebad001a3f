package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenDB("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(eventType string, _ interface{}) error {
	p.events = append(p.events, eventType)
	return nil
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	pub    *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerFor(t, writeCatalog(t))
}

func newTestServerFor(t *testing.T, dataDir string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	exams, err := LoadCatalog(dataDir)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if err := SyncCatalog(db, exams); err != nil {
		t.Fatalf("SyncCatalog: %v", err)
	}

	pub := &recordingPublisher{}
	r := gin.New()
	setupRoutes(r, db, pub, Config{DataDir: dataDir})
	return &testServer{t: t, router: r, pub: pub}
}

// do sends a request as the given anonymous user ("" creates a new one)
// and decodes the JSON body into out when out is not nil.
func (s *testServer) do(method, path, user string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(publicIDHeader, user)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w
}

func answerReq(number int, letter string) AnswerReq {
	return AnswerReq{Number: &number, Letter: letter}
}

func (s *testServer) newUser() string {
	s.t.Helper()
	w := s.do(http.MethodGet, "/api/v1/me", "", nil, nil)
	id := w.Header().Get(publicIDHeader)
	if w.Code != http.StatusOK || id == "" {
		s.t.Fatalf("new user: status %d, id %q", w.Code, id)
	}
	return id
}

type catalogResp struct {
	Total   int             `json:"total"`
	Catalog int             `json:"catalog"`
	Items   []ExamSummary   `json:"items"`
	Groups  []RoleGroup     `json:"groups"`
	Options FilterOptionSet `json:"options"`
	Roles   []RoleNavDTO    `json:"roles"`
}

func TestListExams(t *testing.T) {
	s := newTestServer(t)
	user := s.newUser()

	var all catalogResp
	if w := s.do(http.MethodGet, "/api/v1/exams", user, nil, &all); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if all.Total != 2 || all.Catalog != 2 || len(all.Items) != 2 {
		t.Fatalf("catalog = %+v", all)
	}
	if all.Items[0].ShortID != "b9f68e13" || all.Items[1].Organization != "IDECAN" {
		t.Errorf("items = %+v", all.Items)
	}
	if len(all.Options.Years) != 2 || len(all.Roles) != 2 {
		t.Errorf("options %+v roles %+v", all.Options, all.Roles)
	}

	var filtered catalogResp
	s.do(http.MethodGet, "/api/v1/exams?q=enfermeiro&ano=2022", user, nil, &filtered)
	if filtered.Total != 1 || filtered.Items[0].Role != "Enfermeiro Saúde" {
		t.Errorf("filtered = %+v", filtered)
	}
	// options always describe the whole catalog
	if len(filtered.Options.Organizations) != 2 {
		t.Errorf("options = %+v", filtered.Options)
	}

	var grouped catalogResp
	s.do(http.MethodGet, "/api/v1/exams?group=cargo&cargo_slug=analista_de_ti", user, nil, &grouped)
	if len(grouped.Groups) != 1 || grouped.Groups[0].Icon != "💻" || grouped.Groups[0].Count != 1 {
		t.Errorf("groups = %+v", grouped.Groups)
	}

	w := s.do(http.MethodGet, "/api/v1/exams?group=cargo&q=medicina", user, nil, nil)
	if !bytes.Contains(w.Body.Bytes(), []byte(`"groups":[]`)) {
		t.Errorf("empty grouping = %s, want an empty groups array", w.Body.String())
	}
}

func TestGetExamHidesKey(t *testing.T) {
	s := newTestServer(t)
	user := s.newUser()

	for _, ref := range []string{"b9f68e13-5a2c-4f7e-9d11-0e8c7a6b5d40", "b9f68e13", "b9f68e13-5a2c"} {
		var detail ExamDetailDTO
		w := s.do(http.MethodGet, "/api/v1/exams/"+ref, user, nil, &detail)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s: status %d", ref, w.Code)
		}
		if len(detail.Questions) != 3 || len(detail.SupportTexts) != 1 {
			t.Fatalf("detail = %+v", detail)
		}
		if bytes.Contains(w.Body.Bytes(), []byte("gabarito")) || bytes.Contains(w.Body.Bytes(), []byte(`"Key"`)) {
			t.Errorf("answer key leaked in %s", w.Body.String())
		}
		q2 := detail.Questions[1]
		if q2.ImageURL != "/img/prova_b9f68e13_img/img_2.png" {
			t.Errorf("image url = %q", q2.ImageURL)
		}
		if detail.Questions[2].Area != defaultArea {
			t.Errorf("area fallback = %q", detail.Questions[2].Area)
		}
	}

	if w := s.do(http.MethodGet, "/api/v1/exams/b9f6", user, nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("short prefix: status %d, want 404", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/exams/nope-nope-nope", user, nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown: status %d, want 404", w.Code)
	}
}

type startResp struct {
	AttemptID string   `json:"attemptId"`
	Status    string   `json:"status"`
	Progress  Progress `json:"progress"`
}

type answerResp struct {
	Verdict  string   `json:"verdict"`
	Correct  string   `json:"correct"`
	Progress Progress `json:"progress"`
	Error    string   `json:"error"`
}

type finishResp struct {
	Status       string       `json:"status"`
	ScorePercent int          `json:"scorePercent"`
	Correct      int          `json:"correct"`
	Total        int          `json:"total"`
	Items        []ReviewItem `json:"items"`
}

func TestSelfQuizFlow(t *testing.T) {
	s := newTestServer(t)
	user := s.newUser()

	var start startResp
	if w := s.do(http.MethodPost, "/api/v1/exams/b9f68e13/attempts", user, nil, &start); w.Code != http.StatusCreated {
		t.Fatalf("start: status %d", w.Code)
	}
	if start.AttemptID == "" || start.Status != AttemptInProgress || start.Progress.Total != 3 {
		t.Fatalf("start = %+v", start)
	}
	base := "/api/v1/attempts/" + start.AttemptID

	var ans answerResp
	s.do(http.MethodPost, base+"/answers", user, answerReq(1, "a"), &ans)
	if ans.Verdict != VerdictCorrect || ans.Correct != "A" || ans.Progress.Correct != 1 {
		t.Errorf("answer 1 = %+v", ans)
	}

	s.do(http.MethodPost, base+"/answers", user, answerReq(2, "B"), &ans)
	if ans.Verdict != VerdictIncorrect || ans.Correct != "C" || ans.Progress.Answered != 2 {
		t.Errorf("answer 2 = %+v", ans)
	}

	// changing an answer replaces the earlier choice
	s.do(http.MethodPost, base+"/answers", user, answerReq(2, "C"), &ans)
	if ans.Verdict != VerdictCorrect || ans.Progress.Answered != 2 || ans.Progress.Correct != 2 {
		t.Errorf("answer 2 changed = %+v", ans)
	}

	s.do(http.MethodPost, base+"/answers", user, answerReq(3, "A"), &ans)
	if ans.Verdict != VerdictUngraded || ans.Progress.ScorePercent != 67 || ans.Progress.ProgressPercent != 100 {
		t.Errorf("answer 3 = %+v", ans)
	}

	if w := s.do(http.MethodPost, base+"/answers", user, answerReq(1, "Z"), nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown letter: status %d", w.Code)
	}
	if w := s.do(http.MethodPost, base+"/answers", user, answerReq(9, "A"), nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown question: status %d", w.Code)
	}

	var fin finishResp
	if w := s.do(http.MethodPost, base+"/finish", user, nil, &fin); w.Code != http.StatusOK {
		t.Fatalf("finish: status %d", w.Code)
	}
	if fin.Status != AttemptFinished || fin.ScorePercent != 67 || fin.Correct != 2 || fin.Total != 3 || len(fin.Items) != 3 {
		t.Errorf("finish = %+v", fin)
	}

	if w := s.do(http.MethodPost, base+"/answers", user, answerReq(1, "B"), nil); w.Code != http.StatusConflict {
		t.Errorf("answer after finish: status %d, want 409", w.Code)
	}

	var restarted startResp
	s.do(http.MethodPost, base+"/restart", user, nil, &restarted)
	if restarted.Status != AttemptInProgress || restarted.Progress.Answered != 0 {
		t.Errorf("restart = %+v", restarted)
	}
	s.do(http.MethodPost, base+"/answers", user, answerReq(1, "B"), &ans)
	if ans.Verdict != VerdictIncorrect || ans.Progress.Answered != 1 {
		t.Errorf("answer after restart = %+v", ans)
	}

	want := []string{"attempt.started", "answer.graded", "answer.graded", "answer.graded", "answer.graded",
		"attempt.finished", "attempt.restarted", "answer.graded"}
	if len(s.pub.events) != len(want) {
		t.Fatalf("events = %v, want %v", s.pub.events, want)
	}
	for i := range want {
		if s.pub.events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, s.pub.events[i], want[i])
		}
	}
}

func TestGetAttemptRevealsOnlyAnswered(t *testing.T) {
	s := newTestServer(t)
	user := s.newUser()

	var start startResp
	s.do(http.MethodPost, "/api/v1/exams/b9f68e13/attempts", user, nil, &start)
	base := "/api/v1/attempts/" + start.AttemptID
	s.do(http.MethodPost, base+"/answers", user, answerReq(2, "A"), nil)

	var state struct {
		Status   string       `json:"status"`
		Progress Progress     `json:"progress"`
		Items    []ReviewItem `json:"items"`
	}
	s.do(http.MethodGet, base, user, nil, &state)
	if len(state.Items) != 1 || state.Items[0].Number != 2 || state.Items[0].Correct != "C" {
		t.Errorf("in progress items = %+v", state.Items)
	}

	s.do(http.MethodPost, base+"/finish", user, nil, nil)
	s.do(http.MethodGet, base, user, nil, &state)
	if state.Status != AttemptFinished || len(state.Items) != 3 || state.Items[0].Verdict != VerdictUnanswered {
		t.Errorf("finished state = %+v", state)
	}
}

func TestAttemptOwnership(t *testing.T) {
	s := newTestServer(t)
	owner := s.newUser()
	other := s.newUser()

	var start startResp
	s.do(http.MethodPost, "/api/v1/exams/b9f68e13/attempts", owner, nil, &start)

	if w := s.do(http.MethodGet, "/api/v1/attempts/"+start.AttemptID, other, nil, nil); w.Code != http.StatusForbidden {
		t.Errorf("other user: status %d, want 403", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/attempts/does-not-exist", owner, nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing attempt: status %d, want 404", w.Code)
	}

	var list struct {
		Total int64               `json:"total"`
		Items []AttemptSummaryDTO `json:"items"`
	}
	s.do(http.MethodGet, "/api/v1/attempts", owner, nil, &list)
	if list.Total != 1 || list.Items[0].ExamName != "Prefeitura de Recife - Analista de TI" {
		t.Errorf("owner list = %+v", list)
	}
	s.do(http.MethodGet, "/api/v1/attempts", other, nil, &list)
	if list.Total != 0 {
		t.Errorf("other list total = %d", list.Total)
	}
}

func TestStatsByArea(t *testing.T) {
	s := newTestServer(t)
	user := s.newUser()

	var start startResp
	s.do(http.MethodPost, "/api/v1/exams/b9f68e13/attempts", user, nil, &start)
	base := "/api/v1/attempts/" + start.AttemptID
	s.do(http.MethodPost, base+"/answers", user, answerReq(1, "B"), nil)
	s.do(http.MethodPost, base+"/answers", user, answerReq(1, "A"), nil)
	s.do(http.MethodPost, base+"/answers", user, answerReq(2, "A"), nil)
	s.do(http.MethodPost, base+"/answers", user, answerReq(3, "A"), nil)
	s.do(http.MethodPost, base+"/finish", user, nil, nil)

	var stats StatsResponse
	if w := s.do(http.MethodGet, "/api/v1/stats", user, nil, &stats); w.Code != http.StatusOK {
		t.Fatalf("stats: status %d", w.Code)
	}
	if stats.TotalAttempts != 1 || stats.FinishedAttempts != 1 {
		t.Errorf("attempt counts = %+v", stats)
	}
	if stats.TotalAnswers != 2 || stats.CorrectAnswers != 1 {
		t.Errorf("answers %d correct %d, want 2 and 1", stats.TotalAnswers, stats.CorrectAnswers)
	}
	if stats.AccuracyByArea["Língua Portuguesa"] != 100 || stats.AccuracyByArea["Informática"] != 0 {
		t.Errorf("accuracy by area = %v", stats.AccuracyByArea)
	}
	if stats.AnswersLast30d != 2 || stats.CorrectLast30d != 1 || stats.AccuracyLast30d == nil || *stats.AccuracyLast30d != 50 {
		t.Errorf("last 30 days = %d/%d (%v)", stats.CorrectLast30d, stats.AnswersLast30d, stats.AccuracyLast30d)
	}
}

func TestMeUpdateAndRestore(t *testing.T) {
	s := newTestServer(t)
	user := s.newUser()

	name := "Ana"
	var me MeResponse
	if w := s.do(http.MethodPut, "/api/v1/me", user, MeUpdateReq{DisplayName: &name}, &me); w.Code != http.StatusOK {
		t.Fatalf("update: status %d", w.Code)
	}
	if me.PublicID != user || me.DisplayName == nil || *me.DisplayName != "Ana" {
		t.Errorf("me = %+v", me)
	}

	short := "A"
	if w := s.do(http.MethodPut, "/api/v1/me", user, MeUpdateReq{DisplayName: &short}, nil); w.Code != http.StatusBadRequest {
		t.Errorf("short name: status %d", w.Code)
	}

	w := s.do(http.MethodPost, "/api/v1/me/restore", "", RestoreReq{PublicID: user}, nil)
	if w.Code != http.StatusOK || w.Header().Get(publicIDHeader) != user {
		t.Errorf("restore: status %d header %q", w.Code, w.Header().Get(publicIDHeader))
	}
	if w := s.do(http.MethodPost, "/api/v1/me/restore", "", RestoreReq{PublicID: "unknown"}, nil); w.Code != http.StatusNotFound {
		t.Errorf("restore unknown: status %d", w.Code)
	}
}

func TestAnswerQuestionNumberedZero(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "provas", "index.json"), `{"provas": ["prova_zero.json"]}`)
	writeFile(t, filepath.Join(dir, "provas", "prova_zero.json"), `{
  "prova": {
    "id": "zero0000-1111",
    "nome_prova": "Numeração a partir de zero",
    "questoes": [
      {"numero_prova": 0, "alternativas": [{"letra": "A"}, {"letra": "B"}], "gabarito": "A"}
    ]
  }
}`)
	s := newTestServerFor(t, dir)
	user := s.newUser()

	var start startResp
	s.do(http.MethodPost, "/api/v1/exams/zero0000-1111/attempts", user, nil, &start)

	var ans answerResp
	w := s.do(http.MethodPost, "/api/v1/attempts/"+start.AttemptID+"/answers", user, answerReq(0, "A"), &ans)
	if w.Code != http.StatusOK || ans.Verdict != VerdictCorrect || ans.Progress.Answered != 1 {
		t.Errorf("answer to question 0: status %d, %+v", w.Code, ans)
	}

	w = s.do(http.MethodPost, "/api/v1/attempts/"+start.AttemptID+"/answers", user, gin.H{"letra": "A"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing numero: status %d, want 400", w.Code)
	}
}
