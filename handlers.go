package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

/*** DTOs shared across handlers ***/

type SupportTextDTO struct {
	ID      string `json:"id"`
	Title   string `json:"titulo"`
	Content string `json:"conteudo"`
}

type AlternativeDTO struct {
	Letter string `json:"letra"`
	Text   string `json:"texto"`
}

// QuestionDTO never carries the key; it is revealed per answer.
type QuestionDTO struct {
	Number       int              `json:"numero_prova"`
	Area         string           `json:"area_conhecimento"`
	Context      *string          `json:"texto_contexto,omitempty"`
	ImageURL     string           `json:"imagem_url,omitempty"`
	Prompt       string           `json:"enunciado"`
	Alternatives []AlternativeDTO `json:"alternativas"`
}

type ExamDetailDTO struct {
	ExamSummary
	SupportTexts []SupportTextDTO `json:"textos_base"`
	Questions    []QuestionDTO    `json:"questoes"`
}

type RoleNavDTO struct {
	Role  string `json:"cargo"`
	Slug  string `json:"slug"`
	Icon  string `json:"icon"`
	Count int    `json:"count"`
}

const defaultArea = "Geral"

func toDetailDTO(e *Exam) ExamDetailDTO {
	out := ExamDetailDTO{
		ExamSummary:  e.Summary(),
		SupportTexts: make([]SupportTextDTO, 0, len(e.SupportTexts)),
		Questions:    make([]QuestionDTO, 0, len(e.Questions)),
	}
	for _, t := range e.SupportTexts {
		out.SupportTexts = append(out.SupportTexts, SupportTextDTO{ID: t.TextID, Title: t.Title, Content: t.Content})
	}
	for _, q := range e.Questions {
		alts := make([]AlternativeDTO, 0, len(q.Alternatives))
		for _, a := range q.Alternatives {
			alts = append(alts, AlternativeDTO{Letter: a.Letter, Text: a.Text})
		}
		area := q.Area
		if area == "" {
			area = defaultArea
		}
		out.Questions = append(out.Questions, QuestionDTO{
			Number:       q.Number,
			Area:         area,
			Context:      q.Context,
			ImageURL:     imageURL(e, &q),
			Prompt:       q.Prompt,
			Alternatives: alts,
		})
	}
	return out
}

func imageURL(e *Exam, q *Question) string {
	if !q.HasImage {
		return ""
	}
	img := "img_1"
	if q.ImageID != nil {
		img = *q.ImageID
	}
	key := e.FileKey
	if key == "" {
		key = e.ID
	}
	return fmt.Sprintf("/img/prova_%s_img/%s.png", key, img)
}

func dbError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
}

/*** Catalog ***/

// ListExams serves the catalog.
// Query params: ?q=&organizadora=&cargo=&ano=&cargo_slug=&group=cargo
func ListExams(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var exams []Exam
		if err := db.Order("position, id").Find(&exams).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}
		all := make([]ExamSummary, 0, len(exams))
		for i := range exams {
			all = append(all, exams[i].Summary())
		}

		filtered := FilterExams(all, CatalogFilter{
			Search:       c.Query("q"),
			Organization: c.Query("organizadora"),
			Role:         c.Query("cargo"),
			Year:         c.Query("ano"),
			RoleSlug:     c.Query("cargo_slug"),
		})

		nav := []RoleNavDTO{}
		for _, g := range GroupByRole(all) {
			nav = append(nav, RoleNavDTO{Role: g.Role, Slug: g.Slug, Icon: g.Icon, Count: g.Count})
		}

		resp := gin.H{
			"total":   len(filtered),
			"catalog": len(all),
			"options": FilterOptions(all),
			"roles":   nav,
		}
		if c.Query("group") == "cargo" {
			resp["groups"] = GroupByRole(filtered)
		} else {
			resp["items"] = filtered
		}
		c.JSON(http.StatusOK, resp)
	}
}

func GetExam(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := ResolveExamID(db, c.Param("id"))
		if err != nil {
			dbError(c, err, "exam not found")
			return
		}
		exam, err := LoadExam(db, id)
		if err != nil {
			dbError(c, err, "exam not found")
			return
		}
		c.JSON(http.StatusOK, toDetailDTO(exam))
	}
}

/*** Attempts ***/

func currentUserID(c *gin.Context) *uint {
	if v, ok := c.Get("userDBID"); ok {
		if id, ok2 := v.(uint); ok2 {
			return &id
		}
	}
	return nil
}

// ownedAttempt loads the attempt in :id and writes the error response itself.
func ownedAttempt(c *gin.Context, db *gorm.DB) (*Attempt, bool) {
	var a Attempt
	if err := db.First(&a, "id = ?", c.Param("id")).Error; err != nil {
		dbError(c, err, "attempt not found")
		return nil, false
	}
	uid := currentUserID(c)
	if a.UserID != nil && (uid == nil || *a.UserID != *uid) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return &a, true
}

func attemptAnswers(db *gorm.DB, attemptID string) (AnswerSet, error) {
	var rows []Answer
	if err := db.Where("attempt_id = ?", attemptID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return LatestAnswers(rows), nil
}

func StartAttempt(db *gorm.DB, pub Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := ResolveExamID(db, c.Param("id"))
		if err != nil {
			dbError(c, err, "exam not found")
			return
		}
		exam, err := LoadExam(db, id)
		if err != nil {
			dbError(c, err, "exam not found")
			return
		}

		a := Attempt{
			ID:        uuid.New().String(),
			ExamID:    exam.ID,
			UserID:    currentUserID(c),
			Status:    AttemptInProgress,
			StartedAt: time.Now(),
		}
		if err := db.Create(&a).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}
		publishEvent(pub, "attempt.started", gin.H{"attempt_id": a.ID, "exam_id": exam.ID})

		c.JSON(http.StatusCreated, gin.H{
			"attemptId": a.ID,
			"examId":    exam.ID,
			"status":    a.Status,
			"progress":  ScoreAnswers(exam, AnswerSet{}),
		})
	}
}

// Number is a pointer so that question 0 passes the required check.
type AnswerReq struct {
	Number *int   `json:"numero" binding:"required"`
	Letter string `json:"letra" binding:"required"`
}

func AnswerQuestion(db *gorm.DB, pub Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := ownedAttempt(c, db)
		if !ok {
			return
		}
		var req AnswerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}
		exam, err := LoadExam(db, a.ExamID)
		if err != nil {
			dbError(c, err, "exam not found")
			return
		}

		q, err := ValidateSelection(a, exam, *req.Number, req.Letter)
		switch {
		case errors.Is(err, ErrAttemptFinished):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		letter := normalizeLetter(req.Letter)
		verdict := GradeAnswer(q.Key, letter)
		ans := Answer{
			AttemptID:      a.ID,
			QuestionNumber: q.Number,
			Letter:         letter,
			Verdict:        verdict,
			AnsweredAt:     time.Now(),
		}
		if err := db.Create(&ans).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}

		answers, err := attemptAnswers(db, a.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}
		progress := ScoreAnswers(exam, answers)
		publishEvent(pub, "answer.graded", gin.H{
			"attempt_id": a.ID,
			"exam_id":    exam.ID,
			"numero":     q.Number,
			"verdict":    verdict,
		})

		c.JSON(http.StatusOK, gin.H{
			"numero":   q.Number,
			"letra":    letter,
			"verdict":  verdict,
			"correct":  q.Key,
			"progress": progress,
		})
	}
}

func GetAttempt(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := ownedAttempt(c, db)
		if !ok {
			return
		}
		exam, err := LoadExam(db, a.ExamID)
		if err != nil {
			dbError(c, err, "exam not found")
			return
		}
		answers, err := attemptAnswers(db, a.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}

		// only answered questions reveal their key until the attempt is finished
		items := []ReviewItem{}
		for _, it := range ReviewExam(exam, answers) {
			if it.Verdict == VerdictUnanswered && a.Status != AttemptFinished {
				continue
			}
			items = append(items, it)
		}

		c.JSON(http.StatusOK, gin.H{
			"attemptId":    a.ID,
			"examId":       a.ExamID,
			"status":       a.Status,
			"startedAt":    a.StartedAt,
			"finishedAt":   a.FinishedAt,
			"scorePercent": a.ScorePercent,
			"progress":     ScoreAnswers(exam, answers),
			"items":        items,
		})
	}
}

func FinishAttempt(db *gorm.DB, pub Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := ownedAttempt(c, db)
		if !ok {
			return
		}
		exam, err := LoadExam(db, a.ExamID)
		if err != nil {
			dbError(c, err, "exam not found")
			return
		}
		answers, err := attemptAnswers(db, a.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}
		progress := ScoreAnswers(exam, answers)

		if a.Status != AttemptFinished {
			now := time.Now()
			a.Status = AttemptFinished
			a.FinishedAt = &now
			a.ScorePercent = &progress.ScorePercent
			if err := db.Save(a).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
				return
			}
			publishEvent(pub, "attempt.finished", gin.H{
				"attempt_id":    a.ID,
				"exam_id":       exam.ID,
				"correct":       progress.Correct,
				"total":         progress.Total,
				"score_percent": progress.ScorePercent,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"attemptId":    a.ID,
			"status":       a.Status,
			"scorePercent": progress.ScorePercent,
			"correct":      progress.Correct,
			"answered":     progress.Answered,
			"total":        progress.Total,
			"items":        ReviewExam(exam, answers),
		})
	}
}

func RestartAttempt(db *gorm.DB, pub Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := ownedAttempt(c, db)
		if !ok {
			return
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("attempt_id = ?", a.ID).Delete(&Answer{}).Error; err != nil {
				return err
			}
			a.Status = AttemptInProgress
			a.FinishedAt = nil
			a.ScorePercent = nil
			return tx.Save(a).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}
		publishEvent(pub, "attempt.restarted", gin.H{"attempt_id": a.ID, "exam_id": a.ExamID})

		exam, err := LoadExam(db, a.ExamID)
		if err != nil {
			dbError(c, err, "exam not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"attemptId": a.ID,
			"status":    a.Status,
			"progress":  ScoreAnswers(exam, AnswerSet{}),
		})
	}
}

// ===== Attempt history (read-only) =====

type AttemptSummaryDTO struct {
	ID           string     `json:"id"`
	ExamID       string     `json:"examId"`
	ExamName     string     `json:"examName"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	ScorePercent *int       `json:"scorePercent,omitempty"`
}

// ListMyAttempts returns the user's attempts with pagination.
// Query params: ?limit=20&offset=0  (limit default 20, max 100)
func ListMyAttempts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := currentUserID(c)
		if uid == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no user"})
			return
		}

		limit := 20
		offset := 0
		if l := c.Query("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n > 0 {
				if n > 100 {
					n = 100
				}
				limit = n
			}
		}
		if o := c.Query("offset"); o != "" {
			if n, err := strconv.Atoi(o); err == nil && n >= 0 {
				offset = n
			}
		}

		var total int64
		if err := db.Model(&Attempt{}).Where("user_id = ?", *uid).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}

		var attempts []Attempt
		if err := db.Where("user_id = ?", *uid).
			Order("started_at DESC").
			Limit(limit).Offset(offset).
			Find(&attempts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}

		examIDs := make([]string, 0, len(attempts))
		for _, a := range attempts {
			examIDs = append(examIDs, a.ExamID)
		}
		names := map[string]string{}
		if len(examIDs) > 0 {
			var exams []Exam
			if err := db.Select("id", "name").Where("id IN ?", examIDs).Find(&exams).Error; err == nil {
				for _, e := range exams {
					names[e.ID] = e.Name
				}
			}
		}

		items := make([]AttemptSummaryDTO, 0, len(attempts))
		for _, a := range attempts {
			items = append(items, AttemptSummaryDTO{
				ID:           a.ID,
				ExamID:       a.ExamID,
				ExamName:     names[a.ExamID],
				Status:       a.Status,
				StartedAt:    a.StartedAt,
				FinishedAt:   a.FinishedAt,
				ScorePercent: a.ScorePercent,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"total":  total,
			"limit":  limit,
			"offset": offset,
			"items":  items,
		})
	}
}
