package main

import (
	"time"
)

// --- User ---

type User struct {
	ID          uint   `gorm:"primaryKey"`
	PublicID    string `gorm:"uniqueIndex;size:36;not null"` // UUID kept in the cookie
	DisplayName *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// --- Catalog ---

type Exam struct {
	ID            string `gorm:"primaryKey;size:64"`
	FileKey       string `gorm:"index;size:64"` // prova_<key>.json
	Name          string `gorm:"not null"`
	Role          string `gorm:"index"`
	Organization  string `gorm:"index"`
	Year          string `gorm:"index;size:16"`
	QuestionCount int
	ProcessedRaw  string
	ProcessedAt   *time.Time
	Position      int // order in the catalog index
	SupportTexts  []SupportText
	Questions     []Question
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type SupportText struct {
	ID       uint   `gorm:"primaryKey"`
	ExamID   string `gorm:"index;size:64;not null"`
	TextID   string `gorm:"size:64"`
	Title    string
	Content  string
	Position int `gorm:"not null"`
}

type Question struct {
	ID           uint   `gorm:"primaryKey"`
	ExamID       string `gorm:"index;size:64;not null"`
	Number       int    `gorm:"not null"`
	Area         string
	Context      *string
	HasImage     bool
	ImageID      *string
	Prompt       string
	Key          string `gorm:"size:4"` // gabarito, empty when the exam has no key for it
	Position     int    `gorm:"not null"`
	Alternatives []Alternative
}

type Alternative struct {
	ID         uint   `gorm:"primaryKey"`
	QuestionID uint   `gorm:"index;not null"`
	Letter     string `gorm:"size:4;not null"`
	Text       string
	Position   int `gorm:"not null"`
}

// --- Attempts ---

const (
	AttemptInProgress = "in_progress"
	AttemptFinished   = "finished"
)

type Attempt struct {
	ID           string    `gorm:"primaryKey;size:36"`
	ExamID       string    `gorm:"index;size:64;not null"`
	UserID       *uint     `gorm:"index"`
	Status       string    `gorm:"not null;size:16"`
	StartedAt    time.Time `gorm:"not null"`
	FinishedAt   *time.Time
	ScorePercent *int
	Answers      []Answer
}

// Answer rows are append-only; the latest row per question is the user's choice.
type Answer struct {
	ID             uint      `gorm:"primaryKey"`
	AttemptID      string    `gorm:"index;size:36;not null"`
	QuestionNumber int       `gorm:"not null"`
	Letter         string    `gorm:"size:4;not null"`
	Verdict        string    `gorm:"size:16;not null"`
	AnsweredAt     time.Time `gorm:"not null"`
}
