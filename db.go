package main

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func OpenDB(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "provas.db"
		}
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	case "postgres":
		if dsn == "" {
			dsn = "postgres://localhost:5432/provas?sslmode=disable"
		}
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Exam{},
		&SupportText{},
		&Question{},
		&Alternative{},
		&Attempt{},
		&Answer{},
	)
}

func CountExams(db *gorm.DB) (int64, error) {
	var count int64
	if err := db.Model(&Exam{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// LoadExam fetches one exam with texts, questions and alternatives in position order.
func LoadExam(db *gorm.DB, id string) (*Exam, error) {
	var e Exam
	err := db.
		Preload("SupportTexts", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Preload("Questions", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Preload("Questions.Alternatives", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		First(&e, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ResolveExamID accepts a full id, a file key, or a unique id prefix of 8+ chars.
func ResolveExamID(db *gorm.DB, ref string) (string, error) {
	var e Exam
	if err := db.Select("id").First(&e, "id = ? OR file_key = ?", ref, ref).Error; err == nil {
		return e.ID, nil
	}
	if len(ref) < 8 {
		return "", gorm.ErrRecordNotFound
	}
	var ids []string
	if err := db.Model(&Exam{}).Where("id LIKE ?", ref+"%").Pluck("id", &ids).Error; err != nil {
		return "", err
	}
	// LIKE treats "_" as a wildcard, so confirm the prefix here.
	match := ""
	for _, id := range ids {
		if !strings.HasPrefix(id, ref) {
			continue
		}
		if match != "" {
			return "", gorm.ErrRecordNotFound
		}
		match = id
	}
	if match == "" {
		return "", gorm.ErrRecordNotFound
	}
	return match, nil
}
