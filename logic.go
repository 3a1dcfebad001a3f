package main

import (
	"errors"
	"math"
	"sort"
	"strings"
)

const (
	VerdictCorrect    = "correct"
	VerdictIncorrect  = "incorrect"
	VerdictUngraded   = "ungraded" // question has no key
	VerdictUnanswered = "unanswered"
)

var (
	ErrAttemptFinished = errors.New("attempt already finished")
	ErrUnknownQuestion = errors.New("question not in exam")
	ErrUnknownLetter   = errors.New("letter is not an alternative of the question")
)

// AnswerSet maps question number to the chosen letter.
type AnswerSet map[int]string

type Progress struct {
	Total           int     `json:"total"`
	Answered        int     `json:"answered"`
	Correct         int     `json:"correct"`
	ScorePercent    int     `json:"scorePercent"`
	ProgressPercent float64 `json:"progressPercent"`
}

type ReviewItem struct {
	Number   int    `json:"numero"`
	Area     string `json:"area"`
	Selected string `json:"selected,omitempty"`
	Correct  string `json:"correct,omitempty"`
	Verdict  string `json:"verdict"`
}

// normalizeLetter trims and upper-cases letters like " b" to "B".
func normalizeLetter(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func GradeAnswer(key, chosen string) string {
	key = normalizeLetter(key)
	if key == "" {
		return VerdictUngraded
	}
	if normalizeLetter(chosen) == key {
		return VerdictCorrect
	}
	return VerdictIncorrect
}

// LatestAnswers collapses the answer log; the highest row id per question wins.
func LatestAnswers(rows []Answer) AnswerSet {
	sorted := append([]Answer(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	out := AnswerSet{}
	for _, a := range sorted {
		out[a.QuestionNumber] = a.Letter
	}
	return out
}

func findQuestion(e *Exam, number int) *Question {
	for i := range e.Questions {
		if e.Questions[i].Number == number {
			return &e.Questions[i]
		}
	}
	return nil
}

// examTotal is the declared question count, or the loaded count when none was declared.
func examTotal(e *Exam) int {
	if e.QuestionCount > 0 {
		return e.QuestionCount
	}
	return len(e.Questions)
}

func ScoreAnswers(e *Exam, answers AnswerSet) Progress {
	p := Progress{Total: examTotal(e)}
	for number, letter := range answers {
		q := findQuestion(e, number)
		if q == nil {
			continue
		}
		p.Answered++
		if GradeAnswer(q.Key, letter) == VerdictCorrect {
			p.Correct++
		}
	}
	if p.Total > 0 {
		p.ScorePercent = int(math.Round(float64(p.Correct) * 100 / float64(p.Total)))
		p.ProgressPercent = float64(p.Answered) * 100 / float64(p.Total)
	}
	return p
}

// ValidateSelection checks that a letter may be recorded for question number.
func ValidateSelection(a *Attempt, e *Exam, number int, letter string) (*Question, error) {
	if a.Status == AttemptFinished {
		return nil, ErrAttemptFinished
	}
	q := findQuestion(e, number)
	if q == nil {
		return nil, ErrUnknownQuestion
	}
	letter = normalizeLetter(letter)
	for _, alt := range q.Alternatives {
		if alt.Letter == letter {
			return q, nil
		}
	}
	return nil, ErrUnknownLetter
}

// ReviewExam lists every question in exam order with the user's choice and the key.
func ReviewExam(e *Exam, answers AnswerSet) []ReviewItem {
	out := make([]ReviewItem, 0, len(e.Questions))
	for _, q := range e.Questions {
		item := ReviewItem{Number: q.Number, Area: q.Area, Correct: q.Key}
		if letter, ok := answers[q.Number]; ok {
			item.Selected = letter
			item.Verdict = GradeAnswer(q.Key, letter)
		} else {
			item.Verdict = VerdictUnanswered
		}
		out = append(out, item)
	}
	return out
}
