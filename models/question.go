package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Question always carries exactly four choices: one correct and three wrong.
type Question struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	QuizID        uuid.UUID `json:"quiz_id" gorm:"type:uuid;not null;index"`
	Question      string    `json:"question" gorm:"type:text;not null"`
	CorrectAnswer string    `json:"correct_answer" gorm:"not null"`
	WrongAnswer1  string    `json:"wrong_answer_1" gorm:"column:wrong_answer_1;not null"`
	WrongAnswer2  string    `json:"wrong_answer_2" gorm:"column:wrong_answer_2;not null"`
	WrongAnswer3  string    `json:"wrong_answer_3" gorm:"column:wrong_answer_3;not null"`
	Position      int       `json:"position" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// Choices returns the four answers with the correct one first.
func (q Question) Choices() [4]string {
	return [4]string{q.CorrectAnswer, q.WrongAnswer1, q.WrongAnswer2, q.WrongAnswer3}
}
