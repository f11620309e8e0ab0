package model

import (
	"time"

	"github.com/google/uuid"
)

// swagger:model
type BaseModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func GenerateUUID() string {
	return uuid.New().String()
}

// Lang selects the display language of bilingual fields.
type Lang string

const (
	LangAR Lang = "ar"
	LangEN Lang = "en"
)

func pick(lang Lang, ar, en string) string {
	if lang == LangEN && en != "" {
		return en
	}
	if ar != "" {
		return ar
	}
	return en
}
