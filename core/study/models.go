package study

import (
	"time"

	"github.com/telecom-etude/erp/core/user"
)

type (
	// StudyInfo is the one-to-one administrative sheet of a Study.
	StudyInfo struct {
		ID           string   `json:"id"`
		Code         string   `json:"code"`
		Title        string   `json:"title"`
		Confidential bool     `json:"confidential"`
		Domains      []string `json:"domains"`
	}

	// Study is a project/mission grouping MRIs and assigned CDPs.
	Study struct {
		ID        string      `json:"id"`
		Info      StudyInfo   `json:"information"`
		CDPs      []user.User `json:"cdps"`
		CreatedAt time.Time   `json:"created_at"` // UTC
		UpdatedAt time.Time   `json:"updated_at"` // UTC
	}

	// WithCode is the listing shape used by the sidebar study selection.
	WithCode struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
)

// NewStudy contains information needed to register a new Study.
type NewStudy struct {
	Code         string   `json:"code" validate:"required,studycode"`
	Title        string   `json:"title" validate:"required"`
	Confidential bool     `json:"confidential"`
	Domains      []string `json:"domains"`
}
