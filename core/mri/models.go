package mri

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
)

// Status is the lifecycle state of an MRI. A record only moves forward
// along InProgress -> Validated -> Sent, or sideways to Finished or
// Expired; it never regresses implicitly.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusFinished   Status = "Finished"
	StatusValidated  Status = "Validated"
	StatusSent       Status = "Sent"
	StatusExpired    Status = "Expired"
)

// Level qualifies the difficulty or the compensation of a mission.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Domain is the primary technical domain of a mission.
type Domain string

const (
	DomainWeb        Domain = "Web"
	DomainData       Domain = "Data"
	DomainEmbedded   Domain = "Embedded"
	DomainNetworks   Domain = "Networks"
	DomainSecurity   Domain = "Security"
	DomainConsulting Domain = "Consulting"
)

// Field names one of the free-text content fields a CDP may edit while
// the record is InProgress.
type Field string

const (
	FieldTitle          Field = "title"
	FieldIntroduction   Field = "introduction"
	FieldDescription    Field = "description"
	FieldRequiredSkills Field = "required_skills"
	FieldTimeline       Field = "timeline"
)

var EditableFields = []Field{FieldTitle, FieldIntroduction, FieldDescription, FieldRequiredSkills, FieldTimeline}

func ValidField(f string) bool {
	for _, ef := range EditableFields {
		if Field(f) == ef {
			return true
		}
	}
	return false
}

// Action is an audit entry: actor + timestamp. It backs both the
// last-edited pointer and the elements of the validation list.
type Action struct {
	ID   string    `json:"id"`
	User user.User `json:"user"`
	Date time.Time `json:"date"` // UTC
}

// MRI is one mission's recruiting document. Content fields stay null
// until a CDP fills them in; publishing requires all of them.
type MRI struct {
	ID      string      `json:"id"`
	StudyID string      `json:"-"`
	Study   study.Study `json:"study"` // populated on joined fetches

	Status             Status      `json:"status"`
	Title              null.String `json:"title"`
	IntroductionText   null.String `json:"introduction_text"`
	DescriptionText    null.String `json:"description_text"`
	RequiredSkillsText null.String `json:"required_skills_text"`
	TimelineText       null.String `json:"timeline_text"`
	WageLowerBound     null.Int    `json:"wage_lower_bound"`
	WageUpperBound     null.Int    `json:"wage_upper_bound"`
	WageLevel          null.String `json:"wage_level"`
	Difficulty         null.String `json:"difficulty"`
	MainDomain         null.String `json:"main_domain"`
	GFormURL           null.String `json:"gform_url"`

	LastEditedAction  Action   `json:"last_edited_action"`
	ValidationActions []Action `json:"validation_actions"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Editable reports whether content fields may still change.
func (m *MRI) Editable() bool { return m.Status == StatusInProgress }

// ValidatedBy reports whether the given actor already recorded a
// validation action on this record.
func (m *MRI) ValidatedBy(userID string) bool {
	for _, act := range m.ValidationActions {
		if act.User.ID == userID {
			return true
		}
	}
	return false
}

// PublicMRI is the listing shape exposed to every accessible viewer.
type PublicMRI struct {
	ID               string      `json:"id"`
	StudyTitle       string      `json:"study_title"`
	Title            null.String `json:"title"`
	Difficulty       null.String `json:"difficulty"`
	MainDomain       null.String `json:"main_domain"`
	Status           Status      `json:"status"`
	IntroductionText null.String `json:"introduction_text"`
}

// StudyMRIListItem is the per-study listing shape; the validation count
// is aggregated by the store.
type StudyMRIListItem struct {
	ID              string      `json:"id"`
	Title           null.String `json:"title"`
	Status          Status      `json:"status"`
	ValidationCount int         `json:"validation_count"`
}
