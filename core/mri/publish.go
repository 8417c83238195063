package mri

import (
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// Publishability errors. Each carries the detail identifying what blocks
// the campaign send.
var (
	ErrUnvalidatedMRI = errors.New("ce MRI n'a pas encore été validé")
	ErrNoCDPAssigned  = errors.New("aucun chef de projet n'est assigné à cette étude")
)

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("le champ '%s' est manquant sur ce MRI", e.Field)
}

type MissingCDPEmailError struct {
	Name string
}

func (e *MissingCDPEmailError) Error() string {
	return fmt.Sprintf("%s ne s'est jamais connecté à l'outil donc des informations sont manquantes", e.Name)
}

// CDPContact is a study CDP with a guaranteed contact email.
type CDPContact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (c CDPContact) FullName() string { return c.FirstName + " " + c.LastName }

// PublishableMRI is the immutable view of a validated, fully filled-in
// record: every optional field is present and every free-text field has
// been HTML-sanitised for templating into the campaign email.
type PublishableMRI struct {
	Title              string        `json:"title"`
	IntroductionText   template.HTML `json:"introduction_text"`
	DescriptionText    template.HTML `json:"description_text"`
	TimelineText       template.HTML `json:"timeline_text"`
	RequiredSkillsText template.HTML `json:"required_skills_text"`
	WageLowerBound     int64        `json:"wage_lower_bound"`
	WageUpperBound     int64        `json:"wage_upper_bound"`
	WageLevel          string       `json:"wage_level"`
	Difficulty         string       `json:"difficulty"`
	MainDomain         string       `json:"main_domain"`
	GFormURL           string       `json:"gform_url"`
	CDPs               []CDPContact `json:"cdps"`
}

// sanitizePolicy neutralizes injected markup in the rich-text fields
// CDPs type into the editor.
var sanitizePolicy = bluemonday.UGCPolicy()

// Publishable checks that a record has everything required to be emailed
// out and produces the publishable view. Checks run in a fixed order so
// errors are deterministic: status first, then CDP assignment and their
// emails in assignment order, then content fields in declared order; each
// check fails fast.
func Publishable(m MRI) (PublishableMRI, error) {
	if m.Status != StatusValidated {
		return PublishableMRI{}, ErrUnvalidatedMRI
	}

	// the campaign replies to a CDP, so at least one must be assigned
	if len(m.Study.CDPs) == 0 {
		return PublishableMRI{}, ErrNoCDPAssigned
	}

	cdps := make([]CDPContact, 0, len(m.Study.CDPs))
	for _, cdp := range m.Study.CDPs {
		if !cdp.Email.Valid {
			return PublishableMRI{}, &MissingCDPEmailError{Name: cdp.FullName()}
		}
		cdps = append(cdps, CDPContact{
			FirstName: cdp.FirstName,
			LastName:  cdp.LastName,
			Email:     cdp.Email.String,
		})
	}

	pub := PublishableMRI{CDPs: cdps}
	if !m.Title.Valid {
		return PublishableMRI{}, &MissingFieldError{Field: "Titre"}
	}
	pub.Title = sanitizePolicy.Sanitize(m.Title.String)

	for _, fld := range []struct {
		label string
		value null.String
		dest  *template.HTML
	}{
		{"Introduction", m.IntroductionText, &pub.IntroductionText},
		{"Description", m.DescriptionText, &pub.DescriptionText},
		{"Échéances", m.TimelineText, &pub.TimelineText},
		{"Compétences", m.RequiredSkillsText, &pub.RequiredSkillsText},
	} {
		if !fld.value.Valid {
			return PublishableMRI{}, &MissingFieldError{Field: fld.label}
		}
		*fld.dest = template.HTML(sanitizePolicy.Sanitize(fld.value.String))
	}

	if !m.WageLowerBound.Valid {
		return PublishableMRI{}, &MissingFieldError{Field: "Rétribution minimale"}
	}
	pub.WageLowerBound = int64(m.WageLowerBound.Int)
	if !m.WageUpperBound.Valid {
		return PublishableMRI{}, &MissingFieldError{Field: "Rétribution maximale"}
	}
	pub.WageUpperBound = int64(m.WageUpperBound.Int)

	for _, fld := range []struct {
		label string
		value null.String
		dest  *string
	}{
		{"Niveau de rétribution", m.WageLevel, &pub.WageLevel},
		{"Difficultée", m.Difficulty, &pub.Difficulty},
		{"Domain", m.MainDomain, &pub.MainDomain},
		{"Questionnaire Google", m.GFormURL, &pub.GFormURL},
	} {
		if !fld.value.Valid {
			return PublishableMRI{}, &MissingFieldError{Field: fld.label}
		}
		*fld.dest = fld.value.String
	}

	return pub, nil
}
