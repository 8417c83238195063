package mri

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/telecom-etude/erp/core"
	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
)

var (
	// ErrNotFound is the raw store-level miss; the service never exposes
	// it to callers directly.
	ErrNotFound = errors.New("MRI not found")

	// ErrNoMRIOrLocked deliberately conflates missing, locked and
	// inaccessible records so unauthorized viewers cannot probe for
	// existence. Do not split it.
	ErrNoMRIOrLocked = errors.New("aucun MRI trouvé, ou MRI non modifiable")

	// ErrNotValidated blocks Send before the record has been validated.
	ErrNotValidated = errors.New("ce MRI n'a pas encore été validé")

	// ErrUnknown covers unexpected store or dispatcher failures.
	ErrUnknown = errors.New("erreur inconnue")
)

type (
	Repository interface {
		CreateMRI(ctx context.Context, m MRI) (MRI, error)
		// GetAccessibleMRI returns the record with its study, CDPs and
		// actions joined in, filtered by the access predicate. Missing and
		// inaccessible records both yield ErrNotFound.
		GetAccessibleMRI(ctx context.Context, viewer user.User, id string) (MRI, error)
		QueryPublicMRIs(ctx context.Context, viewer user.User) ([]PublicMRI, error)
		QueryStudyMRIs(ctx context.Context, viewer user.User, studyCode string) ([]StudyMRIListItem, error)
		// QueryMRIsToValidate lists InProgress and Finished records,
		// ordered by status then validation count, both descending.
		QueryMRIsToValidate(ctx context.Context, viewer user.User) ([]StudyMRIListItem, error)
		// SetMRIField updates one content field and the last-edited stamp
		// in a single conditional statement (status must be InProgress and
		// the record accessible); reports whether a row matched.
		SetMRIField(ctx context.Context, viewer user.User, id string, field Field, value string, stamp Action) (bool, error)
		// AppendValidationAction atomically appends a validation action
		// and sets the record status.
		AppendValidationAction(ctx context.Context, id string, act Action, status Status) error
		// SetMRIStatus moves an accessible record from one status to
		// another; reports whether a row matched.
		SetMRIStatus(ctx context.Context, viewer user.User, id string, from, to Status) (bool, error)
	}

	Service struct {
		repo        Repository
		studyRepo   study.Repository
		campaignSvc core.CampaignService
		mailSvc     core.EmailService
		logger      core.Logger
		conf        *core.Config

		Now func() time.Time // mockable
	}
)

func NewService(
	repo Repository,
	studyRepo study.Repository,
	campaignSvc core.CampaignService,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:        repo,
		studyRepo:   studyRepo,
		campaignSvc: campaignSvc,
		mailSvc:     mailSvc,
		logger:      logger,
		conf:        conf,
		Now:         time.Now,
	}
}

// unknown wraps an unexpected failure so errors.Cause still reports
// ErrUnknown to the presentation layer.
func unknown(err error) error {
	return errors.WithMessage(ErrUnknown, err.Error())
}

// CreateEmpty creates a blank InProgress record for the given study,
// stamped as last edited by the viewer.
func (svc *Service) CreateEmpty(ctx context.Context, viewer user.User, studyCode string) (StudyMRIListItem, error) {
	st, err := svc.studyRepo.GetStudyByCode(ctx, studyCode)
	if err != nil {
		if errors.Cause(err) == study.ErrNotFound {
			return StudyMRIListItem{}, ErrNoMRIOrLocked
		}
		return StudyMRIListItem{}, unknown(err)
	}
	if !study.IsAccessible(viewer, st) {
		return StudyMRIListItem{}, ErrNoMRIOrLocked
	}

	now := svc.Now().UTC()
	m := MRI{
		StudyID:          st.ID,
		Status:           StatusInProgress,
		LastEditedAction: Action{User: viewer, Date: now},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m, err = svc.repo.CreateMRI(ctx, m)
	if err != nil {
		return StudyMRIListItem{}, unknown(err)
	}
	return StudyMRIListItem{ID: m.ID, Title: m.Title, Status: m.Status}, nil
}

// Get fetches one record on behalf of a viewer.
func (svc *Service) Get(ctx context.Context, viewer user.User, id string) (MRI, error) {
	m, err := svc.repo.GetAccessibleMRI(ctx, viewer, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return MRI{}, ErrNoMRIOrLocked
		}
		return MRI{}, unknown(err)
	}
	return m, nil
}

func (svc *Service) QueryPublic(ctx context.Context, viewer user.User) ([]PublicMRI, error) {
	return svc.repo.QueryPublicMRIs(ctx, viewer)
}

func (svc *Service) QueryStudyMRIs(ctx context.Context, viewer user.User, studyCode string) ([]StudyMRIListItem, error) {
	return svc.repo.QueryStudyMRIs(ctx, viewer, studyCode)
}

func (svc *Service) QueryToValidate(ctx context.Context, viewer user.User) ([]StudyMRIListItem, error) {
	return svc.repo.QueryMRIsToValidate(ctx, viewer)
}

// Field setters. Edits are all-or-nothing: the target field and the
// last-edited stamp change together, or not at all.

func (svc *Service) SetTitle(ctx context.Context, viewer user.User, id, v string) error {
	return svc.setField(ctx, viewer, id, FieldTitle, v)
}

func (svc *Service) SetIntroduction(ctx context.Context, viewer user.User, id, v string) error {
	return svc.setField(ctx, viewer, id, FieldIntroduction, v)
}

func (svc *Service) SetDescription(ctx context.Context, viewer user.User, id, v string) error {
	return svc.setField(ctx, viewer, id, FieldDescription, v)
}

func (svc *Service) SetRequiredSkills(ctx context.Context, viewer user.User, id, v string) error {
	return svc.setField(ctx, viewer, id, FieldRequiredSkills, v)
}

func (svc *Service) SetTimeline(ctx context.Context, viewer user.User, id, v string) error {
	return svc.setField(ctx, viewer, id, FieldTimeline, v)
}

// SetField updates the named content field; the field name must be one
// of EditableFields.
func (svc *Service) SetField(ctx context.Context, viewer user.User, id string, field Field, v string) error {
	if !ValidField(string(field)) {
		return ErrNoMRIOrLocked
	}
	return svc.setField(ctx, viewer, id, field, v)
}

func (svc *Service) setField(ctx context.Context, viewer user.User, id string, field Field, value string) error {
	stamp := Action{User: viewer, Date: svc.Now().UTC()}
	ok, err := svc.repo.SetMRIField(ctx, viewer, id, field, value, stamp)
	if err != nil {
		return unknown(err)
	}
	if !ok {
		return ErrNoMRIOrLocked
	}
	return nil
}

// Validate records the viewer's validation. Idempotent per actor: a
// repeated call succeeds without appending a duplicate action. The first
// validation promotes the record to Validated.
func (svc *Service) Validate(ctx context.Context, viewer user.User, id string) error {
	m, err := svc.repo.GetAccessibleMRI(ctx, viewer, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNoMRIOrLocked
		}
		return unknown(err)
	}

	if m.ValidatedBy(viewer.ID) {
		return nil
	}

	newStatus := m.Status
	if m.Status == StatusInProgress || m.Status == StatusFinished {
		newStatus = StatusValidated
	}

	act := Action{User: viewer, Date: svc.Now().UTC()}
	if err = svc.repo.AppendValidationAction(ctx, id, act, newStatus); err != nil {
		return unknown(err)
	}
	return nil
}

// Finish marks an InProgress record as Finished (validation requested).
func (svc *Service) Finish(ctx context.Context, viewer user.User, id string) error {
	ok, err := svc.repo.SetMRIStatus(ctx, viewer, id, StatusInProgress, StatusFinished)
	if err != nil {
		return unknown(err)
	}
	if !ok {
		return ErrNoMRIOrLocked
	}
	return nil
}

// Send dispatches a validated record as an email campaign. The record is
// only moved to Sent after the dispatcher reports success; any earlier
// failure leaves it unchanged. Send is not idempotent: the dispatcher
// creates a new external campaign on every call, so callers must not
// retry blindly on ambiguous failure.
func (svc *Service) Send(ctx context.Context, viewer user.User, id string) error {
	m, err := svc.repo.GetAccessibleMRI(ctx, viewer, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNoMRIOrLocked
		}
		return unknown(err)
	}

	if m.Status != StatusValidated {
		return ErrNotValidated
	}

	pub, err := Publishable(m)
	if err != nil {
		return err
	}

	text, html, err := core.RenderTemplate(svc.conf, "mri_campaign", pub)
	if err != nil {
		return unknown(err)
	}

	err = svc.campaignSvc.Send(ctx, core.Campaign{
		RecipientListID: svc.conf.Mailchimp.MRIListID,
		FromName:        svc.conf.AppName,
		ReplyTo:         pub.CDPs[0].Email,
		Subject:         fmt.Sprintf("[%s] %s", svc.conf.AppName, pub.Title),
		HTML:            html,
		PlainText:       text,
	})
	if err != nil {
		return err
	}

	ok, err := svc.repo.SetMRIStatus(ctx, viewer, id, StatusValidated, StatusSent)
	if err != nil {
		return unknown(err)
	}
	if !ok {
		// the campaign is out; the status update lost a race
		svc.logger.Error(fmt.Sprintf("MRI %s: campaign sent but status update matched no row", id))
		return ErrUnknown
	}

	svc.notifyCDPs(pub)
	return nil
}

// notifyCDPs tells the study's CDPs their MRI went out.
func (svc *Service) notifyCDPs(pub PublishableMRI) {
	to := make([]mail.Address, 0, len(pub.CDPs))
	for _, cdp := range pub.CDPs {
		to = append(to, mail.Address{Name: cdp.FullName(), Address: cdp.Email})
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("MRI envoyé : %s", pub.Title),
		TemplateName: "mri_sent",
		TemplateData: pub,
	})
}
