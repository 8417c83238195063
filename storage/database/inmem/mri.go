package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/telecom-etude/erp/core/mri"
	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
)

type mriRepository struct {
	db      *mriTable
	studies *studyTable
}

var _ mri.Repository = (*mriRepository)(nil) // interface compliance check

func NewMRIRepository(db *DB) *mriRepository {
	return &mriRepository{db: db.mri, studies: db.study}
}

func (repo *mriRepository) getStudy(studyID string) (study.Study, bool) {
	repo.studies.RLock()
	defer repo.studies.RUnlock()
	s, ok := repo.studies.table[studyID]
	if !ok {
		return study.Study{}, false
	}
	return *s, true
}

// accessible applies the study access predicate to a record.
func (repo *mriRepository) accessible(viewer user.User, m *mri.MRI) bool {
	s, ok := repo.getStudy(m.StudyID)
	if !ok {
		return false
	}
	return study.IsAccessible(viewer, s)
}

func (repo *mriRepository) CreateMRI(_ context.Context, m mri.MRI) (mri.MRI, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	m.ID = uuid.New().String()
	repo.db.table[m.ID] = &m
	return m, nil
}

func (repo *mriRepository) GetAccessibleMRI(_ context.Context, viewer user.User, id string) (mri.MRI, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	m, ok := repo.db.table[id]
	if !ok || !repo.accessible(viewer, m) {
		return mri.MRI{}, mri.ErrNotFound
	}
	res := *m
	res.Study, _ = repo.getStudy(m.StudyID)
	return res, nil
}

func (repo *mriRepository) QueryPublicMRIs(_ context.Context, viewer user.User) ([]mri.PublicMRI, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	items := make([]*mri.MRI, 0)
	for _, m := range repo.db.table {
		if repo.accessible(viewer, m) {
			items = append(items, m)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	res := make([]mri.PublicMRI, 0, len(items))
	for _, m := range items {
		s, _ := repo.getStudy(m.StudyID)
		res = append(res, mri.PublicMRI{
			ID:               m.ID,
			StudyTitle:       s.Info.Title,
			Title:            m.Title,
			Difficulty:       m.Difficulty,
			MainDomain:       m.MainDomain,
			Status:           m.Status,
			IntroductionText: m.IntroductionText,
		})
	}
	return res, nil
}

func (repo *mriRepository) QueryStudyMRIs(_ context.Context, viewer user.User, studyCode string) ([]mri.StudyMRIListItem, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	items := make([]mri.StudyMRIListItem, 0)
	for _, m := range repo.db.table {
		s, ok := repo.getStudy(m.StudyID)
		if !ok || s.Info.Code != studyCode || !study.IsAccessible(viewer, s) {
			continue
		}
		items = append(items, mri.StudyMRIListItem{
			ID:              m.ID,
			Title:           m.Title,
			Status:          m.Status,
			ValidationCount: len(m.ValidationActions),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (repo *mriRepository) QueryMRIsToValidate(_ context.Context, viewer user.User) ([]mri.StudyMRIListItem, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	items := make([]mri.StudyMRIListItem, 0)
	for _, m := range repo.db.table {
		if m.Status != mri.StatusInProgress && m.Status != mri.StatusFinished {
			continue
		}
		if !repo.accessible(viewer, m) {
			continue
		}
		items = append(items, mri.StudyMRIListItem{
			ID:              m.ID,
			Title:           m.Title,
			Status:          m.Status,
			ValidationCount: len(m.ValidationActions),
		})
	}
	// records awaiting validation first, most validated first
	sort.Slice(items, func(i, j int) bool {
		if items[i].Status != items[j].Status {
			return items[i].Status > items[j].Status
		}
		return items[i].ValidationCount > items[j].ValidationCount
	})
	return items, nil
}

func (repo *mriRepository) SetMRIField(_ context.Context, viewer user.User, id string, field mri.Field, value string, stamp mri.Action) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	m, ok := repo.db.table[id]
	if !ok || !m.Editable() || !repo.accessible(viewer, m) {
		return false, nil
	}

	val := null.StringFrom(value)
	switch field {
	case mri.FieldTitle:
		m.Title = val
	case mri.FieldIntroduction:
		m.IntroductionText = val
	case mri.FieldDescription:
		m.DescriptionText = val
	case mri.FieldRequiredSkills:
		m.RequiredSkillsText = val
	case mri.FieldTimeline:
		m.TimelineText = val
	default:
		return false, errors.Errorf("unknown mri field %q", field)
	}
	m.LastEditedAction = stamp
	m.UpdatedAt = stamp.Date
	return true, nil
}

func (repo *mriRepository) AppendValidationAction(_ context.Context, id string, act mri.Action, status mri.Status) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	m, ok := repo.db.table[id]
	if !ok {
		return mri.ErrNotFound
	}
	if !m.ValidatedBy(act.User.ID) {
		act.ID = uuid.New().String()
		m.ValidationActions = append(m.ValidationActions, act)
	}
	// never regress a record that went out or expired between the
	// caller's read and this write
	if m.Status != mri.StatusSent && m.Status != mri.StatusExpired {
		m.Status = status
	}
	m.UpdatedAt = act.Date
	return nil
}

func (repo *mriRepository) SetMRIStatus(_ context.Context, viewer user.User, id string, from, to mri.Status) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	m, ok := repo.db.table[id]
	if !ok || m.Status != from || !repo.accessible(viewer, m) {
		return false, nil
	}
	m.Status = to
	return true, nil
}
