package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
)

type studyRepository struct {
	db    *studyTable
	users *userTable
}

var _ study.Repository = (*studyRepository)(nil) // interface compliance check

func NewStudyRepository(db *DB) *studyRepository {
	return &studyRepository{db: db.study, users: db.user}
}

func (repo *studyRepository) CreateStudy(_ context.Context, s study.Study) (study.Study, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s.ID = uuid.New().String()
	s.Info.ID = uuid.New().String()
	repo.db.table[s.ID] = &s
	return s, nil
}

func (repo *studyRepository) GetStudyByCode(_ context.Context, code string) (study.Study, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.table {
		if s.Info.Code == code {
			return *s, nil
		}
	}
	return study.Study{}, study.ErrNotFound
}

func (repo *studyRepository) QueryViewerStudies(_ context.Context, viewer user.User) ([]study.WithCode, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	studies := make([]study.WithCode, 0)
	for _, s := range repo.db.table {
		if study.IsAssignedCDP(viewer, *s) {
			studies = append(studies, study.WithCode{ID: s.ID, Code: s.Info.Code})
		}
	}
	sort.Slice(studies, func(i, j int) bool { return studies[i].Code < studies[j].Code })
	return studies, nil
}

func (repo *studyRepository) AssignCDP(_ context.Context, studyID, userID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, ok := repo.db.table[studyID]
	if !ok {
		return study.ErrNotFound
	}
	for _, cdp := range s.CDPs {
		if cdp.ID == userID {
			return nil
		}
	}

	repo.users.RLock()
	usr, ok := repo.users.table[userID]
	repo.users.RUnlock()
	if !ok {
		return user.ErrNotFound
	}

	s.CDPs = append(s.CDPs, *usr)
	return nil
}
