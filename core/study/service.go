package study

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/telecom-etude/erp/core"
	"github.com/telecom-etude/erp/core/user"
)

var ErrNotFound = errors.New("study not found")

type (
	Repository interface {
		CreateStudy(ctx context.Context, s Study) (Study, error)
		// GetStudyByCode returns the study with its info and CDPs joined in.
		GetStudyByCode(ctx context.Context, code string) (Study, error)
		// QueryViewerStudies returns the studies the viewer is assigned to,
		// filtered by the access predicate.
		QueryViewerStudies(ctx context.Context, viewer user.User) ([]WithCode, error)
		AssignCDP(ctx context.Context, studyID, userID string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ns NewStudy) (Study, error) {
	now := time.Now().UTC()
	s := Study{
		Info: StudyInfo{
			Code:         core.CleanString(ns.Code),
			Title:        core.CleanString(ns.Title),
			Confidential: ns.Confidential,
			Domains:      ns.Domains,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateStudy(ctx, s)
}

// GetByCode fetches a study on behalf of a viewer. Inaccessible studies
// are indistinguishable from missing ones.
func (svc *Service) GetByCode(ctx context.Context, viewer user.User, code string) (Study, error) {
	s, err := svc.repo.GetStudyByCode(ctx, code)
	if err != nil {
		return Study{}, err
	}
	if !IsAccessible(viewer, s) {
		return Study{}, ErrNotFound
	}
	return s, nil
}

// QueryViewerStudies lists the viewer's assigned studies (sidebar data).
func (svc *Service) QueryViewerStudies(ctx context.Context, viewer user.User) ([]WithCode, error) {
	return svc.repo.QueryViewerStudies(ctx, viewer)
}

func (svc *Service) AssignCDP(ctx context.Context, studyID, userID string) error {
	return svc.repo.AssignCDP(ctx, studyID, userID)
}
