package pgrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
)

type studyRepository struct {
	db *sqlx.DB
}

var _ study.Repository = (*studyRepository)(nil) // interface compliance check

func NewStudyRepository(db *sqlx.DB) *studyRepository {
	return &studyRepository{db: db}
}

func (repo studyRepository) CreateStudy(ctx context.Context, s study.Study) (study.Study, error) {
	s.ID = uuid.New().String()
	s.Info.ID = uuid.New().String()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return study.Study{}, errors.Wrap(err, "inserting study")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO study (id, created_at, updated_at) VALUES ($1, $2, $3)`,
		s.ID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return study.Study{}, errors.Wrap(err, "inserting study")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO study_info (id, study_id, code, title, confidential, domains)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.Info.ID, s.ID, s.Info.Code, s.Info.Title, s.Info.Confidential, pq.StringArray(s.Info.Domains))
	if err != nil {
		return study.Study{}, errors.Wrap(err, "inserting study info")
	}

	if err = tx.Commit(); err != nil {
		return study.Study{}, errors.Wrap(err, "inserting study")
	}
	return s, nil
}

func (repo studyRepository) GetStudyByCode(ctx context.Context, code string) (study.Study, error) {
	var row struct {
		ID           string         `db:"id"`
		CreatedAt    sql.NullTime   `db:"created_at"`
		UpdatedAt    sql.NullTime   `db:"updated_at"`
		InfoID       string         `db:"info_id"`
		Code         string         `db:"code"`
		Title        string         `db:"title"`
		Confidential bool           `db:"confidential"`
		Domains      pq.StringArray `db:"domains"`
	}
	err := repo.db.GetContext(ctx, &row, `
		SELECT s.id, s.created_at, s.updated_at,
		       si.id AS info_id, si.code, si.title, si.confidential, si.domains
		FROM study s
		JOIN study_info si ON si.study_id = s.id
		WHERE si.code = $1`, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return study.Study{}, study.ErrNotFound
		}
		return study.Study{}, errors.Wrap(err, "getting study")
	}

	cdps, err := repo.queryCDPs(ctx, row.ID)
	if err != nil {
		return study.Study{}, err
	}

	return study.Study{
		ID: row.ID,
		Info: study.StudyInfo{
			ID:           row.InfoID,
			Code:         row.Code,
			Title:        row.Title,
			Confidential: row.Confidential,
			Domains:      row.Domains,
		},
		CDPs:      cdps,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}, nil
}

// queryCDPs returns the study's CDPs in assignment order.
func (repo studyRepository) queryCDPs(ctx context.Context, studyID string) ([]user.User, error) {
	var rows []dbUser
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT u.*
		FROM "user" u
		JOIN study_cdp sc ON sc.user_id = u.id
		WHERE sc.study_id = $1
		ORDER BY sc.rank`, studyID)
	if err != nil {
		return nil, errors.Wrap(err, "querying study CDPs")
	}

	cdps := make([]user.User, 0, len(rows))
	for _, u := range rows {
		cdps = append(cdps, u.unpack())
	}
	return cdps, nil
}

func (repo studyRepository) QueryViewerStudies(ctx context.Context, viewer user.User) ([]study.WithCode, error) {
	var studies []study.WithCode
	err := repo.db.SelectContext(ctx, &studies, `
		SELECT s.id, si.code
		FROM study s
		JOIN study_info si ON si.study_id = s.id
		JOIN study_cdp sc ON sc.study_id = s.id
		WHERE sc.user_id = $1
		ORDER BY si.code`, viewer.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying viewer studies")
	}
	return studies, nil
}

func (repo studyRepository) AssignCDP(ctx context.Context, studyID, userID string) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO study_cdp (study_id, user_id, rank)
		VALUES ($1, $2, (SELECT COALESCE(MAX(rank) + 1, 0) FROM study_cdp WHERE study_id = $1))
		ON CONFLICT (study_id, user_id) DO NOTHING`, studyID, userID)
	if err != nil {
		return errors.Wrap(err, "assigning CDP")
	}
	return nil
}
