package pgrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/telecom-etude/erp/core/mri"
	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
)

// accessibleCond is the row-level access predicate: the study is not
// confidential, or the viewer sits on the executive board, or the viewer
// is one of the study's assigned CDPs. It expects the mri table aliased
// as m and study_info as si, with $1 = executive flag, $2 = viewer ID.
const accessibleCond = `(NOT si.confidential OR $1 OR EXISTS (
	SELECT 1 FROM study_cdp sc WHERE sc.study_id = m.study_id AND sc.user_id = $2))`

// fieldColumns whitelists the editable content fields; anything else
// never reaches the SQL layer.
var fieldColumns = map[mri.Field]string{
	mri.FieldTitle:          "title",
	mri.FieldIntroduction:   "introduction_text",
	mri.FieldDescription:    "description_text",
	mri.FieldRequiredSkills: "required_skills_text",
	mri.FieldTimeline:       "timeline_text",
}

type dbMRI struct {
	ID                 string       `db:"id"`
	StudyID            string       `db:"study_id"`
	Status             string       `db:"status"`
	Title              null.String  `db:"title"`
	IntroductionText   null.String  `db:"introduction_text"`
	DescriptionText    null.String  `db:"description_text"`
	RequiredSkillsText null.String  `db:"required_skills_text"`
	TimelineText       null.String  `db:"timeline_text"`
	WageLowerBound     null.Int     `db:"wage_lower_bound"`
	WageUpperBound     null.Int     `db:"wage_upper_bound"`
	WageLevel          null.String  `db:"wage_level"`
	Difficulty         null.String  `db:"difficulty"`
	MainDomain         null.String  `db:"main_domain"`
	GFormURL           null.String  `db:"gform_url"`
	LastEditedBy       null.String  `db:"last_edited_by"`
	LastEditedAt       sql.NullTime `db:"last_edited_at"`
	CreatedAt          sql.NullTime `db:"created_at"`
	UpdatedAt          sql.NullTime `db:"updated_at"`
}

type mriRepository struct {
	db        *sqlx.DB
	studyRepo *studyRepository
}

var _ mri.Repository = (*mriRepository)(nil) // interface compliance check

func NewMRIRepository(db *sqlx.DB) *mriRepository {
	return &mriRepository{db: db, studyRepo: NewStudyRepository(db)}
}

func (repo mriRepository) CreateMRI(ctx context.Context, m mri.MRI) (mri.MRI, error) {
	m.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO mri (id, study_id, status, last_edited_by, last_edited_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.StudyID, m.Status, m.LastEditedAction.User.ID, m.LastEditedAction.Date, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return mri.MRI{}, errors.Wrap(err, "inserting mri")
	}
	return m, nil
}

func (repo mriRepository) GetAccessibleMRI(ctx context.Context, viewer user.User, id string) (mri.MRI, error) {
	var row dbMRI
	err := repo.db.GetContext(ctx, &row, `
		SELECT m.*
		FROM mri m
		JOIN study_info si ON si.study_id = m.study_id
		WHERE m.id = $3 AND `+accessibleCond,
		viewer.IsExecutiveBoard(), viewer.ID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return mri.MRI{}, mri.ErrNotFound
		}
		return mri.MRI{}, errors.Wrap(err, "getting mri")
	}

	m := mri.MRI{
		ID:                 row.ID,
		StudyID:            row.StudyID,
		Status:             mri.Status(row.Status),
		Title:              row.Title,
		IntroductionText:   row.IntroductionText,
		DescriptionText:    row.DescriptionText,
		RequiredSkillsText: row.RequiredSkillsText,
		TimelineText:       row.TimelineText,
		WageLowerBound:     row.WageLowerBound,
		WageUpperBound:     row.WageUpperBound,
		WageLevel:          row.WageLevel,
		Difficulty:         row.Difficulty,
		MainDomain:         row.MainDomain,
		GFormURL:           row.GFormURL,
		CreatedAt:          row.CreatedAt.Time,
		UpdatedAt:          row.UpdatedAt.Time,
	}

	if m.Study, err = repo.getStudyByID(ctx, row.StudyID); err != nil {
		return mri.MRI{}, err
	}
	if row.LastEditedBy.Valid {
		var editor dbUser
		err = repo.db.GetContext(ctx, &editor, `SELECT * FROM "user" WHERE id = $1`, row.LastEditedBy.String)
		if err != nil && err != sql.ErrNoRows {
			return mri.MRI{}, errors.Wrap(err, "getting mri editor")
		}
		m.LastEditedAction = mri.Action{User: editor.unpack(), Date: row.LastEditedAt.Time}
	}
	if m.ValidationActions, err = repo.queryValidationActions(ctx, row.ID); err != nil {
		return mri.MRI{}, err
	}
	return m, nil
}

func (repo mriRepository) getStudyByID(ctx context.Context, studyID string) (study.Study, error) {
	var code string
	if err := repo.db.GetContext(ctx, &code, `SELECT code FROM study_info WHERE study_id = $1`, studyID); err != nil {
		return study.Study{}, errors.Wrap(err, "getting mri study")
	}
	return repo.studyRepo.GetStudyByCode(ctx, code)
}

// queryValidationActions returns the record's validation actions in
// chronological order, actors joined in.
func (repo mriRepository) queryValidationActions(ctx context.Context, mriID string) ([]mri.Action, error) {
	var rows []struct {
		ActionID   string    `db:"action_id"`
		ActionDate time.Time `db:"action_date"`
		dbUser
	}
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT va.id AS action_id, va.date AS action_date, u.*
		FROM mri_validation_action va
		JOIN "user" u ON u.id = va.user_id
		WHERE va.mri_id = $1
		ORDER BY va.date`, mriID)
	if err != nil {
		return nil, errors.Wrap(err, "querying validation actions")
	}

	acts := make([]mri.Action, 0, len(rows))
	for _, r := range rows {
		acts = append(acts, mri.Action{ID: r.ActionID, User: r.dbUser.unpack(), Date: r.ActionDate})
	}
	return acts, nil
}

func (repo mriRepository) QueryPublicMRIs(ctx context.Context, viewer user.User) ([]mri.PublicMRI, error) {
	var rows []struct {
		ID               string      `db:"id"`
		StudyTitle       string      `db:"study_title"`
		Title            null.String `db:"title"`
		Difficulty       null.String `db:"difficulty"`
		MainDomain       null.String `db:"main_domain"`
		Status           string      `db:"status"`
		IntroductionText null.String `db:"introduction_text"`
	}
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT m.id, si.title AS study_title, m.title, m.difficulty, m.main_domain, m.status, m.introduction_text
		FROM mri m
		JOIN study_info si ON si.study_id = m.study_id
		WHERE `+accessibleCond+`
		ORDER BY m.created_at DESC`,
		viewer.IsExecutiveBoard(), viewer.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying mris")
	}

	res := make([]mri.PublicMRI, 0, len(rows))
	for _, r := range rows {
		res = append(res, mri.PublicMRI{
			ID:               r.ID,
			StudyTitle:       r.StudyTitle,
			Title:            r.Title,
			Difficulty:       r.Difficulty,
			MainDomain:       r.MainDomain,
			Status:           mri.Status(r.Status),
			IntroductionText: r.IntroductionText,
		})
	}
	return res, nil
}

func (repo mriRepository) QueryStudyMRIs(ctx context.Context, viewer user.User, studyCode string) ([]mri.StudyMRIListItem, error) {
	return repo.queryListItems(ctx, viewer, `si.code = $3`, `m.created_at`, studyCode)
}

func (repo mriRepository) QueryMRIsToValidate(ctx context.Context, viewer user.User) ([]mri.StudyMRIListItem, error) {
	return repo.queryListItems(ctx, viewer,
		`m.status IN ('InProgress', 'Finished')`,
		`m.status DESC, validation_count DESC`)
}

func (repo mriRepository) queryListItems(ctx context.Context, viewer user.User, cond, order string, extraArgs ...interface{}) ([]mri.StudyMRIListItem, error) {
	var rows []struct {
		ID              string      `db:"id"`
		Title           null.String `db:"title"`
		Status          string      `db:"status"`
		ValidationCount int         `db:"validation_count"`
	}
	args := append([]interface{}{viewer.IsExecutiveBoard(), viewer.ID}, extraArgs...)
	err := repo.db.SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT m.id, m.title, m.status,
		       (SELECT COUNT(*) FROM mri_validation_action va WHERE va.mri_id = m.id) AS validation_count
		FROM mri m
		JOIN study_info si ON si.study_id = m.study_id
		WHERE %s AND %s
		ORDER BY %s`, cond, accessibleCond, order), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying mris")
	}

	res := make([]mri.StudyMRIListItem, 0, len(rows))
	for _, r := range rows {
		res = append(res, mri.StudyMRIListItem{
			ID:              r.ID,
			Title:           r.Title,
			Status:          mri.Status(r.Status),
			ValidationCount: r.ValidationCount,
		})
	}
	return res, nil
}

func (repo mriRepository) SetMRIField(ctx context.Context, viewer user.User, id string, field mri.Field, value string, stamp mri.Action) (bool, error) {
	col, ok := fieldColumns[field]
	if !ok {
		return false, errors.Errorf("unknown mri field %q", field)
	}

	// single conditional statement: the content field and the
	// last-edited stamp change together, or not at all
	res, err := repo.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE mri m
		SET %s = $3, last_edited_by = $4, last_edited_at = $5, updated_at = $5
		FROM study_info si
		WHERE si.study_id = m.study_id AND m.id = $6 AND m.status = 'InProgress' AND %s`,
		col, accessibleCond),
		viewer.IsExecutiveBoard(), viewer.ID, value, stamp.User.ID, stamp.Date, id)
	if err != nil {
		return false, errors.Wrap(err, "updating mri field")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "updating mri field")
	}
	return n > 0, nil
}

func (repo mriRepository) AppendValidationAction(ctx context.Context, id string, act mri.Action, status mri.Status) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "appending validation")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mri_validation_action (id, mri_id, user_id, date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (mri_id, user_id) DO NOTHING`,
		uuid.New().String(), id, act.User.ID, act.Date)
	if err != nil {
		return errors.Wrap(err, "appending validation")
	}

	// never regress a record that went out or expired between the
	// caller's read and this write
	_, err = tx.ExecContext(ctx,
		`UPDATE mri SET status = $1, updated_at = $2
		WHERE id = $3 AND status NOT IN ('Sent', 'Expired')`,
		status, act.Date, id)
	if err != nil {
		return errors.Wrap(err, "appending validation")
	}
	return errors.Wrap(tx.Commit(), "appending validation")
}

func (repo mriRepository) SetMRIStatus(ctx context.Context, viewer user.User, id string, from, to mri.Status) (bool, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE mri m
		SET status = $3, updated_at = NOW()
		FROM study_info si
		WHERE si.study_id = m.study_id AND m.id = $4 AND m.status = $5 AND `+accessibleCond,
		viewer.IsExecutiveBoard(), viewer.ID, to, id, from)
	if err != nil {
		return false, errors.Wrap(err, "updating mri status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "updating mri status")
	}
	return n > 0, nil
}
