package mri_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/telecom-etude/erp/core"
	"github.com/telecom-etude/erp/core/mri"
	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
	dummycampaign "github.com/telecom-etude/erp/services/campaign/dummy"
	emailsvc "github.com/telecom-etude/erp/services/email"
	logsvc "github.com/telecom-etude/erp/services/logger"
	inmemdb "github.com/telecom-etude/erp/storage/database/inmem"
)

var frozenNow = time.Date(2021, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	conf        *core.Config
	userRepo    user.Repository
	studyRepo   study.Repository
	mriRepo     mri.Repository
	campaignSvc *dummycampaign.Service
	svc         *mri.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ClearSentMessages()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	campaignSvc := dummycampaign.NewService()
	svc := mri.NewService(
		inmemdb.NewMRIRepository(db),
		inmemdb.NewStudyRepository(db),
		campaignSvc,
		emailsvc.NewConsoleServiceMock(conf),
		logger,
		conf,
	)
	svc.Now = func() time.Time { return frozenNow }

	return &testEnv{
		conf:        conf,
		userRepo:    inmemdb.NewUserRepository(db),
		studyRepo:   inmemdb.NewStudyRepository(db),
		mriRepo:     inmemdb.NewMRIRepository(db),
		campaignSvc: campaignSvc,
		svc:         svc,
	}
}

func (env *testEnv) createUser(t *testing.T, first, last, email string, pos user.Position) user.User {
	t.Helper()
	usr := user.User{
		FirstName: first,
		LastName:  last,
		Email:     null.NewString(email, email != ""),
		Position:  null.NewString(string(pos), pos != ""),
	}
	usr, err := env.userRepo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func (env *testEnv) createStudy(t *testing.T, code string, confidential bool, cdps ...user.User) study.Study {
	t.Helper()
	s, err := env.studyRepo.CreateStudy(context.Background(), study.Study{
		Info: study.StudyInfo{Code: code, Title: "Étude " + code, Confidential: confidential},
	})
	require.NoError(t, err)
	for _, cdp := range cdps {
		require.NoError(t, env.studyRepo.AssignCDP(context.Background(), s.ID, cdp.ID))
	}
	return s
}

func (env *testEnv) createMRI(t *testing.T, s study.Study, status mri.Status, filled bool) mri.MRI {
	t.Helper()
	m := mri.MRI{StudyID: s.ID, Status: status, CreatedAt: frozenNow, UpdatedAt: frozenNow}
	if filled {
		m.Title = null.StringFrom("Étude de cadrage")
		m.IntroductionText = null.StringFrom("Une intro")
		m.DescriptionText = null.StringFrom("Une description")
		m.RequiredSkillsText = null.StringFrom("Python, SQL")
		m.TimelineText = null.StringFrom("3 semaines")
		m.WageLowerBound = null.IntFrom(300)
		m.WageUpperBound = null.IntFrom(500)
		m.WageLevel = null.StringFrom(string(mri.LevelMedium))
		m.Difficulty = null.StringFrom(string(mri.LevelLow))
		m.MainDomain = null.StringFrom(string(mri.DomainData))
		m.GFormURL = null.StringFrom("https://forms.google.com/xyz")
	}
	m, err := env.mriRepo.CreateMRI(context.Background(), m)
	require.NoError(t, err)
	return m
}

func TestService_CreateEmpty(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "")
	outsider := env.createUser(t, "Eve", "Petit", "eve@telecom-etude.fr", "")
	s := env.createStudy(t, "21s042", true, cdp)

	t.Run("ok", func(t *testing.T) {
		item, err := env.svc.CreateEmpty(ctx, cdp, s.Info.Code)
		assert.NoError(t, err)
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, mri.StatusInProgress, item.Status)
		assert.False(t, item.Title.Valid)
	})

	t.Run("inaccessible study", func(t *testing.T) {
		_, err := env.svc.CreateEmpty(ctx, outsider, s.Info.Code)
		assert.Equal(t, mri.ErrNoMRIOrLocked, err)
	})

	t.Run("unknown study", func(t *testing.T) {
		_, err := env.svc.CreateEmpty(ctx, cdp, "000xx")
		assert.Equal(t, mri.ErrNoMRIOrLocked, err)
	})
}

func TestService_SetField(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "")
	outsider := env.createUser(t, "Eve", "Petit", "eve@telecom-etude.fr", "")
	s := env.createStudy(t, "21s042", true, cdp)

	t.Run("updates field and stamp together", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusInProgress, false)
		err := env.svc.SetTitle(ctx, cdp, m.ID, "Étude de cadrage")
		assert.NoError(t, err)

		got, err := env.svc.Get(ctx, cdp, m.ID)
		assert.NoError(t, err)
		assert.Equal(t, "Étude de cadrage", got.Title.String)
		assert.Equal(t, cdp.ID, got.LastEditedAction.User.ID)
		assert.Equal(t, frozenNow, got.LastEditedAction.Date)
	})

	t.Run("locked after InProgress", func(t *testing.T) {
		for _, status := range []mri.Status{mri.StatusFinished, mri.StatusValidated, mri.StatusSent, mri.StatusExpired} {
			m := env.createMRI(t, s, status, false)
			err := env.svc.SetIntroduction(ctx, cdp, m.ID, "intro")
			assert.Equal(t, mri.ErrNoMRIOrLocked, err, "status %s", status)
		}
	})

	t.Run("inaccessible viewer", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusInProgress, false)
		err := env.svc.SetDescription(ctx, outsider, m.ID, "desc")
		assert.Equal(t, mri.ErrNoMRIOrLocked, err)
	})

	t.Run("missing record", func(t *testing.T) {
		err := env.svc.SetTimeline(ctx, cdp, "nope", "3 semaines")
		assert.Equal(t, mri.ErrNoMRIOrLocked, err)
	})

	t.Run("unknown field name", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusInProgress, false)
		err := env.svc.SetField(ctx, cdp, m.ID, "wage_level", "High")
		assert.Equal(t, mri.ErrNoMRIOrLocked, err)
	})
}

func TestService_Validate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	viewerA := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "")
	viewerB := env.createUser(t, "Bob", "Durand", "bob@telecom-etude.fr", "")
	s := env.createStudy(t, "21s042", false, viewerA, viewerB)

	t.Run("first validation promotes the record", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusInProgress, false)

		// A validates: [A], Validated
		require.NoError(t, env.svc.Validate(ctx, viewerA, m.ID))
		got, err := env.svc.Get(ctx, viewerA, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusValidated, got.Status)
		require.Len(t, got.ValidationActions, 1)
		assert.Equal(t, viewerA.ID, got.ValidationActions[0].User.ID)

		// A validates again: unchanged
		require.NoError(t, env.svc.Validate(ctx, viewerA, m.ID))
		got, err = env.svc.Get(ctx, viewerA, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusValidated, got.Status)
		assert.Len(t, got.ValidationActions, 1)

		// B validates: [A, B], still Validated
		require.NoError(t, env.svc.Validate(ctx, viewerB, m.ID))
		got, err = env.svc.Get(ctx, viewerB, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusValidated, got.Status)
		require.Len(t, got.ValidationActions, 2)
		assert.Equal(t, viewerA.ID, got.ValidationActions[0].User.ID)
		assert.Equal(t, viewerB.ID, got.ValidationActions[1].User.ID)
	})

	t.Run("finished record can be validated", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusFinished, false)
		require.NoError(t, env.svc.Validate(ctx, viewerA, m.ID))
		got, err := env.svc.Get(ctx, viewerA, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusValidated, got.Status)
	})

	t.Run("sent record keeps its status", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusSent, false)
		require.NoError(t, env.svc.Validate(ctx, viewerA, m.ID))
		got, err := env.svc.Get(ctx, viewerA, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusSent, got.Status)
		assert.Len(t, got.ValidationActions, 1)
	})

	t.Run("stale validation cannot regress a sent record", func(t *testing.T) {
		// a validation whose status was computed before the record went
		// out must not undo the Sent status
		m := env.createMRI(t, s, mri.StatusSent, false)
		act := mri.Action{User: viewerA, Date: frozenNow}
		require.NoError(t, env.mriRepo.AppendValidationAction(ctx, m.ID, act, mri.StatusValidated))

		got, err := env.svc.Get(ctx, viewerA, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusSent, got.Status)
	})

	t.Run("missing record", func(t *testing.T) {
		err := env.svc.Validate(ctx, viewerA, "nope")
		assert.Equal(t, mri.ErrNoMRIOrLocked, err)
	})
}

func TestService_Finish(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "")
	s := env.createStudy(t, "21s042", false, cdp)

	t.Run("ok", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusInProgress, false)
		assert.NoError(t, env.svc.Finish(ctx, cdp, m.ID))
		got, err := env.svc.Get(ctx, cdp, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusFinished, got.Status)
	})

	t.Run("only from InProgress", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusValidated, false)
		assert.Equal(t, mri.ErrNoMRIOrLocked, env.svc.Finish(ctx, cdp, m.ID))
	})
}

func TestService_Send(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "")
	cdp2 := env.createUser(t, "Bob", "Durand", "bob@telecom-etude.fr", "")
	s := env.createStudy(t, "21s042", false, cdp, cdp2)

	t.Run("ok", func(t *testing.T) {
		emailsvc.ClearSentMessages()
		env.campaignSvc.Reset()
		m := env.createMRI(t, s, mri.StatusValidated, true)

		require.NoError(t, env.svc.Send(ctx, cdp, m.ID))

		// campaign dispatched with the rendered content
		require.Len(t, env.campaignSvc.SentCampaigns, 1)
		c := env.campaignSvc.SentCampaigns[0]
		assert.Equal(t, env.conf.Mailchimp.MRIListID, c.RecipientListID)
		assert.Equal(t, env.conf.AppName, c.FromName)
		assert.Equal(t, "alice@telecom-etude.fr", c.ReplyTo) // first assigned CDP
		assert.Equal(t, "[Telecom Etude] Étude de cadrage", c.Subject)
		assert.Contains(t, c.PlainText, "Étude de cadrage")
		assert.Contains(t, c.HTML, "https://forms.google.com/xyz")

		// record moved to Sent
		got, err := env.svc.Get(ctx, cdp, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusSent, got.Status)

		// CDPs notified
		require.Len(t, emailsvc.SentMessages, 1)
		msg := emailsvc.SentMessages[0]
		require.Len(t, msg.To, 2)
		assert.Equal(t, "alice@telecom-etude.fr", msg.To[0].Address)
		assert.Equal(t, "bob@telecom-etude.fr", msg.To[1].Address)
	})

	t.Run("not validated", func(t *testing.T) {
		for _, status := range []mri.Status{mri.StatusInProgress, mri.StatusFinished, mri.StatusSent, mri.StatusExpired} {
			m := env.createMRI(t, s, status, true)
			err := env.svc.Send(ctx, cdp, m.ID)
			assert.Equal(t, mri.ErrNotValidated, err, "status %s", status)
		}
	})

	t.Run("missing field blocks the send", func(t *testing.T) {
		env.campaignSvc.Reset()
		m := env.createMRI(t, s, mri.StatusValidated, false)

		err := env.svc.Send(ctx, cdp, m.ID)
		var mferr *mri.MissingFieldError
		if assert.ErrorAs(t, err, &mferr) {
			assert.Equal(t, "Titre", mferr.Field)
		}
		assert.Empty(t, env.campaignSvc.SentCampaigns)

		got, err := env.svc.Get(ctx, cdp, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusValidated, got.Status)
	})

	t.Run("study without CDP blocks the send", func(t *testing.T) {
		env.campaignSvc.Reset()
		orphan := env.createStudy(t, "21s007", false)
		m := env.createMRI(t, orphan, mri.StatusValidated, true)

		err := env.svc.Send(ctx, cdp, m.ID)
		assert.Equal(t, mri.ErrNoCDPAssigned, err)
		assert.Empty(t, env.campaignSvc.SentCampaigns)

		got, err := env.svc.Get(ctx, cdp, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusValidated, got.Status)
	})

	t.Run("dispatch failure leaves the record validated", func(t *testing.T) {
		env.campaignSvc.Reset()
		env.campaignSvc.Err = core.ErrFailedToAttachContent
		defer env.campaignSvc.Reset()
		m := env.createMRI(t, s, mri.StatusValidated, true)

		err := env.svc.Send(ctx, cdp, m.ID)
		assert.Equal(t, core.ErrFailedToAttachContent, err)

		got, err := env.svc.Get(ctx, cdp, m.ID)
		require.NoError(t, err)
		assert.Equal(t, mri.StatusValidated, got.Status)
	})

	t.Run("missing record", func(t *testing.T) {
		err := env.svc.Send(ctx, cdp, "nope")
		assert.Equal(t, mri.ErrNoMRIOrLocked, err)
	})
}

func TestService_Queries(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "")
	exec := env.createUser(t, "Paul", "Leroy", "paul@telecom-etude.fr", user.PositionPresident)
	outsider := env.createUser(t, "Eve", "Petit", "eve@telecom-etude.fr", "")

	open := env.createStudy(t, "21s001", false, cdp)
	secret := env.createStudy(t, "21s002", true, cdp)
	env.createMRI(t, open, mri.StatusInProgress, false)
	env.createMRI(t, secret, mri.StatusFinished, false)

	t.Run("public listing applies the access predicate", func(t *testing.T) {
		res, err := env.svc.QueryPublic(ctx, outsider)
		assert.NoError(t, err)
		assert.Len(t, res, 1)

		res, err = env.svc.QueryPublic(ctx, cdp)
		assert.NoError(t, err)
		assert.Len(t, res, 2)

		res, err = env.svc.QueryPublic(ctx, exec)
		assert.NoError(t, err)
		assert.Len(t, res, 2)
	})

	t.Run("to-validate listing", func(t *testing.T) {
		res, err := env.svc.QueryToValidate(ctx, cdp)
		assert.NoError(t, err)
		require.Len(t, res, 2)
		// InProgress sorts before Finished
		assert.Equal(t, mri.StatusInProgress, res[0].Status)
		assert.Equal(t, mri.StatusFinished, res[1].Status)
	})

	t.Run("study listing", func(t *testing.T) {
		res, err := env.svc.QueryStudyMRIs(ctx, cdp, open.Info.Code)
		assert.NoError(t, err)
		assert.Len(t, res, 1)

		res, err = env.svc.QueryStudyMRIs(ctx, outsider, secret.Info.Code)
		assert.NoError(t, err)
		assert.Empty(t, res)
	})
}
