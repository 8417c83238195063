package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/locales/en"
	"github.com/labstack/echo/v4"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	echoapi "github.com/telecom-etude/erp/apps/api/echo"
	"github.com/telecom-etude/erp/core"
	"github.com/telecom-etude/erp/core/mri"
	"github.com/telecom-etude/erp/core/study"
	"github.com/telecom-etude/erp/core/user"
	dummycampaign "github.com/telecom-etude/erp/services/campaign/dummy"
	emailsvc "github.com/telecom-etude/erp/services/email"
	logsvc "github.com/telecom-etude/erp/services/logger"
	inmemdb "github.com/telecom-etude/erp/storage/database/inmem"
)

type testEnv struct {
	conf        *core.Config
	app         echoapi.Server
	userRepo    user.Repository
	studyRepo   study.Repository
	mriRepo     mri.Repository
	campaignSvc *dummycampaign.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ClearSentMessages()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	userRepo := inmemdb.NewUserRepository(db)
	studyRepo := inmemdb.NewStudyRepository(db)
	mriRepo := inmemdb.NewMRIRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	campaignSvc := dummycampaign.NewService()

	usrSvc := user.NewService(userRepo, mailSvc, conf)
	studySvc := study.NewService(studyRepo)
	mriSvc := mri.NewService(mriRepo, studyRepo, campaignSvc, mailSvc, logger, conf)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	app := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			StudySvc:       studySvc,
			MRISvc:         mriSvc,
			Validate:       validate,
			Translator:     translator,
			DisableReqLogs: true,
		},
	)

	return &testEnv{
		conf:        conf,
		app:         app,
		userRepo:    userRepo,
		studyRepo:   studyRepo,
		mriRepo:     mriRepo,
		campaignSvc: campaignSvc,
	}
}

func ctx() context.Context { return context.Background() }

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func (env *testEnv) createUser(t *testing.T, first, last, email, pwd string, pos user.Position) user.User {
	t.Helper()
	usr := user.User{
		FirstName: first,
		LastName:  last,
		Email:     null.NewString(email, email != ""),
		Position:  null.NewString(string(pos), pos != ""),
	}
	usr.SetActive(true)
	if pwd != "" {
		require.NoError(t, usr.SetPassword(pwd))
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
	m := mri.MRI{StudyID: s.ID, Status: status}
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

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, env.conf), env.conf)
	require.NoError(t, err)
	return token
}

func (env *testEnv) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.app.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func errBody(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return body.Error
}

var errMissingToken = "missing or malformed jwt"

func checkHTTPError(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, wantError string) {
	t.Helper()
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	require.Equal(t, wantError, errBody(rec))
}
