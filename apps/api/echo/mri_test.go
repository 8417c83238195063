package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecom-etude/erp/core"
	"github.com/telecom-etude/erp/core/mri"
	"github.com/telecom-etude/erp/core/user"
)

const errNoMRIOrLocked = "aucun MRI trouvé, ou MRI non modifiable"

func Test_mriApi_create(t *testing.T) {
	env := setup(t)
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "s3cret", "")
	outsider := env.createUser(t, "Eve", "Petit", "eve@telecom-etude.fr", "s3cret", "")
	env.createStudy(t, "21s042", true, cdp)

	t.Run("requires auth", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/v1/studies/21s042/mris", "", nil)
		checkHTTPError(t, rec, http.StatusUnauthorized, errMissingToken)
	})

	t.Run("ok", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/v1/studies/21s042/mris", env.token(t, cdp), nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var item mri.StudyMRIListItem
		decodeBody(t, rec, &item)
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, mri.StatusInProgress, item.Status)
		assert.Zero(t, item.ValidationCount)
	})

	t.Run("confidential study is hidden from outsiders", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/v1/studies/21s042/mris", env.token(t, outsider), nil)
		checkHTTPError(t, rec, http.StatusNotFound, errNoMRIOrLocked)
	})

	t.Run("unknown study", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/v1/studies/99s999/mris", env.token(t, cdp), nil)
		checkHTTPError(t, rec, http.StatusNotFound, errNoMRIOrLocked)
	})
}

func Test_mriApi_retrieve(t *testing.T) {
	env := setup(t)
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "s3cret", "")
	outsider := env.createUser(t, "Eve", "Petit", "eve@telecom-etude.fr", "s3cret", "")
	s := env.createStudy(t, "21s042", true, cdp)
	m := env.createMRI(t, s, mri.StatusInProgress, true)

	t.Run("ok", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/v1/mris/"+m.ID, env.token(t, cdp), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got mri.MRI
		decodeBody(t, rec, &got)
		assert.Equal(t, m.ID, got.ID)
		assert.Equal(t, "Étude de cadrage", got.Title.String)
		assert.Equal(t, "21s042", got.Study.Info.Code)
	})

	t.Run("inaccessible viewer gets 404", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/v1/mris/"+m.ID, env.token(t, outsider), nil)
		checkHTTPError(t, rec, http.StatusNotFound, errNoMRIOrLocked)
	})

	t.Run("missing record", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/v1/mris/nope", env.token(t, cdp), nil)
		checkHTTPError(t, rec, http.StatusNotFound, errNoMRIOrLocked)
	})
}

func Test_mriApi_setField(t *testing.T) {
	env := setup(t)
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "s3cret", "")
	s := env.createStudy(t, "21s042", false, cdp)
	m := env.createMRI(t, s, mri.StatusInProgress, false)
	sent := env.createMRI(t, s, mri.StatusSent, true)

	t.Run("ok", func(t *testing.T) {
		rec := env.request(http.MethodPut, "/v1/mris/"+m.ID+"/fields/title", env.token(t, cdp), echo.Map{
			"value": "Étude de cadrage",
		})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = env.request(http.MethodGet, "/v1/mris/"+m.ID, env.token(t, cdp), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got mri.MRI
		decodeBody(t, rec, &got)
		assert.Equal(t, "Étude de cadrage", got.Title.String)
		assert.Equal(t, cdp.ID, got.LastEditedAction.User.ID)
	})

	t.Run("locked after leaving InProgress", func(t *testing.T) {
		rec := env.request(http.MethodPut, "/v1/mris/"+sent.ID+"/fields/title", env.token(t, cdp), echo.Map{
			"value": "Trop tard",
		})
		checkHTTPError(t, rec, http.StatusNotFound, errNoMRIOrLocked)
	})

	t.Run("unknown field name", func(t *testing.T) {
		rec := env.request(http.MethodPut, "/v1/mris/"+m.ID+"/fields/lol", env.token(t, cdp), echo.Map{
			"value": "n/a",
		})
		checkHTTPError(t, rec, http.StatusNotFound, errNoMRIOrLocked)
	})
}

func Test_mriApi_lifecycle(t *testing.T) {
	env := setup(t)
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "s3cret", "")
	other := env.createUser(t, "Bob", "Durand", "bob@telecom-etude.fr", "s3cret", "")
	s := env.createStudy(t, "21s042", false, cdp, other)
	m := env.createMRI(t, s, mri.StatusInProgress, true)

	t.Run("finish", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/v1/mris/"+m.ID+"/finish", env.token(t, cdp), nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		// a second finish finds nothing editable
		rec = env.request(http.MethodPost, "/v1/mris/"+m.ID+"/finish", env.token(t, cdp), nil)
		checkHTTPError(t, rec, http.StatusNotFound, errNoMRIOrLocked)
	})

	t.Run("validate flips to Validated", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/v1/mris/"+m.ID+"/validate", env.token(t, cdp), nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		var got mri.MRI
		rec = env.request(http.MethodGet, "/v1/mris/"+m.ID, env.token(t, cdp), nil)
		decodeBody(t, rec, &got)
		assert.Equal(t, mri.StatusValidated, got.Status)
		require.Len(t, got.ValidationActions, 1)

		// idempotent per validator
		rec = env.request(http.MethodPost, "/v1/mris/"+m.ID+"/validate", env.token(t, cdp), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		rec = env.request(http.MethodGet, "/v1/mris/"+m.ID, env.token(t, cdp), nil)
		decodeBody(t, rec, &got)
		assert.Len(t, got.ValidationActions, 1)

		// a second validator stacks up
		rec = env.request(http.MethodPost, "/v1/mris/"+m.ID+"/validate", env.token(t, other), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		rec = env.request(http.MethodGet, "/v1/mris/"+m.ID, env.token(t, cdp), nil)
		decodeBody(t, rec, &got)
		assert.Len(t, got.ValidationActions, 2)
	})

	t.Run("send dispatches the campaign", func(t *testing.T) {
		rec := env.request(http.MethodPost, "/v1/mris/"+m.ID+"/send", env.token(t, cdp), nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		require.Len(t, env.campaignSvc.SentCampaigns, 1)
		camp := env.campaignSvc.SentCampaigns[0]
		assert.Equal(t, env.conf.Mailchimp.MRIListID, camp.RecipientListID)
		assert.Equal(t, "alice@telecom-etude.fr", camp.ReplyTo)
		assert.Contains(t, camp.Subject, "Étude de cadrage")

		var got mri.MRI
		rec = env.request(http.MethodGet, "/v1/mris/"+m.ID, env.token(t, cdp), nil)
		decodeBody(t, rec, &got)
		assert.Equal(t, mri.StatusSent, got.Status)
	})
}

func Test_mriApi_send_failures(t *testing.T) {
	env := setup(t)
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "s3cret", "")
	noEmail := env.createUser(t, "Bob", "Durand", "", "", "")
	s := env.createStudy(t, "21s042", false, cdp)
	token := env.token(t, cdp)

	t.Run("not validated", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusInProgress, true)
		rec := env.request(http.MethodPost, "/v1/mris/"+m.ID+"/send", token, nil)
		checkHTTPError(t, rec, http.StatusBadRequest, "ce MRI n'a pas encore été validé")
	})

	t.Run("missing field", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusValidated, false)
		rec := env.request(http.MethodPost, "/v1/mris/"+m.ID+"/send", token, nil)
		checkHTTPError(t, rec, http.StatusBadRequest, "le champ 'Titre' est manquant sur ce MRI")
		assert.Empty(t, env.campaignSvc.SentCampaigns)
	})

	t.Run("CDP never connected", func(t *testing.T) {
		s2 := env.createStudy(t, "21s043", false, cdp, noEmail)
		m := env.createMRI(t, s2, mri.StatusValidated, true)
		rec := env.request(http.MethodPost, "/v1/mris/"+m.ID+"/send", token, nil)
		checkHTTPError(t, rec, http.StatusBadRequest,
			"Bob Durand ne s'est jamais connecté à l'outil donc des informations sont manquantes")
	})

	t.Run("no CDP assigned", func(t *testing.T) {
		s3 := env.createStudy(t, "21s044", false)
		m := env.createMRI(t, s3, mri.StatusValidated, true)
		rec := env.request(http.MethodPost, "/v1/mris/"+m.ID+"/send", token, nil)
		checkHTTPError(t, rec, http.StatusBadRequest, "aucun chef de projet n'est assigné à cette étude")
		assert.Empty(t, env.campaignSvc.SentCampaigns)
	})

	t.Run("provider failure comes out as bad gateway", func(t *testing.T) {
		m := env.createMRI(t, s, mri.StatusValidated, true)
		env.campaignSvc.Err = core.ErrCantCreateCampaign
		defer func() { env.campaignSvc.Err = nil }()

		rec := env.request(http.MethodPost, "/v1/mris/"+m.ID+"/send", token, nil)
		checkHTTPError(t, rec, http.StatusBadGateway, "cannot create the campaign")

		// record stays Validated for a retry
		var got mri.MRI
		rec = env.request(http.MethodGet, "/v1/mris/"+m.ID, token, nil)
		decodeBody(t, rec, &got)
		assert.Equal(t, mri.StatusValidated, got.Status)
	})
}

func Test_mriApi_listings(t *testing.T) {
	env := setup(t)
	cdp := env.createUser(t, "Alice", "Martin", "alice@telecom-etude.fr", "s3cret", "")
	exec := env.createUser(t, "Paul", "Prez", "paul@telecom-etude.fr", "s3cret", user.PositionPresident)
	outsider := env.createUser(t, "Eve", "Petit", "eve@telecom-etude.fr", "s3cret", "")

	open := env.createStudy(t, "21s042", false, cdp)
	secret := env.createStudy(t, "21s043", true, cdp)
	env.createMRI(t, open, mri.StatusInProgress, true)
	env.createMRI(t, secret, mri.StatusFinished, true)

	t.Run("query applies the access predicate", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/v1/mris", env.token(t, outsider), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var items []mri.PublicMRI
		decodeBody(t, rec, &items)
		assert.Len(t, items, 1)

		rec = env.request(http.MethodGet, "/v1/mris", env.token(t, exec), nil)
		decodeBody(t, rec, &items)
		assert.Len(t, items, 2)
	})

	t.Run("to-validate lists awaiting records", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/v1/mris/to-validate", env.token(t, cdp), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var items []mri.StudyMRIListItem
		decodeBody(t, rec, &items)
		require.Len(t, items, 2)
		assert.Equal(t, mri.StatusInProgress, items[0].Status)
		assert.Equal(t, mri.StatusFinished, items[1].Status)
	})

	t.Run("study listing", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/v1/studies/21s042/mris", env.token(t, cdp), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var items []mri.StudyMRIListItem
		decodeBody(t, rec, &items)
		assert.Len(t, items, 1)
	})

	t.Run("empty listing is an empty array", func(t *testing.T) {
		rec := env.request(http.MethodGet, "/v1/studies/21s043/mris", env.token(t, outsider), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}
