package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/chain"
	"github.com/NagallaThanvi/unilink/services/storage"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubRegistry struct {
	verifyErr error
	verifyReq chain.VerifyRequest
}

func (s *stubRegistry) Issue(_ context.Context, _ common.Address, hash common.Hash, _ string) (common.Hash, error) {
	return common.BytesToHash(append([]byte{0xee}, hash[:8]...)), nil
}

func (s *stubRegistry) Revoke(context.Context, common.Hash) (common.Hash, error) {
	return common.HexToHash("0x01"), nil
}

func (s *stubRegistry) Verify(_ context.Context, req chain.VerifyRequest) (*chain.VerifyResult, error) {
	s.verifyReq = req
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return &chain.VerifyResult{OK: false, Reason: chain.ReasonNotFound, TxHash: req.TxHash}, nil
}

func (s *stubRegistry) Confirm(context.Context, common.Hash) (chain.ConfirmResult, error) {
	return chain.ConfirmResult{}, nil
}

type fixture struct {
	app      *fiber.App
	db       *gorm.DB
	uni      *model.University
	manager  *model.User
	holder   *model.User
	registry *stubRegistry
}

func setup(t *testing.T, withChain bool) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	mw := middleware.NewAuthMiddleware(testutil.JWT(), db)

	registry := &stubRegistry{}
	var svc *services.CredentialService
	if withChain {
		svc = services.NewCredentialService(db, registry, storage.NewMemoryStore(""), services.NewGamificationService(db, nil), services.NewNotificationService(db))
	} else {
		svc = services.NewCredentialService(db, nil, nil, nil, nil)
	}
	h := NewCredentialHandler(db, svc)

	app := fiber.New()
	app.Post("/credentials/verify", mw.Optional(), h.VerifyCredential)
	app.Get("/credentials", mw.Required(), h.ListCredentials)
	app.Get("/credentials/:id", mw.Required(), h.GetCredential)
	app.Post("/credentials", mw.Required(), h.CreateCredential)
	app.Put("/credentials/:id", mw.Required(), h.UpdateCredential)
	app.Delete("/credentials/:id", mw.Required(), h.DeleteCredential)
	app.Post("/credentials/:id/issue", mw.Required(), h.IssueCredential)
	app.Post("/credentials/:id/revoke", mw.Required(), h.RevokeCredential)
	app.Post("/credentials/:id/document", mw.Required(), h.UploadDocument)

	uni := testutil.CreateUniversity(t, db, "MIT")
	return &fixture{
		app:      app,
		db:       db,
		uni:      uni,
		manager:  testutil.CreateUser(t, db, model.RoleUniversityAdmin, &uni.ID),
		holder:   testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID),
		registry: registry,
	}
}

func (f *fixture) bearer(t *testing.T, u *model.User) string {
	return testutil.Bearer(t, testutil.JWT(), u)
}

func (f *fixture) create(t *testing.T) model.Credential {
	t.Helper()
	status, env := testutil.Do(t, f.app, http.MethodPost, "/credentials", fiber.Map{
		"user_id":        f.holder.ID,
		"university_id":  f.uni.ID,
		"title":          "BSc Physics",
		"type":           "degree",
		"issue_date":     "2023-06-01T00:00:00Z",
		"holder_address": "0x2222222222222222222222222222222222222222",
	}, f.bearer(t, f.manager))
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	var cred model.Credential
	env.Decode(t, &cred)
	return cred
}

func TestCreateCredentialChecks(t *testing.T) {
	f := setup(t, false)

	cred := f.create(t)
	assert.Equal(t, model.ChainStatusNotIssued, cred.ChainStatus)
	assert.Equal(t, f.manager.ID, cred.IssuedBy)

	other := testutil.CreateUniversity(t, f.db, "CMU")
	status, _ := testutil.Do(t, f.app, http.MethodPost, "/credentials", fiber.Map{
		"user_id": f.holder.ID, "university_id": other.ID, "title": "Cert", "type": "certificate", "issue_date": "2023-06-01T00:00:00Z",
	}, f.bearer(t, f.manager))
	assert.Equal(t, http.StatusForbidden, status)

	admin := testutil.CreateUser(t, f.db, model.RoleAdmin, nil)
	cases := []struct {
		name string
		body fiber.Map
		code string
	}{
		{"missing university", fiber.Map{"user_id": f.holder.ID, "university_id": 999, "title": "Cert", "type": "award", "issue_date": "2023-06-01T00:00:00Z"}, "UNIVERSITY_NOT_FOUND"},
		{"missing holder", fiber.Map{"user_id": 999, "university_id": f.uni.ID, "title": "Cert", "type": "award", "issue_date": "2023-06-01T00:00:00Z"}, "USER_NOT_FOUND"},
		{"bad type", fiber.Map{"user_id": f.holder.ID, "university_id": f.uni.ID, "title": "Cert", "type": "diploma", "issue_date": "2023-06-01T00:00:00Z"}, "VALIDATION_ERROR"},
		{"bad address", fiber.Map{"user_id": f.holder.ID, "university_id": f.uni.ID, "title": "Cert", "type": "award", "issue_date": "2023-06-01T00:00:00Z", "holder_address": "0x12"}, "VALIDATION_ERROR"},
		{"expiry before issue", fiber.Map{"user_id": f.holder.ID, "university_id": f.uni.ID, "title": "Cert", "type": "award", "issue_date": "2023-06-01T00:00:00Z", "expiry_date": "2022-01-01T00:00:00Z"}, "INVALID_DATES"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := testutil.Do(t, f.app, http.MethodPost, "/credentials", tc.body, f.bearer(t, admin))
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestListCredentialsFilters(t *testing.T) {
	f := setup(t, false)
	first := f.create(t)
	f.create(t)
	require.NoError(t, f.db.Model(&model.Credential{}).Where("id = ?", first.ID).Update("chain_status", model.ChainStatusIssued).Error)

	status, env := testutil.Do(t, f.app, http.MethodGet, "/credentials?chain_status=issued", nil, f.bearer(t, f.holder))
	require.Equal(t, http.StatusOK, status)
	var list []model.Credential
	env.Decode(t, &list)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	status, env = testutil.Do(t, f.app, http.MethodGet, fmt.Sprintf("/credentials?user_id=%d&limit=1", f.holder.ID), nil, f.bearer(t, f.holder))
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, env.Pagination["total"])
	assert.EqualValues(t, 2, env.Pagination["total_pages"])

	status, _ = testutil.Do(t, f.app, http.MethodGet, "/credentials?chain_status=minted", nil, f.bearer(t, f.holder))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLockedCredentialCannotChange(t *testing.T) {
	f := setup(t, true)
	cred := f.create(t)
	path := fmt.Sprintf("/credentials/%d", cred.ID)

	status, env := testutil.Do(t, f.app, http.MethodPut, path, fiber.Map{"description": "Honours"}, f.bearer(t, f.manager))
	require.Equal(t, http.StatusOK, status)
	var updated model.Credential
	env.Decode(t, &updated)
	assert.Equal(t, "Honours", updated.Description)
	assert.Equal(t, "BSc Physics", updated.Title)

	status, env = testutil.Do(t, f.app, http.MethodPost, path+"/issue", nil, f.bearer(t, f.manager))
	require.Equal(t, http.StatusAccepted, status, env.Error.Message)
	var issued model.Credential
	env.Decode(t, &issued)
	assert.Equal(t, model.ChainStatusPending, issued.ChainStatus)
	assert.NotEmpty(t, issued.CredentialHash)

	status, env = testutil.Do(t, f.app, http.MethodPut, path, fiber.Map{"title": "MSc Physics"}, f.bearer(t, f.manager))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CREDENTIAL_LOCKED", env.Error.Code)

	status, env = testutil.Do(t, f.app, http.MethodDelete, path, nil, f.bearer(t, f.manager))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CREDENTIAL_LOCKED", env.Error.Code)

	status, env = testutil.Do(t, f.app, http.MethodPost, path+"/issue", nil, f.bearer(t, f.manager))
	assert.Equal(t, http.StatusConflict, status)

	status, env = testutil.Do(t, f.app, http.MethodPost, path+"/revoke", nil, f.bearer(t, f.manager))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CREDENTIAL_NOT_ISSUED", env.Error.Code)

	status, _ = testutil.Do(t, f.app, http.MethodPost, path+"/issue", nil, f.bearer(t, f.holder))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestDeleteCredentialReturnsRow(t *testing.T) {
	f := setup(t, false)
	cred := f.create(t)

	status, env := testutil.Do(t, f.app, http.MethodDelete, fmt.Sprintf("/credentials/%d", cred.ID), nil, f.bearer(t, f.manager))
	require.Equal(t, http.StatusOK, status)
	var deleted model.Credential
	env.Decode(t, &deleted)
	assert.Equal(t, cred.ID, deleted.ID)

	status, _ = testutil.Do(t, f.app, http.MethodGet, fmt.Sprintf("/credentials/%d", cred.ID), nil, f.bearer(t, f.manager))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestVerifyCredential(t *testing.T) {
	tx := "0x" + fmt.Sprintf("%064x", 42)

	t.Run("chain not configured", func(t *testing.T) {
		f := setup(t, false)
		status, env := testutil.Do(t, f.app, http.MethodPost, "/credentials/verify", fiber.Map{"tx_hash": tx}, "")
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "CHAIN_UNAVAILABLE", env.Error.Code)
	})

	t.Run("failed check is still ok", func(t *testing.T) {
		f := setup(t, true)
		status, env := testutil.Do(t, f.app, http.MethodPost, "/credentials/verify", fiber.Map{"tx_hash": tx}, f.bearer(t, f.holder))
		require.Equal(t, http.StatusOK, status)
		var res chain.VerifyResult
		env.Decode(t, &res)
		assert.False(t, res.OK)
		assert.Equal(t, chain.ReasonNotFound, res.Reason)
		assert.Nil(t, f.registry.verifyReq.ExpectedHash)

		var checks int64
		f.db.Model(&model.UserActivity{}).Where("activity_type = ?", model.ActivityTypeCredentialCheck).Count(&checks)
		assert.Equal(t, int64(1), checks)
	})

	t.Run("rpc failure", func(t *testing.T) {
		f := setup(t, true)
		f.registry.verifyErr = errors.New("connection refused")
		status, env := testutil.Do(t, f.app, http.MethodPost, "/credentials/verify", fiber.Map{"tx_hash": tx}, "")
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, "UPSTREAM_ERROR", env.Error.Code)
	})

	t.Run("malformed hash", func(t *testing.T) {
		f := setup(t, true)
		status, env := testutil.Do(t, f.app, http.MethodPost, "/credentials/verify", fiber.Map{"tx_hash": "0x1234"}, "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	})

	t.Run("unknown credential", func(t *testing.T) {
		f := setup(t, true)
		status, _ := testutil.Do(t, f.app, http.MethodPost, "/credentials/verify", fiber.Map{"tx_hash": tx, "credential_id": 999}, "")
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestUploadDocumentRejectsNonPDF(t *testing.T) {
	f := setup(t, true)
	cred := f.create(t)

	req := testutil.Multipart(t, http.MethodPost, fmt.Sprintf("/credentials/%d/document", cred.ID), "document", "diploma.pdf", []byte("plain text"), f.bearer(t, f.manager))
	status, env := testutil.DoRaw(t, f.app, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_DOCUMENT", env.Error.Code)

	nf := setup(t, false)
	cred = nf.create(t)
	req = testutil.Multipart(t, http.MethodPost, fmt.Sprintf("/credentials/%d/document", cred.ID), "document", "diploma.pdf", []byte("%PDF-1.4"), nf.bearer(t, nf.manager))
	status, env = testutil.DoRaw(t, nf.app, req)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "STORAGE_UNAVAILABLE", env.Error.Code)
}
