// Package testutil holds fixtures shared by package tests: an isolated
// in-memory database, users with tokens and a JSON request helper.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NagallaThanvi/unilink/database"
	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Password is the plain text password of every user created here
const Password = "password123"

// NewDB opens a migrated in-memory SQLite database private to the test
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	auth.SetHashCost(bcrypt.MinCost)

	store, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, store.GetDB().AutoMigrate(database.Models()...))
	t.Cleanup(func() { _ = store.Close() })
	return store.GetDB()
}

// JWT returns a manager with a fixed test secret
func JWT() *auth.JWTManager {
	return auth.NewJWTManager(auth.JWTConfig{Secret: "test-secret", Issuer: "unilink-test"})
}

// CreateUniversity inserts an active university with the given code
func CreateUniversity(t *testing.T, db *gorm.DB, code string) *model.University {
	t.Helper()
	u := &model.University{Name: code + " University", Code: code, Domain: code + ".edu", IsActive: true}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateUser inserts an active user with Password
func CreateUser(t *testing.T, db *gorm.DB, role string, universityID *uint) *model.User {
	t.Helper()
	hash, err := auth.HashPassword(Password)
	require.NoError(t, err)

	u := &model.User{
		Email:        uuid.NewString()[:8] + "@example.com",
		PasswordHash: hash,
		Name:         "User " + role,
		Role:         role,
		UniversityID: universityID,
		IsActive:     true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Bearer mints an access token for the user and returns the header value
func Bearer(t *testing.T, jwt *auth.JWTManager, u *model.User) string {
	t.Helper()
	token, _, err := jwt.GenerateAccessToken(auth.Subject{
		UserID: u.ID, Email: u.Email, Role: u.Role,
		UniversityID: u.UniversityID, TokenVersion: u.TokenVersion,
	})
	require.NoError(t, err)
	return "Bearer " + token
}

// Envelope is the decoded response body
type Envelope struct {
	Success    bool                   `json:"success"`
	Data       json.RawMessage        `json:"data"`
	Message    string                 `json:"message"`
	Pagination map[string]interface{} `json:"pagination"`
	Error      struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details"`
	} `json:"error"`
}

// Decode unmarshals Data into out
func (e *Envelope) Decode(t *testing.T, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, out))
}

// Do sends a JSON request through the app and decodes the envelope
func Do(t *testing.T, app *fiber.App, method, path string, body interface{}, authHeader string) (int, *Envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	env := &Envelope{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, env), "body: %s", raw)
	}
	return resp.StatusCode, env
}

// DoRaw sends a prepared request, for multipart uploads
func DoRaw(t *testing.T, app *fiber.App, req *http.Request) (int, *Envelope) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	env := &Envelope{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, env), "body: %s", raw)
	}
	return resp.StatusCode, env
}

// Multipart builds a request uploading data as a single form file
func Multipart(t *testing.T, method, path, field, filename string, data []byte, authHeader string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	return req
}
