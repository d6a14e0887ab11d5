package profile

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strings"
	"testing"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/storage"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupApp(t *testing.T, store storage.ObjectStore) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	mw := middleware.NewAuthMiddleware(testutil.JWT(), db)
	h := NewProfileHandler(db, store)

	app := fiber.New()
	app.Get("/profiles", mw.Optional(), h.ListProfiles)
	app.Get("/profiles/:id", mw.Optional(), h.GetProfile)
	app.Post("/profiles", mw.Required(), h.CreateProfile)
	app.Put("/profiles/:id", mw.Required(), h.UpdateProfile)
	app.Delete("/profiles/:id", mw.Required(), h.DeleteProfile)
	app.Post("/profiles/:id/avatar", mw.Required(), h.UploadAvatar)
	return app, db
}

func createProfile(t *testing.T, db *gorm.DB, user *model.User, visibility string, skills ...string) *model.Profile {
	t.Helper()
	p := &model.Profile{
		UserID:       user.ID,
		UniversityID: *user.UniversityID,
		Headline:     "Engineer at Acme",
		Company:      "Acme",
		Visibility:   visibility,
		Skills:       skills,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestCreateProfile(t *testing.T) {
	app, db := setupApp(t, nil)
	uni := testutil.CreateUniversity(t, db, "MIT")
	user := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	bearer := testutil.Bearer(t, testutil.JWT(), user)

	status, env := testutil.Do(t, app, http.MethodPost, "/profiles", fiber.Map{
		"headline": "Backend engineer",
		"skills":   []string{"Go", " go ", "SQL"},
	}, bearer)
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	var created model.Profile
	env.Decode(t, &created)
	assert.Equal(t, uni.ID, created.UniversityID)
	assert.Equal(t, model.VisibilityPublic, created.Visibility)
	assert.Equal(t, []string{"Go", "SQL"}, []string(created.Skills))

	status, env = testutil.Do(t, app, http.MethodPost, "/profiles", fiber.Map{"headline": "Again"}, bearer)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "PROFILE_EXISTS", env.Error.Code)

	loner := testutil.CreateUser(t, db, model.RoleAlumni, nil)
	status, env = testutil.Do(t, app, http.MethodPost, "/profiles", fiber.Map{"university_id": 999}, testutil.Bearer(t, testutil.JWT(), loner))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "UNIVERSITY_NOT_FOUND", env.Error.Code)

	status, env = testutil.Do(t, app, http.MethodPost, "/profiles", fiber.Map{"university_id": uni.ID, "visibility": "everyone"}, testutil.Bearer(t, testutil.JWT(), loner))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestProfileVisibility(t *testing.T) {
	app, db := setupApp(t, nil)
	uni := testutil.CreateUniversity(t, db, "MIT")
	owner := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	friend := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	stranger := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	admin := testutil.CreateUser(t, db, model.RoleAdmin, nil)

	hidden := createProfile(t, db, owner, model.VisibilityConnections)
	createProfile(t, db, stranger, model.VisibilityPublic)
	require.NoError(t, db.Create(&model.Connection{RequesterID: owner.ID, RecipientID: friend.ID, Status: model.ConnectionStatusAccepted}).Error)

	path := fmt.Sprintf("/profiles/%d", hidden.ID)
	status, env := testutil.Do(t, app, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PROFILE_HIDDEN", env.Error.Code)

	status, _ = testutil.Do(t, app, http.MethodGet, path, nil, testutil.Bearer(t, testutil.JWT(), stranger))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = testutil.Do(t, app, http.MethodGet, path, nil, testutil.Bearer(t, testutil.JWT(), friend))
	assert.Equal(t, http.StatusOK, status)

	var views int64
	db.Model(&model.UserActivity{}).Where("user_id = ? AND activity_type = ?", friend.ID, model.ActivityTypeProfileView).Count(&views)
	assert.Equal(t, int64(1), views)

	count := func(bearer string) int {
		status, env := testutil.Do(t, app, http.MethodGet, "/profiles", nil, bearer)
		require.Equal(t, http.StatusOK, status)
		var list []model.Profile
		env.Decode(t, &list)
		return len(list)
	}
	assert.Equal(t, 1, count(""))
	assert.Equal(t, 1, count(testutil.Bearer(t, testutil.JWT(), stranger)))
	assert.Equal(t, 2, count(testutil.Bearer(t, testutil.JWT(), friend)))
	assert.Equal(t, 2, count(testutil.Bearer(t, testutil.JWT(), admin)))
}

func TestListProfilesFilters(t *testing.T) {
	app, db := setupApp(t, nil)
	uni := testutil.CreateUniversity(t, db, "MIT")
	a := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	b := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	createProfile(t, db, a, model.VisibilityPublic, "Go", "Kubernetes")
	pb := createProfile(t, db, b, model.VisibilityPublic, "Python")
	require.NoError(t, db.Model(pb).Updates(map[string]interface{}{"is_mentor": true, "graduation_year": 2015}).Error)

	list := func(q string) []model.Profile {
		status, env := testutil.Do(t, app, http.MethodGet, "/profiles?"+q, nil, "")
		require.Equal(t, http.StatusOK, status, env.Error.Message)
		var out []model.Profile
		env.Decode(t, &out)
		return out
	}

	got := list("skill=go")
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].UserID)

	got = list("is_mentor=true&graduation_year=2015")
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].UserID)

	got = list("search=" + strings.ToLower(a.Name[:4]) + "&sortBy=name&sortOrder=asc&limit=1")
	assert.Len(t, got, 1)

	status, _ := testutil.Do(t, app, http.MethodGet, "/profiles?graduation_year=soon", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpdateAndDeleteProfile(t *testing.T) {
	app, db := setupApp(t, nil)
	uni := testutil.CreateUniversity(t, db, "MIT")
	owner := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	other := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	p := createProfile(t, db, owner, model.VisibilityPublic, "Go")
	path := fmt.Sprintf("/profiles/%d", p.ID)

	status, _ := testutil.Do(t, app, http.MethodPut, path, fiber.Map{"headline": "Hijacked"}, testutil.Bearer(t, testutil.JWT(), other))
	assert.Equal(t, http.StatusForbidden, status)

	status, env := testutil.Do(t, app, http.MethodPut, path, fiber.Map{"company": "Globex", "is_mentor": true}, testutil.Bearer(t, testutil.JWT(), owner))
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var updated model.Profile
	env.Decode(t, &updated)
	assert.Equal(t, "Globex", updated.Company)
	assert.Equal(t, "Engineer at Acme", updated.Headline)
	assert.True(t, updated.IsMentor)

	status, env = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, testutil.JWT(), owner))
	require.Equal(t, http.StatusOK, status)
	var deleted model.Profile
	env.Decode(t, &deleted)
	assert.Equal(t, p.ID, deleted.ID)

	var ops []string
	db.Model(&model.OutboxEvent{}).Where("entity_type = ? AND entity_id = ?", model.OutboxEntityProfile, p.ID).Order("id").Pluck("op", &ops)
	assert.Equal(t, []string{model.OutboxOpUpsert, model.OutboxOpDelete}, ops)
}

func TestUploadAvatar(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: 100, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	t.Run("storage not configured", func(t *testing.T) {
		app, db := setupApp(t, nil)
		uni := testutil.CreateUniversity(t, db, "MIT")
		owner := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
		p := createProfile(t, db, owner, model.VisibilityPublic)

		req := testutil.Multipart(t, http.MethodPost, fmt.Sprintf("/profiles/%d/avatar", p.ID), "avatar", "me.png", buf.Bytes(), testutil.Bearer(t, testutil.JWT(), owner))
		status, _ := testutil.DoRaw(t, app, req)
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	t.Run("stores thumbnail", func(t *testing.T) {
		store := storage.NewMemoryStore("https://cdn.test")
		app, db := setupApp(t, store)
		uni := testutil.CreateUniversity(t, db, "MIT")
		owner := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
		p := createProfile(t, db, owner, model.VisibilityPublic)
		bearer := testutil.Bearer(t, testutil.JWT(), owner)

		req := testutil.Multipart(t, http.MethodPost, fmt.Sprintf("/profiles/%d/avatar", p.ID), "avatar", "me.png", []byte("not an image"), bearer)
		status, env := testutil.DoRaw(t, app, req)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_IMAGE", env.Error.Code)

		req = testutil.Multipart(t, http.MethodPost, fmt.Sprintf("/profiles/%d/avatar", p.ID), "avatar", "me.png", buf.Bytes(), bearer)
		status, env = testutil.DoRaw(t, app, req)
		require.Equal(t, http.StatusOK, status, env.Error.Message)

		var updated model.Profile
		env.Decode(t, &updated)
		assert.True(t, strings.HasPrefix(updated.AvatarURL, "https://cdn.test/avatars/"))
		assert.Equal(t, 1, store.Len())

		key := strings.TrimPrefix(updated.AvatarURL, "https://cdn.test/")
		data, contentType, ok := store.Get(key)
		require.True(t, ok)
		assert.Equal(t, "image/jpeg", contentType)
		thumb, _, err := image.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, storage.ThumbnailSize, thumb.Bounds().Dx())
		assert.Equal(t, storage.ThumbnailSize, thumb.Bounds().Dy())
	})
}
