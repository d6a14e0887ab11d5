package university

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	jwt := testutil.JWT()
	mw := middleware.NewAuthMiddleware(jwt, db)
	h := NewUniversityHandler(db)

	app := fiber.New()
	app.Get("/universities", h.ListUniversities)
	app.Get("/universities/:id", h.GetUniversity)
	app.Post("/universities", mw.Required(), h.CreateUniversity)
	app.Put("/universities/:id", mw.Required(), h.UpdateUniversity)
	app.Delete("/universities/:id", mw.Required(), h.DeleteUniversity)
	return app, db
}

func TestCreateUniversityRequiresAdmin(t *testing.T) {
	app, db := setupApp(t)
	admin := testutil.CreateUser(t, db, model.RoleAdmin, nil)
	student := testutil.CreateUser(t, db, model.RoleStudent, nil)
	body := fiber.Map{"name": "Stanford University", "code": "STAN", "domain": "stanford.edu", "settings": fiber.Map{"theme": "red"}}

	status, _ := testutil.Do(t, app, http.MethodPost, "/universities", body, testutil.Bearer(t, testutil.JWT(), student))
	assert.Equal(t, http.StatusForbidden, status)

	status, env := testutil.Do(t, app, http.MethodPost, "/universities", body, testutil.Bearer(t, testutil.JWT(), admin))
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	var created model.University
	env.Decode(t, &created)
	assert.Equal(t, "STAN", created.Code)
	assert.JSONEq(t, `{"theme":"red"}`, string(created.Settings))

	status, env = testutil.Do(t, app, http.MethodPost, "/universities", fiber.Map{"name": "Other Name", "code": "STAN"}, testutil.Bearer(t, testutil.JWT(), admin))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "UNIVERSITY_CODE_EXISTS", env.Error.Code)

	status, env = testutil.Do(t, app, http.MethodPost, "/universities", fiber.Map{"name": "Lower Case", "code": "bad code"}, testutil.Bearer(t, testutil.JWT(), admin))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	var events int64
	db.Model(&model.OutboxEvent{}).Where("entity_type = ? AND entity_id = ?", model.OutboxEntityUniversity, created.ID).Count(&events)
	assert.Equal(t, int64(1), events)
}

func TestListUniversities(t *testing.T) {
	app, db := setupApp(t)
	testutil.CreateUniversity(t, db, "MIT")
	harvard := testutil.CreateUniversity(t, db, "HARV")
	require.NoError(t, db.Model(harvard).Update("is_active", false).Error)

	status, env := testutil.Do(t, app, http.MethodGet, "/universities?is_active=true", nil, "")
	require.Equal(t, http.StatusOK, status)
	var list []model.University
	env.Decode(t, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "MIT", list[0].Code)
	assert.EqualValues(t, 1, env.Pagination["total"])

	status, env = testutil.Do(t, app, http.MethodGet, "/universities?search=harv", nil, "")
	require.Equal(t, http.StatusOK, status)
	var found []model.University
	env.Decode(t, &found)
	require.Len(t, found, 1)
	assert.Equal(t, "HARV", found[0].Code)

	status, env = testutil.Do(t, app, http.MethodGet, "/universities?sortBy=password", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_QUERY", env.Error.Code)

	status, env = testutil.Do(t, app, http.MethodGet, "/universities?id=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ID", env.Error.Code)

	status, env = testutil.Do(t, app, http.MethodGet, "/universities?id=9999", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestUpdateUniversityByItsAdmin(t *testing.T) {
	app, db := setupApp(t)
	mit := testutil.CreateUniversity(t, db, "MIT")
	other := testutil.CreateUniversity(t, db, "CMU")
	require.NoError(t, db.Model(mit).Update("settings", datatypes.JSON(`{"theme":"blue","motto":"x"}`)).Error)

	manager := testutil.CreateUser(t, db, model.RoleUniversityAdmin, &mit.ID)
	bearer := testutil.Bearer(t, testutil.JWT(), manager)

	status, _ := testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/universities/%d", other.ID), fiber.Map{"location": "Pittsburgh"}, bearer)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/universities/%d", mit.ID), fiber.Map{
		"location": "Cambridge",
		"settings": fiber.Map{"theme": "green", "motto": nil},
	}, bearer)
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var updated model.University
	env.Decode(t, &updated)
	assert.Equal(t, "Cambridge", updated.Location)
	assert.Equal(t, "MIT University", updated.Name)
	assert.JSONEq(t, `{"theme":"green"}`, string(updated.Settings))

	status, env = testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/universities/%d", mit.ID), fiber.Map{"code": "CMU"}, bearer)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "UNIVERSITY_CODE_EXISTS", env.Error.Code)

	status, _ = testutil.Do(t, app, http.MethodPut, fmt.Sprintf("/universities/%d", mit.ID), fiber.Map{"is_active": false}, bearer)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestDeleteUniversityReturnsRow(t *testing.T) {
	app, db := setupApp(t)
	mit := testutil.CreateUniversity(t, db, "MIT")
	admin := testutil.CreateUser(t, db, model.RoleAdmin, nil)

	status, env := testutil.Do(t, app, http.MethodDelete, fmt.Sprintf("/universities/%d", mit.ID), nil, testutil.Bearer(t, testutil.JWT(), admin))
	require.Equal(t, http.StatusOK, status)
	var deleted model.University
	env.Decode(t, &deleted)
	assert.Equal(t, "MIT", deleted.Code)

	status, _ = testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/universities/%d", mit.ID), nil, "")
	assert.Equal(t, http.StatusNotFound, status)

	var ops []string
	db.Model(&model.OutboxEvent{}).Where("entity_id = ?", mit.ID).Pluck("op", &ops)
	assert.Contains(t, ops, model.OutboxOpDelete)
}

func TestMergeSettings(t *testing.T) {
	merged, err := MergeSettings(nil, map[string]interface{}{"a": 1.0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(merged))

	_, err = MergeSettings(datatypes.JSON(`[1,2]`), map[string]interface{}{"a": 1.0})
	assert.Error(t, err)

	merged, err = MergeSettings(datatypes.JSON(`{"a":1,"b":{"c":true}}`), map[string]interface{}{"a": nil})
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(merged, &out))
	assert.Equal(t, map[string]interface{}{"b": map[string]interface{}{"c": true}}, out)
}
