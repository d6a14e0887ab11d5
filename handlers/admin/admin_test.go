package admin

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/mirror"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/services/search"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	app    *fiber.App
	db     *gorm.DB
	engine *search.MemoryEngine
	admin  *model.User
	auth   string
}

func newFixture(t *testing.T, withSync bool) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	mw := middleware.NewAuthMiddleware(testutil.JWT(), db)

	var (
		worker *outbox.Worker
		engine *search.MemoryEngine
	)
	if withSync {
		engine = search.NewMemoryEngine()
		worker = outbox.NewWorker(db, mirror.NewMemoryStore(), engine)
	} else {
		worker = outbox.NewWorker(db, nil, nil)
	}
	h := NewAdminHandler(db, services.NewAnalyticsService(db), worker)

	app := fiber.New()
	a := app.Group("/admin", mw.RequireAdmin())
	a.Get("/dashboard", h.GetDashboard)
	a.Get("/users", h.ListUsers)
	a.Get("/users/stats", h.GetUserStats)
	a.Get("/users/:id", h.GetUser)
	a.Put("/users/:id", middleware.AdminAuditLog(db, "user_update", "users"), h.UpdateUser)
	a.Delete("/users/:id", middleware.AdminAuditLog(db, "user_delete", "users"), h.DeleteUser)
	a.Post("/users/:id/reset-password", middleware.AdminAuditLog(db, "user_reset_password", "users"), h.ResetUserPassword)
	a.Get("/settings", h.ListSettings)
	a.Get("/settings/:key", h.GetSetting)
	a.Post("/settings", middleware.AdminAuditLog(db, "setting_create", "settings"), h.CreateSetting)
	a.Put("/settings/:key", middleware.AdminAuditLog(db, "setting_update", "settings"), h.UpdateSetting)
	a.Delete("/settings/:key", middleware.AdminAuditLog(db, "setting_delete", "settings"), h.DeleteSetting)
	a.Get("/audit-logs", h.ListAuditLogs)
	a.Get("/audit-logs/:id", h.GetAuditLog)
	a.Get("/dead-letters", h.ListDeadLetters)
	a.Post("/dead-letters/retry", h.RetryAllDeadLetters)
	a.Post("/dead-letters/:id/retry", h.RetryDeadLetter)
	a.Post("/mirror/resync", h.ResyncMirror)

	admin := testutil.CreateUser(t, db, model.RoleAdmin, nil)
	return &fixture{app: app, db: db, engine: engine, admin: admin, auth: testutil.Bearer(t, testutil.JWT(), admin)}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newFixture(t, false)
	uni := testutil.CreateUniversity(t, f.db, "MIT")
	uniAdmin := testutil.CreateUser(t, f.db, model.RoleUniversityAdmin, &uni.ID)

	status, _ := testutil.Do(t, f.app, http.MethodGet, "/admin/dashboard", nil, testutil.Bearer(t, testutil.JWT(), uniAdmin))
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = testutil.Do(t, f.app, http.MethodGet, "/admin/dashboard", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, false)
	mit := testutil.CreateUniversity(t, f.db, "MIT")
	cmu := testutil.CreateUniversity(t, f.db, "CMU")
	testutil.CreateUser(t, f.db, model.RoleAlumni, &mit.ID)
	testutil.CreateUser(t, f.db, model.RoleAlumni, &mit.ID)
	testutil.CreateUser(t, f.db, model.RoleStudent, &cmu.ID)

	status, env := testutil.Do(t, f.app, http.MethodGet, "/admin/dashboard", nil, f.auth)
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var d Dashboard
	env.Decode(t, &d)
	require.NotNil(t, d.DashboardStats)
	assert.Equal(t, int64(4), d.TotalUsers)
	assert.Equal(t, int64(2), d.TotalUniversities)
	require.NotEmpty(t, d.TopUniversities)
	assert.Equal(t, mit.ID, d.TopUniversities[0].UniversityID)
	assert.Equal(t, int64(2), d.TopUniversities[0].Members)

	var alumni int64
	for _, rc := range d.UsersByRole {
		if rc.Role == model.RoleAlumni {
			alumni = rc.Count
		}
	}
	assert.Equal(t, int64(2), alumni)
}

func TestManageUsers(t *testing.T) {
	f := newFixture(t, false)
	uni := testutil.CreateUniversity(t, f.db, "MIT")
	alum := testutil.CreateUser(t, f.db, model.RoleAlumni, &uni.ID)
	other := testutil.CreateUser(t, f.db, model.RoleStudent, nil)
	path := fmt.Sprintf("/admin/users/%d", alum.ID)

	status, env := testutil.Do(t, f.app, http.MethodGet, "/admin/users?role=alumni", nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), env.Pagination["total"])

	status, env = testutil.Do(t, f.app, http.MethodGet, path, nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	var detail UserDetail
	env.Decode(t, &detail)
	assert.Equal(t, alum.Email, detail.Email)

	status, env = testutil.Do(t, f.app, http.MethodPut, path, fiber.Map{"email": other.Email}, f.auth)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "EMAIL_EXISTS", env.Error.Code)

	status, env = testutil.Do(t, f.app, http.MethodPut, fmt.Sprintf("/admin/users/%d", other.ID), fiber.Map{"role": "university_admin"}, f.auth)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "UNIVERSITY_REQUIRED", env.Error.Code)

	// promotion invalidates the old token
	oldToken := testutil.Bearer(t, testutil.JWT(), alum)
	status, env = testutil.Do(t, f.app, http.MethodPut, path, fiber.Map{"role": "university_admin", "name": "Dean"}, f.auth)
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var updated model.User
	require.NoError(t, f.db.First(&updated, alum.ID).Error)
	assert.Equal(t, model.RoleUniversityAdmin, updated.Role)
	assert.Equal(t, "Dean", updated.Name)
	assert.Equal(t, alum.TokenVersion+1, updated.TokenVersion)
	status, _ = testutil.Do(t, f.app, http.MethodGet, "/admin/dashboard", nil, oldToken)
	assert.Equal(t, http.StatusUnauthorized, status)

	var events int64
	require.NoError(t, f.db.Model(&model.OutboxEvent{}).Where("entity_type = ? AND entity_id = ?", model.OutboxEntityUser, alum.ID).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	status, _ = testutil.Do(t, f.app, http.MethodPut, fmt.Sprintf("/admin/users/%d", f.admin.ID), fiber.Map{"is_active": false}, f.auth)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = testutil.Do(t, f.app, http.MethodDelete, fmt.Sprintf("/admin/users/%d", f.admin.ID), nil, f.auth)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = testutil.Do(t, f.app, http.MethodPost, path+"/reset-password", fiber.Map{"new_password": "short"}, f.auth)
	assert.Equal(t, http.StatusBadRequest, status)
	status, env = testutil.Do(t, f.app, http.MethodPost, path+"/reset-password", fiber.Map{"new_password": "Sturdy-Passw0rd!"}, f.auth)
	require.Equal(t, http.StatusOK, status, env.Error.Message)

	status, _ = testutil.Do(t, f.app, http.MethodDelete, path, nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	status, _ = testutil.Do(t, f.app, http.MethodGet, path, nil, f.auth)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = testutil.Do(t, f.app, http.MethodGet, "/admin/users/stats", nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	var stats UserStats
	env.Decode(t, &stats)
	assert.Equal(t, int64(2), stats.TotalUsers)

	assert.Eventually(t, func() bool {
		var n int64
		f.db.Model(&model.AdminAuditLog{}).Where("resource = ? AND resource_id = ?", "users", alum.ID).Count(&n)
		return n >= 4
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSettingsCRUD(t *testing.T) {
	f := newFixture(t, false)

	status, env := testutil.Do(t, f.app, http.MethodPost, "/admin/settings", fiber.Map{
		"key": "gamification.points.message_sent", "value": "two", "type": "int",
	}, f.auth)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SETTING_VALUE", env.Error.Code)

	status, env = testutil.Do(t, f.app, http.MethodPost, "/admin/settings", fiber.Map{
		"key": "gamification.points.message_sent", "value": "2", "type": "int", "category": "gamification",
	}, f.auth)
	require.Equal(t, http.StatusCreated, status, env.Error.Message)

	status, env = testutil.Do(t, f.app, http.MethodPost, "/admin/settings", fiber.Map{"key": "gamification.points.message_sent", "value": "3"}, f.auth)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SETTING_EXISTS", env.Error.Code)

	path := "/admin/settings/gamification.points.message_sent"
	status, env = testutil.Do(t, f.app, http.MethodPut, path, fiber.Map{"value": "4"}, f.auth)
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var setting model.AppSetting
	env.Decode(t, &setting)
	assert.Equal(t, "4", setting.Value)
	require.NotNil(t, setting.UpdatedBy)
	assert.Equal(t, f.admin.ID, *setting.UpdatedBy)

	status, env = testutil.Do(t, f.app, http.MethodGet, "/admin/settings?category=gamification", nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), env.Pagination["total"])

	var audited model.AdminAuditLog
	require.Eventually(t, func() bool {
		return f.db.Where("action = ?", "setting_update").First(&audited).Error == nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, setting.ID, audited.ResourceID)
	assert.Contains(t, string(audited.OldValue), `"value":"2"`)

	status, env = testutil.Do(t, f.app, http.MethodGet, fmt.Sprintf("/admin/audit-logs/%d", audited.ID), nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	status, env = testutil.Do(t, f.app, http.MethodGet, "/admin/audit-logs?resource=settings&action=setting_update", nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), env.Pagination["total"])

	status, _ = testutil.Do(t, f.app, http.MethodDelete, path, nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	status, _ = testutil.Do(t, f.app, http.MethodGet, path, nil, f.auth)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeadLettersAndResync(t *testing.T) {
	f := newFixture(t, true)
	uni := testutil.CreateUniversity(t, f.db, "MIT")
	poster := testutil.CreateUser(t, f.db, model.RoleAlumni, &uni.ID)
	job := model.JobPosting{UniversityID: uni.ID, PostedBy: poster.ID, Title: "Go Developer", Company: "Acme", Type: model.JobTypeFullTime, Status: model.JobStatusOpen}
	require.NoError(t, f.db.Create(&job).Error)

	letter := model.OutboxDeadLetter{EntityType: model.OutboxEntityJob, EntityID: job.ID, Op: model.OutboxOpUpsert, ErrorMsg: "cluster unavailable", Attempts: 5}
	require.NoError(t, f.db.Create(&letter).Error)

	status, env := testutil.Do(t, f.app, http.MethodGet, "/admin/dead-letters?entity_type=job", nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), env.Pagination["total"])

	status, env = testutil.Do(t, f.app, http.MethodPost, fmt.Sprintf("/admin/dead-letters/%d/retry", letter.ID), nil, f.auth)
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	_, indexed := f.engine.Doc(search.IdxJobs, fmt.Sprint(job.ID))
	assert.True(t, indexed)

	status, _ = testutil.Do(t, f.app, http.MethodPost, fmt.Sprintf("/admin/dead-letters/%d/retry", letter.ID), nil, f.auth)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = testutil.Do(t, f.app, http.MethodGet, "/admin/dead-letters?resolved=true", nil, f.auth)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), env.Pagination["total"])

	status, env = testutil.Do(t, f.app, http.MethodPost, "/admin/mirror/resync", nil, f.auth)
	require.Equal(t, http.StatusAccepted, status, env.Error.Message)
	var queued struct {
		Queued int `json:"queued"`
	}
	env.Decode(t, &queued)
	// university, two users and the job
	assert.Equal(t, 4, queued.Queued)
}

func TestSyncEndpointsWithoutTargets(t *testing.T) {
	f := newFixture(t, false)

	status, _ := testutil.Do(t, f.app, http.MethodPost, "/admin/mirror/resync", nil, f.auth)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	status, _ = testutil.Do(t, f.app, http.MethodPost, "/admin/dead-letters/retry", nil, f.auth)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
