package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NagallaThanvi/unilink/api"
	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/mirror"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/services/search"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	notifications := services.NewNotificationService(db)
	gamification := services.NewGamificationService(db, nil)
	mirrorStore := mirror.NewMemoryStore()
	engine := search.NewMemoryEngine()

	server := api.NewAPIServer(":0")
	app := server.GetEngine()
	SetupRoutes(app, Dependencies{
		DB:             db,
		JWT:            testutil.JWT(),
		Mirror:         mirrorStore,
		Search:         engine,
		Outbox:         outbox.NewWorker(db, mirrorStore, engine),
		Notifications:  notifications,
		Gamification:   gamification,
		Connections:    services.NewConnectionService(db, notifications, gamification),
		Credentials:    services.NewCredentialService(db, nil, nil, gamification, notifications),
		Newsletters:    services.NewNewsletterService(db, nil, "https://unilink.test"),
		Analytics:      services.NewAnalyticsService(db),
		AllowedOrigins: "*",
		DisableLogger:  true,
	})
	return app, db
}

func TestPublicEndpoints(t *testing.T) {
	app, _ := newApp(t)

	status, _ := testutil.Do(t, app, http.MethodGet, "/ping", nil, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = testutil.Do(t, app, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, status)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, env := testutil.Do(t, app, http.MethodGet, "/api/does-not-exist", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, _ = testutil.Do(t, app, http.MethodGet, "/api/search?q=ada", nil, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = testutil.Do(t, app, http.MethodGet, "/api/mirror/universities", nil, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestRouteProtection(t *testing.T) {
	app, db := newApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	alum := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	uniAdmin := testutil.CreateUser(t, db, model.RoleUniversityAdmin, &uni.ID)
	admin := testutil.CreateUser(t, db, model.RoleAdmin, nil)
	jwt := testutil.JWT()

	status, _ := testutil.Do(t, app, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = testutil.Do(t, app, http.MethodGet, "/api/auth/me", nil, testutil.Bearer(t, jwt, alum))
	assert.Equal(t, http.StatusOK, status)

	// Subscribing needs no account even though the rest of the group is managed
	status, _ = testutil.Do(t, app, http.MethodPost, "/api/newsletters/subscribe",
		fiber.Map{"university_id": uni.ID, "email": "reader@example.com"}, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = testutil.Do(t, app, http.MethodGet, "/api/newsletters", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = testutil.Do(t, app, http.MethodGet, "/api/newsletters", nil, testutil.Bearer(t, jwt, alum))
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = testutil.Do(t, app, http.MethodGet, "/api/newsletters", nil, testutil.Bearer(t, jwt, uniAdmin))
	assert.Equal(t, http.StatusOK, status)

	status, _ = testutil.Do(t, app, http.MethodGet, "/api/admin/dashboard", nil, testutil.Bearer(t, jwt, uniAdmin))
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = testutil.Do(t, app, http.MethodGet, "/api/admin/dashboard", nil, testutil.Bearer(t, jwt, admin))
	assert.Equal(t, http.StatusOK, status)
	status, _ = testutil.Do(t, app, http.MethodGet, "/api/admin/users/stats", nil, testutil.Bearer(t, jwt, admin))
	assert.Equal(t, http.StatusOK, status)

	status, _ = testutil.Do(t, app, http.MethodPost, "/api/jobs",
		fiber.Map{"title": "Engineer"}, testutil.Bearer(t, jwt, testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/api/analytics/universities/%d", uni.ID), nil, testutil.Bearer(t, jwt, alum))
	assert.Equal(t, http.StatusOK, status)
}
