package analytics

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupApp(t *testing.T) (*fiber.App, *gorm.DB, *services.AnalyticsService) {
	t.Helper()
	db := testutil.NewDB(t)
	mw := middleware.NewAuthMiddleware(testutil.JWT(), db)
	svc := services.NewAnalyticsService(db)
	h := NewAnalyticsHandler(db, svc)

	app := fiber.New()
	a := app.Group("/analytics", mw.Required())
	a.Get("/me", h.GetMyStats)
	a.Get("/universities/:id", h.GetUniversityStats)
	app.Get("/admin/analytics/activity", mw.Required(), mw.RequireAdmin(), h.GetActivityTimeSeries)
	return app, db, svc
}

func TestMyStats(t *testing.T) {
	app, db, _ := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	me := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	friend := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	stranger := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)

	require.NoError(t, db.Create(&model.Connection{RequesterID: me.ID, RecipientID: friend.ID, Status: model.ConnectionStatusAccepted}).Error)
	require.NoError(t, db.Create(&model.Connection{RequesterID: stranger.ID, RecipientID: me.ID, Status: model.ConnectionStatusPending}).Error)
	require.NoError(t, db.Create(&model.PointTransaction{UserID: me.ID, Action: model.PointActionConnectionAccepted, Points: 120}).Error)

	status, env := testutil.Do(t, app, http.MethodGet, "/analytics/me", nil, testutil.Bearer(t, testutil.JWT(), me))
	require.Equal(t, http.StatusOK, status)
	var stats services.UserStats
	env.Decode(t, &stats)
	assert.Equal(t, int64(1), stats.Connections)
	assert.Equal(t, int64(1), stats.PendingRequests)
	assert.Equal(t, 120, stats.Points)
	assert.Equal(t, 2, stats.Level)
}

func TestUniversityStatsAccess(t *testing.T) {
	app, db, _ := setupApp(t)
	mit := testutil.CreateUniversity(t, db, "MIT")
	cmu := testutil.CreateUniversity(t, db, "CMU")
	member := testutil.CreateUser(t, db, model.RoleAlumni, &mit.ID)
	outsider := testutil.CreateUser(t, db, model.RoleAlumni, &cmu.ID)
	admin := testutil.CreateUser(t, db, model.RoleAdmin, nil)
	jwt := testutil.JWT()

	require.NoError(t, db.Create(&model.Profile{UserID: member.ID, UniversityID: mit.ID, GraduationYear: 2019, Company: "Acme"}).Error)
	require.NoError(t, db.Create(&model.JobPosting{
		UniversityID: mit.ID, PostedBy: member.ID, Title: "SRE", Company: "Acme", Type: model.JobTypeFullTime, Status: model.JobStatusOpen,
	}).Error)
	require.NoError(t, db.Create(&model.CurriculumFeedback{UniversityID: mit.ID, UserID: member.ID, CourseName: "OS", Rating: 4}).Error)

	path := fmt.Sprintf("/analytics/universities/%d", mit.ID)
	status, env := testutil.Do(t, app, http.MethodGet, path, nil, testutil.Bearer(t, jwt, member))
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var stats services.UniversityStats
	env.Decode(t, &stats)
	assert.Equal(t, int64(1), stats.Members)
	assert.Equal(t, int64(1), stats.OpenJobs)
	assert.Equal(t, 4.0, stats.FeedbackAverage)
	require.Len(t, stats.TopCompanies, 1)
	assert.Equal(t, "Acme", stats.TopCompanies[0].Company)

	status, _ = testutil.Do(t, app, http.MethodGet, path, nil, testutil.Bearer(t, jwt, outsider))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = testutil.Do(t, app, http.MethodGet, path, nil, testutil.Bearer(t, jwt, admin))
	assert.Equal(t, http.StatusOK, status)
	status, _ = testutil.Do(t, app, http.MethodGet, "/analytics/universities/9999", nil, testutil.Bearer(t, jwt, admin))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestActivityTimeSeries(t *testing.T) {
	app, db, svc := setupApp(t)
	user := testutil.CreateUser(t, db, model.RoleAlumni, nil)
	admin := testutil.CreateUser(t, db, model.RoleAdmin, nil)
	jwt := testutil.JWT()

	ctx := context.Background()
	require.NoError(t, svc.LogActivity(ctx, user.ID, model.ActivityTypeLogin, "", 0, "127.0.0.1", "test"))
	require.NoError(t, svc.LogActivity(ctx, user.ID, model.ActivityTypeSearch, "profile", 0, "127.0.0.1", "test"))
	require.NoError(t, db.Model(&model.UserActivity{}).Where("activity_type = ?", model.ActivityTypeSearch).
		Update("created_at", time.Now().AddDate(0, 0, -60)).Error)

	status, _ := testutil.Do(t, app, http.MethodGet, "/admin/analytics/activity", nil, testutil.Bearer(t, jwt, user))
	assert.Equal(t, http.StatusForbidden, status)

	status, env := testutil.Do(t, app, http.MethodGet, "/admin/analytics/activity?days=7", nil, testutil.Bearer(t, jwt, admin))
	require.Equal(t, http.StatusOK, status)
	var series []services.TimeSeriesPoint
	env.Decode(t, &series)
	require.Len(t, series, 1)
	assert.Equal(t, int64(1), series[0].Count)

	status, _ = testutil.Do(t, app, http.MethodGet, "/admin/analytics/activity?type=bogus", nil, testutil.Bearer(t, jwt, admin))
	assert.Equal(t, http.StatusBadRequest, status)
}
