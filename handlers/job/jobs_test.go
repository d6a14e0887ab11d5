package job

import (
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

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	mw := middleware.NewAuthMiddleware(testutil.JWT(), db)
	h := NewJobHandler(db, services.NewNotificationService(db), services.NewGamificationService(db, nil))

	app := fiber.New()
	jobs := app.Group("/jobs")
	jobs.Get("/", mw.Optional(), h.ListJobs)
	jobs.Get("/:id", mw.Optional(), h.GetJob)
	jobs.Post("/", mw.Required(), mw.RequireRole(model.RoleAlumni, model.RoleFaculty, model.RoleUniversityAdmin, model.RoleAdmin), h.CreateJob)
	jobs.Put("/:id", mw.Required(), h.UpdateJob)
	jobs.Delete("/:id", mw.Required(), h.DeleteJob)

	apps := app.Group("/job-applications", mw.Required())
	apps.Get("/", h.ListApplications)
	apps.Get("/:id", h.GetApplication)
	apps.Post("/", h.CreateApplication)
	apps.Put("/:id", h.UpdateApplication)
	apps.Delete("/:id", h.DeleteApplication)
	return app, db
}

func createJob(t *testing.T, app *fiber.App, auth string, body fiber.Map) model.JobPosting {
	t.Helper()
	status, env := testutil.Do(t, app, http.MethodPost, "/jobs", body, auth)
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	var job model.JobPosting
	env.Decode(t, &job)
	return job
}

func TestCreateJobPermissions(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	other := testutil.CreateUniversity(t, db, "CMU")
	student := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	alum := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	jwt := testutil.JWT()
	body := fiber.Map{"title": "Backend Engineer", "company": "Acme", "type": "full_time"}

	status, _ := testutil.Do(t, app, http.MethodPost, "/jobs", body, testutil.Bearer(t, jwt, student))
	assert.Equal(t, http.StatusForbidden, status)

	job := createJob(t, app, testutil.Bearer(t, jwt, alum), body)
	assert.Equal(t, uni.ID, job.UniversityID)
	assert.Equal(t, alum.ID, job.PostedBy)
	assert.Equal(t, model.JobStatusOpen, job.Status)

	var events int64
	require.NoError(t, db.Model(&model.OutboxEvent{}).Where("entity_type = ? AND entity_id = ?", model.OutboxEntityJob, job.ID).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	status, _ = testutil.Do(t, app, http.MethodPost, "/jobs", fiber.Map{
		"title": "Backend Engineer", "company": "Acme", "type": "full_time", "university_id": other.ID,
	}, testutil.Bearer(t, jwt, alum))
	assert.Equal(t, http.StatusForbidden, status)

	status, env := testutil.Do(t, app, http.MethodPost, "/jobs", fiber.Map{
		"title": "Backend Engineer", "company": "Acme", "type": "full_time", "salary_min": 100, "salary_max": 50,
	}, testutil.Bearer(t, jwt, alum))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SALARY_RANGE", env.Error.Code)

	status, _ = testutil.Do(t, app, http.MethodPost, "/jobs", fiber.Map{"title": "Backend Engineer", "company": "Acme", "type": "gig"}, testutil.Bearer(t, jwt, alum))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListJobsFilters(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	alum := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	auth := testutil.Bearer(t, testutil.JWT(), alum)

	createJob(t, app, auth, fiber.Map{"title": "Go Developer", "company": "Acme", "location": "Boston", "type": "full_time", "tags": []string{"Go", "go", "Backend"}, "salary_min": 90000, "salary_max": 120000})
	createJob(t, app, auth, fiber.Map{"title": "Design Intern", "company": "Globex", "location": "Remote", "type": "internship", "salary_min": 20000, "salary_max": 30000})
	createJob(t, app, auth, fiber.Map{"title": "Draft Role", "company": "Initech", "type": "contract", "status": "draft"})

	cases := []struct {
		query string
		total float64
	}{
		{"", 2},
		{"?type=internship", 1},
		{"?company=acme", 1},
		{"?location=bos", 1},
		{"?tag=backend", 1},
		{"?salary_min=100000", 1},
		{"?salary_max=50000", 1},
		{"?search=developer", 1},
		{fmt.Sprintf("?university_id=%d", uni.ID), 2},
		{"?status=draft", 1},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			status, env := testutil.Do(t, app, http.MethodGet, "/jobs"+tc.query, nil, "")
			require.Equal(t, http.StatusOK, status, env.Error.Message)
			assert.Equal(t, tc.total, env.Pagination["total"])
		})
	}

	// the poster sees their own draft
	status, env := testutil.Do(t, app, http.MethodGet, "/jobs", nil, auth)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), env.Pagination["total"])

	var jobs []model.JobPosting
	status, env = testutil.Do(t, app, http.MethodGet, "/jobs?tag=go", nil, "")
	require.Equal(t, http.StatusOK, status)
	env.Decode(t, &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"go", "backend"}, []string(jobs[0].Tags))

	status, _ = testutil.Do(t, app, http.MethodGet, "/jobs?type=gig", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpdateAndDeleteJob(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	alum := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	other := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	jwt := testutil.JWT()

	job := createJob(t, app, testutil.Bearer(t, jwt, alum), fiber.Map{"title": "Go Developer", "company": "Acme", "type": "full_time"})
	path := fmt.Sprintf("/jobs/%d", job.ID)

	status, _ := testutil.Do(t, app, http.MethodPut, path, fiber.Map{"status": "closed"}, testutil.Bearer(t, jwt, other))
	assert.Equal(t, http.StatusForbidden, status)

	status, env := testutil.Do(t, app, http.MethodPut, path, fiber.Map{"status": "closed", "location": "  NYC "}, testutil.Bearer(t, jwt, alum))
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	env.Decode(t, &job)
	assert.Equal(t, model.JobStatusClosed, job.Status)
	assert.Equal(t, "NYC", job.Location)
	assert.Equal(t, "Acme", job.Company)

	status, env = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, jwt, alum))
	require.Equal(t, http.StatusOK, status)
	var deleted model.JobPosting
	env.Decode(t, &deleted)
	assert.Equal(t, job.ID, deleted.ID)

	status, _ = testutil.Do(t, app, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestApplicationFlow(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	poster := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	applicant := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	stranger := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	jwt := testutil.JWT()

	job := createJob(t, app, testutil.Bearer(t, jwt, poster), fiber.Map{"title": "Go Developer", "company": "Acme", "type": "full_time"})

	status, env := testutil.Do(t, app, http.MethodPost, "/job-applications", fiber.Map{"job_id": job.ID, "cover_letter": "Hire me"}, testutil.Bearer(t, jwt, applicant))
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	var application model.JobApplication
	env.Decode(t, &application)
	assert.Equal(t, model.ApplicationStatusSubmitted, application.Status)
	path := fmt.Sprintf("/job-applications/%d", application.ID)

	status, env = testutil.Do(t, app, http.MethodPost, "/job-applications", fiber.Map{"job_id": job.ID}, testutil.Bearer(t, jwt, applicant))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_APPLIED", env.Error.Code)

	var stored model.JobPosting
	require.NoError(t, db.First(&stored, job.ID).Error)
	assert.Equal(t, 1, stored.ApplicationCount)

	var points int64
	require.NoError(t, db.Model(&model.PointTransaction{}).Where("user_id = ? AND action = ?", applicant.ID, model.PointActionJobApplication).Count(&points).Error)
	assert.Equal(t, int64(1), points)

	var notes int64
	require.NoError(t, db.Model(&model.UserNotification{}).Where("user_id = ? AND category = ?", poster.ID, model.NotificationCategoryJob).Count(&notes).Error)
	assert.Equal(t, int64(1), notes)

	// both sides see it, nobody else does
	for _, u := range []*model.User{poster, applicant} {
		status, env = testutil.Do(t, app, http.MethodGet, "/job-applications", nil, testutil.Bearer(t, jwt, u))
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(1), env.Pagination["total"])
	}
	status, env = testutil.Do(t, app, http.MethodGet, "/job-applications", nil, testutil.Bearer(t, jwt, stranger))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), env.Pagination["total"])
	status, _ = testutil.Do(t, app, http.MethodGet, path, nil, testutil.Bearer(t, jwt, stranger))
	assert.Equal(t, http.StatusNotFound, status)

	// the applicant cannot move their own application along
	status, _ = testutil.Do(t, app, http.MethodPut, path, fiber.Map{"status": "hired"}, testutil.Bearer(t, jwt, applicant))
	assert.Equal(t, http.StatusForbidden, status)

	status, env = testutil.Do(t, app, http.MethodPut, path, fiber.Map{"status": "shortlisted", "notes": "strong"}, testutil.Bearer(t, jwt, poster))
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	env.Decode(t, &application)
	assert.Equal(t, model.ApplicationStatusShortlisted, application.Status)
	assert.Equal(t, "strong", application.Notes)

	status, env = testutil.Do(t, app, http.MethodPut, path, fiber.Map{"cover_letter": "edited"}, testutil.Bearer(t, jwt, applicant))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "APPLICATION_IN_REVIEW", env.Error.Code)

	status, env = testutil.Do(t, app, http.MethodPut, path, fiber.Map{"status": "withdrawn"}, testutil.Bearer(t, jwt, applicant))
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	env.Decode(t, &application)
	assert.Equal(t, model.ApplicationStatusWithdrawn, application.Status)

	status, _ = testutil.Do(t, app, http.MethodPut, path, fiber.Map{"status": "reviewing"}, testutil.Bearer(t, jwt, poster))
	assert.Equal(t, http.StatusConflict, status)

	status, _ = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, jwt, poster))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, jwt, applicant))
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, db.First(&stored, job.ID).Error)
	assert.Equal(t, 0, stored.ApplicationCount)
}

func TestApplicationRejectedWhenJobClosed(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	poster := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	applicant := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	jwt := testutil.JWT()

	closed := model.JobPosting{UniversityID: uni.ID, PostedBy: poster.ID, Title: "Closed", Company: "Acme", Type: model.JobTypeContract, Status: model.JobStatusClosed}
	require.NoError(t, db.Create(&closed).Error)
	past := time.Now().Add(-48 * time.Hour)
	expired := model.JobPosting{UniversityID: uni.ID, PostedBy: poster.ID, Title: "Expired", Company: "Acme", Type: model.JobTypeContract, Status: model.JobStatusOpen, Deadline: &past}
	require.NoError(t, db.Create(&expired).Error)

	for _, job := range []model.JobPosting{closed, expired} {
		status, env := testutil.Do(t, app, http.MethodPost, "/job-applications", fiber.Map{"job_id": job.ID}, testutil.Bearer(t, jwt, applicant))
		assert.Equal(t, http.StatusBadRequest, status, job.Title)
		assert.Equal(t, "JOB_CLOSED", env.Error.Code, job.Title)
	}

	status, env := testutil.Do(t, app, http.MethodPost, "/job-applications", fiber.Map{"job_id": closed.ID}, testutil.Bearer(t, jwt, poster))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "OWN_JOB", env.Error.Code)

	status, _ = testutil.Do(t, app, http.MethodPost, "/job-applications", fiber.Map{"job_id": 9999}, testutil.Bearer(t, jwt, applicant))
	assert.Equal(t, http.StatusNotFound, status)
}
