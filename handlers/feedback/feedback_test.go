package feedback

import (
	"fmt"
	"net/http"
	"testing"

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
	h := NewFeedbackHandler(db, services.NewGamificationService(db, nil))

	app := fiber.New()
	g := app.Group("/curriculum-feedback")
	g.Get("/summary", h.Summary)
	g.Get("/", mw.Optional(), h.ListFeedback)
	g.Get("/:id", mw.Optional(), h.GetFeedback)
	g.Post("/", mw.Required(), h.CreateFeedback)
	g.Put("/:id", mw.Required(), h.UpdateFeedback)
	g.Delete("/:id", mw.Required(), h.DeleteFeedback)
	return app, db
}

func submit(t *testing.T, app *fiber.App, auth string, body fiber.Map) model.CurriculumFeedback {
	t.Helper()
	status, env := testutil.Do(t, app, http.MethodPost, "/curriculum-feedback", body, auth)
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	var entry model.CurriculumFeedback
	env.Decode(t, &entry)
	return entry
}

func TestCreateFeedback(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	other := testutil.CreateUniversity(t, db, "CMU")
	alum := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	auth := testutil.Bearer(t, testutil.JWT(), alum)

	entry := submit(t, app, auth, fiber.Map{"course_name": "Algorithms", "rating": 4, "graduation_year": 2020})
	assert.Equal(t, uni.ID, entry.UniversityID)

	status, env := testutil.Do(t, app, http.MethodPost, "/curriculum-feedback", fiber.Map{"course_name": "algorithms", "rating": 5}, auth)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "FEEDBACK_EXISTS", env.Error.Code)

	status, _ = testutil.Do(t, app, http.MethodPost, "/curriculum-feedback", fiber.Map{"course_name": "Compilers", "rating": 6}, auth)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = testutil.Do(t, app, http.MethodPost, "/curriculum-feedback", fiber.Map{"course_name": "Compilers", "rating": 3, "university_id": other.ID}, auth)
	assert.Equal(t, http.StatusForbidden, status)

	var points int64
	require.NoError(t, db.Model(&model.PointTransaction{}).Where("user_id = ? AND action = ?", alum.ID, model.PointActionFeedbackSubmitted).Count(&points).Error)
	assert.Equal(t, int64(1), points)
}

func TestAnonymousFeedbackHidesAuthor(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	author := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	reader := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	admin := testutil.CreateUser(t, db, model.RoleAdmin, nil)
	jwt := testutil.JWT()

	entry := submit(t, app, testutil.Bearer(t, jwt, author), fiber.Map{"course_name": "Databases", "rating": 2, "is_anonymous": true})
	path := fmt.Sprintf("/curriculum-feedback/%d", entry.ID)

	cases := []struct {
		name   string
		auth   string
		hidden bool
	}{
		{"anonymous reader", "", true},
		{"other member", testutil.Bearer(t, jwt, reader), true},
		{"author", testutil.Bearer(t, jwt, author), false},
		{"admin", testutil.Bearer(t, jwt, admin), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := testutil.Do(t, app, http.MethodGet, path, nil, tc.auth)
			require.Equal(t, http.StatusOK, status)
			var got model.CurriculumFeedback
			env.Decode(t, &got)
			if tc.hidden {
				assert.Zero(t, got.UserID)
				assert.Nil(t, got.User)
			} else {
				assert.Equal(t, author.ID, got.UserID)
			}
		})
	}

	status, env := testutil.Do(t, app, http.MethodGet, "/curriculum-feedback", nil, "")
	require.Equal(t, http.StatusOK, status)
	var list []model.CurriculumFeedback
	env.Decode(t, &list)
	require.Len(t, list, 1)
	assert.Zero(t, list[0].UserID)
}

func TestUpdateAndDeleteFeedback(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	author := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	other := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	admin := testutil.CreateUser(t, db, model.RoleAdmin, nil)
	jwt := testutil.JWT()

	entry := submit(t, app, testutil.Bearer(t, jwt, author), fiber.Map{"course_name": "Networks", "rating": 3})
	path := fmt.Sprintf("/curriculum-feedback/%d", entry.ID)

	status, _ := testutil.Do(t, app, http.MethodPut, path, fiber.Map{"rating": 1}, testutil.Bearer(t, jwt, other))
	assert.Equal(t, http.StatusForbidden, status)

	// admins moderate but do not rewrite
	status, _ = testutil.Do(t, app, http.MethodPut, path, fiber.Map{"rating": 1}, testutil.Bearer(t, jwt, admin))
	assert.Equal(t, http.StatusForbidden, status)

	status, env := testutil.Do(t, app, http.MethodPut, path, fiber.Map{"rating": 5, "comments": " great now "}, testutil.Bearer(t, jwt, author))
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	env.Decode(t, &entry)
	assert.Equal(t, 5, entry.Rating)
	assert.Equal(t, "great now", entry.Comments)

	status, _ = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, jwt, other))
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, jwt, admin))
	assert.Equal(t, http.StatusOK, status)
	status, _ = testutil.Do(t, app, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFeedbackSummaryAndFilters(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	jwt := testutil.JWT()

	ratings := []struct {
		course    string
		rating    int
		relevance int
	}{
		{"Algorithms", 5, 4},
		{"Algorithms", 4, 0},
		{"Algorithms", 3, 2},
		{"Databases", 2, 0},
	}
	for _, r := range ratings {
		u := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
		submit(t, app, testutil.Bearer(t, jwt, u), fiber.Map{"course_name": r.course, "rating": r.rating, "relevance_rating": r.relevance})
	}

	status, env := testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/curriculum-feedback/summary?university_id=%d", uni.ID), nil, "")
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	var summary struct {
		Total         int64           `json:"total"`
		AverageRating float64         `json:"average_rating"`
		Courses       []CourseSummary `json:"courses"`
	}
	env.Decode(t, &summary)
	assert.Equal(t, int64(4), summary.Total)
	assert.Equal(t, 3.5, summary.AverageRating)
	require.Len(t, summary.Courses, 2)
	assert.Equal(t, "Algorithms", summary.Courses[0].CourseName)
	assert.Equal(t, int64(3), summary.Courses[0].Count)
	assert.Equal(t, 4.0, summary.Courses[0].AverageRating)
	assert.Equal(t, 3.0, summary.Courses[0].AverageRelevance)
	assert.Equal(t, 0.0, summary.Courses[1].AverageRelevance)

	status, _ = testutil.Do(t, app, http.MethodGet, "/curriculum-feedback/summary", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = testutil.Do(t, app, http.MethodGet, "/curriculum-feedback?course_name=algorithms&min_rating=4", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), env.Pagination["total"])
}
