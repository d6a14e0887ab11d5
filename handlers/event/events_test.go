package event

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
	h := NewEventHandler(db, services.NewNotificationService(db), services.NewGamificationService(db, nil))

	app := fiber.New()
	events := app.Group("/events")
	events.Get("/", h.ListEvents)
	events.Get("/:id", h.GetEvent)
	events.Post("/", mw.Required(), mw.RequireRole(model.RoleAlumni, model.RoleFaculty, model.RoleUniversityAdmin, model.RoleAdmin), h.CreateEvent)
	events.Put("/:id", mw.Required(), h.UpdateEvent)
	events.Delete("/:id", mw.Required(), h.DeleteEvent)
	events.Post("/:id/register", mw.Required(), h.Register)
	events.Delete("/:id/register", mw.Required(), h.Unregister)
	events.Get("/:id/registrations", mw.Required(), h.ListRegistrations)
	return app, db
}

func createEvent(t *testing.T, db *gorm.DB, uni *model.University, organizer *model.User, startsIn time.Duration, capacity int) *model.Event {
	t.Helper()
	e := &model.Event{
		UniversityID: uni.ID,
		OrganizerID:  organizer.ID,
		Title:        "Alumni Meetup",
		Type:         model.EventTypeNetworking,
		StartsAt:     time.Now().Add(startsIn),
		EndsAt:       time.Now().Add(startsIn + 2*time.Hour),
		Capacity:     capacity,
		Status:       model.EventStatusScheduled,
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func TestCreateEventValidation(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	alum := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	auth := testutil.Bearer(t, testutil.JWT(), alum)
	start := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)

	status, env := testutil.Do(t, app, http.MethodPost, "/events", fiber.Map{
		"title": "Homecoming", "type": "reunion", "starts_at": start, "ends_at": start.Add(-time.Hour),
	}, auth)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_DATES", env.Error.Code)

	status, env = testutil.Do(t, app, http.MethodPost, "/events", fiber.Map{
		"title": "Homecoming", "type": "reunion", "starts_at": start, "ends_at": start.Add(3 * time.Hour), "capacity": 50,
	}, auth)
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	var e model.Event
	env.Decode(t, &e)
	assert.Equal(t, uni.ID, e.UniversityID)
	assert.Equal(t, model.EventStatusScheduled, e.Status)
	assert.True(t, e.StartsAt.Equal(start))

	status, _ = testutil.Do(t, app, http.MethodPost, "/events", fiber.Map{
		"title": "Homecoming", "type": "party", "starts_at": start, "ends_at": start.Add(time.Hour),
	}, auth)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListEventsFilters(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	alum := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)

	createEvent(t, db, uni, alum, 24*time.Hour, 0)
	createEvent(t, db, uni, alum, 10*24*time.Hour, 0)
	past := createEvent(t, db, uni, alum, -48*time.Hour, 0)
	require.NoError(t, db.Model(past).Update("status", model.EventStatusCompleted).Error)

	from := time.Now().Add(5 * 24 * time.Hour).Format("2006-01-02")
	cases := []struct {
		query string
		total float64
	}{
		{"", 3},
		{"?upcoming=true", 2},
		{"?upcoming=false", 1},
		{"?status=completed", 1},
		{"?type=networking", 3},
		{"?type=webinar", 0},
		{"?from=" + from, 1},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			status, env := testutil.Do(t, app, http.MethodGet, "/events"+tc.query, nil, "")
			require.Equal(t, http.StatusOK, status, env.Error.Message)
			assert.Equal(t, tc.total, env.Pagination["total"])
		})
	}

	status, _ := testutil.Do(t, app, http.MethodGet, "/events?from=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRegisterRespectsCapacity(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	organizer := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	first := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	second := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	jwt := testutil.JWT()

	e := createEvent(t, db, uni, organizer, 24*time.Hour, 1)
	path := fmt.Sprintf("/events/%d/register", e.ID)

	status, env := testutil.Do(t, app, http.MethodPost, path, nil, testutil.Bearer(t, jwt, first))
	require.Equal(t, http.StatusCreated, status, env.Error.Message)

	status, env = testutil.Do(t, app, http.MethodPost, path, nil, testutil.Bearer(t, jwt, first))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_REGISTERED", env.Error.Code)

	status, env = testutil.Do(t, app, http.MethodPost, path, nil, testutil.Bearer(t, jwt, second))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "EVENT_FULL", env.Error.Code)

	require.NoError(t, db.First(e, e.ID).Error)
	assert.Equal(t, 1, e.AttendeeCount)

	// a freed seat can be taken
	status, _ = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, jwt, first))
	require.Equal(t, http.StatusOK, status)
	status, _ = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, jwt, first))
	assert.Equal(t, http.StatusNotFound, status)

	status, env = testutil.Do(t, app, http.MethodPost, path, nil, testutil.Bearer(t, jwt, second))
	require.Equal(t, http.StatusCreated, status, env.Error.Message)

	require.NoError(t, db.First(e, e.ID).Error)
	assert.Equal(t, 1, e.AttendeeCount)

	var points int64
	require.NoError(t, db.Model(&model.PointTransaction{}).Where("action = ?", model.PointActionEventRegistration).Count(&points).Error)
	assert.Equal(t, int64(2), points)
}

func TestReRegisterReactivatesRegistration(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	organizer := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	attendee := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	auth := testutil.Bearer(t, testutil.JWT(), attendee)

	e := createEvent(t, db, uni, organizer, 24*time.Hour, 0)
	path := fmt.Sprintf("/events/%d/register", e.ID)

	status, _ := testutil.Do(t, app, http.MethodPost, path, nil, auth)
	require.Equal(t, http.StatusCreated, status)
	status, _ = testutil.Do(t, app, http.MethodDelete, path, nil, auth)
	require.Equal(t, http.StatusOK, status)
	status, _ = testutil.Do(t, app, http.MethodPost, path, nil, auth)
	require.Equal(t, http.StatusCreated, status)

	var rows []model.EventRegistration
	require.NoError(t, db.Where("event_id = ?", e.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, model.RegistrationStatusRegistered, rows[0].Status)

	// points for an event are only awarded once
	var points int64
	require.NoError(t, db.Model(&model.PointTransaction{}).Where("user_id = ?", attendee.ID).Count(&points).Error)
	assert.Equal(t, int64(1), points)
}

func TestRegistrationClosedForPastOrCancelledEvents(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	organizer := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	attendee := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	auth := testutil.Bearer(t, testutil.JWT(), attendee)

	past := createEvent(t, db, uni, organizer, -time.Hour, 0)
	cancelled := createEvent(t, db, uni, organizer, time.Hour, 0)
	require.NoError(t, db.Model(cancelled).Update("status", model.EventStatusCancelled).Error)

	for _, e := range []*model.Event{past, cancelled} {
		status, env := testutil.Do(t, app, http.MethodPost, fmt.Sprintf("/events/%d/register", e.ID), nil, auth)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "REGISTRATION_CLOSED", env.Error.Code)
	}
}

func TestManageEventAndRegistrations(t *testing.T) {
	app, db := setupApp(t)
	uni := testutil.CreateUniversity(t, db, "MIT")
	organizer := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	uniAdmin := testutil.CreateUser(t, db, model.RoleUniversityAdmin, &uni.ID)
	attendee := testutil.CreateUser(t, db, model.RoleStudent, &uni.ID)
	other := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	jwt := testutil.JWT()

	e := createEvent(t, db, uni, organizer, 24*time.Hour, 5)
	status, _ := testutil.Do(t, app, http.MethodPost, fmt.Sprintf("/events/%d/register", e.ID), nil, testutil.Bearer(t, jwt, attendee))
	require.Equal(t, http.StatusCreated, status)

	registrations := fmt.Sprintf("/events/%d/registrations", e.ID)
	status, _ = testutil.Do(t, app, http.MethodGet, registrations, nil, testutil.Bearer(t, jwt, other))
	assert.Equal(t, http.StatusForbidden, status)

	status, env := testutil.Do(t, app, http.MethodGet, registrations, nil, testutil.Bearer(t, jwt, uniAdmin))
	require.Equal(t, http.StatusOK, status)
	var rows []model.EventRegistration
	env.Decode(t, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, attendee.ID, rows[0].User.ID)

	path := fmt.Sprintf("/events/%d", e.ID)
	status, env = testutil.Do(t, app, http.MethodPut, path, fiber.Map{"capacity": 0}, testutil.Bearer(t, jwt, organizer))
	require.Equal(t, http.StatusOK, status, env.Error.Message)

	moved := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	status, env = testutil.Do(t, app, http.MethodPut, path,
		fiber.Map{"starts_at": moved, "ends_at": moved.Add(2 * time.Hour)}, testutil.Bearer(t, jwt, organizer))
	require.Equal(t, http.StatusOK, status, env.Error.Message)

	var rescheduled model.UserNotification
	require.NoError(t, db.Where("user_id = ? AND title = ?", attendee.ID, "Event rescheduled").First(&rescheduled).Error)
	assert.Equal(t, model.NotificationTypeInfo, rescheduled.Type)

	// repeating the same start time is not a reschedule
	status, _ = testutil.Do(t, app, http.MethodPut, path, fiber.Map{"starts_at": moved}, testutil.Bearer(t, jwt, organizer))
	require.Equal(t, http.StatusOK, status)
	var count int64
	require.NoError(t, db.Model(&model.UserNotification{}).Where("user_id = ? AND title = ?", attendee.ID, "Event rescheduled").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	status, env = testutil.Do(t, app, http.MethodPut, path, fiber.Map{"status": "cancelled"}, testutil.Bearer(t, jwt, organizer))
	require.Equal(t, http.StatusOK, status, env.Error.Message)
	env.Decode(t, e)
	assert.Equal(t, model.EventStatusCancelled, e.Status)

	var note model.UserNotification
	require.NoError(t, db.Where("user_id = ? AND title = ?", attendee.ID, "Event cancelled").First(&note).Error)
	assert.Equal(t, model.NotificationTypeWarning, note.Type)

	status, _ = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, jwt, other))
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = testutil.Do(t, app, http.MethodDelete, path, nil, testutil.Bearer(t, jwt, organizer))
	assert.Equal(t, http.StatusOK, status)
}
