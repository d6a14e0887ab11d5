package gamification

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/NagallaThanvi/unilink/database"
	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGamificationEndpoints(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, database.NewSeeder(db).SeedAchievements())
	svc := services.NewGamificationService(db, nil)
	mw := middleware.NewAuthMiddleware(testutil.JWT(), db)
	h := NewGamificationHandler(svc)

	app := fiber.New()
	g := app.Group("/gamification")
	g.Get("/me", mw.Required(), h.GetMine)
	g.Get("/leaderboard", h.GetLeaderboard)
	g.Get("/achievements", mw.Optional(), h.ListAchievements)

	mit := testutil.CreateUniversity(t, db, "MIT")
	cmu := testutil.CreateUniversity(t, db, "CMU")
	leader := testutil.CreateUser(t, db, model.RoleAlumni, &mit.ID)
	runnerUp := testutil.CreateUser(t, db, model.RoleAlumni, &mit.ID)
	outsider := testutil.CreateUser(t, db, model.RoleAlumni, &cmu.ID)

	ctx := context.Background()
	award := func(u *model.User, action model.PointAction, ref uint) {
		_, err := svc.Award(ctx, services.AwardRequest{
			UserID: u.ID, UniversityID: u.UniversityID, Action: action, ReferenceType: "test", ReferenceID: ref,
		})
		require.NoError(t, err)
	}
	award(leader, model.PointActionCredentialIssued, 1)
	award(leader, model.PointActionCredentialIssued, 2)
	award(runnerUp, model.PointActionEventRegistration, 3)
	award(outsider, model.PointActionCredentialIssued, 4)
	award(outsider, model.PointActionCredentialIssued, 5)
	award(outsider, model.PointActionCredentialIssued, 6)

	status, env := testutil.Do(t, app, http.MethodGet, "/gamification/me", nil, testutil.Bearer(t, testutil.JWT(), leader))
	require.Equal(t, http.StatusOK, status)
	var me services.GamificationSummary
	env.Decode(t, &me)
	assert.Equal(t, 100, me.Points)
	assert.Equal(t, 2, me.Level)
	assert.Len(t, me.Achievements, 2)

	status, env = testutil.Do(t, app, http.MethodGet, fmt.Sprintf("/gamification/leaderboard?university_id=%d", mit.ID), nil, "")
	require.Equal(t, http.StatusOK, status)
	var board []services.LeaderboardEntry
	env.Decode(t, &board)
	require.Len(t, board, 2)
	assert.Equal(t, leader.ID, board[0].UserID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, runnerUp.ID, board[1].UserID)

	status, env = testutil.Do(t, app, http.MethodGet, "/gamification/leaderboard?limit=1", nil, "")
	require.Equal(t, http.StatusOK, status)
	env.Decode(t, &board)
	require.Len(t, board, 1)
	assert.Equal(t, outsider.ID, board[0].UserID)

	status, _ = testutil.Do(t, app, http.MethodGet, "/gamification/leaderboard?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = testutil.Do(t, app, http.MethodGet, "/gamification/achievements", nil, testutil.Bearer(t, testutil.JWT(), runnerUp))
	require.Equal(t, http.StatusOK, status)
	var catalogue []services.AchievementStatus
	env.Decode(t, &catalogue)
	require.Len(t, catalogue, len(database.DefaultAchievements))
	assert.Equal(t, "first_steps", catalogue[0].Code)
	assert.True(t, catalogue[0].Unlocked)
	assert.False(t, catalogue[1].Unlocked)

	status, env = testutil.Do(t, app, http.MethodGet, "/gamification/achievements", nil, "")
	require.Equal(t, http.StatusOK, status)
	env.Decode(t, &catalogue)
	assert.False(t, catalogue[0].Unlocked)
}
