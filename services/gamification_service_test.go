package services

import (
	"context"
	"sort"
	"strconv"
	"testing"

	"github.com/NagallaThanvi/unilink/database"
	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/cache"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBoard struct {
	sets map[string]map[string]float64
}

func newMemoryBoard() *memoryBoard {
	return &memoryBoard{sets: map[string]map[string]float64{}}
}

func (b *memoryBoard) ZIncrBy(_ context.Context, key string, delta float64, member string) (float64, error) {
	if b.sets[key] == nil {
		b.sets[key] = map[string]float64{}
	}
	b.sets[key][member] += delta
	return b.sets[key][member], nil
}

func (b *memoryBoard) ZTop(_ context.Context, key string, offset, limit int64) ([]cache.ScoredMember, error) {
	var members []cache.ScoredMember
	for m, s := range b.sets[key] {
		members = append(members, cache.ScoredMember{Member: m, Score: s})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Score > members[j].Score })
	if offset >= int64(len(members)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(members)) {
		end = int64(len(members))
	}
	return members[offset:end], nil
}

func (b *memoryBoard) ZCard(_ context.Context, key string) (int64, error) {
	return int64(len(b.sets[key])), nil
}

func TestLevelForPoints(t *testing.T) {
	cases := []struct {
		points int
		level  int
	}{
		{0, 1}, {99, 1}, {100, 2}, {399, 2}, {400, 3}, {900, 4}, {-5, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelForPoints(tc.points), "points=%d", tc.points)
	}

	p := ProgressForPoints(250)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 400, p.NextLevelPoints)
	assert.Equal(t, 50.0, p.ProgressPercent)
}

func TestAwardIsOncePerReference(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, database.NewSeeder(db).SeedAchievements())
	ctx := context.Background()

	uni := testutil.CreateUniversity(t, db, "TU")
	user := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	svc := NewGamificationService(db, nil)

	req := AwardRequest{
		UserID:        user.ID,
		UniversityID:  &uni.ID,
		Action:        model.PointActionEventRegistration,
		ReferenceType: "event",
		ReferenceID:   7,
	}
	txn, err := svc.Award(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, 15, txn.Points)

	again, err := svc.Award(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, again)

	total, err := svc.TotalPoints(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, total)

	summary, err := svc.Summary(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, summary.Achievements, 1)
	assert.Equal(t, "first_steps", summary.Achievements[0].Achievement.Code)
	assert.Len(t, summary.Recent, 1)

	var notes int64
	db.Model(&model.UserNotification{}).Where("user_id = ? AND category = ?", user.ID, model.NotificationCategoryAchievement).Count(&notes)
	assert.Equal(t, int64(1), notes)
}

func TestAwardQuietly(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, model.RoleAlumni, nil)
	svc := NewGamificationService(db, nil)

	// recorded before it returns
	svc.AwardQuietly(ctx, AwardRequest{UserID: user.ID, Action: model.PointActionJobApplication})
	total, err := svc.TotalPoints(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	assert.NotPanics(t, func() {
		svc.AwardQuietly(ctx, AwardRequest{UserID: user.ID, Action: model.PointActionJobApplication})
	})
}

func TestPointsForUsesSetting(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewGamificationService(db, nil)
	ctx := context.Background()

	assert.Equal(t, 10, svc.PointsFor(ctx, model.PointActionConnectionAccepted))

	require.NoError(t, db.Create(&model.AppSetting{
		Key:   "gamification.points.connection_accepted",
		Value: "25",
		Type:  model.SettingTypeInt,
	}).Error)
	assert.Equal(t, 25, svc.PointsFor(ctx, model.PointActionConnectionAccepted))
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()

	for _, withBoard := range []bool{false, true} {
		t.Run("board="+strconv.FormatBool(withBoard), func(t *testing.T) {
			db := testutil.NewDB(t)
			var board LeaderboardStore
			if withBoard {
				board = newMemoryBoard()
			}
			svc := NewGamificationService(db, board)

			uni := testutil.CreateUniversity(t, db, "TU")
			other := testutil.CreateUniversity(t, db, "OU")
			a := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
			b := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
			c := testutil.CreateUser(t, db, model.RoleAlumni, &other.ID)

			award := func(u *model.User, action model.PointAction, ref uint) {
				_, err := svc.Award(ctx, AwardRequest{UserID: u.ID, UniversityID: u.UniversityID, Action: action, ReferenceType: "test", ReferenceID: ref})
				require.NoError(t, err)
			}
			award(a, model.PointActionJobApplication, 1)
			award(b, model.PointActionCredentialIssued, 2)
			award(c, model.PointActionEventRegistration, 3)

			global, err := svc.Leaderboard(ctx, nil, 10, 0)
			require.NoError(t, err)
			require.Len(t, global, 3)
			assert.Equal(t, b.ID, global[0].UserID)
			assert.Equal(t, 50, global[0].Points)
			assert.Equal(t, 1, global[0].Rank)
			assert.Equal(t, c.ID, global[1].UserID)
			assert.Equal(t, a.ID, global[2].UserID)
			assert.Equal(t, a.Name, global[2].Name)

			scoped, err := svc.Leaderboard(ctx, &uni.ID, 10, 0)
			require.NoError(t, err)
			require.Len(t, scoped, 2)
			assert.Equal(t, b.ID, scoped[0].UserID)

			page, err := svc.Leaderboard(ctx, nil, 1, 1)
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, 2, page[0].Rank)
		})
	}
}
