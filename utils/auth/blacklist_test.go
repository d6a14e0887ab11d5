package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRevokeAllUserTokens(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, model.RoleAlumni, nil)
	other := testutil.CreateUser(t, db, model.RoleAlumni, nil)

	require.NoError(t, auth.NewBlacklistService(db).RevokeAllUserTokens(ctx, user.ID))

	var got, untouched model.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.NoError(t, db.First(&untouched, other.ID).Error)
	assert.Equal(t, user.TokenVersion+1, got.TokenVersion)
	assert.Equal(t, other.TokenVersion, untouched.TokenVersion)

	// rolled back together with the surrounding transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := auth.NewBlacklistService(tx).RevokeAllUserTokens(ctx, user.ID); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)
	require.NoError(t, db.First(&got, user.ID).Error)
	assert.Equal(t, user.TokenVersion+1, got.TokenVersion)
}

func TestCleanupExpiredTokens(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, model.RoleAlumni, nil)
	svc := auth.NewBlacklistService(db)
	now := time.Now()

	require.NoError(t, svc.RevokeToken(ctx, "old", user.ID, now.Add(-time.Hour), "logout"))
	require.NoError(t, svc.RevokeToken(ctx, "live", user.ID, now.Add(time.Hour), "logout"))

	removed, err := svc.CleanupExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	revoked, err := svc.IsTokenRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	var left int64
	require.NoError(t, db.Model(&model.JWTTokenBlacklist{}).Count(&left).Error)
	assert.EqualValues(t, 1, left)
}
