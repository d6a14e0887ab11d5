package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/mirror"
	"github.com/NagallaThanvi/unilink/services/search"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	store  *mirror.MemoryStore
	engine *search.MemoryEngine
	worker *Worker
	uni    *model.University
	user   *model.User
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	store := mirror.NewMemoryStore()
	engine := search.NewMemoryEngine()
	uni := testutil.CreateUniversity(t, db, "TU")
	user := testutil.CreateUser(t, db, model.RoleAlumni, &uni.ID)
	return &fixture{db: db, store: store, engine: engine, worker: NewWorker(db, store, engine), uni: uni, user: user}
}

func TestProcessOnceProjectsEntities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile := model.Profile{UserID: f.user.ID, UniversityID: f.uni.ID, Headline: "Gopher", Visibility: model.VisibilityPublic}
	require.NoError(t, f.db.Create(&profile).Error)
	job := model.JobPosting{UniversityID: f.uni.ID, PostedBy: f.user.ID, Title: "Go Developer", Company: "Acme", Type: model.JobTypeFullTime, Status: model.JobStatusOpen}
	require.NoError(t, f.db.Create(&job).Error)

	require.NoError(t, Add(f.db, model.OutboxEntityUniversity, f.uni.ID, model.OutboxOpUpsert, nil))
	require.NoError(t, Add(f.db, model.OutboxEntityUser, f.user.ID, model.OutboxOpUpsert, nil))
	require.NoError(t, Add(f.db, model.OutboxEntityProfile, profile.ID, model.OutboxOpUpsert, map[string]string{"reason": "create"}))
	require.NoError(t, Add(f.db, model.OutboxEntityJob, job.ID, model.OutboxOpUpsert, nil))

	n, err := f.worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	var uniDoc mirror.UniversityDoc
	require.NoError(t, f.store.Get(ctx, mirror.CollUniversities, f.uni.ID, &uniDoc))
	assert.Equal(t, "TU", uniDoc.Code)

	var userDoc mirror.AdminUserDoc
	require.NoError(t, f.store.Get(ctx, mirror.CollAdminUsers, f.user.ID, &userDoc))
	assert.Equal(t, f.user.Email, userDoc.Email)

	raw, ok := f.engine.Doc(search.IdxProfiles, docID(profile.ID))
	require.True(t, ok)
	var pdoc search.ProfileDoc
	require.NoError(t, json.Unmarshal(raw, &pdoc))
	assert.Equal(t, f.user.Name, pdoc.Name)
	assert.Equal(t, "Gopher", pdoc.Headline)

	_, ok = f.engine.Doc(search.IdxJobs, docID(job.ID))
	assert.True(t, ok)

	var pending int64
	f.db.Model(&model.OutboxEvent{}).Where("processed = ?", false).Count(&pending)
	assert.Zero(t, pending)

	// nothing left to claim
	n, err = f.worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessOnceRemovesDeletedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := model.JobPosting{UniversityID: f.uni.ID, PostedBy: f.user.ID, Title: "Go Developer", Company: "Acme", Type: model.JobTypeFullTime}
	require.NoError(t, f.db.Create(&job).Error)
	require.NoError(t, Add(f.db, model.OutboxEntityJob, job.ID, model.OutboxOpUpsert, nil))
	require.NoError(t, Add(f.db, model.OutboxEntityUniversity, f.uni.ID, model.OutboxOpUpsert, nil))
	_, err := f.worker.ProcessOnce(ctx)
	require.NoError(t, err)

	// a soft-deleted job disappears from search even on an UPSERT event
	require.NoError(t, f.db.Delete(&job).Error)
	require.NoError(t, Add(f.db, model.OutboxEntityJob, job.ID, model.OutboxOpUpsert, nil))
	require.NoError(t, Add(f.db, model.OutboxEntityUniversity, f.uni.ID, model.OutboxOpDelete, nil))
	_, err = f.worker.ProcessOnce(ctx)
	require.NoError(t, err)

	_, ok := f.engine.Doc(search.IdxJobs, docID(job.ID))
	assert.False(t, ok)
	assert.Equal(t, 0, f.store.Len(mirror.CollUniversities))
}

func TestPrivateProfilesAreNotIndexed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile := model.Profile{UserID: f.user.ID, UniversityID: f.uni.ID, Visibility: model.VisibilityPrivate}
	require.NoError(t, f.db.Create(&profile).Error)
	require.NoError(t, Add(f.db, model.OutboxEntityProfile, profile.ID, model.OutboxOpUpsert, nil))

	_, err := f.worker.ProcessOnce(ctx)
	require.NoError(t, err)
	_, ok := f.engine.Doc(search.IdxProfiles, docID(profile.ID))
	assert.False(t, ok)
}

func TestFailuresAreDeadLetteredAndRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := model.JobPosting{UniversityID: f.uni.ID, PostedBy: f.user.ID, Title: "Go Developer", Company: "Acme", Type: model.JobTypeFullTime}
	require.NoError(t, f.db.Create(&job).Error)
	require.NoError(t, Add(f.db, model.OutboxEntityJob, job.ID, model.OutboxOpUpsert, nil))
	require.NoError(t, Add(f.db, "hackathon", 1, model.OutboxOpUpsert, nil))

	f.engine.Fail = errors.New("cluster unavailable")
	_, err := f.worker.ProcessOnce(ctx)
	require.NoError(t, err)

	var letters []model.OutboxDeadLetter
	require.NoError(t, f.db.Order("id").Find(&letters).Error)
	require.Len(t, letters, 2)
	assert.Equal(t, model.OutboxEntityJob, letters[0].EntityType)
	assert.Equal(t, "cluster unavailable", letters[0].ErrorMsg)
	assert.Contains(t, letters[1].ErrorMsg, "unknown entity_type")

	f.engine.Fail = nil
	resolved, err := f.worker.RetryDeadLetters(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	_, ok := f.engine.Doc(search.IdxJobs, docID(job.ID))
	assert.True(t, ok)

	require.NoError(t, f.db.Order("id").Find(&letters).Error)
	assert.True(t, letters[0].Resolved)
	assert.NotNil(t, letters[0].RetriedAt)
	assert.False(t, letters[1].Resolved)
	assert.Equal(t, 1, letters[1].Attempts)
}

func TestRetryHonoursMaxAttemptsSetting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&model.AppSetting{Key: MaxAttemptsSetting, Value: "2", Type: model.SettingTypeInt}).Error)
	dl := model.OutboxDeadLetter{EntityType: "hackathon", EntityID: 1, Op: model.OutboxOpUpsert, Attempts: 2}
	require.NoError(t, f.db.Create(&dl).Error)

	resolved, err := f.worker.RetryDeadLetters(ctx, 50)
	require.NoError(t, err)
	assert.Zero(t, resolved)

	var reloaded model.OutboxDeadLetter
	require.NoError(t, f.db.First(&reloaded, dl.ID).Error)
	assert.Equal(t, 2, reloaded.Attempts)
	assert.Nil(t, reloaded.RetriedAt)

	// a manual retry ignores the limit
	got, err := f.worker.RetryDeadLetter(ctx, dl.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
	assert.False(t, got.Resolved)

	_, err = f.worker.RetryDeadLetter(ctx, 9999)
	assert.ErrorIs(t, err, ErrDeadLetterNotFound)
}

func TestWorkerWithoutTargets(t *testing.T) {
	db := testutil.NewDB(t)
	w := NewWorker(db, nil, nil)
	assert.False(t, w.Enabled())

	uni := testutil.CreateUniversity(t, db, "TU")
	require.NoError(t, Add(db, model.OutboxEntityUniversity, uni.ID, model.OutboxOpUpsert, nil))
	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var letters int64
	db.Model(&model.OutboxDeadLetter{}).Count(&letters)
	assert.Zero(t, letters)
}

func TestEnqueueAll(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateUser(t, f.db, model.RoleStudent, &f.uni.ID)
	require.NoError(t, f.db.Create(&model.Connection{RequesterID: f.user.ID, RecipientID: other.ID}).Error)

	n, err := EnqueueAll(f.db)
	require.NoError(t, err)
	// one university, two users, one connection
	assert.Equal(t, 4, n)

	var events []model.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	assert.Len(t, events, 4)
	for _, e := range events {
		assert.Equal(t, model.OutboxOpUpsert, e.Op)
	}
}

func TestFetchBatchRespectsLimit(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, AddBatch(db, model.OutboxEntityJob, model.OutboxOpDelete, []uint{1, 2, 3}))

	events, err := FetchBatch(context.Background(), db, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint(1), events[0].EntityID)

	events, err = FetchBatch(context.Background(), db, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint(3), events[0].EntityID)
}
