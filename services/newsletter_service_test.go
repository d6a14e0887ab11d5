package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMail struct {
	to, subject, html, text string
}

type fakeMailer struct {
	sent   []sentMail
	failTo string
}

func (m *fakeMailer) Send(to, subject, htmlBody, textBody string) error {
	if to == m.failTo {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, sentMail{to, subject, htmlBody, textBody})
	return nil
}

func subscribe(t *testing.T, db *gorm.DB, universityID uint, email string, active bool) {
	t.Helper()
	sub := &model.NewsletterSubscription{
		UniversityID:     universityID,
		Email:            email,
		UnsubscribeToken: "tok-" + email,
		Active:           true,
	}
	require.NoError(t, db.Create(sub).Error)
	if !active {
		require.NoError(t, db.Model(sub).Update("active", false).Error)
	}
}

func TestGenerateCollectsRecentActivity(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	uni := testutil.CreateUniversity(t, db, "TU")
	author := testutil.CreateUser(t, db, model.RoleUniversityAdmin, &uni.ID)

	require.NoError(t, db.Create(&model.JobPosting{
		UniversityID: uni.ID, PostedBy: author.ID, Title: "Backend Engineer", Company: "Acme",
		Type: model.JobTypeFullTime, Status: model.JobStatusOpen,
	}).Error)
	start := time.Now().Add(48 * time.Hour)
	require.NoError(t, db.Create(&model.Event{
		UniversityID: uni.ID, OrganizerID: author.ID, Title: "Homecoming", Type: model.EventTypeReunion,
		StartsAt: start, EndsAt: start.Add(time.Hour), Status: model.EventStatusScheduled,
	}).Error)

	svc := NewNewsletterService(db, nil, "")
	newsletter, digest, err := svc.Generate(ctx, uni.ID, author.ID, 0, "")
	require.NoError(t, err)

	assert.False(t, digest.IsEmpty())
	assert.Len(t, digest.Jobs, 1)
	assert.Len(t, digest.Events, 1)
	assert.Equal(t, model.NewsletterStatusDraft, newsletter.Status)
	assert.True(t, newsletter.Generated)
	assert.Contains(t, newsletter.Title, "TU University Alumni Digest")
	assert.Contains(t, newsletter.Content, "Backend Engineer")
	assert.Contains(t, newsletter.PlainText, "Homecoming")
	assert.NotContains(t, newsletter.PlainText, "<li>")

	_, _, err = svc.Generate(ctx, 999, author.ID, 7, "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSendDeliversOnce(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	uni := testutil.CreateUniversity(t, db, "TU")
	author := testutil.CreateUser(t, db, model.RoleUniversityAdmin, &uni.ID)

	subscribe(t, db, uni.ID, "a@example.com", true)
	subscribe(t, db, uni.ID, "b@example.com", true)
	subscribe(t, db, uni.ID, "gone@example.com", false)
	subscribe(t, db, uni.ID, "broken@example.com", true)

	n := &model.Newsletter{
		UniversityID: uni.ID, AuthorID: author.ID, Title: "Spring", Subject: "Spring news",
		Content: "<p>Hello <a href=\"https://tu.edu\">alumni</a></p>", Status: model.NewsletterStatusDraft,
	}
	require.NoError(t, db.Create(n).Error)

	_, err := NewNewsletterService(db, nil, "").Send(ctx, n.ID)
	assert.ErrorIs(t, err, ErrMailerUnavailable)

	mailer := &fakeMailer{failTo: "broken@example.com"}
	svc := NewNewsletterService(db, mailer, "https://app.test")

	sent, err := svc.Send(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewsletterStatusSent, sent.Status)
	assert.Equal(t, 2, sent.RecipientCount)
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "Spring news", mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].text, "https://app.test/newsletters/unsubscribe?token=tok-a@example.com")
	assert.Contains(t, mailer.sent[0].text, "alumni (https://tu.edu)")

	_, err = svc.Send(ctx, n.ID)
	assert.ErrorIs(t, err, ErrNewsletterAlreadySent)

	_, err = svc.Send(ctx, 999)
	assert.ErrorIs(t, err, ErrNewsletterNotFound)
}

func TestDispatchScheduled(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	uni := testutil.CreateUniversity(t, db, "TU")
	author := testutil.CreateUser(t, db, model.RoleUniversityAdmin, &uni.ID)
	subscribe(t, db, uni.ID, "a@example.com", true)

	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	due := &model.Newsletter{UniversityID: uni.ID, AuthorID: author.ID, Title: "Due", Subject: "Due", Content: "<p>x</p>", Status: model.NewsletterStatusScheduled, ScheduledAt: &past}
	later := &model.Newsletter{UniversityID: uni.ID, AuthorID: author.ID, Title: "Later", Subject: "Later", Content: "<p>y</p>", Status: model.NewsletterStatusScheduled, ScheduledAt: &future}
	require.NoError(t, db.Create(due).Error)
	require.NoError(t, db.Create(later).Error)

	mailer := &fakeMailer{}
	svc := NewNewsletterService(db, mailer, "")
	sent, err := svc.DispatchScheduled(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	var reloaded model.Newsletter
	require.NoError(t, db.First(&reloaded, later.ID).Error)
	assert.Equal(t, model.NewsletterStatusScheduled, reloaded.Status)
}

func TestHTMLToText(t *testing.T) {
	text := HTMLToText(`<html><head><title>T</title><style>p{}</style></head><body><h1>Digest</h1><ul><li>One</li><li>Two</li></ul><p>Line<br>break</p></body></html>`)
	assert.Equal(t, "Digest\n- One\n- Two\nLine\nbreak", text)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	uni := testutil.CreateUniversity(t, db, "TU")
	svc := NewNewsletterService(db, nil, "")

	sub, err := svc.Subscribe(ctx, uni.ID, "reader@example.com", nil)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.NotEmpty(t, sub.UnsubscribeToken)

	again, err := svc.Subscribe(ctx, uni.ID, "reader@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)

	off, err := svc.Unsubscribe(ctx, &model.NewsletterSubscription{UnsubscribeToken: sub.UnsubscribeToken})
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.NotNil(t, off.UnsubscribedAt)

	_, err = svc.Unsubscribe(ctx, &model.NewsletterSubscription{UnsubscribeToken: "nope"})
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	back, err := svc.Subscribe(ctx, uni.ID, "reader@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, back.ID)
	assert.True(t, back.Active)

	var count int64
	require.NoError(t, db.Model(&model.NewsletterSubscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
