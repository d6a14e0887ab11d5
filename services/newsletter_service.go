package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/crypto"
	"golang.org/x/net/html"
	"gorm.io/gorm"
)

var (
	// ErrNewsletterNotFound is returned when the newsletter does not exist
	ErrNewsletterNotFound = errors.New("newsletter not found")
	// ErrNewsletterAlreadySent is returned when sending a newsletter twice
	ErrNewsletterAlreadySent = errors.New("newsletter already sent")
	// ErrMailerUnavailable is returned when no mail transport is configured
	ErrMailerUnavailable = errors.New("email delivery is not configured")
	// ErrSubscriptionNotFound is returned for an unknown unsubscribe token or address
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// DefaultNewsletterPeriodDays is the look-back window when none is given
const DefaultNewsletterPeriodDays = 30

// NewsletterService generates and delivers university newsletters
type NewsletterService struct {
	db     *gorm.DB
	mailer Mailer
	appURL string
}

// NewNewsletterService creates a newsletter service. mailer may be nil.
func NewNewsletterService(db *gorm.DB, mailer Mailer, appURL string) *NewsletterService {
	if appURL == "" {
		appURL = "http://localhost:3000"
	}
	return &NewsletterService{db: db, mailer: mailer, appURL: appURL}
}

// Digest is the content gathered for a generated newsletter
type Digest struct {
	University   model.University
	From         time.Time
	To           time.Time
	Jobs         []model.JobPosting
	Events       []model.Event
	Scholarships []model.Scholarship
	NewMembers   int64
}

// IsEmpty reports whether there is nothing to write about
func (d *Digest) IsEmpty() bool {
	return len(d.Jobs) == 0 && len(d.Events) == 0 && len(d.Scholarships) == 0 && d.NewMembers == 0
}

// CollectDigest gathers recent activity of a university over periodDays
func (s *NewsletterService) CollectDigest(ctx context.Context, universityID uint, periodDays int, now time.Time) (*Digest, error) {
	if periodDays <= 0 {
		periodDays = DefaultNewsletterPeriodDays
	}

	d := &Digest{From: now.AddDate(0, 0, -periodDays), To: now}
	db := s.db.WithContext(ctx)

	if err := db.First(&d.University, universityID).Error; err != nil {
		return nil, err
	}

	if err := db.Where("university_id = ? AND status = ? AND created_at >= ?", universityID, model.JobStatusOpen, d.From).
		Order("created_at DESC").Limit(10).Find(&d.Jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	if err := db.Where("university_id = ? AND status = ? AND starts_at >= ?", universityID, model.EventStatusScheduled, now).
		Order("starts_at ASC").Limit(10).Find(&d.Events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	if err := db.Where("university_id = ? AND status = ? AND (deadline IS NULL OR deadline >= ?)", universityID, model.ScholarshipStatusOpen, now).
		Order("created_at DESC").Limit(10).Find(&d.Scholarships).Error; err != nil {
		return nil, fmt.Errorf("failed to load scholarships: %w", err)
	}

	if err := db.Model(&model.Profile{}).
		Where("university_id = ? AND created_at >= ?", universityID, d.From).
		Count(&d.NewMembers).Error; err != nil {
		return nil, fmt.Errorf("failed to count new members: %w", err)
	}

	return d, nil
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format("Jan 2, 2006") },
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.University.Name}} Alumni Digest</title></head>
<body style="font-family:-apple-system,'Segoe UI',Roboto,sans-serif;color:#333;max-width:640px;margin:0 auto;padding:20px">
<h1>{{.University.Name}} Alumni Digest</h1>
<p>Highlights from {{date .From}} to {{date .To}}.</p>
{{if .NewMembers}}<p>{{.NewMembers}} new members joined the network.</p>{{end}}
{{if .Jobs}}<h2>New opportunities</h2>
<ul>{{range .Jobs}}<li><strong>{{.Title}}</strong> at {{.Company}}{{if .Location}}, {{.Location}}{{end}}</li>{{end}}</ul>{{end}}
{{if .Events}}<h2>Upcoming events</h2>
<ul>{{range .Events}}<li><strong>{{.Title}}</strong> on {{date .StartsAt}}{{if .Location}} at {{.Location}}{{end}}</li>{{end}}</ul>{{end}}
{{if .Scholarships}}<h2>Scholarships</h2>
<ul>{{range .Scholarships}}<li><strong>{{.Title}}</strong> ({{printf "%.2f" .Amount}} {{.Currency}}){{if .Deadline}}, apply by {{date .Deadline}}{{end}}</li>{{end}}</ul>{{end}}
</body>
</html>`))

// Render produces the newsletter HTML for a digest
func (d *Digest) Render() (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("failed to render newsletter: %w", err)
	}
	return buf.String(), nil
}

// Generate builds an unsaved draft newsletter from recent university activity
func (s *NewsletterService) Generate(ctx context.Context, universityID, authorID uint, periodDays int, title string) (*model.Newsletter, *Digest, error) {
	digest, err := s.CollectDigest(ctx, universityID, periodDays, time.Now())
	if err != nil {
		return nil, nil, err
	}

	content, err := digest.Render()
	if err != nil {
		return nil, nil, err
	}

	if title == "" {
		title = fmt.Sprintf("%s Alumni Digest - %s", digest.University.Name, digest.To.Format("January 2006"))
	}

	return &model.Newsletter{
		UniversityID: universityID,
		AuthorID:     authorID,
		Title:        title,
		Subject:      title,
		Content:      content,
		PlainText:    HTMLToText(content),
		Status:       model.NewsletterStatusDraft,
		Generated:    true,
	}, digest, nil
}

// Send delivers a newsletter to every active subscriber of its university.
// The status moves draft|scheduled -> sending -> sent; a concurrent second
// call fails with ErrNewsletterAlreadySent.
func (s *NewsletterService) Send(ctx context.Context, newsletterID uint) (*model.Newsletter, error) {
	if s.mailer == nil {
		return nil, ErrMailerUnavailable
	}

	db := s.db.WithContext(ctx)

	var newsletter model.Newsletter
	if err := db.First(&newsletter, newsletterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNewsletterNotFound
		}
		return nil, err
	}

	claim := db.Model(&model.Newsletter{}).
		Where("id = ? AND status IN ?", newsletterID, []string{model.NewsletterStatusDraft, model.NewsletterStatusScheduled}).
		Update("status", model.NewsletterStatusSending)
	if claim.Error != nil {
		return nil, fmt.Errorf("failed to claim newsletter: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		return nil, ErrNewsletterAlreadySent
	}

	var subscriptions []model.NewsletterSubscription
	if err := db.Where("university_id = ? AND active = ?", newsletter.UniversityID, true).
		Order("id ASC").Find(&subscriptions).Error; err != nil {
		db.Model(&newsletter).Update("status", newsletter.Status)
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	plain := newsletter.PlainText
	if plain == "" {
		plain = HTMLToText(newsletter.Content)
	}

	delivered := 0
	for _, sub := range subscriptions {
		link := fmt.Sprintf("%s/newsletters/unsubscribe?token=%s", s.appURL, sub.UnsubscribeToken)
		htmlBody := newsletter.Content + fmt.Sprintf(`<p style="font-size:12px;color:#999"><a href="%s">Unsubscribe</a></p>`, template.HTMLEscapeString(link))
		textBody := plain + "\n\nUnsubscribe: " + link

		if err := s.mailer.Send(sub.Email, newsletter.Subject, htmlBody, textBody); err != nil {
			log.Printf("[NEWSLETTER] delivery of %d to %s failed: %v", newsletter.ID, sub.Email, err)
			continue
		}
		delivered++
	}

	now := time.Now()
	if err := db.Model(&newsletter).Updates(map[string]interface{}{
		"status":          model.NewsletterStatusSent,
		"sent_at":         now,
		"recipient_count": delivered,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to mark newsletter sent: %w", err)
	}

	newsletter.Status = model.NewsletterStatusSent
	newsletter.SentAt = &now
	newsletter.RecipientCount = delivered

	log.Printf("[NEWSLETTER] %d delivered to %d/%d subscribers", newsletter.ID, delivered, len(subscriptions))
	return &newsletter, nil
}

// DispatchScheduled sends every scheduled newsletter that is due and returns
// how many were sent
func (s *NewsletterService) DispatchScheduled(ctx context.Context, now time.Time) (int, error) {
	var due []model.Newsletter
	if err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", model.NewsletterStatusScheduled, now).
		Order("scheduled_at ASC").
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("failed to load scheduled newsletters: %w", err)
	}

	sent := 0
	for _, n := range due {
		if _, err := s.Send(ctx, n.ID); err != nil {
			if errors.Is(err, ErrNewsletterAlreadySent) {
				continue
			}
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Subscribe opts an address in to a university's newsletter. Subscribing
// again reactivates a cancelled subscription.
func (s *NewsletterService) Subscribe(ctx context.Context, universityID uint, email string, userID *uint) (*model.NewsletterSubscription, error) {
	db := s.db.WithContext(ctx)

	var sub model.NewsletterSubscription
	err := db.Where("university_id = ? AND email = ?", universityID, email).First(&sub).Error
	switch {
	case err == nil:
		if sub.Active {
			return &sub, nil
		}
		updates := map[string]interface{}{"active": true, "unsubscribed_at": nil}
		if userID != nil {
			updates["user_id"] = *userID
		}
		if err := db.Model(&sub).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
		}
		sub.Active = true
		sub.UnsubscribedAt = nil
		return &sub, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	token, err := crypto.RandomToken()
	if err != nil {
		return nil, err
	}
	sub = model.NewsletterSubscription{
		UniversityID:     universityID,
		Email:            email,
		UserID:           userID,
		UnsubscribeToken: token,
		Active:           true,
	}
	if err := db.Create(&sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return &sub, nil
}

// Unsubscribe deactivates the subscription matching where, either a token or
// a university and address pair
func (s *NewsletterService) Unsubscribe(ctx context.Context, where *model.NewsletterSubscription) (*model.NewsletterSubscription, error) {
	db := s.db.WithContext(ctx)

	var sub model.NewsletterSubscription
	q := db.Model(&model.NewsletterSubscription{})
	if where.UnsubscribeToken != "" {
		q = q.Where("unsubscribe_token = ?", where.UnsubscribeToken)
	} else {
		q = q.Where("university_id = ? AND email = ?", where.UniversityID, where.Email)
	}
	if err := q.First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if !sub.Active {
		return &sub, nil
	}

	now := time.Now()
	if err := db.Model(&sub).Updates(map[string]interface{}{"active": false, "unsubscribed_at": now}).Error; err != nil {
		return nil, fmt.Errorf("failed to unsubscribe: %w", err)
	}
	sub.Active = false
	sub.UnsubscribedAt = &now
	return &sub, nil
}

// HTMLToText converts newsletter HTML into a plain-text alternative. Block
// elements become line breaks and links keep their target in parentheses.
func HTMLToText(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head", "title":
				return
			case "br":
				b.WriteString("\n")
				return
			case "li":
				b.WriteString("\n- ")
			}
		}

		if n.Type == html.TextNode {
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") && !strings.HasSuffix(b.String(), " ") {
					b.WriteString(" ")
				}
				b.WriteString(text)
			}
		}

		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" && attr.Val != "" {
						b.WriteString(" (" + attr.Val + ")")
					}
				}
			case "p", "div", "h1", "h2", "h3", "h4", "ul", "ol", "tr":
				b.WriteString("\n")
			}
		}
	}
	walk(doc)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
