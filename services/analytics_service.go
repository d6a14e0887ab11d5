package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"gorm.io/gorm"
)

// universityStatsTTL bounds how stale a cached tenant summary may be
const universityStatsTTL = 5 * time.Minute

// StatsCache stores computed summaries as JSON, e.g. *cache.RedisCache
type StatsCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// AnalyticsService handles analytics and reporting
type AnalyticsService struct {
	db    *gorm.DB
	cache StatsCache
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{
		db: db,
	}
}

// WithCache makes GetUniversityStats serve repeated reads from c
func (s *AnalyticsService) WithCache(c StatsCache) *AnalyticsService {
	s.cache = c
	return s
}

// counter runs a series of COUNT queries, stopping at the first error
type counter struct {
	db  *gorm.DB
	err error
}

func (c *counter) count(dst *int64, what string, m interface{}, query string, args ...interface{}) {
	if c.err != nil {
		return
	}
	q := c.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(dst).Error; err != nil {
		c.err = fmt.Errorf("failed to count %s: %w", what, err)
	}
}

// DashboardStats represents overall platform statistics
type DashboardStats struct {
	TotalUsers           int64 `json:"total_users"`
	ActiveUsers          int64 `json:"active_users_7d"`
	NewUsersToday        int64 `json:"new_users_today"`
	TotalUniversities    int64 `json:"total_universities"`
	TotalProfiles        int64 `json:"total_profiles"`
	TotalConnections     int64 `json:"total_connections"`
	PendingConnections   int64 `json:"pending_connections"`
	TotalMessages        int64 `json:"total_messages"`
	OpenJobs             int64 `json:"open_jobs"`
	TotalApplications    int64 `json:"total_job_applications"`
	UpcomingEvents       int64 `json:"upcoming_events"`
	OpenScholarships     int64 `json:"open_scholarships"`
	CredentialsIssued    int64 `json:"credentials_issued"`
	CredentialsPending   int64 `json:"credentials_pending"`
	NewslettersSent      int64 `json:"newsletters_sent"`
	FeedbackEntries      int64 `json:"feedback_entries"`
	UnresolvedDeadLetter int64 `json:"unresolved_dead_letters"`
}

// GetDashboardStats retrieves overall platform statistics
func (s *AnalyticsService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}
	now := time.Now()
	c := &counter{db: s.db.WithContext(ctx)}

	c.count(&stats.TotalUsers, "users", &model.User{}, "")
	c.count(&stats.NewUsersToday, "new users", &model.User{}, "created_at >= ?", now.Truncate(24*time.Hour))
	c.count(&stats.TotalUniversities, "universities", &model.University{}, "")
	c.count(&stats.TotalProfiles, "profiles", &model.Profile{}, "")
	c.count(&stats.TotalConnections, "connections", &model.Connection{}, "status = ?", model.ConnectionStatusAccepted)
	c.count(&stats.PendingConnections, "pending connections", &model.Connection{}, "status = ?", model.ConnectionStatusPending)
	c.count(&stats.TotalMessages, "messages", &model.Message{}, "")
	c.count(&stats.OpenJobs, "open jobs", &model.JobPosting{}, "status = ?", model.JobStatusOpen)
	c.count(&stats.TotalApplications, "job applications", &model.JobApplication{}, "")
	c.count(&stats.UpcomingEvents, "upcoming events", &model.Event{}, "status = ? AND starts_at >= ?", model.EventStatusScheduled, now)
	c.count(&stats.OpenScholarships, "open scholarships", &model.Scholarship{}, "status = ?", model.ScholarshipStatusOpen)
	c.count(&stats.CredentialsIssued, "issued credentials", &model.Credential{}, "chain_status = ?", model.ChainStatusIssued)
	c.count(&stats.CredentialsPending, "pending credentials", &model.Credential{}, "chain_status = ?", model.ChainStatusPending)
	c.count(&stats.NewslettersSent, "newsletters", &model.Newsletter{}, "status = ?", model.NewsletterStatusSent)
	c.count(&stats.FeedbackEntries, "feedback", &model.CurriculumFeedback{}, "")
	c.count(&stats.UnresolvedDeadLetter, "dead letters", &model.OutboxDeadLetter{}, "resolved = ?", false)
	if c.err != nil {
		return nil, c.err
	}

	sevenDaysAgo := now.AddDate(0, 0, -7)
	if err := s.db.WithContext(ctx).Model(&model.UserActivity{}).
		Where("created_at >= ?", sevenDaysAgo).
		Distinct("user_id").
		Count(&stats.ActiveUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}

	return stats, nil
}

// UserStats is the activity summary behind GET /analytics/me
type UserStats struct {
	Connections         int64 `json:"connections"`
	PendingRequests     int64 `json:"pending_requests"`
	JobApplications     int64 `json:"job_applications"`
	ScholarshipApps     int64 `json:"scholarship_applications"`
	EventRegistrations  int64 `json:"event_registrations"`
	Credentials         int64 `json:"credentials"`
	CredentialsOnChain  int64 `json:"credentials_on_chain"`
	MessagesSent        int64 `json:"messages_sent"`
	FeedbackSubmitted   int64 `json:"feedback_submitted"`
	UnreadNotifications int64 `json:"unread_notifications"`
	Points              int   `json:"points"`
	Level               int   `json:"level"`
}

// GetUserStats retrieves statistics for a specific user
func (s *AnalyticsService) GetUserStats(ctx context.Context, userID uint) (*UserStats, error) {
	stats := &UserStats{}
	c := &counter{db: s.db.WithContext(ctx)}

	c.count(&stats.Connections, "connections", &model.Connection{},
		"(requester_id = ? OR recipient_id = ?) AND status = ?", userID, userID, model.ConnectionStatusAccepted)
	c.count(&stats.PendingRequests, "pending requests", &model.Connection{},
		"recipient_id = ? AND status = ?", userID, model.ConnectionStatusPending)
	c.count(&stats.JobApplications, "job applications", &model.JobApplication{}, "applicant_id = ?", userID)
	c.count(&stats.ScholarshipApps, "scholarship applications", &model.ScholarshipApplication{}, "applicant_id = ?", userID)
	c.count(&stats.EventRegistrations, "event registrations", &model.EventRegistration{},
		"user_id = ? AND status = ?", userID, model.RegistrationStatusRegistered)
	c.count(&stats.Credentials, "credentials", &model.Credential{}, "user_id = ?", userID)
	c.count(&stats.CredentialsOnChain, "on-chain credentials", &model.Credential{},
		"user_id = ? AND chain_status = ?", userID, model.ChainStatusIssued)
	c.count(&stats.MessagesSent, "messages", &model.Message{}, "sender_id = ?", userID)
	c.count(&stats.FeedbackSubmitted, "feedback", &model.CurriculumFeedback{}, "user_id = ?", userID)
	c.count(&stats.UnreadNotifications, "notifications", &model.UserNotification{}, "user_id = ? AND read = ?", userID, false)
	if c.err != nil {
		return nil, c.err
	}

	var points int64
	if err := s.db.WithContext(ctx).Model(&model.PointTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("failed to sum points: %w", err)
	}
	stats.Points = int(points)
	stats.Level = LevelForPoints(stats.Points)

	return stats, nil
}

// UniversityStats is the tenant summary behind GET /analytics/universities/:id
type UniversityStats struct {
	UniversityID      uint           `json:"university_id"`
	Members           int64          `json:"members"`
	Mentors           int64          `json:"mentors"`
	OpenJobs          int64          `json:"open_jobs"`
	UpcomingEvents    int64          `json:"upcoming_events"`
	OpenScholarships  int64          `json:"open_scholarships"`
	CredentialsIssued int64          `json:"credentials_issued"`
	FeedbackCount     int64          `json:"feedback_count"`
	FeedbackAverage   float64        `json:"feedback_average"`
	Subscribers       int64          `json:"newsletter_subscribers"`
	GraduationYears   []YearCount    `json:"graduation_years"`
	TopCompanies      []CompanyCount `json:"top_companies"`
}

// YearCount is the number of profiles per graduation year
type YearCount struct {
	Year  int   `json:"year"`
	Count int64 `json:"count"`
}

// CompanyCount is the number of profiles per employer
type CompanyCount struct {
	Company string `json:"company"`
	Count   int64  `json:"count"`
}

// GetUniversityStats returns tenant-level statistics, from the cache when one
// is configured and holds a fresh copy
func (s *AnalyticsService) GetUniversityStats(ctx context.Context, universityID uint) (*UniversityStats, error) {
	if s.cache == nil {
		return s.computeUniversityStats(ctx, universityID)
	}

	key := fmt.Sprintf("analytics:university:%d", universityID)
	var cached UniversityStats
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	stats, err := s.computeUniversityStats(ctx, universityID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, stats, universityStatsTTL); err != nil {
		log.Printf("[ANALYTICS] Failed to cache stats for university %d: %v", universityID, err)
	}
	return stats, nil
}

func (s *AnalyticsService) computeUniversityStats(ctx context.Context, universityID uint) (*UniversityStats, error) {
	stats := &UniversityStats{UniversityID: universityID}
	now := time.Now()
	db := s.db.WithContext(ctx)
	c := &counter{db: db}

	c.count(&stats.Members, "members", &model.Profile{}, "university_id = ?", universityID)
	c.count(&stats.Mentors, "mentors", &model.Profile{}, "university_id = ? AND is_mentor = ?", universityID, true)
	c.count(&stats.OpenJobs, "open jobs", &model.JobPosting{}, "university_id = ? AND status = ?", universityID, model.JobStatusOpen)
	c.count(&stats.UpcomingEvents, "upcoming events", &model.Event{},
		"university_id = ? AND status = ? AND starts_at >= ?", universityID, model.EventStatusScheduled, now)
	c.count(&stats.OpenScholarships, "open scholarships", &model.Scholarship{},
		"university_id = ? AND status = ?", universityID, model.ScholarshipStatusOpen)
	c.count(&stats.CredentialsIssued, "issued credentials", &model.Credential{},
		"university_id = ? AND chain_status = ?", universityID, model.ChainStatusIssued)
	c.count(&stats.FeedbackCount, "feedback", &model.CurriculumFeedback{}, "university_id = ?", universityID)
	c.count(&stats.Subscribers, "subscribers", &model.NewsletterSubscription{}, "university_id = ? AND active = ?", universityID, true)
	if c.err != nil {
		return nil, c.err
	}

	if err := db.Model(&model.CurriculumFeedback{}).
		Where("university_id = ?", universityID).
		Select("COALESCE(AVG(rating), 0)").
		Scan(&stats.FeedbackAverage).Error; err != nil {
		return nil, fmt.Errorf("failed to average feedback: %w", err)
	}

	if err := db.Model(&model.Profile{}).
		Select("graduation_year AS year, COUNT(*) AS count").
		Where("university_id = ? AND graduation_year > 0", universityID).
		Group("graduation_year").
		Order("graduation_year ASC").
		Scan(&stats.GraduationYears).Error; err != nil {
		return nil, fmt.Errorf("failed to group graduation years: %w", err)
	}

	if err := db.Model(&model.Profile{}).
		Select("company, COUNT(*) AS count").
		Where("university_id = ? AND company <> ''", universityID).
		Group("company").
		Order("count DESC, company ASC").
		Limit(10).
		Scan(&stats.TopCompanies).Error; err != nil {
		return nil, fmt.Errorf("failed to group companies: %w", err)
	}

	return stats, nil
}

// TimeSeriesPoint represents a data point in time series
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// GetActivityTimeSeries retrieves activity over time
func (s *AnalyticsService) GetActivityTimeSeries(ctx context.Context, days int, activityType model.ActivityType) ([]TimeSeriesPoint, error) {
	startDate := time.Now().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	var results []TimeSeriesPoint
	query := s.db.WithContext(ctx).Model(&model.UserActivity{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Where("created_at >= ?", startDate).
		Group("DATE(created_at)").
		Order("date ASC")

	if activityType != "" {
		query = query.Where("activity_type = ?", activityType)
	}

	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch time series: %w", err)
	}

	return results, nil
}

// LogActivity logs a user activity
func (s *AnalyticsService) LogActivity(ctx context.Context, userID uint, activityType model.ActivityType, resourceType string, resourceID uint, ipAddress string, userAgent string) error {
	activity := model.UserActivity{
		UserID:       userID,
		ActivityType: activityType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
	}

	if err := s.db.WithContext(ctx).Create(&activity).Error; err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}

	return nil
}
