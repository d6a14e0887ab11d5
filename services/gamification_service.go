package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/cache"
	"gorm.io/gorm"
)

// DefaultPoints are used when no gamification.points.* setting exists
var DefaultPoints = map[model.PointAction]int{
	model.PointActionConnectionAccepted: 10,
	model.PointActionJobApplication:     5,
	model.PointActionEventRegistration:  15,
	model.PointActionCredentialIssued:   50,
	model.PointActionFeedbackSubmitted:  5,
	model.PointActionMessageSent:        1,
	model.PointActionProfileCompleted:   20,
}

const (
	leaderboardGlobalKey = "leaderboard:global"
	pointsPerLevelUnit   = 100
)

func leaderboardUniversityKey(id uint) string {
	return "leaderboard:university:" + strconv.FormatUint(uint64(id), 10)
}

// LeaderboardStore is the sorted-set subset of the Redis cache
type LeaderboardStore interface {
	ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error)
	ZTop(ctx context.Context, key string, offset, limit int64) ([]cache.ScoredMember, error)
	ZCard(ctx context.Context, key string) (int64, error)
}

// GamificationService awards points and unlocks achievements
type GamificationService struct {
	db            *gorm.DB
	board         LeaderboardStore
	notifications *NotificationService
}

// NewGamificationService creates a gamification service. board may be nil,
// in which case leaderboards are computed from the database.
func NewGamificationService(db *gorm.DB, board LeaderboardStore) *GamificationService {
	return &GamificationService{
		db:            db,
		board:         board,
		notifications: NewNotificationService(db),
	}
}

// LevelForPoints returns floor(sqrt(points/100)) + 1
func LevelForPoints(points int) int {
	if points <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(points)/pointsPerLevelUnit))) + 1
}

// PointsForLevel returns the minimum points needed to reach level
func PointsForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return (level - 1) * (level - 1) * pointsPerLevelUnit
}

// LevelProgress is a user's standing towards the next level
type LevelProgress struct {
	Points          int     `json:"points"`
	Level           int     `json:"level"`
	NextLevelPoints int     `json:"next_level_points"`
	ProgressPercent float64 `json:"progress_percent"`
}

// ProgressForPoints computes the level and progress towards the next one
func ProgressForPoints(points int) LevelProgress {
	level := LevelForPoints(points)
	floor := PointsForLevel(level)
	next := PointsForLevel(level + 1)

	progress := 0.0
	if next > floor && points > floor {
		progress = float64(points-floor) / float64(next-floor) * 100
	}

	return LevelProgress{
		Points:          points,
		Level:           level,
		NextLevelPoints: next,
		ProgressPercent: math.Round(progress*100) / 100,
	}
}

// PointsFor returns the configured value for an action
func (s *GamificationService) PointsFor(ctx context.Context, action model.PointAction) int {
	fallback := DefaultPoints[action]

	var setting model.AppSetting
	err := s.db.WithContext(ctx).Where("key = ?", "gamification.points."+string(action)).First(&setting).Error
	if err != nil {
		return fallback
	}
	return setting.IntValue(fallback)
}

// AwardRequest describes a point-earning action
type AwardRequest struct {
	UserID        uint
	UniversityID  *uint
	Action        model.PointAction
	ReferenceType string
	ReferenceID   uint
}

// Award records points for an action, unlocks achievements and updates the
// leaderboard. An action with a reference is only rewarded once.
func (s *GamificationService) Award(ctx context.Context, req AwardRequest) (*model.PointTransaction, error) {
	points := s.PointsFor(ctx, req.Action)
	if points == 0 {
		return nil, nil
	}

	if req.ReferenceID != 0 {
		var count int64
		err := s.db.WithContext(ctx).Model(&model.PointTransaction{}).
			Where("user_id = ? AND action = ? AND reference_type = ? AND reference_id = ?",
				req.UserID, req.Action, req.ReferenceType, req.ReferenceID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check existing award: %w", err)
		}
		if count > 0 {
			return nil, nil
		}
	}

	txn := &model.PointTransaction{
		UserID:        req.UserID,
		UniversityID:  req.UniversityID,
		Action:        req.Action,
		Points:        points,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
	}
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, fmt.Errorf("failed to record points: %w", err)
	}

	total, err := s.TotalPoints(ctx, req.UserID)
	if err != nil {
		return txn, err
	}

	if err := s.unlockAchievements(ctx, req.UserID, total); err != nil {
		log.Printf("[GAMIFICATION] achievements for user %d: %v", req.UserID, err)
	}

	if s.board != nil {
		member := strconv.FormatUint(uint64(req.UserID), 10)
		if _, err := s.board.ZIncrBy(ctx, leaderboardGlobalKey, float64(points), member); err != nil {
			log.Printf("[GAMIFICATION] leaderboard update failed: %v", err)
		}
		if req.UniversityID != nil {
			if _, err := s.board.ZIncrBy(ctx, leaderboardUniversityKey(*req.UniversityID), float64(points), member); err != nil {
				log.Printf("[GAMIFICATION] leaderboard update failed: %v", err)
			}
		}
	}

	return txn, nil
}

// AwardQuietly awards points synchronously, logging failures instead of
// returning them
func (s *GamificationService) AwardQuietly(ctx context.Context, req AwardRequest) {
	if _, err := s.Award(ctx, req); err != nil {
		log.Printf("[GAMIFICATION] award %s to user %d: %v", req.Action, req.UserID, err)
	}
}

// TotalPoints sums a user's ledger
func (s *GamificationService) TotalPoints(ctx context.Context, userID uint) (int, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&model.PointTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum points: %w", err)
	}
	return int(total), nil
}

func (s *GamificationService) unlockAchievements(ctx context.Context, userID uint, total int) error {
	var pending []model.Achievement
	err := s.db.WithContext(ctx).
		Where("threshold <= ?", total).
		Where("id NOT IN (?)", s.db.Model(&model.UserAchievement{}).Select("achievement_id").Where("user_id = ?", userID)).
		Order("threshold ASC").
		Find(&pending).Error
	if err != nil {
		return err
	}

	for _, a := range pending {
		ua := model.UserAchievement{UserID: userID, AchievementID: a.ID, UnlockedAt: time.Now()}
		if err := s.db.WithContext(ctx).Create(&ua).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return err
		}
		s.notifications.Notify(ctx, CreateNotificationRequest{
			UserID:   userID,
			Type:     model.NotificationTypeSuccess,
			Category: model.NotificationCategoryAchievement,
			Title:    "Achievement unlocked: " + a.Name,
			Message:  a.Description,
			Link:     "/gamification",
			Metadata: map[string]interface{}{"achievement_code": a.Code},
		})
	}
	return nil
}

// GamificationSummary is returned by GET /gamification/me
type GamificationSummary struct {
	LevelProgress
	Achievements []model.UserAchievement `json:"achievements"`
	Recent       []model.PointTransaction `json:"recent_activity"`
}

// Summary returns a user's points, level and achievements
func (s *GamificationService) Summary(ctx context.Context, userID uint) (*GamificationSummary, error) {
	total, err := s.TotalPoints(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &GamificationSummary{LevelProgress: ProgressForPoints(total)}

	if err := s.db.WithContext(ctx).Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at ASC").
		Find(&summary.Achievements).Error; err != nil {
		return nil, fmt.Errorf("failed to load achievements: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(10).
		Find(&summary.Recent).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent points: %w", err)
	}

	return summary, nil
}

// AchievementStatus is a catalogue entry with the viewer's unlock time
type AchievementStatus struct {
	model.Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Achievements lists every achievement by threshold. With a non-zero userID
// the entries the user has unlocked are marked.
func (s *GamificationService) Achievements(ctx context.Context, userID uint) ([]AchievementStatus, error) {
	var all []model.Achievement
	if err := s.db.WithContext(ctx).Order("threshold ASC, id ASC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to load achievements: %w", err)
	}

	unlocked := map[uint]time.Time{}
	if userID != 0 {
		var owned []model.UserAchievement
		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&owned).Error; err != nil {
			return nil, fmt.Errorf("failed to load unlocked achievements: %w", err)
		}
		for _, ua := range owned {
			unlocked[ua.AchievementID] = ua.UnlockedAt
		}
	}

	out := make([]AchievementStatus, 0, len(all))
	for _, a := range all {
		status := AchievementStatus{Achievement: a}
		if at, ok := unlocked[a.ID]; ok {
			at := at
			status.Unlocked = true
			status.UnlockedAt = &at
		}
		out = append(out, status)
	}
	return out, nil
}

// LeaderboardEntry is one ranked user
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
	Level  int    `json:"level"`
}

// Leaderboard returns the top users by points, optionally within a university.
// Redis is used when available; otherwise the ledger is aggregated.
func (s *GamificationService) Leaderboard(ctx context.Context, universityID *uint, limit, offset int) ([]LeaderboardEntry, error) {
	if s.board != nil {
		key := leaderboardGlobalKey
		if universityID != nil {
			key = leaderboardUniversityKey(*universityID)
		}
		if size, err := s.board.ZCard(ctx, key); err == nil && size > 0 {
			members, err := s.board.ZTop(ctx, key, int64(offset), int64(limit))
			if err == nil {
				return s.entriesFromBoard(ctx, members, offset)
			}
			log.Printf("[GAMIFICATION] leaderboard read failed, using database: %v", err)
		}
	}

	type row struct {
		UserID uint
		Name   string
		Points int
	}
	var rows []row

	q := s.db.WithContext(ctx).Table("point_transactions").
		Select("point_transactions.user_id AS user_id, users.name AS name, SUM(point_transactions.points) AS points").
		Joins("JOIN users ON users.id = point_transactions.user_id AND users.deleted_at IS NULL")
	if universityID != nil {
		q = q.Where("point_transactions.university_id = ?", *universityID)
	}
	err := q.Group("point_transactions.user_id, users.name").
		Order("points DESC, point_transactions.user_id ASC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		entries = append(entries, LeaderboardEntry{
			Rank:   offset + i + 1,
			UserID: r.UserID,
			Name:   r.Name,
			Points: r.Points,
			Level:  LevelForPoints(r.Points),
		})
	}
	return entries, nil
}

func (s *GamificationService) entriesFromBoard(ctx context.Context, members []cache.ScoredMember, offset int) ([]LeaderboardEntry, error) {
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m.Member, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}

	var users []model.User
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, fmt.Errorf("failed to load leaderboard users: %w", err)
		}
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	entries := make([]LeaderboardEntry, 0, len(members))
	for i, m := range members {
		id, err := strconv.ParseUint(m.Member, 10, 32)
		if err != nil {
			continue
		}
		points := int(m.Score)
		entries = append(entries, LeaderboardEntry{
			Rank:   offset + i + 1,
			UserID: uint(id),
			Name:   names[uint(id)],
			Points: points,
			Level:  LevelForPoints(points),
		})
	}
	return entries, nil
}
