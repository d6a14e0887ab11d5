package router

import (
	"time"

	"github.com/NagallaThanvi/unilink/handlers"
	admin_handlers "github.com/NagallaThanvi/unilink/handlers/admin"
	analytics_handlers "github.com/NagallaThanvi/unilink/handlers/analytics"
	auth_handlers "github.com/NagallaThanvi/unilink/handlers/auth"
	connection_handlers "github.com/NagallaThanvi/unilink/handlers/connection"
	credential_handlers "github.com/NagallaThanvi/unilink/handlers/credential"
	event_handlers "github.com/NagallaThanvi/unilink/handlers/event"
	feedback_handlers "github.com/NagallaThanvi/unilink/handlers/feedback"
	gamification_handlers "github.com/NagallaThanvi/unilink/handlers/gamification"
	job_handlers "github.com/NagallaThanvi/unilink/handlers/job"
	messaging_handlers "github.com/NagallaThanvi/unilink/handlers/messaging"
	mirror_handlers "github.com/NagallaThanvi/unilink/handlers/mirror"
	newsletter_handlers "github.com/NagallaThanvi/unilink/handlers/newsletter"
	notification_handlers "github.com/NagallaThanvi/unilink/handlers/notification"
	profile_handlers "github.com/NagallaThanvi/unilink/handlers/profile"
	scholarship_handlers "github.com/NagallaThanvi/unilink/handlers/scholarship"
	search_handlers "github.com/NagallaThanvi/unilink/handlers/search"
	university_handlers "github.com/NagallaThanvi/unilink/handlers/university"
	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/mirror"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/services/search"
	"github.com/NagallaThanvi/unilink/services/storage"
	"github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Dependencies are the connections and services built at startup. Optional
// backends are nil interfaces when they are not configured.
type Dependencies struct {
	DB             *gorm.DB
	JWT            *auth.JWTManager
	BruteForce     *middleware.BruteForceProtection
	ResetMailer    auth_handlers.ResetMailer
	Objects        storage.ObjectStore
	Mirror         mirror.Store
	Search         search.Engine
	Outbox         *outbox.Worker
	Notifications  *services.NotificationService
	Gamification   *services.GamificationService
	Connections    *services.ConnectionService
	Credentials    *services.CredentialService
	Newsletters    *services.NewsletterService
	Analytics      *services.AnalyticsService
	HealthChecks   []handlers.HealthCheck
	AllowedOrigins string
	DisableLogger  bool
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	db := deps.DB
	authMiddleware := middleware.NewAuthMiddleware(deps.JWT, db)

	authHandler := auth_handlers.NewAuthHandler(db, deps.JWT, deps.BruteForce, deps.ResetMailer)
	universityHandler := university_handlers.NewUniversityHandler(db)
	profileHandler := profile_handlers.NewProfileHandler(db, deps.Objects)
	credentialHandler := credential_handlers.NewCredentialHandler(db, deps.Credentials)
	connectionHandler := connection_handlers.NewConnectionHandler(db, deps.Connections)
	messagingHandler := messaging_handlers.NewMessagingHandler(db, deps.Notifications, deps.Gamification)
	jobHandler := job_handlers.NewJobHandler(db, deps.Notifications, deps.Gamification)
	scholarshipHandler := scholarship_handlers.NewScholarshipHandler(db, deps.Notifications)
	eventHandler := event_handlers.NewEventHandler(db, deps.Notifications, deps.Gamification)
	feedbackHandler := feedback_handlers.NewFeedbackHandler(db, deps.Gamification)
	newsletterHandler := newsletter_handlers.NewNewsletterHandler(db, deps.Newsletters)
	notificationHandler := notification_handlers.NewNotificationHandler(deps.Notifications)
	gamificationHandler := gamification_handlers.NewGamificationHandler(deps.Gamification)
	analyticsHandler := analytics_handlers.NewAnalyticsHandler(db, deps.Analytics)
	adminHandler := admin_handlers.NewAdminHandler(db, deps.Analytics, deps.Outbox)
	mirrorHandler := mirror_handlers.NewMirrorHandler(deps.Mirror)
	searchHandler := search_handlers.NewSearchHandler(deps.Search)
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks...)

	// Apply security middleware
	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    deps.AllowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
		DisableLogger:     deps.DisableLogger,
	})

	// Health and metrics (public)
	app.Get("/ping", healthHandler.Ping)
	app.Get("/health", healthHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Roles allowed to post opportunities and events
	posters := []string{model.RoleAlumni, model.RoleFaculty, model.RoleUniversityAdmin, model.RoleAdmin}

	// ==================== Auth ====================

	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if deps.BruteForce != nil {
		authGroup.Post("/login", deps.BruteForce.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/forgot-password", authHandler.ForgotPassword)
	authGroup.Post("/reset-password", authHandler.ResetPassword)

	// Protected auth routes
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/change-password", authMiddleware.Required(), authHandler.ChangePassword)
	authGroup.Get("/me", authMiddleware.Required(), authHandler.GetMe)
	authGroup.Put("/me", authMiddleware.Required(), authHandler.UpdateMe)

	// ==================== Universities & Profiles ====================

	universities := api.Group("/universities")
	universities.Get("/", universityHandler.ListUniversities)                                                                                                         // Public: List universities
	universities.Get("/:id", universityHandler.GetUniversity)                                                                                                         // Public: Get university by ID
	universities.Post("/", authMiddleware.RequireAdmin(), middleware.AdminAuditLog(db, "university_create", "universities"), universityHandler.CreateUniversity)      // Admin only
	universities.Put("/:id", authMiddleware.Required(), middleware.AdminAuditLog(db, "university_update", "universities"), universityHandler.UpdateUniversity)        // Admin or the university's admin
	universities.Delete("/:id", authMiddleware.RequireAdmin(), middleware.AdminAuditLog(db, "university_delete", "universities"), universityHandler.DeleteUniversity) // Admin only

	profiles := api.Group("/profiles")
	profiles.Get("/", authMiddleware.Optional(), profileHandler.ListProfiles)            // Public profiles; members also see university-only ones
	profiles.Get("/:id", authMiddleware.Optional(), profileHandler.GetProfile)           // Visibility checked per profile
	profiles.Post("/", authMiddleware.Required(), profileHandler.CreateProfile)          // Protected: one profile per user
	profiles.Put("/:id", authMiddleware.Required(), profileHandler.UpdateProfile)        // Owner only
	profiles.Delete("/:id", authMiddleware.Required(), profileHandler.DeleteProfile)     // Owner or admin
	profiles.Post("/:id/avatar", authMiddleware.Required(), profileHandler.UploadAvatar) // Owner only

	// ==================== Credentials ====================

	credentials := api.Group("/credentials")
	credentials.Post("/verify", authMiddleware.Optional(), credentialHandler.VerifyCredential) // Public: verify against the chain
	credentials.Get("/", authMiddleware.Required(), credentialHandler.ListCredentials)
	credentials.Get("/:id", authMiddleware.Required(), credentialHandler.GetCredential)
	credentials.Post("/", authMiddleware.Required(), credentialHandler.CreateCredential)
	credentials.Put("/:id", authMiddleware.Required(), credentialHandler.UpdateCredential)
	credentials.Delete("/:id", authMiddleware.Required(), credentialHandler.DeleteCredential)
	credentials.Post("/:id/document", authMiddleware.Required(), credentialHandler.UploadDocument)
	credentials.Post("/:id/issue", authMiddleware.Required(), credentialHandler.IssueCredential)   // 202: confirmed by the cron job
	credentials.Post("/:id/revoke", authMiddleware.Required(), credentialHandler.RevokeCredential) // University admins only

	// ==================== Networking ====================

	connections := api.Group("/connections", authMiddleware.Required())
	connections.Get("/", connectionHandler.ListConnections)
	connections.Get("/:id", connectionHandler.GetConnection)
	connections.Post("/", connectionHandler.CreateConnection)
	connections.Put("/:id", connectionHandler.UpdateConnection) // Recipient accepts or rejects
	connections.Delete("/:id", connectionHandler.DeleteConnection)

	conversations := api.Group("/conversations", authMiddleware.Required())
	conversations.Get("/", messagingHandler.ListConversations)
	conversations.Post("/", messagingHandler.CreateConversation)
	conversations.Get("/:id", messagingHandler.GetConversation)
	conversations.Get("/:id/messages", messagingHandler.ListMessages)
	conversations.Post("/:id/messages", messagingHandler.SendMessage)
	conversations.Post("/:id/read", messagingHandler.MarkRead)

	// ==================== Opportunities ====================

	jobs := api.Group("/jobs")
	jobs.Get("/", authMiddleware.Optional(), jobHandler.ListJobs)
	jobs.Get("/:id", authMiddleware.Optional(), jobHandler.GetJob)
	jobs.Post("/", authMiddleware.Required(), authMiddleware.RequireRole(posters...), jobHandler.CreateJob)
	jobs.Put("/:id", authMiddleware.Required(), jobHandler.UpdateJob)
	jobs.Delete("/:id", authMiddleware.Required(), jobHandler.DeleteJob)

	jobApplications := api.Group("/job-applications", authMiddleware.Required())
	jobApplications.Get("/", jobHandler.ListApplications)
	jobApplications.Get("/:id", jobHandler.GetApplication)
	jobApplications.Post("/", jobHandler.CreateApplication)
	jobApplications.Put("/:id", jobHandler.UpdateApplication)
	jobApplications.Delete("/:id", jobHandler.DeleteApplication)

	scholarships := api.Group("/scholarships")
	scholarships.Get("/", authMiddleware.Optional(), scholarshipHandler.ListScholarships)
	scholarships.Get("/:id", authMiddleware.Optional(), scholarshipHandler.GetScholarship)
	scholarships.Post("/", authMiddleware.Required(), authMiddleware.RequireRole(posters...), scholarshipHandler.CreateScholarship)
	scholarships.Put("/:id", authMiddleware.Required(), scholarshipHandler.UpdateScholarship)
	scholarships.Delete("/:id", authMiddleware.Required(), scholarshipHandler.DeleteScholarship)

	scholarshipApplications := api.Group("/scholarship-applications", authMiddleware.Required())
	scholarshipApplications.Get("/", scholarshipHandler.ListApplications)
	scholarshipApplications.Get("/:id", scholarshipHandler.GetApplication)
	scholarshipApplications.Post("/", scholarshipHandler.CreateApplication)
	scholarshipApplications.Put("/:id", scholarshipHandler.UpdateApplication)
	scholarshipApplications.Delete("/:id", scholarshipHandler.DeleteApplication)

	// ==================== Events & Feedback ====================

	events := api.Group("/events")
	events.Get("/", authMiddleware.Optional(), eventHandler.ListEvents)
	events.Get("/:id", authMiddleware.Optional(), eventHandler.GetEvent)
	events.Post("/", authMiddleware.Required(), authMiddleware.RequireRole(posters...), eventHandler.CreateEvent)
	events.Put("/:id", authMiddleware.Required(), eventHandler.UpdateEvent)
	events.Delete("/:id", authMiddleware.Required(), eventHandler.DeleteEvent)
	events.Post("/:id/register", authMiddleware.Required(), eventHandler.Register)
	events.Delete("/:id/register", authMiddleware.Required(), eventHandler.Unregister)
	events.Get("/:id/registrations", authMiddleware.Required(), eventHandler.ListRegistrations) // Organiser or university admin

	feedback := api.Group("/curriculum-feedback")
	feedback.Get("/summary", feedbackHandler.Summary) // Public: aggregate ratings per course
	feedback.Get("/", authMiddleware.Optional(), feedbackHandler.ListFeedback)
	feedback.Get("/:id", authMiddleware.Optional(), feedbackHandler.GetFeedback)
	feedback.Post("/", authMiddleware.Required(), feedbackHandler.CreateFeedback)
	feedback.Put("/:id", authMiddleware.Required(), feedbackHandler.UpdateFeedback)
	feedback.Delete("/:id", authMiddleware.Required(), feedbackHandler.DeleteFeedback)

	// ==================== Newsletters ====================

	newsletters := api.Group("/newsletters")
	// Registered ahead of the managed group so its role check does not apply
	newsletters.Post("/subscribe", authMiddleware.Optional(), newsletterHandler.Subscribe)
	newsletters.Post("/unsubscribe", authMiddleware.Optional(), newsletterHandler.Unsubscribe)

	managedNewsletters := newsletters.Group("", authMiddleware.Required(), authMiddleware.RequireRole(model.RoleUniversityAdmin, model.RoleAdmin))
	managedNewsletters.Get("/", newsletterHandler.ListNewsletters)
	managedNewsletters.Post("/", newsletterHandler.CreateNewsletter)
	managedNewsletters.Post("/generate", newsletterHandler.Generate)
	managedNewsletters.Get("/:id", newsletterHandler.GetNewsletter)
	managedNewsletters.Put("/:id", newsletterHandler.UpdateNewsletter)
	managedNewsletters.Delete("/:id", newsletterHandler.DeleteNewsletter)
	managedNewsletters.Post("/:id/send", newsletterHandler.Send)

	// ==================== Notifications & Gamification ====================

	notifications := api.Group("/notifications", authMiddleware.Required())
	notifications.Get("/", notificationHandler.GetNotifications)
	notifications.Get("/unread-count", notificationHandler.GetUnreadCount)
	notifications.Post("/read-all", notificationHandler.MarkAllAsRead)
	notifications.Post("/:id/read", notificationHandler.MarkAsRead)
	notifications.Delete("/", notificationHandler.DeleteAllNotifications)
	notifications.Delete("/:id", notificationHandler.DeleteNotification)

	gamification := api.Group("/gamification")
	gamification.Get("/me", authMiddleware.Required(), gamificationHandler.GetMine)
	gamification.Get("/leaderboard", gamificationHandler.GetLeaderboard)
	gamification.Get("/achievements", authMiddleware.Optional(), gamificationHandler.ListAchievements)

	// ==================== Analytics ====================

	analytics := api.Group("/analytics", authMiddleware.Required())
	analytics.Get("/me", analyticsHandler.GetMyStats)                       // Protected: current user's activity
	analytics.Get("/universities/:id", analyticsHandler.GetUniversityStats) // Members of the university or admin

	// ==================== Read models ====================

	mirrorGroup := api.Group("/mirror")
	mirrorGroup.Get("/universities", mirrorHandler.ListUniversities)
	mirrorGroup.Get("/universities/:id", mirrorHandler.GetUniversity)
	mirrorGroup.Get("/connections", authMiddleware.Required(), mirrorHandler.ListMyConnections)
	mirrorGroup.Get("/admin/users", authMiddleware.RequireAdmin(), mirrorHandler.ListAdminUsers)
	mirrorGroup.Get("/admin/users/:id", authMiddleware.RequireAdmin(), mirrorHandler.GetAdminUser)

	api.Get("/search", searchHandler.Search)

	// ==================== Admin Panel ====================

	admin := api.Group("/admin", authMiddleware.RequireAdmin())
	admin.Get("/dashboard", adminHandler.GetDashboard)
	admin.Get("/analytics/activity", analyticsHandler.GetActivityTimeSeries)

	// Admin User Management
	admin.Get("/users/stats", adminHandler.GetUserStats)
	admin.Get("/users", adminHandler.ListUsers)
	admin.Get("/users/:id", adminHandler.GetUser)
	admin.Put("/users/:id", middleware.AdminAuditLog(db, "user_update", "users"), adminHandler.UpdateUser)
	admin.Delete("/users/:id", middleware.AdminAuditLog(db, "user_delete", "users"), adminHandler.DeleteUser)
	admin.Post("/users/:id/reset-password", middleware.AdminAuditLog(db, "user_reset_password", "users"), adminHandler.ResetUserPassword)

	// Admin Audit Logs
	admin.Get("/audit-logs", adminHandler.ListAuditLogs)
	admin.Get("/audit-logs/:id", adminHandler.GetAuditLog)

	// Admin Settings Management
	admin.Get("/settings", adminHandler.ListSettings)
	admin.Get("/settings/:key", adminHandler.GetSetting)
	admin.Post("/settings", middleware.AdminAuditLog(db, "setting_create", "settings"), adminHandler.CreateSetting)
	admin.Put("/settings/:key", middleware.AdminAuditLog(db, "setting_update", "settings"), adminHandler.UpdateSetting)
	admin.Delete("/settings/:key", middleware.AdminAuditLog(db, "setting_delete", "settings"), adminHandler.DeleteSetting)

	// Mirror and search sync
	admin.Get("/dead-letters", adminHandler.ListDeadLetters)
	admin.Post("/dead-letters/retry", middleware.AdminAuditLog(db, "dead_letter_retry_all", "dead_letters"), adminHandler.RetryAllDeadLetters)
	admin.Post("/dead-letters/:id/retry", middleware.AdminAuditLog(db, "dead_letter_retry", "dead_letters"), adminHandler.RetryDeadLetter)
	admin.Post("/mirror/resync", middleware.AdminAuditLog(db, "mirror_resync", "mirror"), adminHandler.ResyncMirror)
}
