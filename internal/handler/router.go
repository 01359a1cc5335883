package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/middleware"
	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/service"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Router groups everything needed to mount the API.
type Router struct {
	Tokens      middleware.TokenValidator
	AuditRepo   auditWriter
	Metrics     *service.MetricsService
	RateLimiter *middleware.IPRateLimiter
	Logger      *zap.Logger

	Auth          *AuthHandler
	Users         *UserHandler
	Intake        *IntakeHandler
	Schools       *SchoolHandler
	Uploads       *UploadHandler
	Portal        *PortalHandler
	Applicants    *ApplicantHandler
	Exports       *ExportHandler
	Catalog       *CatalogHandler
	Opportunities *OpportunityHandler
	Dashboard     *DashboardHandler
	Audit         *AuditHandler
	MetricsView   *MetricsHandler
}

// Register mounts public, portal and admin routes on api.
func (r *Router) Register(api *gin.RouterGroup) {
	limited := middleware.RateLimit(r.RateLimiter, r.Metrics)
	staff := []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleReviewer}
	admins := []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}

	auth := api.Group("/auth")
	auth.POST("/login", limited, r.Auth.Login)
	auth.POST("/refresh", r.Auth.Refresh)
	authed := auth.Group("", middleware.JWT(r.Tokens))
	authed.POST("/logout", r.Auth.Logout)
	authed.POST("/change-password", r.Auth.ChangePassword)
	authed.GET("/me", r.Auth.Me)

	api.POST("/intake", limited, r.Intake.Submit)
	api.GET("/schools/search", r.Schools.Search)
	api.POST("/uploads", limited, r.Uploads.Upload)
	api.GET("/uploads/:token", r.Uploads.Serve)

	api.POST("/portal/session", limited, r.Portal.Session)
	portal := api.Group("/portal", middleware.JWT(r.Tokens), middleware.RequireApplicant())
	portal.GET("/me", r.Portal.Me)
	portal.GET("/boosts", r.Portal.Boosts)
	portal.POST("/boosts/:id/complete", r.Portal.CompleteBoost)
	portal.GET("/opportunities", r.Portal.Opportunities)
	portal.POST("/opportunities/:id/apply", r.Portal.Apply)
	portal.GET("/applications", r.Portal.Applications)
	portal.GET("/leaderboard", r.Portal.Leaderboard)

	admin := api.Group("/admin", middleware.JWT(r.Tokens), middleware.RequireRoles(staff...))
	admin.GET("/dashboard", r.Dashboard.Summary)
	admin.GET("/metrics", r.MetricsView.Snapshot)

	admin.GET("/applicants", r.Applicants.List)
	admin.GET("/applicants/:id", r.Applicants.Get)
	admin.PATCH("/applicants/:id/status", r.Applicants.UpdateStatus)
	admin.POST("/applicants/bulk/status", r.Applicants.BulkStatus)
	admin.POST("/applicants/export", r.audit(models.AuditActionApplicantExport, "applicants"), r.Applicants.Export)
	admin.GET("/exports/:token", r.Exports.Download)

	admin.GET("/schools", r.Schools.List)
	admin.GET("/ambassador-types", r.Catalog.ListTypes)
	admin.GET("/challenges", r.Catalog.ListChallenges)
	admin.GET("/opportunities", r.Opportunities.List)
	admin.GET("/opportunities/:id", r.Opportunities.Get)
	admin.GET("/opportunities/:id/applications", r.Opportunities.Applications)
	admin.POST("/opportunity-applications/:id/review", r.Opportunities.Review)

	manage := admin.Group("", middleware.RequireRoles(admins...))
	manage.PUT("/applicants/:id/position", r.Applicants.OverridePosition)
	manage.POST("/applicants/:id/recalculate", r.Applicants.Recalculate)
	manage.POST("/applicants/bulk/delete", r.Applicants.BulkDelete)
	manage.GET("/audit-logs", r.Audit.List)

	schools := r.audit(models.AuditActionSchoolChange, "schools")
	manage.POST("/schools", schools, r.Schools.Create)
	manage.PUT("/schools/:id", schools, r.Schools.Update)
	manage.DELETE("/schools/:id", schools, r.Schools.Delete)

	types := r.audit(models.AuditActionCatalogChange, "ambassador_types")
	manage.POST("/ambassador-types", types, r.Catalog.CreateType)
	manage.PUT("/ambassador-types/:id", types, r.Catalog.UpdateType)
	manage.DELETE("/ambassador-types/:id", types, r.Catalog.DeleteType)

	challenges := r.audit(models.AuditActionCatalogChange, "challenges")
	manage.POST("/challenges", challenges, r.Catalog.CreateChallenge)
	manage.PUT("/challenges/:id", challenges, r.Catalog.UpdateChallenge)
	manage.DELETE("/challenges/:id", challenges, r.Catalog.DeleteChallenge)

	opportunities := r.audit(models.AuditActionOpportunityChange, "opportunities")
	manage.POST("/opportunities", opportunities, r.Opportunities.Create)
	manage.PUT("/opportunities/:id", opportunities, r.Opportunities.Update)
	manage.DELETE("/opportunities/:id", opportunities, r.Opportunities.Delete)

	users := api.Group("/users", middleware.JWT(r.Tokens))
	users.GET("", middleware.RequireRoles(admins...), r.Users.List)
	users.POST("", middleware.RequireRoles(models.RoleSuperAdmin), r.Users.Create)
	users.GET("/:id", middleware.Authorize(middleware.Roles(admins...), middleware.Self("id")), r.Users.Get)
	users.PUT("/:id", middleware.Authorize(middleware.Roles(models.RoleSuperAdmin), middleware.Self("id")), r.Users.Update)
	users.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin), r.Users.Delete)
}

func (r *Router) audit(action, resource string) gin.HandlerFunc {
	return middleware.Audit(r.AuditRepo, r.Logger, action, resource)
}
