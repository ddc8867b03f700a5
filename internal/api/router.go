package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"membership/internal/auth"
	"membership/internal/config"
	"membership/internal/httpmiddleware"
	"membership/internal/metrics"
	"membership/internal/store"
)

// Deps bundles everything the router needs.
type Deps struct {
	Config     config.App
	Log        *zap.Logger
	DB         *store.DB
	Redis      *store.Redis
	Members    *MemberHandler
	Attendance *AttendanceHandler
	Reports    *ReportHandler
	Auth       *AuthHandler
	RateLimit  *httpmiddleware.RateLimiter
}

// NewRouter builds the gin engine with the full route map.
func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(metrics.HTTPMiddleware())
	r.Use(d.RateLimit.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		dbOK := d.DB.Client.PingContext(c.Request.Context()) == nil
		redisOK := d.Redis.Healthy(c.Request.Context())
		if !dbOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"db": dbOK, "redis": redisOK})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static(d.Config.QRCodeBaseURL, d.Config.QRCodeDir)

	requireAuth := auth.RequireAuth(d.Config.JWTSigningKey, d.Config.JWTIssuer)
	adminOnly := auth.RequireRole(auth.RoleAdmin, auth.RoleSuperadmin)
	superOnly := auth.RequireRole(auth.RoleSuperadmin)

	apiGroup := r.Group("/api")

	// Kiosk surface: transitions are driven by scanned member IDs, no login.
	members := apiGroup.Group("/members")
	{
		members.POST("/check-in", d.Members.CheckIn)
		members.POST("/check-out", d.Members.CheckOut)

		authed := members.Group("", requireAuth, adminOnly)
		authed.POST("", d.Members.Register)
		authed.GET("", d.Members.List)
		authed.GET("/present", d.Members.Present)
		authed.GET("/stats", d.Members.Stats)
		authed.GET("/without-cards", d.Members.WithoutCards)
		authed.POST("/:memberId/issue-card", d.Members.IssueCard)
		authed.GET("/:memberId", d.Members.Get)
		authed.PUT("/:memberId", d.Members.Update)
		authed.DELETE("/:memberId", superOnly, d.Members.Delete)
	}

	attendanceGroup := apiGroup.Group("/attendance", requireAuth, adminOnly)
	{
		attendanceGroup.GET("", d.Attendance.List)
		attendanceGroup.GET("/stats", d.Attendance.Stats)
		attendanceGroup.GET("/today", d.Attendance.Today)
		attendanceGroup.GET("/analytics", d.Attendance.Analytics)
		attendanceGroup.GET("/heatmap", d.Attendance.Heatmap)
		attendanceGroup.GET("/top-active", d.Attendance.TopActive)
		attendanceGroup.GET("/inactive", d.Attendance.Inactive)
		attendanceGroup.GET("/export", d.Attendance.Export)
		attendanceGroup.GET("/member/:memberId", d.Attendance.ByMember)
		attendanceGroup.POST("/manual-check-in", d.Attendance.ManualCheckIn)
		attendanceGroup.POST("/manual-check-out", d.Attendance.ManualCheckOut)
		attendanceGroup.GET("/:id", d.Attendance.Get)
	}

	adminGroup := apiGroup.Group("/admin", requireAuth, adminOnly)
	{
		adminGroup.GET("/dashboard", d.Reports.Dashboard)
		adminGroup.GET("/dashboard/today", d.Reports.DashboardToday)
		adminGroup.GET("/dashboard/weekly", d.Reports.DashboardWeekly)
		adminGroup.GET("/dashboard/monthly", d.Reports.DashboardMonthly)
		adminGroup.GET("/reports/attendance", d.Reports.AttendanceReport)
		adminGroup.GET("/reports/members", d.Reports.MembersReport)
		adminGroup.GET("/reports/analytics", d.Reports.AnalyticsReport)
		adminGroup.GET("/reports/top-active", d.Reports.TopActive)
		adminGroup.GET("/reports/inactive", d.Reports.Inactive)
		adminGroup.GET("/reports/export", d.Reports.Export)
		adminGroup.GET("/live/present", d.Reports.LivePresent)
		adminGroup.GET("/live/stats", d.Reports.LiveStats)
		adminGroup.GET("/search/members", d.Reports.SearchMembers)
		adminGroup.GET("/search/attendance", d.Reports.SearchAttendance)
		adminGroup.POST("/reconcile", superOnly, d.Reports.Reconcile)
	}

	authGroup := apiGroup.Group("/auth")
	{
		authGroup.POST("/login", d.Auth.Login)
		authGroup.POST("/forgot-password", d.Auth.ForgotPassword)
		authGroup.POST("/reset-password/:token", d.Auth.ResetPassword)

		authed := authGroup.Group("", requireAuth)
		authed.POST("/change-password", d.Auth.ChangePassword)
		authed.GET("/me", d.Auth.Me)
		authed.PUT("/me", d.Auth.UpdateMe)

		super := authGroup.Group("/admins", requireAuth, superOnly)
		super.POST("", d.Auth.RegisterAdmin)
		super.GET("", d.Auth.ListAdmins)
		super.PUT("/:id", d.Auth.UpdateAdmin)
		super.DELETE("/:id", d.Auth.DeleteAdmin)
	}

	return r
}
