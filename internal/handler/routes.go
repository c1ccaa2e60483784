package handler

import (
	"net/http"

	"tenant-service/internal/middleware"

	"github.com/labstack/echo/v4"
)

// RouterConfig wires the handlers into an echo instance
type RouterConfig struct {
	Provisioner Provisioner
	Admin       Admin
	Company     Surface
	Manager     Surface
	Health      *HealthHandler
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
}

// RegisterRoutes mounts the public, company and manager routes
func RegisterRoutes(e *echo.Echo, cfg RouterConfig) {
	company := NewAuthHandler(cfg.Company)
	manager := NewAuthHandler(cfg.Manager)
	registration := NewRegistrationHandler(cfg.Provisioner, company)
	tenants := NewTenantHandler(cfg.Admin, company)

	// Public routes
	if cfg.Health != nil {
		e.GET("/health", cfg.Health.HealthCheck)
	}
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	e.POST("/register", registration.Register)
	e.POST("/login", company.Login)
	e.GET("/logout", company.Logout)
	e.POST("/logout", company.Logout)

	e.POST("/manager/login", manager.Login)
	e.GET("/manager/logout", manager.Logout)
	e.POST("/manager/logout", manager.Logout)

	// Pending tenants only
	onboarding := e.Group(onboardingPath, middleware.TenantGate(middleware.GateConfig{
		Verifier:      cfg.Company.Sessions,
		CookieName:    cfg.Company.CookieName,
		SecureCookies: cfg.Company.SecureCookies,
		LoginPath:     cfg.Company.LoginPath,
		Onboarding:    true,
		DashboardRoot: cfg.Company.HomeRoot,
	}))
	onboarding.GET("", tenants.Overview)
	onboarding.POST("/complete", tenants.CompleteOnboarding)

	// Company dashboard, bound to the session's tenant
	dashboard := e.Group(cfg.Company.HomeRoot+"/:tenant", middleware.TenantGate(middleware.GateConfig{
		Verifier:      cfg.Company.Sessions,
		CookieName:    cfg.Company.CookieName,
		SecureCookies: cfg.Company.SecureCookies,
		LoginPath:     cfg.Company.LoginPath,
	}))
	dashboard.GET("", tenants.Overview)
	dashboard.PATCH("/settings", tenants.UpdateSettings)
	dashboard.POST("/branches", tenants.CreateBranch)
	dashboard.PATCH("/branches/:id", tenants.UpdateBranch)
	dashboard.DELETE("/branches/:id", tenants.DeleteBranch)
	dashboard.POST("/managers", tenants.CreateManager)

	// Branch manager area
	branch := e.Group(cfg.Manager.HomeRoot+"/:tenant", middleware.TenantGate(middleware.GateConfig{
		Verifier:      cfg.Manager.Sessions,
		CookieName:    cfg.Manager.CookieName,
		SecureCookies: cfg.Manager.SecureCookies,
		LoginPath:     cfg.Manager.LoginPath,
	}))
	branch.GET("", tenants.Overview)
	branch.PATCH("/branch", tenants.UpdateOwnBranch)
}
