package handler

import (
	"context"
	"net/http"

	"tenant-service/internal/credential"
	"tenant-service/internal/model"
	"tenant-service/internal/provisioning"
	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Authenticator verifies credentials of one account class
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*credential.Identity, error)
}

// Provisioner creates tenants
type Provisioner interface {
	Provision(ctx context.Context, in provisioning.Input) (*provisioning.Result, error)
}

// Surface is one login surface: its credentials, sessions and routes
type Surface struct {
	Credentials   Authenticator
	Sessions      *jwtutil.JWTUtil
	CookieName    string
	SecureCookies bool
	LoginPath     string
	// HomeRoot is the tenant-scoped root a login lands on, e.g. /dashboard
	HomeRoot string
}

// AuthHandler serves login and logout for one account class
type AuthHandler struct {
	surface Surface
}

// NewAuthHandler creates the handler of a login surface
func NewAuthHandler(surface Surface) *AuthHandler {
	return &AuthHandler{surface: surface}
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login authenticates and sets the session cookie
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	class := h.surface.Sessions.Class()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	identity, err := h.surface.Credentials.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respondError(c, model.ErrAuthFailure)
	}

	key := identity.TenantKey()
	if class == model.AccountManager && key == model.OnboardingTenant {
		// managers only exist for onboarded tenants
		log.Warn("Manager login for a pending tenant", zap.Uint("tenant_id", identity.TenantID))
		return respondError(c, model.ErrAuthFailure)
	}

	if err := h.startSession(c, jwtutil.SessionInput{
		TenantID:  identity.TenantID,
		TenantKey: key,
		ActorID:   identity.ActorID,
		Role:      identity.Role,
		BranchID:  identity.BranchID,
	}); err != nil {
		return respondError(c, err)
	}

	log.Info("Actor logged in",
		zap.String("account_class", string(class)),
		zap.Uint("actor_id", identity.ActorID),
		zap.Uint("tenant_id", identity.TenantID))
	return c.Redirect(http.StatusSeeOther, h.landing(key))
}

// Logout clears the session cookie; clearing an absent cookie is fine
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(jwtutil.ClearSessionCookie(h.surface.CookieName, h.surface.SecureCookies))
	return c.Redirect(http.StatusSeeOther, h.surface.LoginPath)
}

func (h *AuthHandler) startSession(c echo.Context, in jwtutil.SessionInput) error {
	token, expires, err := h.surface.Sessions.GenerateToken(in)
	if err != nil {
		prometheus.RecordAuthError("token_issue")
		return err
	}
	c.SetCookie(jwtutil.NewSessionCookie(h.surface.CookieName, token, expires, h.surface.SecureCookies))
	return nil
}

func (h *AuthHandler) landing(tenantKey string) string {
	if tenantKey == model.OnboardingTenant {
		return onboardingPath
	}
	return h.surface.HomeRoot + "/" + tenantKey
}

// RegistrationHandler provisions new tenants from the public sign-up form
type RegistrationHandler struct {
	provisioner Provisioner
	company     *AuthHandler
}

// NewRegistrationHandler creates a registration handler issuing company sessions
func NewRegistrationHandler(p Provisioner, company *AuthHandler) *RegistrationHandler {
	return &RegistrationHandler{provisioner: p, company: company}
}

type registerRequest struct {
	CompanyName string  `json:"company_name" form:"company_name"`
	TaxID       *string `json:"tax_id" form:"tax_id"`
	Country     string  `json:"country" form:"country"`
	Username    string  `json:"username" form:"username"`
	Password    string  `json:"password" form:"password"`
	DisplayName string  `json:"display_name" form:"display_name"`
	BranchName  string  `json:"branch_name" form:"branch_name"`
	Address     string  `json:"address" form:"address"`
	City        string  `json:"city" form:"city"`
	Region      string  `json:"region" form:"region"`
	PostalCode  string  `json:"postal_code" form:"postal_code"`
	Phone       string  `json:"phone" form:"phone"`
}

// Register provisions a tenant and signs its owner in for onboarding
func (h *RegistrationHandler) Register(c echo.Context) error {
	log := logger.FromContext(c)

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	res, err := h.provisioner.Provision(c.Request().Context(), provisioning.Input{
		CompanyName: req.CompanyName,
		TaxID:       req.TaxID,
		Country:     req.Country,
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		BranchName:  req.BranchName,
		Address:     req.Address,
		City:        req.City,
		Region:      req.Region,
		PostalCode:  req.PostalCode,
		Phone:       req.Phone,
	})
	if err != nil {
		return respondError(c, err)
	}

	err = h.company.startSession(c, jwtutil.SessionInput{
		TenantID:  res.Tenant.ID,
		TenantKey: res.Tenant.SessionKey(),
		ActorID:   res.Actor.ID,
		Role:      res.Actor.RoleCode,
	})
	if err != nil {
		// the tenant exists; the owner can still log in
		log.Error("Failed to issue first session", zap.Uint("tenant_id", res.Tenant.ID), zap.Error(err))
		return c.Redirect(http.StatusSeeOther, h.company.surface.LoginPath)
	}
	return c.Redirect(http.StatusSeeOther, h.company.landing(res.Tenant.SessionKey()))
}
