package middleware

import (
	"net/http"

	"tenant-service/internal/model"
	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const claimsKey = "session_claims"

// Gate decisions, also used as metric labels
const (
	decisionAllow       = "allow"
	decisionNoSession   = "no_session"
	decisionInvalid     = "invalid_session"
	decisionMismatch    = "tenant_mismatch"
	decisionOnboardDone = "onboarding_complete"
)

// SessionVerifier validates session tokens of one account class
type SessionVerifier interface {
	ValidateToken(token string) (*jwtutil.SessionClaims, error)
	Class() model.AccountClass
}

// GateConfig configures a TenantGate
type GateConfig struct {
	Verifier      SessionVerifier
	CookieName    string
	SecureCookies bool
	// LoginPath is where unauthenticated requests are sent
	LoginPath string
	// TenantParam is the route parameter holding the tenant slug
	TenantParam string
	// Onboarding admits only sessions bound to the onboarding sentinel
	// instead of matching a path tenant. Completed tenants are sent to
	// DashboardRoot/<slug>.
	Onboarding    bool
	DashboardRoot string
}

// TenantGate admits a request only when it carries a valid session bound to
// the tenant named in the path. Every rejection is a redirect.
func TenantGate(cfg GateConfig) echo.MiddlewareFunc {
	if cfg.TenantParam == "" {
		cfg.TenantParam = "tenant"
	}
	class := string(cfg.Verifier.Class())

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			redirect := func(decision, to string) error {
				prometheus.RecordGateDecision(class, decision)
				return c.Redirect(http.StatusFound, to)
			}

			token, ok := jwtutil.TokenFromRequest(c.Request(), cfg.CookieName)
			if !ok {
				return redirect(decisionNoSession, cfg.LoginPath)
			}

			claims, err := cfg.Verifier.ValidateToken(token)
			if err != nil {
				log.Debug("Rejected session", zap.String("account_class", class), zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				c.SetCookie(jwtutil.ClearSessionCookie(cfg.CookieName, cfg.SecureCookies))
				return redirect(decisionInvalid, cfg.LoginPath)
			}

			if cfg.Onboarding {
				if claims.TenantKey != model.OnboardingTenant {
					return redirect(decisionOnboardDone, cfg.DashboardRoot+"/"+claims.TenantKey)
				}
			} else if claims.TenantKey == model.OnboardingTenant || c.Param(cfg.TenantParam) != claims.TenantKey {
				log.Info("Session bound to another tenant",
					zap.String("path_tenant", c.Param(cfg.TenantParam)),
					zap.Uint("tenant_id", claims.TenantID),
					zap.Uint("actor_id", claims.ActorID))
				return redirect(decisionMismatch, cfg.LoginPath)
			}

			prometheus.RecordGateDecision(class, decisionAllow)
			c.Set(claimsKey, claims)
			c.SetRequest(c.Request().WithContext(jwtutil.WithClaims(c.Request().Context(), claims)))
			return next(c)
		}
	}
}

// SessionClaims returns the claims a TenantGate admitted the request with
func SessionClaims(c echo.Context) (*jwtutil.SessionClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwtutil.SessionClaims)
	return claims, ok && claims != nil
}
