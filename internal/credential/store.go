package credential

import (
	"context"
	"errors"
	"strings"

	"tenant-service/internal/model"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Record is an actor with the tenant binding a login needs
type Record struct {
	Actor    model.Actor
	Tenant   model.Tenant
	BranchID *uint
}

// Lookup finds the login record of an actor of the given class.
// A missing actor is reported as model.ErrNotFound.
type Lookup interface {
	FindLoginRecord(ctx context.Context, class model.AccountClass, username string) (*Record, error)
}

// Identity is the verified result of a login
type Identity struct {
	ActorID          uint
	TenantID         uint
	TenantSlug       string
	OnboardingStatus string
	Role             string
	BranchID         *uint
}

// TenantKey returns the tenant key a session for this identity is bound to
func (i *Identity) TenantKey() string {
	if i.OnboardingStatus != model.OnboardingComplete {
		return model.OnboardingTenant
	}
	return i.TenantSlug
}

// dummyHash is compared against when the user does not exist so that unknown
// and known usernames take the same time to reject
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("tenant-service-dummy-password"), bcrypt.DefaultCost)

// Store authenticates actors of one account class
type Store struct {
	class  model.AccountClass
	lookup Lookup
}

// NewStore creates a credential store for class
func NewStore(class model.AccountClass, lookup Lookup) *Store {
	return &Store{class: class, lookup: lookup}
}

// Class returns the account class this store authenticates
func (s *Store) Class() model.AccountClass {
	return s.class
}

// Authenticate verifies username and password. Every failure is model.ErrAuthFailure.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	log := logger.FromCtx(ctx).With(zap.String("account_class", string(s.class)))
	username = strings.ToLower(strings.TrimSpace(username))

	rec, err := s.lookup.FindLoginRecord(ctx, s.class, username)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		if !errors.Is(err, model.ErrNotFound) {
			log.Error("Credential lookup failed", zap.Error(err))
			prometheus.RecordAuthError("db_error")
		}
		return s.fail()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.Actor.PasswordHash), []byte(password)); err != nil {
		log.Debug("Password mismatch", zap.Uint("actor_id", rec.Actor.ID))
		return s.fail()
	}

	if !rec.Actor.Active {
		log.Info("Login attempt on inactive account", zap.Uint("actor_id", rec.Actor.ID))
		return s.fail()
	}

	if rec.Actor.TenantID != rec.Tenant.ID || rec.Actor.AccountClass != s.class {
		log.Error("Inconsistent login record",
			zap.Uint("actor_id", rec.Actor.ID),
			zap.Uint("actor_tenant_id", rec.Actor.TenantID),
			zap.Uint("tenant_id", rec.Tenant.ID))
		return s.fail()
	}
	if s.class == model.AccountManager && rec.BranchID == nil {
		log.Warn("Manager without branch assignment", zap.Uint("actor_id", rec.Actor.ID))
		return s.fail()
	}

	prometheus.RecordLogin(string(s.class), true)
	return &Identity{
		ActorID:          rec.Actor.ID,
		TenantID:         rec.Tenant.ID,
		TenantSlug:       rec.Tenant.Slug,
		OnboardingStatus: rec.Tenant.OnboardingStatus,
		Role:             rec.Actor.RoleCode,
		BranchID:         rec.BranchID,
	}, nil
}

func (s *Store) fail() (*Identity, error) {
	prometheus.RecordLogin(string(s.class), false)
	prometheus.RecordAuthError("login_failure")
	return nil, model.ErrAuthFailure
}
