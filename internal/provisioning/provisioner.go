package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"tenant-service/internal/model"
	"tenant-service/pkg/config"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordLength = 72
)

// Column limits, in characters
const (
	MaxNameLength       = 200
	MaxUsernameLength   = 255
	MaxTaxIDLength      = 50
	maxAddressLength    = 255
	maxCityLength       = 100
	maxRegionLength     = 100
	maxPostalCodeLength = 20
	maxPhoneLength      = 40
)

// Field is a named input value and the longest value its column holds
type Field struct {
	Name  string
	Value string
	Max   int
}

// CheckLengths rejects the first field longer than its limit
func CheckLengths(fields ...Field) error {
	for _, f := range fields {
		if utf8.RuneCountInString(f.Value) > f.Max {
			return fmt.Errorf("%w: %s must be at most %d characters", model.ErrValidation, f.Name, f.Max)
		}
	}
	return nil
}

// CheckBranchLengths validates the stored fields of a branch
func CheckBranchLengths(name, address, city, region, postalCode, phone string) error {
	return CheckLengths(
		Field{"branch name", name, MaxNameLength},
		Field{"address", address, maxAddressLength},
		Field{"city", city, maxCityLength},
		Field{"region", region, maxRegionLength},
		Field{"postal code", postalCode, maxPostalCodeLength},
		Field{"phone", phone, maxPhoneLength},
	)
}

// Input is everything a registration supplies
type Input struct {
	CompanyName string
	TaxID       *string
	Country     string
	Username    string
	Password    string
	DisplayName string
	BranchName  string
	Address     string
	City        string
	Region      string
	PostalCode  string
	Phone       string
}

// Attempt is one transactional try under a single slug candidate
type Attempt struct {
	Slug         string
	Input        Input
	PasswordHash string
}

// Result is the set of rows a successful provisioning committed
type Result struct {
	Tenant   model.Tenant
	Actor    model.Actor
	Branch   model.Branch
	Employee *model.Employee
}

// Store runs one provisioning attempt atomically. It reports a slug collision
// as model.ErrSlugTaken and a username collision as model.ErrConflict.
type Store interface {
	ProvisionAttempt(ctx context.Context, attempt Attempt) (*Result, error)
}

// Provisioner creates tenants together with their owner and first branch
type Provisioner struct {
	store       Store
	maxAttempts int
	bcryptCost  int
}

// NewProvisioner creates a provisioner bounded by cfg
func NewProvisioner(store Store, cfg config.ProvisioningConfig) *Provisioner {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	attempts := cfg.MaxSlugAttempts
	if attempts <= 0 {
		attempts = 50
	}
	return &Provisioner{store: store, maxAttempts: attempts, bcryptCost: cost}
}

// Provision validates in, then creates the tenant under the first free slug
// candidate derived from the company name.
func (p *Provisioner) Provision(ctx context.Context, in Input) (*Result, error) {
	log := logger.FromCtx(ctx)

	in, err := normalize(in)
	if err != nil {
		prometheus.RecordProvisionOutcome("validation")
		return nil, err
	}

	base, err := Slugify(in.CompanyName)
	if err != nil {
		prometheus.RecordProvisionOutcome("validation")
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.bcryptCost)
	if err != nil {
		prometheus.RecordProvisionOutcome("failed")
		return nil, fmt.Errorf("%w: hash password: %v", model.ErrProvisioningFailed, err)
	}

	attempt := func(ctx context.Context, slug string) (*Result, error) {
		res, err := p.store.ProvisionAttempt(ctx, Attempt{Slug: slug, Input: in, PasswordHash: string(hash)})
		taken := errors.Is(err, model.ErrSlugTaken)
		prometheus.RecordProvisionAttempt(taken)
		if taken {
			log.Debug("Slug candidate taken", zap.String("slug", slug))
		}
		return res, err
	}
	isSlugTaken := func(err error) bool { return errors.Is(err, model.ErrSlugTaken) }

	res, err := Allocate(ctx, Candidates(base, p.maxAttempts), attempt, isSlugTaken)
	switch {
	case err == nil:
		prometheus.RecordProvisionOutcome("created")
		log.Info("Tenant provisioned",
			zap.Uint("tenant_id", res.Tenant.ID),
			zap.String("slug", res.Tenant.Slug),
			zap.Uint("actor_id", res.Actor.ID))
		return res, nil
	case errors.Is(err, model.ErrProvisioningConflict):
		prometheus.RecordProvisionOutcome("exhausted")
		log.Warn("Slug candidates exhausted", zap.String("base", base), zap.Int("attempts", p.maxAttempts))
		return nil, err
	case errors.Is(err, model.ErrConflict):
		prometheus.RecordProvisionOutcome("conflict")
		return nil, err
	case errors.Is(err, model.ErrValidation):
		prometheus.RecordProvisionOutcome("validation")
		return nil, err
	default:
		prometheus.RecordProvisionOutcome("failed")
		log.Error("Tenant provisioning failed", zap.String("base", base), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", model.ErrProvisioningFailed, err)
	}
}

func normalize(in Input) (Input, error) {
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Country = strings.ToUpper(strings.TrimSpace(in.Country))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.BranchName = strings.TrimSpace(in.BranchName)
	if in.TaxID != nil {
		tax := strings.TrimSpace(*in.TaxID)
		if tax == "" {
			in.TaxID = nil
		} else {
			in.TaxID = &tax
		}
	}

	switch {
	case in.CompanyName == "":
		return in, fmt.Errorf("%w: company name is required", model.ErrValidation)
	case !IsEmail(in.Username):
		return in, fmt.Errorf("%w: username must be an email address", model.ErrValidation)
	case len(in.Password) < minPasswordLength:
		return in, fmt.Errorf("%w: password must be at least %d characters", model.ErrValidation, minPasswordLength)
	case len(in.Password) > maxPasswordLength:
		return in, fmt.Errorf("%w: password must be at most %d bytes", model.ErrValidation, maxPasswordLength)
	case len(in.Country) != 2:
		return in, fmt.Errorf("%w: country must be a two-letter code", model.ErrValidation)
	}

	if in.BranchName == "" {
		in.BranchName = in.CompanyName + " Main"
	}

	taxID := ""
	if in.TaxID != nil {
		taxID = *in.TaxID
	}
	if err := CheckLengths(
		Field{"company name", in.CompanyName, MaxNameLength},
		Field{"username", in.Username, MaxUsernameLength},
		Field{"tax id", taxID, MaxTaxIDLength},
		Field{"display name", in.DisplayName, MaxNameLength},
	); err != nil {
		return in, err
	}
	return in, CheckBranchLengths(in.BranchName, in.Address, in.City, in.Region, in.PostalCode, in.Phone)
}

// IsEmail reports whether s is a bare email address
func IsEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}
