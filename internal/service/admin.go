package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tenant-service/internal/audit"
	"tenant-service/internal/model"
	"tenant-service/internal/provisioning"
	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TenantStore persists tenant changes
type TenantStore interface {
	FindByID(ctx context.Context, id uint) (*model.Tenant, error)
	Update(ctx context.Context, tenant *model.Tenant) error
	CompleteOnboarding(ctx context.Context, tenant *model.Tenant, ownerID uint, displayName string) error
}

// BranchStore persists branches
type BranchStore interface {
	ListByTenant(ctx context.Context, tenantID uint) ([]model.Branch, error)
	FindByID(ctx context.Context, tenantID, id uint) (*model.Branch, error)
	Create(ctx context.Context, branch *model.Branch) error
	Update(ctx context.Context, branch *model.Branch) error
	Delete(ctx context.Context, tenantID, id uint) (*model.Branch, error)
}

// ManagerStore creates branch-manager actors
type ManagerStore interface {
	CreateManager(ctx context.Context, actor *model.Actor, branchID uint) error
}

// Auditor records privileged mutations
type Auditor interface {
	Log(ctx context.Context, e audit.Entry)
}

// OnboardingInput completes a pending tenant
type OnboardingInput struct {
	TaxID       *string
	Country     string
	DisplayName string
}

// TenantUpdate changes the editable tenant fields; nil fields are left alone
type TenantUpdate struct {
	Name    *string
	TaxID   *string
	Country *string
	Reason  string
}

// BranchInput carries branch fields
type BranchInput struct {
	Name       string
	Address    string
	City       string
	Region     string
	PostalCode string
	Phone      string
	Reason     string
}

// ManagerInput creates a branch manager
type ManagerInput struct {
	Username string
	Password string
	BranchID uint
}

// Summary is a tenant with its branches
type Summary struct {
	Tenant   *model.Tenant  `json:"tenant"`
	Branches []model.Branch `json:"branches"`
}

// AdminService runs tenant-scoped privileged mutations. Every method takes the
// verified session claims explicitly and audits after the change commits.
type AdminService struct {
	tenants    TenantStore
	branches   BranchStore
	managers   ManagerStore
	audit      Auditor
	bcryptCost int
}

// NewAdminService creates an admin service
func NewAdminService(tenants TenantStore, branches BranchStore, managers ManagerStore, auditor Auditor, bcryptCost int) *AdminService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AdminService{
		tenants:    tenants,
		branches:   branches,
		managers:   managers,
		audit:      auditor,
		bcryptCost: bcryptCost,
	}
}

// Summary returns the session's tenant and its branches
func (s *AdminService) Summary(ctx context.Context, claims *jwtutil.SessionClaims) (*Summary, error) {
	tenant, err := s.tenants.FindByID(ctx, claims.TenantID)
	if err != nil {
		return nil, err
	}
	branches, err := s.branches.ListByTenant(ctx, claims.TenantID)
	if err != nil {
		return nil, err
	}
	if claims.AccountClass == model.AccountManager {
		branches = onlyBranch(branches, claims.BranchID)
	}
	return &Summary{Tenant: tenant, Branches: branches}, nil
}

// CompleteOnboarding stores the fiscal fields of a pending tenant and marks it complete
func (s *AdminService) CompleteOnboarding(ctx context.Context, claims *jwtutil.SessionClaims, in OnboardingInput, meta audit.Meta) (*model.Tenant, error) {
	if err := requireOwner(claims); err != nil {
		return nil, err
	}
	country := strings.ToUpper(strings.TrimSpace(in.Country))
	if len(country) != 2 {
		return nil, fmt.Errorf("%w: country must be a two-letter code", model.ErrValidation)
	}
	taxID := trimOptional(in.TaxID)
	displayName := strings.TrimSpace(in.DisplayName)
	if err := checkTaxID(taxID); err != nil {
		return nil, err
	}
	if err := provisioning.CheckLengths(provisioning.Field{Name: "display name", Value: displayName, Max: provisioning.MaxNameLength}); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.FindByID(ctx, claims.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.OnboardingStatus == model.OnboardingComplete {
		return tenant, nil
	}

	before := tenant.Snapshot()
	tenant.TaxID = taxID
	tenant.Country = country
	tenant.OnboardingStatus = model.OnboardingComplete

	if err := s.tenants.CompleteOnboarding(ctx, tenant, claims.ActorID, displayName); err != nil {
		return nil, err
	}
	prometheus.RecordTenantOperation("complete_onboarding")

	s.audit.Log(ctx, audit.Entry{
		EntityType: model.EntityTenant,
		EntityID:   id(tenant.ID),
		Action:     model.ActionUpdate,
		OldValues:  before,
		NewValues:  tenant.Snapshot(),
		Meta:       meta,
	}.ForSession(claims))
	return tenant, nil
}

// UpdateTenant changes the tenant's name or fiscal fields. The slug never changes.
func (s *AdminService) UpdateTenant(ctx context.Context, claims *jwtutil.SessionClaims, in TenantUpdate, meta audit.Meta) (*model.Tenant, error) {
	if err := requireOwner(claims); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.FindByID(ctx, claims.TenantID)
	if err != nil {
		return nil, err
	}
	before := tenant.Snapshot()

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", model.ErrValidation)
		}
		if err := provisioning.CheckLengths(provisioning.Field{Name: "name", Value: name, Max: provisioning.MaxNameLength}); err != nil {
			return nil, err
		}
		tenant.Name = name
	}
	if in.TaxID != nil {
		tenant.TaxID = trimOptional(in.TaxID)
		if err := checkTaxID(tenant.TaxID); err != nil {
			return nil, err
		}
	}
	if in.Country != nil {
		country := strings.ToUpper(strings.TrimSpace(*in.Country))
		if len(country) != 2 {
			return nil, fmt.Errorf("%w: country must be a two-letter code", model.ErrValidation)
		}
		tenant.Country = country
	}

	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, err
	}
	prometheus.RecordTenantOperation("update_tenant")

	s.audit.Log(ctx, audit.Entry{
		EntityType: model.EntityTenant,
		EntityID:   id(tenant.ID),
		Action:     model.ActionUpdate,
		OldValues:  before,
		NewValues:  tenant.Snapshot(),
		Meta:       meta,
		Reason:     strings.TrimSpace(in.Reason),
	}.ForSession(claims))
	return tenant, nil
}

// CreateBranch adds a branch to the session's tenant
func (s *AdminService) CreateBranch(ctx context.Context, claims *jwtutil.SessionClaims, in BranchInput, meta audit.Meta) (*model.Branch, error) {
	if err := requireOwner(claims); err != nil {
		return nil, err
	}
	branch := &model.Branch{TenantID: claims.TenantID}
	if err := applyBranch(branch, in); err != nil {
		return nil, err
	}

	if err := s.branches.Create(ctx, branch); err != nil {
		return nil, err
	}
	prometheus.RecordTenantOperation("create_branch")

	s.audit.Log(ctx, audit.Entry{
		EntityType: model.EntityBranch,
		EntityID:   id(branch.ID),
		Action:     model.ActionCreate,
		NewValues:  branch.Snapshot(),
		Meta:       meta,
		Reason:     strings.TrimSpace(in.Reason),
	}.ForSession(claims))
	return branch, nil
}

// UpdateBranch edits a branch. Owners may edit any branch of their tenant,
// managers only the branch they are assigned to.
func (s *AdminService) UpdateBranch(ctx context.Context, claims *jwtutil.SessionClaims, branchID uint, in BranchInput, meta audit.Meta) (*model.Branch, error) {
	switch claims.AccountClass {
	case model.AccountCompany:
		if err := requireOwner(claims); err != nil {
			return nil, err
		}
	case model.AccountManager:
		if claims.BranchID == nil || *claims.BranchID != branchID {
			return nil, model.ErrForbidden
		}
	default:
		return nil, model.ErrForbidden
	}

	branch, err := s.branches.FindByID(ctx, claims.TenantID, branchID)
	if err != nil {
		return nil, err
	}
	before := branch.Snapshot()
	if err := applyBranch(branch, in); err != nil {
		return nil, err
	}

	if err := s.branches.Update(ctx, branch); err != nil {
		return nil, err
	}
	prometheus.RecordTenantOperation("update_branch")

	s.audit.Log(ctx, audit.Entry{
		EntityType: model.EntityBranch,
		EntityID:   id(branch.ID),
		Action:     model.ActionUpdate,
		OldValues:  before,
		NewValues:  branch.Snapshot(),
		Meta:       meta,
		Reason:     strings.TrimSpace(in.Reason),
	}.ForSession(claims))
	return branch, nil
}

// DeleteBranch removes a branch; a tenant's last branch cannot be removed
func (s *AdminService) DeleteBranch(ctx context.Context, claims *jwtutil.SessionClaims, branchID uint, reason string, meta audit.Meta) error {
	if err := requireOwner(claims); err != nil {
		return err
	}

	deleted, err := s.branches.Delete(ctx, claims.TenantID, branchID)
	if err != nil {
		return err
	}
	prometheus.RecordTenantOperation("delete_branch")

	s.audit.Log(ctx, audit.Entry{
		EntityType: model.EntityBranch,
		EntityID:   id(deleted.ID),
		Action:     model.ActionDelete,
		OldValues:  deleted.Snapshot(),
		Meta:       meta,
		Reason:     strings.TrimSpace(reason),
	}.ForSession(claims))
	return nil
}

// CreateManager creates a branch-manager login assigned to one branch of the tenant
func (s *AdminService) CreateManager(ctx context.Context, claims *jwtutil.SessionClaims, in ManagerInput, meta audit.Meta) (*model.Actor, error) {
	if err := requireOwner(claims); err != nil {
		return nil, err
	}

	username := strings.ToLower(strings.TrimSpace(in.Username))
	switch {
	case !provisioning.IsEmail(username):
		return nil, fmt.Errorf("%w: username must be an email address", model.ErrValidation)
	case len(username) > provisioning.MaxUsernameLength:
		return nil, fmt.Errorf("%w: username must be at most %d characters", model.ErrValidation, provisioning.MaxUsernameLength)
	case len(in.Password) < 8 || len(in.Password) > 72:
		return nil, fmt.Errorf("%w: password must be between 8 and 72 characters", model.ErrValidation)
	case in.BranchID == 0:
		return nil, fmt.Errorf("%w: branch is required", model.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	actor := &model.Actor{
		Username:     username,
		PasswordHash: string(hash),
		RoleCode:     model.RoleBranchManager,
		TenantID:     claims.TenantID,
		AccountClass: model.AccountManager,
		Active:       true,
	}
	if err := s.managers.CreateManager(ctx, actor, in.BranchID); err != nil {
		if !errors.Is(err, model.ErrConflict) && !errors.Is(err, model.ErrNotFound) {
			logger.FromCtx(ctx).Error("Failed to create manager", zap.Uint("tenant_id", claims.TenantID), zap.Error(err))
		}
		return nil, err
	}
	prometheus.RecordTenantOperation("create_manager")

	snapshot := actor.Snapshot()
	snapshot["branch_id"] = in.BranchID
	s.audit.Log(ctx, audit.Entry{
		EntityType: model.EntityActor,
		EntityID:   id(actor.ID),
		Action:     model.ActionCreate,
		NewValues:  snapshot,
		Meta:       meta,
	}.ForSession(claims))
	return actor, nil
}

func requireOwner(claims *jwtutil.SessionClaims) error {
	if claims == nil || claims.AccountClass != model.AccountCompany || claims.Role != model.RoleOwner {
		return model.ErrForbidden
	}
	return nil
}

func applyBranch(branch *model.Branch, in BranchInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: branch name is required", model.ErrValidation)
	}
	address := strings.TrimSpace(in.Address)
	city := strings.TrimSpace(in.City)
	region := strings.TrimSpace(in.Region)
	postalCode := strings.TrimSpace(in.PostalCode)
	phone := strings.TrimSpace(in.Phone)
	if err := provisioning.CheckBranchLengths(name, address, city, region, postalCode, phone); err != nil {
		return err
	}

	branch.Name = name
	branch.Address = address
	branch.City = city
	branch.Region = region
	branch.PostalCode = postalCode
	branch.Phone = phone
	return nil
}

func onlyBranch(branches []model.Branch, branchID *uint) []model.Branch {
	if branchID == nil {
		return nil
	}
	for _, b := range branches {
		if b.ID == *branchID {
			return []model.Branch{b}
		}
	}
	return nil
}

func checkTaxID(taxID *string) error {
	if taxID == nil {
		return nil
	}
	return provisioning.CheckLengths(provisioning.Field{Name: "tax id", Value: *taxID, Max: provisioning.MaxTaxIDLength})
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func id(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}
