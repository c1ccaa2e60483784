package handler

import (
	"context"
	"net/http"
	"strconv"

	"tenant-service/internal/audit"
	"tenant-service/internal/middleware"
	"tenant-service/internal/model"
	"tenant-service/internal/service"
	"tenant-service/pkg/jwtutil"

	"github.com/labstack/echo/v4"
)

const onboardingPath = "/onboarding"

// Admin is the tenant administration API behind the gate
type Admin interface {
	Summary(ctx context.Context, claims *jwtutil.SessionClaims) (*service.Summary, error)
	CompleteOnboarding(ctx context.Context, claims *jwtutil.SessionClaims, in service.OnboardingInput, meta audit.Meta) (*model.Tenant, error)
	UpdateTenant(ctx context.Context, claims *jwtutil.SessionClaims, in service.TenantUpdate, meta audit.Meta) (*model.Tenant, error)
	CreateBranch(ctx context.Context, claims *jwtutil.SessionClaims, in service.BranchInput, meta audit.Meta) (*model.Branch, error)
	UpdateBranch(ctx context.Context, claims *jwtutil.SessionClaims, branchID uint, in service.BranchInput, meta audit.Meta) (*model.Branch, error)
	DeleteBranch(ctx context.Context, claims *jwtutil.SessionClaims, branchID uint, reason string, meta audit.Meta) error
	CreateManager(ctx context.Context, claims *jwtutil.SessionClaims, in service.ManagerInput, meta audit.Meta) (*model.Actor, error)
}

// TenantHandler serves the tenant-scoped routes of both surfaces
type TenantHandler struct {
	admin   Admin
	company *AuthHandler
}

// NewTenantHandler creates a tenant handler; company re-issues sessions after onboarding
func NewTenantHandler(admin Admin, company *AuthHandler) *TenantHandler {
	return &TenantHandler{admin: admin, company: company}
}

type onboardingRequest struct {
	TaxID       *string `json:"tax_id" form:"tax_id"`
	Country     string  `json:"country" form:"country"`
	DisplayName string  `json:"display_name" form:"display_name"`
}

type tenantRequest struct {
	Name    *string `json:"name" form:"name"`
	TaxID   *string `json:"tax_id" form:"tax_id"`
	Country *string `json:"country" form:"country"`
	Reason  string  `json:"reason" form:"reason"`
}

type branchRequest struct {
	Name       string `json:"name" form:"name"`
	Address    string `json:"address" form:"address"`
	City       string `json:"city" form:"city"`
	Region     string `json:"region" form:"region"`
	PostalCode string `json:"postal_code" form:"postal_code"`
	Phone      string `json:"phone" form:"phone"`
	Reason     string `json:"reason" form:"reason"`
}

func (r branchRequest) input() service.BranchInput {
	return service.BranchInput{
		Name:       r.Name,
		Address:    r.Address,
		City:       r.City,
		Region:     r.Region,
		PostalCode: r.PostalCode,
		Phone:      r.Phone,
		Reason:     r.Reason,
	}
}

type managerRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	BranchID uint   `json:"branch_id" form:"branch_id"`
}

// claims returns the session the gate admitted; routes are never mounted without one
func claims(c echo.Context) (*jwtutil.SessionClaims, error) {
	cl, ok := middleware.SessionClaims(c)
	if !ok {
		return nil, model.ErrForbidden
	}
	return cl, nil
}

// Overview returns the tenant with its branches (dashboard, manager and onboarding views)
func (h *TenantHandler) Overview(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return respondError(c, err)
	}
	summary, err := h.admin.Summary(c.Request().Context(), cl)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// CompleteOnboarding finishes a pending tenant and rebinds the session to its slug
func (h *TenantHandler) CompleteOnboarding(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return respondError(c, err)
	}

	var req onboardingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tenant, err := h.admin.CompleteOnboarding(c.Request().Context(), cl, service.OnboardingInput{
		TaxID:       req.TaxID,
		Country:     req.Country,
		DisplayName: req.DisplayName,
	}, audit.RequestMeta(c))
	if err != nil {
		return respondError(c, err)
	}

	err = h.company.startSession(c, jwtutil.SessionInput{
		TenantID:  tenant.ID,
		TenantKey: tenant.SessionKey(),
		ActorID:   cl.ActorID,
		Role:      cl.Role,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Redirect(http.StatusSeeOther, h.company.landing(tenant.SessionKey()))
}

// UpdateSettings changes the tenant's name or fiscal fields
func (h *TenantHandler) UpdateSettings(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return respondError(c, err)
	}

	var req tenantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tenant, err := h.admin.UpdateTenant(c.Request().Context(), cl, service.TenantUpdate{
		Name:    req.Name,
		TaxID:   req.TaxID,
		Country: req.Country,
		Reason:  req.Reason,
	}, audit.RequestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, tenant)
}

// CreateBranch adds a branch
func (h *TenantHandler) CreateBranch(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return respondError(c, err)
	}

	var req branchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	branch, err := h.admin.CreateBranch(c.Request().Context(), cl, req.input(), audit.RequestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, branch)
}

// DeleteBranch removes a branch; the reason may come as a query parameter
func (h *TenantHandler) DeleteBranch(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return respondError(c, err)
	}

	branchID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid branch ID"})
	}

	if err := h.admin.DeleteBranch(c.Request().Context(), cl, uint(branchID), c.QueryParam("reason"), audit.RequestMeta(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateManager creates a branch-manager login
func (h *TenantHandler) CreateManager(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return respondError(c, err)
	}

	var req managerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	actor, err := h.admin.CreateManager(c.Request().Context(), cl, service.ManagerInput{
		Username: req.Username,
		Password: req.Password,
		BranchID: req.BranchID,
	}, audit.RequestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":        actor.ID,
		"username":  actor.Username,
		"role":      actor.RoleCode,
		"branch_id": req.BranchID,
	})
}

// UpdateOwnBranch lets a manager edit the branch it is assigned to
func (h *TenantHandler) UpdateOwnBranch(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return respondError(c, err)
	}
	if cl.BranchID == nil {
		return respondError(c, model.ErrForbidden)
	}

	var req branchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	branch, err := h.admin.UpdateBranch(c.Request().Context(), cl, *cl.BranchID, req.input(), audit.RequestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, branch)
}

// UpdateBranch lets the owner edit any branch of the tenant
func (h *TenantHandler) UpdateBranch(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return respondError(c, err)
	}

	branchID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid branch ID"})
	}

	var req branchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	branch, err := h.admin.UpdateBranch(c.Request().Context(), cl, uint(branchID), req.input(), audit.RequestMeta(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, branch)
}
