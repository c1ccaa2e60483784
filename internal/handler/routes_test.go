package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"tenant-service/internal/audit"
	"tenant-service/internal/credential"
	"tenant-service/internal/model"
	"tenant-service/internal/provisioning"
	"tenant-service/internal/service"
	"tenant-service/pkg/config"
	"tenant-service/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

type testApp struct {
	e       *echo.Echo
	backend *memoryBackend
	audit   *memoryAudit
	company *jwtutil.JWTUtil
	manager *jwtutil.JWTUtil
}

func newTestApp() *testApp {
	backend := newMemoryBackend()
	auditRows := &memoryAudit{}
	company := jwtutil.NewJWTUtil(model.AccountCompany, jwtutil.JWTConfig{SigningKey: "company-key", TTL: time.Hour})
	manager := jwtutil.NewJWTUtil(model.AccountManager, jwtutil.JWTConfig{SigningKey: "manager-key", TTL: time.Hour})

	e := echo.New()
	RegisterRoutes(e, RouterConfig{
		Provisioner: provisioning.NewProvisioner(backend, config.ProvisioningConfig{MaxSlugAttempts: 50, BcryptCost: bcrypt.MinCost}),
		Admin: service.NewAdminService(backend, memoryBranches{backend}, backend,
			audit.NewTrail(auditRows), bcrypt.MinCost),
		Company: Surface{
			Credentials: credential.NewStore(model.AccountCompany, backend),
			Sessions:    company,
			CookieName:  "company_session",
			LoginPath:   "/login",
			HomeRoot:    "/dashboard",
		},
		Manager: Surface{
			Credentials: credential.NewStore(model.AccountManager, backend),
			Sessions:    manager,
			CookieName:  "manager_session",
			LoginPath:   "/manager/login",
			HomeRoot:    "/manager",
		},
		Health: NewHealthHandler("tenant-service", func() error { return nil }),
	})
	return &testApp{e: e, backend: backend, audit: auditRows, company: company, manager: manager}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case url.Values:
		req = httptest.NewRequest(method, path, strings.NewReader(b.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		req = httptest.NewRequest(method, path, strings.NewReader(string(raw)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %s cookie in response (Set-Cookie %q)", name, rec.Header().Get(echo.HeaderSetCookie))
	return nil
}

func expectRedirect(t *testing.T, rec *httptest.ResponseRecorder, status int, location string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, status, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderLocation); got != location {
		t.Fatalf("location = %q, want %q", got, location)
	}
}

func registerBody(username string) echo.Map {
	return echo.Map{
		"company_name": "Rous Boutique",
		"country":      "MX",
		"username":     username,
		"password":     "s3cret-pass",
	}
}

// register provisions a tenant, completes onboarding and returns the owner's session
func (a *testApp) register(t *testing.T, username string) *http.Cookie {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/register", registerBody(username))
	expectRedirect(t, rec, http.StatusSeeOther, "/onboarding")
	pending := sessionCookie(t, rec, "company_session")

	rec = a.do(t, http.MethodGet, "/onboarding", nil, pending)
	if rec.Code != http.StatusOK {
		t.Fatalf("onboarding view status = %d", rec.Code)
	}

	rec = a.do(t, http.MethodPost, "/onboarding/complete", echo.Map{"country": "MX", "tax_id": "RBO123"}, pending)
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(rec.Header().Get(echo.HeaderLocation), "/dashboard/") {
		t.Fatalf("complete onboarding: %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
	return sessionCookie(t, rec, "company_session")
}

func TestRousBoutiqueScenario(t *testing.T) {
	app := newTestApp()

	app.register(t, "rosa@rous.example")
	app.register(t, "other@rous.example")

	var slugs []string
	for id := uint(1); id <= app.backend.nextID; id++ {
		if tenant, ok := app.backend.tenants[id]; ok {
			slugs = append(slugs, tenant.Slug)
		}
	}
	if len(slugs) != 2 || slugs[0] != "rous-boutique" || slugs[1] != "rous-boutique-2" {
		t.Fatalf("slugs = %v, want [rous-boutique rous-boutique-2]", slugs)
	}

	rec := app.do(t, http.MethodPost, "/login", url.Values{"username": {"rosa@rous.example"}, "password": {"s3cret-pass"}})
	expectRedirect(t, rec, http.StatusSeeOther, "/dashboard/rous-boutique")
	session := sessionCookie(t, rec, "company_session")
	if !session.HttpOnly {
		t.Fatal("session cookie is not HttpOnly")
	}

	claims, err := app.company.ValidateToken(session.Value)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	var first *model.Tenant
	for _, tenant := range app.backend.tenants {
		if tenant.Slug == "rous-boutique" {
			first = tenant
		}
	}
	if claims.TenantID != first.ID || claims.TenantKey != "rous-boutique" {
		t.Fatalf("claims bound to tenant %d/%q, want %d", claims.TenantID, claims.TenantKey, first.ID)
	}

	rec = app.do(t, http.MethodGet, "/dashboard/rous-boutique", nil, session)
	if rec.Code != http.StatusOK {
		t.Fatalf("own dashboard status = %d", rec.Code)
	}

	rec = app.do(t, http.MethodGet, "/dashboard/rous-boutique-2", nil, session)
	expectRedirect(t, rec, http.StatusFound, "/login")
}

func TestLoginFailureIsGeneric(t *testing.T) {
	app := newTestApp()
	app.register(t, "rosa@rous.example")

	unknown := app.do(t, http.MethodPost, "/login", url.Values{"username": {"nobody@rous.example"}, "password": {"s3cret-pass"}})
	wrong := app.do(t, http.MethodPost, "/login", url.Values{"username": {"rosa@rous.example"}, "password": {"wrong-pass"}})

	for _, rec := range []*httptest.ResponseRecorder{unknown, wrong} {
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if rec.Header().Get(echo.HeaderSetCookie) != "" {
			t.Fatal("failed login set a cookie")
		}
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("failure bodies differ: %q vs %q", unknown.Body.String(), wrong.Body.String())
	}

	// company owners cannot use the manager surface
	rec := app.do(t, http.MethodPost, "/manager/login", url.Values{"username": {"rosa@rous.example"}, "password": {"s3cret-pass"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("owner on manager login status = %d, want 401", rec.Code)
	}
}

func TestPendingTenantLoginGoesToOnboarding(t *testing.T) {
	app := newTestApp()
	rec := app.do(t, http.MethodPost, "/register", registerBody("rosa@rous.example"))
	expectRedirect(t, rec, http.StatusSeeOther, "/onboarding")

	rec = app.do(t, http.MethodPost, "/login", url.Values{"username": {"rosa@rous.example"}, "password": {"s3cret-pass"}})
	expectRedirect(t, rec, http.StatusSeeOther, "/onboarding")
	pending := sessionCookie(t, rec, "company_session")

	// a pending session never opens a dashboard
	rec = app.do(t, http.MethodGet, "/dashboard/rous-boutique", nil, pending)
	expectRedirect(t, rec, http.StatusFound, "/login")
}

func TestRegisterErrors(t *testing.T) {
	app := newTestApp()

	bad := registerBody("not-an-email")
	rec := app.do(t, http.MethodPost, "/register", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid registration status = %d, want 400", rec.Code)
	}

	app.do(t, http.MethodPost, "/register", registerBody("rosa@rous.example"))
	rec = app.do(t, http.MethodPost, "/register", registerBody("rosa@rous.example"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate username status = %d, want 409", rec.Code)
	}
}

func TestManagerSurface(t *testing.T) {
	app := newTestApp()
	owner := app.register(t, "rosa@rous.example")

	var branchID uint
	for id, b := range app.backend.branches {
		if b.TenantID == 1 {
			branchID = id
		}
	}

	rec := app.do(t, http.MethodPost, "/dashboard/rous-boutique/managers",
		echo.Map{"username": "lupe@rous.example", "password": "manager-pass", "branch_id": branchID}, owner)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create manager status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = app.do(t, http.MethodPost, "/manager/login", url.Values{"username": {"lupe@rous.example"}, "password": {"manager-pass"}})
	expectRedirect(t, rec, http.StatusSeeOther, "/manager/rous-boutique")
	managerSession := sessionCookie(t, rec, "manager_session")

	claims, err := app.manager.ValidateToken(managerSession.Value)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.BranchID == nil || *claims.BranchID != branchID {
		t.Fatalf("manager claims branch = %v, want %d", claims.BranchID, branchID)
	}

	rec = app.do(t, http.MethodGet, "/manager/rous-boutique", nil, managerSession)
	if rec.Code != http.StatusOK {
		t.Fatalf("manager view status = %d", rec.Code)
	}

	before := app.audit.count()
	rec = app.do(t, http.MethodPatch, "/manager/rous-boutique/branch", echo.Map{"name": "Centro", "phone": "555-0100", "reason": "new phone line"}, managerSession)
	if rec.Code != http.StatusOK {
		t.Fatalf("update branch status = %d (%s)", rec.Code, rec.Body.String())
	}
	if app.audit.count() != before+1 {
		t.Fatalf("branch update not audited")
	}

	// a manager token presented as a company session is rejected
	forged := &http.Cookie{Name: "company_session", Value: managerSession.Value}
	rec = app.do(t, http.MethodGet, "/dashboard/rous-boutique", nil, forged)
	expectRedirect(t, rec, http.StatusFound, "/login")

	// and the owner's session does not open the manager area
	rec = app.do(t, http.MethodGet, "/manager/rous-boutique", nil, &http.Cookie{Name: "manager_session", Value: owner.Value})
	expectRedirect(t, rec, http.StatusFound, "/manager/login")
}

func TestAuditOutageDoesNotFailMutation(t *testing.T) {
	app := newTestApp()
	owner := app.register(t, "rosa@rous.example")
	app.audit.down = true

	rec := app.do(t, http.MethodPatch, "/dashboard/rous-boutique/settings", echo.Map{"name": "Rous Boutique SA", "reason": "legal name"}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if app.backend.tenants[1].Name != "Rous Boutique SA" {
		t.Fatalf("tenant name = %q, mutation lost", app.backend.tenants[1].Name)
	}
	if app.backend.tenants[1].Slug != "rous-boutique" {
		t.Fatalf("slug changed to %q", app.backend.tenants[1].Slug)
	}
}

func TestBranchLifecycle(t *testing.T) {
	app := newTestApp()
	owner := app.register(t, "rosa@rous.example")

	rec := app.do(t, http.MethodPost, "/dashboard/rous-boutique/branches", echo.Map{"name": "Norte", "city": "Monterrey"}, owner)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create branch status = %d (%s)", rec.Code, rec.Body.String())
	}
	var created model.Branch
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode branch: %v", err)
	}

	path := "/dashboard/rous-boutique/branches/" + strconv.FormatUint(uint64(created.ID), 10)
	rec = app.do(t, http.MethodDelete, path+"?reason=closed", nil, owner)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d (%s)", rec.Code, rec.Body.String())
	}

	var last uint
	for id, b := range app.backend.branches {
		if b.TenantID == 1 {
			last = id
		}
	}
	rec = app.do(t, http.MethodDelete, "/dashboard/rous-boutique/branches/"+strconv.FormatUint(uint64(last), 10), nil, owner)
	if rec.Code != http.StatusConflict {
		t.Fatalf("deleting last branch status = %d, want 409", rec.Code)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	app := newTestApp()

	for _, path := range []string{"/logout", "/manager/logout"} {
		rec := app.do(t, http.MethodPost, path, nil)
		want := "/login"
		if strings.HasPrefix(path, "/manager") {
			want = "/manager/login"
		}
		expectRedirect(t, rec, http.StatusSeeOther, want)
		if !strings.Contains(rec.Header().Get(echo.HeaderSetCookie), "Max-Age=0") {
			t.Fatalf("%s did not clear the cookie: %q", path, rec.Header().Get(echo.HeaderSetCookie))
		}
	}
}

func TestHealthCheck(t *testing.T) {
	app := newTestApp()
	rec := app.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
}
