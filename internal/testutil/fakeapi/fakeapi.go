// Package fakeapi is an in-memory stand-in for the m365ctl backend, used by
// tests that exercise the real HTTP client end to end.
package fakeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// Call is one request the server received.
type Call struct {
	Method string
	Path   string
	Query  string
	Body   string
	Auth   string
}

type account struct {
	user     domain.AuthUser
	password string
}

type tenantState struct {
	tenant       domain.Tenant
	clientSecret string
	secrets      []string
	credsValid   bool
	spo          domain.SpoStatus
	prerequisite bool
	permissions  []string
	upstream     []domain.License
	licenseCache []domain.License
	users        map[string]domain.DirectoryUser
	domains      map[string]domain.OrgDomain
	deleting     map[string]bool
	roleMembers  map[string]map[string]bool
	organization string
}

// Server is the fake backend. All state is guarded by mu.
type Server struct {
	mu         sync.Mutex
	signingKey []byte
	tokenTTL   time.Duration
	accounts   map[string]*account
	tenants    map[int64]*tenantState
	nextID     int64
	nextUserID int
	secretSeq  int
	calls      []Call
	failures   map[string]failure
	latency    time.Duration
	router     chi.Router
}

type failure struct {
	status int
	detail string
}

// New creates an empty backend.
func New() *Server {
	s := &Server{
		signingKey: []byte("fakeapi-signing-key"),
		tokenTTL:   time.Hour,
		accounts:   make(map[string]*account),
		tenants:    make(map[int64]*tenantState),
		nextID:     1,
		failures:   make(map[string]failure),
	}
	s.router = s.routes()
	return s
}

// Start serves a new backend until the test ends and returns it with the API base URL.
func Start(t testing.TB) (*Server, string) {
	t.Helper()
	s := New()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv.URL + "/api"
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/system-status", s.handleSystemStatus)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/change-password", s.handleChangePassword)

			r.Route("/tenants", func(r chi.Router) {
				r.Get("/", s.handleListTenants)
				r.Post("/", s.handleCreateTenant)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.withTenant(s.handleGetTenant))
					r.Put("/", s.withTenant(s.handleUpdateTenant))
					r.Delete("/", s.withTenant(s.handleDeleteTenant))
					r.Get("/validate", s.withTenant(s.handleValidate))
					r.Get("/spo-status", s.withTenant(s.handleSpoStatus))
					r.Post("/update-secret", s.withTenant(s.handleUpdateSecret))
					r.Post("/configure-permissions", s.withTenant(s.handleConfigurePermissions))
				})
			})

			r.Route("/o365", func(r chi.Router) {
				r.Get("/licenses/tenant/{id}", s.withTenant(s.handleLicenses))

				r.Group(func(r chi.Router) {
					r.Use(s.requireTenantQuery)

					r.Get("/users", s.handleListUsers)
					r.Get("/users/search", s.handleSearchUsers)
					r.Post("/users", s.handleCreateUser)
					r.Post("/users/batch", s.handleBatchCreateUsers)
					r.Get("/users/{userID}", s.handleGetUser)
					r.Patch("/users/{userID}", s.handleUpdateUser)
					r.Delete("/users/{userID}", s.handleDeleteUser)
					r.Post("/users/{userID}/enable", s.handleSetEnabled(true))
					r.Post("/users/{userID}/disable", s.handleSetEnabled(false))

					r.Get("/domains", s.handleListDomains)
					r.Post("/domains", s.handleCreateDomain)
					r.Get("/domains/{name}", s.handleGetDomain)
					r.Post("/domains/{name}/verify", s.handleVerifyDomain)
					r.Delete("/domains/{name}", s.handleDeleteDomain)

					r.Get("/roles", s.handleListRoles)
					r.Post("/roles/assign", s.handleRoleChange(true))
					r.Post("/roles/revoke", s.handleRoleChange(false))
					r.Get("/roles/{roleID}/members", s.handleRoleMembers)
					r.Post("/roles/{userID}/promote", s.handlePromote(true))
					r.Post("/roles/{userID}/demote", s.handlePromote(false))

					r.Get("/reports/organization", s.handleOrganization)
					r.Get("/reports/{kind}", s.handleUsageReport)
				})
			})
		})
	})
	return r
}

// record logs the call and applies injected failures and latency.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body string
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			body = string(data)
			r.Body = io.NopCloser(strings.NewReader(body))
		}

		path := strings.TrimPrefix(r.URL.Path, "/api")

		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method: r.Method,
			Path:   path,
			Query:  r.URL.RawQuery,
			Body:   body,
			Auth:   r.Header.Get("Authorization"),
		})
		f, fail := s.failures[r.Method+" "+path]
		if fail {
			delete(s.failures, r.Method+" "+path)
		}
		latency := s.latency
		s.mu.Unlock()

		if latency > 0 {
			time.Sleep(latency)
		}
		if fail {
			writeDetail(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts requests matching method and path.
func (s *Server) CallCount(method, path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// FailNext makes the next request for method and path fail with status and detail.
// An empty detail produces a body without a detail field.
func (s *Server) FailNext(method, path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, detail: detail}
}

// SetLatency delays every response.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// SeedAdmin creates an operator account and returns a valid token for it.
func (s *Server) SeedAdmin(username, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.addAccountLocked(username, username+"@example.com", password)
	token, _ := s.issueLocked(acc)
	return token
}

// SeedTenant registers a tenant with valid credentials and returns it.
func (s *Server) SeedTenant(name string) domain.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.addTenantLocked(domain.TenantCreate{
		TenantID:     strings.ToLower(name) + ".onmicrosoft.com",
		ClientID:     "client-" + strings.ToLower(name),
		ClientSecret: "secret-0",
		TenantName:   name,
	})
	return ts.tenant
}

// SetCredentialsValid controls what validation reports.
func (s *Server) SetCredentialsValid(id int64, valid bool) {
	s.update(id, func(ts *tenantState) { ts.credsValid = valid })
}

// SetSpo controls what the SPO check reports.
func (s *Server) SetSpo(id int64, status domain.SpoStatus) {
	s.update(id, func(ts *tenantState) { ts.spo = status })
}

// SetPrerequisite controls whether Application.ReadWrite.All has been granted.
func (s *Server) SetPrerequisite(id int64, granted bool) {
	s.update(id, func(ts *tenantState) { ts.prerequisite = granted })
}

// SetUpstreamLicenses changes what Microsoft Graph would report. The server
// keeps serving its cached snapshot until a refresh is forced.
func (s *Server) SetUpstreamLicenses(id int64, ls []domain.License) {
	s.update(id, func(ts *tenantState) { ts.upstream = append([]domain.License(nil), ls...) })
}

// CompleteDomainDeletion finishes a pending domain deletion.
func (s *Server) CompleteDomainDeletion(id int64, name string) {
	s.update(id, func(ts *tenantState) {
		if ts.deleting[name] {
			delete(ts.domains, name)
			delete(ts.deleting, name)
		}
	})
}

// Secrets returns the tenant's secret history, oldest first.
func (s *Server) Secrets(id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tenants[id]
	if !ok {
		return nil
	}
	return append([]string(nil), ts.secrets...)
}

// Tenant returns the server's view of a tenant.
func (s *Server) Tenant(id int64) (domain.Tenant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tenants[id]
	if !ok {
		return domain.Tenant{}, false
	}
	return ts.tenant, true
}

func (s *Server) update(id int64, fn func(ts *tenantState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.tenants[id]; ok {
		fn(ts)
	}
}

func (s *Server) addAccountLocked(username, email, password string) *account {
	acc := &account{
		user: domain.AuthUser{
			ID:          int64(len(s.accounts) + 1),
			Username:    username,
			Email:       email,
			IsActive:    true,
			IsSuperuser: len(s.accounts) == 0,
			CreatedAt:   time.Now().UTC(),
		},
		password: password,
	}
	s.accounts[username] = acc
	return acc
}

func (s *Server) addTenantLocked(req domain.TenantCreate) *tenantState {
	id := s.nextID
	s.nextID++
	now := time.Now().UTC()
	ts := &tenantState{
		tenant: domain.Tenant{
			ID:               id,
			TenantID:         req.TenantID,
			ClientID:         req.ClientID,
			TenantName:       req.TenantName,
			Remarks:          req.Remarks,
			IsActive:         true,
			CredentialStatus: domain.CredentialUnknown,
			SpoStatus:        domain.SpoUnknown,
			CreatedAt:        now,
		},
		clientSecret: req.ClientSecret,
		secrets:      []string{req.ClientSecret},
		credsValid:   true,
		spo:          domain.SpoAvailable,
		upstream: []domain.License{
			{SkuID: "6fd2c87f-b296-42f0-b197-1e91e994b900", SkuPartNumber: "ENTERPRISEPACK", EnabledUnits: 25, ConsumedUnits: 20},
		},
		users:       make(map[string]domain.DirectoryUser),
		domains:     make(map[string]domain.OrgDomain),
		deleting:    make(map[string]bool),
		roleMembers: map[string]map[string]bool{domain.GlobalAdminRoleID: {}},
		organization: fmt.Sprintf(
			`{"value":[{"id":%q,"displayName":%q,"countryLetterCode":"US","tenantType":"AAD",`+
				`"verifiedDomains":[{"name":%q,"isDefault":true,"isInitial":true}]}]}`,
			req.TenantID, req.TenantName, req.TenantID),
	}
	ts.domains[req.TenantID] = domain.OrgDomain{
		Name: req.TenantID, AuthenticationType: "Managed", IsDefault: true, IsVerified: true,
		SupportedServices: []string{"Email", "OfficeCommunicationsOnline"},
	}
	s.tenants[id] = ts
	return ts
}

// tokenClaims are the claims carried by issued tokens.
type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (s *Server) issueLocked(acc *account) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Username: acc.user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(acc.user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// IssueExpiredToken returns a well-formed token the server will reject.
func (s *Server) IssueExpiredToken(username string) string {
	claims := tokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	return token
}

type (
	accountKey struct{}
	tenantKey  struct{}
)

func accountFrom(r *http.Request) *account {
	acc, _ := r.Context().Value(accountKey{}).(*account)
	return acc
}

func tenantFrom(r *http.Request) *tenantState {
	ts, _ := r.Context().Value(tenantKey{}).(*tenantState)
	return ts
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		var claims tokenClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return s.signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		s.mu.Lock()
		acc, ok := s.accounts[claims.Username]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey{}, acc)))
	})
}

func (s *Server) requireTenantQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("tenant_id"), 10, 64)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "tenant_id query parameter is required")
			return
		}
		s.mu.Lock()
		ts, ok := s.tenants[id]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusNotFound, "Tenant not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey{}, ts)))
	})
}

func (s *Server) withTenant(h func(w http.ResponseWriter, r *http.Request, ts *tenantState)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "invalid tenant id")
			return
		}
		s.mu.Lock()
		ts, ok := s.tenants[id]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusNotFound, "Tenant not found")
			return
		}
		h(w, r, ts)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	if detail == "" {
		writeJSON(w, status, map[string]string{})
		return
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"body"}, "msg": msg, "type": "value_error"}},
	})
}

func decode(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
