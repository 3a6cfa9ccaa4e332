package guard

import (
	"context"
	"errors"
	"net/http"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/contextkeys"
	"github.com/horecaops/backoffice/pkg/httputil"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
)

// IdentityFunc returns the user ID an upstream authenticator verified for
// the request, or an error when there is none.
type IdentityFunc func(r *http.Request) (string, error)

// Middleware adapts the guard to net/http. It does no routing.
type Middleware struct {
	guard    *Guard
	identify IdentityFunc
}

// NewMiddleware creates the HTTP adapter
func NewMiddleware(g *Guard, identify IdentityFunc) *Middleware {
	return &Middleware{guard: g, identify: identify}
}

// PrincipalFrom returns the principal Authenticate stored in ctx
func PrincipalFrom(ctx context.Context) (*principal.Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*principal.Principal)
	return p, ok && p != nil
}

// Authenticate resolves the request's principal and stores it in the
// request context. Requests without a resolvable user get 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.identify(r)
		if err != nil || userID == "" {
			if err == nil {
				err = errors.New("no user identity")
			}
			WriteError(w, accesserr.Wrap(accesserr.Unauthorized, "guard.Authenticate", err))
			return
		}

		p, err := m.guard.AuthenticateUser(r.Context(), userID)
		if err != nil {
			WriteError(w, err)
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), p)
		ctx = contextkeys.WithUserID(ctx, p.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCapability rejects requests whose principal lacks flag
func (m *Middleware) RequireCapability(flag rbac.Flag) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFrom(r.Context())
			if err := m.guard.RequireCapability(r.Context(), p, flag); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStructuralRole rejects requests whose principal has none of roles
func (m *Middleware) RequireStructuralRole(roles ...principal.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFrom(r.Context())
			if err := RequireAnyStructuralRole(p, roles...); err != nil {
				m.guard.observe(r.Context(), "structural_role", p, err)
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StatusFor maps an error kind to an HTTP status code
func StatusFor(err error) int {
	switch accesserr.KindOf(err) {
	case accesserr.Unauthorized:
		return http.StatusUnauthorized
	case accesserr.NoTenant, accesserr.Forbidden, accesserr.ProtectedRole, accesserr.CannotDisableSystemPage:
		return http.StatusForbidden
	case accesserr.NotFound:
		return http.StatusNotFound
	case accesserr.DuplicateName, accesserr.DuplicateAssignment, accesserr.RoleInUse, accesserr.PointInUse:
		return http.StatusConflict
	case accesserr.Validation:
		return http.StatusBadRequest
	case accesserr.StoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error with the status of its kind.
// Store and unknown failures are not echoed to the client.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := accesserr.KindOf(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	httputil.WriteErrorResponse(w, status, httputil.ErrorResponse{Error: message, Code: kind.String()})
}

// Stack wraps next with panic recovery, request IDs, access logging and
// Authenticate, outermost first.
func (m *Middleware) Stack(next http.Handler) http.Handler {
	return httputil.Chain(
		httputil.RecoveryMiddleware(m.guard.logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(m.guard.logger),
		m.Authenticate,
	)(next)
}

// ProfileHandler serves the caller's access profile
func (m *Middleware) ProfileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		profile, err := m.guard.AccessProfile(r.Context(), p)
		if err != nil {
			WriteError(w, err)
			return
		}
		httputil.WriteSuccess(w, profile)
	})
}

// AssignRoleHandler assigns the role in the JSON body as the caller
func (m *Middleware) AssignRoleHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AssignRoleRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		p, _ := PrincipalFrom(r.Context())
		ur, err := m.guard.AssignRole(r.Context(), p, req)
		if err != nil {
			WriteError(w, err)
			return
		}
		httputil.WriteSuccess(w, ur)
	})
}

// GetPageMatrixHandler serves the matrix of ?tenant_id=&role= on GET
func (m *Middleware) GetPageMatrixHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, err := principal.ParseRole(r.URL.Query().Get("role"))
		if err != nil {
			WriteError(w, err)
			return
		}
		p, _ := PrincipalFrom(r.Context())
		pages, err := m.guard.GetPageMatrix(r.Context(), p, r.URL.Query().Get("tenant_id"), role)
		if err != nil {
			WriteError(w, err)
			return
		}
		httputil.WriteSuccess(w, pages)
	})
}

// SetPageMatrixHandler applies the SetPageMatrixRequest body and answers 204
func (m *Middleware) SetPageMatrixHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SetPageMatrixRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		p, _ := PrincipalFrom(r.Context())
		if err := m.guard.SetPageMatrix(r.Context(), p, req); err != nil {
			WriteError(w, err)
			return
		}
		httputil.WriteNoContent(w)
	})
}

// PageMatrixHandler routes GET to GetPageMatrixHandler and PUT to
// SetPageMatrixHandler for muxes without method patterns.
func (m *Middleware) PageMatrixHandler() http.Handler {
	get, set := m.GetPageMatrixHandler(), m.SetPageMatrixHandler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			get.ServeHTTP(w, r)
		case http.MethodPut:
			set.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", "GET, PUT")
			httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}
