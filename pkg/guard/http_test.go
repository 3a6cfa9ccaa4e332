package guard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/horecaops/backoffice/pkg/accesserr"
	"github.com/horecaops/backoffice/pkg/httputil"
	"github.com/horecaops/backoffice/pkg/pageaccess"
	"github.com/horecaops/backoffice/pkg/principal"
	"github.com/horecaops/backoffice/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerIdentity(r *http.Request) (string, error) {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id, nil
	}
	return "", errors.New("missing X-User-ID")
}

func serve(t *testing.T, h http.Handler, userID string) (*httptest.ResponseRecorder, httputil.ErrorResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body httputil.ErrorResponse
	if rec.Code >= 400 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestMiddleware_Authenticate(t *testing.T) {
	f := newFixture(t)
	mw := NewMiddleware(f.guard, headerIdentity)

	var seen *principal.Principal
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec, body := serve(t, h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body.Code)

	rec, _ = serve(t, h, "ghost")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(t, h, f.point.UserID)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, principal.RolePoint, seen.StructuralRole)
}

func TestMiddleware_RequireCapability(t *testing.T) {
	f := newFixture(t)
	mw := NewMiddleware(f.guard, headerIdentity)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := mw.Authenticate(mw.RequireCapability(rbac.FlagViewUsers)(ok))

	rec, _ := serve(t, h, f.partner.UserID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := serve(t, h, f.point.UserID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", body.Code)

	// without Authenticate there is no principal in the context
	rec, _ = serve(t, mw.RequireCapability(rbac.FlagViewUsers)(ok), f.partner.UserID)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_RequireStructuralRole(t *testing.T) {
	f := newFixture(t)
	mw := NewMiddleware(f.guard, headerIdentity)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := mw.Authenticate(mw.RequireStructuralRole(principal.RoleOwner, principal.RolePlatformOwner)(ok))

	for _, tc := range []struct {
		user *principal.Principal
		want int
	}{
		{f.owner, http.StatusOK},
		{f.platform, http.StatusOK},
		{f.partner, http.StatusForbidden},
		{f.employee, http.StatusForbidden},
	} {
		rec, _ := serve(t, h, tc.user.UserID)
		assert.Equal(t, tc.want, rec.Code, tc.user.UserID)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind accesserr.Kind
		want int
	}{
		{accesserr.Unauthorized, http.StatusUnauthorized},
		{accesserr.NoTenant, http.StatusForbidden},
		{accesserr.Forbidden, http.StatusForbidden},
		{accesserr.ProtectedRole, http.StatusForbidden},
		{accesserr.CannotDisableSystemPage, http.StatusForbidden},
		{accesserr.NotFound, http.StatusNotFound},
		{accesserr.DuplicateName, http.StatusConflict},
		{accesserr.DuplicateAssignment, http.StatusConflict},
		{accesserr.RoleInUse, http.StatusConflict},
		{accesserr.PointInUse, http.StatusConflict},
		{accesserr.Validation, http.StatusBadRequest},
		{accesserr.StoreUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(accesserr.New(tt.kind, "test", "boom")))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("plain")))
}

func TestWriteError_HidesStoreDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, accesserr.Store("rbac.GetRole", fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused")))

	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", body.Code)
	assert.NotContains(t, body.Error, "10.0.0.5")
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	mw := NewMiddleware(f.guard, headerIdentity)

	do := func(h http.Handler, method, target, userID string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, target, &buf)
		req.Header.Set("X-User-ID", userID)
		rec := httptest.NewRecorder()
		mw.Stack(h).ServeHTTP(rec, req)
		return rec
	}

	t.Run("profile", func(t *testing.T) {
		rec := do(mw.ProfileHandler(), http.MethodGet, "/me", f.owner.UserID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(httputil.RequestIDHeader))

		var profile struct {
			PageRole string `json:"page_role"`
			Menu     []struct {
				Slug string `json:"slug"`
			} `json:"menu"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
		assert.Equal(t, "OWNER", profile.PageRole)
		assert.Len(t, profile.Menu, 4)
	})

	t.Run("assign", func(t *testing.T) {
		rec := do(mw.AssignRoleHandler(), http.MethodPost, "/assign", f.owner.UserID,
			AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: "POINT"})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(mw.AssignRoleHandler(), http.MethodPost, "/assign", f.point.UserID,
			AssignRoleRequest{UserID: f.point.UserID, TenantID: f.tenant1, RoleName: "OWNER"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(mw.AssignRoleHandler(), http.MethodPost, "/assign", f.owner.UserID, map[string]string{"user_id": f.point.UserID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("page matrix", func(t *testing.T) {
		rec := do(mw.SetPageMatrixHandler(), http.MethodPut, "/pages", f.owner.UserID, SetPageMatrixRequest{
			TenantID: f.tenant1,
			Role:     principal.RolePartner,
			Updates:  []pageaccess.Update{{Slug: "reports", Allowed: true}},
		})
		assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = do(mw.GetPageMatrixHandler(), http.MethodGet, "/pages?role=partner&tenant_id="+f.tenant1, f.owner.UserID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var pages []pageaccess.PageAccess
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pages))
		for _, page := range pages {
			assert.Equal(t, page.Slug == "reports", page.Allowed, page.Slug)
		}

		rec = do(mw.GetPageMatrixHandler(), http.MethodGet, "/pages?role=partner&tenant_id="+f.tenant1, f.partner.UserID, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(mw.GetPageMatrixHandler(), http.MethodGet, "/pages?role=chef&tenant_id="+f.tenant1, f.owner.UserID, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(mw.SetPageMatrixHandler(), http.MethodPut, "/pages", f.partner.UserID, SetPageMatrixRequest{
			TenantID: f.tenant1,
			Role:     principal.RolePoint,
			Updates:  []pageaccess.Update{{Slug: "reports", Allowed: true}},
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("page matrix routing", func(t *testing.T) {
		rec := do(mw.PageMatrixHandler(), http.MethodGet, "/pages?role=partner&tenant_id="+f.tenant1, f.owner.UserID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = do(mw.PageMatrixHandler(), http.MethodPut, "/pages", f.owner.UserID, SetPageMatrixRequest{
			TenantID: f.tenant1,
			Role:     principal.RolePartner,
			Updates:  []pageaccess.Update{{Slug: "reports", Allowed: false}},
		})
		assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = do(mw.PageMatrixHandler(), http.MethodDelete, "/pages", f.owner.UserID, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, "GET, PUT", rec.Header().Get("Allow"))
	})
}
