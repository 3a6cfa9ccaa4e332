// # Responses
//
//	httputil.WriteJSON(w, http.StatusOK, profile)
//	httputil.WriteErrorResponse(w, http.StatusForbidden, httputil.ErrorResponse{Error: msg, Code: "forbidden"})
//
// # Requests
//
// ParseAndValidate decodes a JSON body and runs go-playground/validator
// tags on the result:
//
//	var req guard.AssignRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(mux)
package httputil
