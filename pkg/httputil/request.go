package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseAndValidate decodes JSON and runs the struct's validate tags
func ParseAndValidate(r *http.Request, dest interface{}) error {
	if err := ParseJSON(r, dest); err != nil {
		return err
	}
	if err := validate.Struct(dest); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes and validates JSON, writing a 400 on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseAndValidate(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}
