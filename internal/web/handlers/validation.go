package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields under their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errBadPayload wraps request bodies that could not be decoded
var errBadPayload = errors.New("invalid request body")

// bind decodes the request into dst (JSON or form encoded) and validates it.
// It writes the 400 response itself and reports false when the request was
// rejected.
func (h *Handlers) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodePayload(r, dst); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			h.jsonError(w, "Validation failed", http.StatusBadRequest)
			return false
		}
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Validation failed",
			"fields": fieldErrors(verrs),
		})
		return false
	}
	return true
}

func decodePayload(r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return fmt.Errorf("%w: %v", errBadPayload, err)
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return bindForm(r.PostForm, dst)
}

// bindForm copies form values into the string and bool fields of dst (or
// pointers to them) named by their json tag. Absent keys leave the field
// untouched.
func bindForm(form map[string][]string, dst any) error {
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()

	for i := range t.NumField() {
		field := t.Field(i)
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		values, ok := form[name]
		if !ok || len(values) == 0 {
			continue
		}
		raw := values[0]

		fv := v.Field(i)
		kind := field.Type.Kind()
		if kind == reflect.Pointer {
			kind = field.Type.Elem().Kind()
		}

		var val reflect.Value
		switch kind {
		case reflect.String:
			val = reflect.ValueOf(raw)
		case reflect.Bool:
			b, err := parseFormBool(raw)
			if err != nil {
				return fmt.Errorf("%w: %s must be a boolean", errBadPayload, name)
			}
			val = reflect.ValueOf(b)
		default:
			continue
		}

		if field.Type.Kind() == reflect.Pointer {
			ptr := reflect.New(field.Type.Elem())
			ptr.Elem().Set(val)
			fv.Set(ptr)
		} else {
			fv.Set(val)
		}
	}
	return nil
}

func parseFormBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes":
		return true, nil
	case "off", "no", "":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// fieldErrors converts validator errors into field -> message pairs.
func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, err := range verrs {
		field := strings.ToLower(err.Field())

		var msg string
		switch err.Tag() {
		case "required":
			msg = "is required"
		case "min":
			if err.Kind() == reflect.String {
				msg = fmt.Sprintf("must be at least %s characters", err.Param())
			} else {
				msg = fmt.Sprintf("must be at least %s", err.Param())
			}
		case "max":
			if err.Kind() == reflect.String {
				msg = fmt.Sprintf("must not exceed %s characters", err.Param())
			} else {
				msg = fmt.Sprintf("must not exceed %s", err.Param())
			}
		case "email":
			msg = "must be a valid email address"
		default:
			if err.Param() != "" {
				msg = fmt.Sprintf("%s:%s", err.Tag(), err.Param())
			} else {
				msg = err.Tag()
			}
		}
		out[field] = msg
	}
	return out
}
