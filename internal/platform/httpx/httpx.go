// Package httpx holds the JSON request/response helpers shared by the HTTP handlers.
// Error bodies always have the shape {"detail": "..."}.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies read by Decode.
const MaxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Error is a client-facing failure carrying the HTTP status and the detail message.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("%d: %s", e.Status, e.Detail) }

// NewError returns an *Error.
func NewError(status int, detail string) *Error {
	return &Error{Status: status, Detail: detail}
}

// WriteJSON writes v as the JSON response body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpx: encode response: %v", err)
	}
}

// WriteError writes {"detail": detail} with status.
func WriteError(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, map[string]string{"detail": detail})
}

// WriteErr writes err as a response. An *Error anywhere in the chain is written as is;
// anything else is logged and written as 500 without leaking its text.
func WriteErr(w http.ResponseWriter, err error) {
	var he *Error
	if errors.As(err, &he) {
		WriteError(w, he.Status, he.Detail)
		return
	}
	log.Printf("httpx: internal error: %v", err)
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}

// Decode reads a JSON body into dst, a struct pointer, and validates it with its `validate` struct tags.
// Malformed bodies and validation failures return a 400 *Error.
func Decode(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return NewError(http.StatusBadRequest, "Request body required")
		}
		return NewError(http.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return NewError(http.StatusBadRequest, validationDetail(err))
	}
	return nil
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "uuid", "uuid4":
		return field + " must be a UUID"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	}
	return field + " is invalid"
}
