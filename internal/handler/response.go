package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// requestError is a malformed request body.
type requestError struct {
	msg     string
	details map[string]string
}

func (e *requestError) Error() string { return e.msg }

// decodeJSON reads a single JSON value into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &requestError{msg: "invalid request body: " + err.Error()}
	}
	if dec.More() {
		return &requestError{msg: "invalid request body: trailing data"}
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

// decodeBody is decodeJSON followed by struct validation of dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return errors.Wrap(err, "validate request")
		}
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fieldPath(fe)] = validationMessage(fe)
		}
		return &requestError{msg: "validation failed", details: details}
	}
	return nil
}

// fieldPath strips the request type name from a validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	}
	return "is invalid"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg, Details: details})
}

// writeDomainError maps engine errors to responses. Business rule failures
// are client errors; storage failures are logged and reported as 503.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr  *requestError
		valErr  *coupon.ValidationError
		itemErr *cart.InvalidItemError
	)
	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, reqErr.msg, reqErr.details)
	case errors.As(err, &valErr):
		writeError(w, http.StatusBadRequest, "invalid coupon", valErr.Fields)
	case errors.As(err, &itemErr):
		writeError(w, http.StatusBadRequest, itemErr.Error(), nil)
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, coupon.ErrUnknownCouponType):
		writeError(w, http.StatusBadRequest, err.Error(), nil)

	case errors.Is(err, coupon.ErrCouponNotFound):
		writeError(w, http.StatusNotFound, coupon.ErrCouponNotFound.Error(), nil)

	case errors.Is(err, coupon.ErrCouponInactive),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrUsageLimitExceeded),
		errors.Is(err, coupon.ErrCouponNotApplicable):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)

	case errors.Is(err, coupon.ErrCouponExists),
		errors.Is(err, coupon.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, err.Error(), nil)

	case errors.Is(err, coupon.ErrBackendUnavailable):
		zctx.From(r.Context()).Error("Storage unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable", nil)

	default:
		zctx.From(r.Context()).Error("Unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}
