package coupon

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrCouponNotFound is returned when no coupon is stored under an id.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponExists is returned when creating a coupon whose id is taken.
	ErrCouponExists = errors.New("coupon already exists")
	// ErrCouponInactive is returned when a coupon is switched off.
	ErrCouponInactive = errors.New("coupon is inactive")
	// ErrCouponExpired is returned when a coupon is past its expiry instant.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrUsageLimitExceeded is returned when a coupon has exhausted its uses.
	ErrUsageLimitExceeded = errors.New("coupon usage limit reached")
	// ErrCouponNotApplicable is returned when the cart does not satisfy the
	// coupon's conditions.
	ErrCouponNotApplicable = errors.New("coupon is not applicable to cart")
	// ErrUnknownCouponType is returned for type tags with no strategy.
	ErrUnknownCouponType = errors.New("unknown coupon type")
	// ErrBackendUnavailable marks persistence I/O failures.
	ErrBackendUnavailable = errors.New("coupon backend unavailable")
	// ErrConcurrentUpdate is returned when a usage increment kept losing
	// against concurrent writers.
	ErrConcurrentUpdate = errors.New("coupon was modified concurrently")
	// ErrStaleUsage is returned by Repository.IncrementUsage when the stored
	// usage count no longer matches the caller's snapshot.
	ErrStaleUsage = errors.New("stale coupon usage count")
)

// BackendError wraps a storage failure. It matches ErrBackendUnavailable
// with errors.Is.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBackendUnavailable, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBackendUnavailable.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// ValidationError lists malformed coupon fields, keyed by JSON field path.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return "invalid coupon: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
