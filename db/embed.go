// Package db provides embedded seed data.
package db

import _ "embed"

// SeedCoupons is a JSON array of demo coupons, one of each type.
//
//go:embed seed/coupons.json
var SeedCoupons []byte
