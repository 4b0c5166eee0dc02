// Package db provides the embedded catalog schema.
package db

import _ "embed"

// Schema creates the catalog and dashboard tables. Every statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
