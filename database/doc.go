// Package database opens the relational store shared by the auth boundary,
// the identity mapping table and the reference profile store.
//
// Three drivers are supported through database/sql: "postgres" (lib/pq),
// "pgx" (pgx stdlib) and "sqlite" (modernc.org/sqlite, pure Go). Queries in
// this module are written with '?' placeholders and passed through
// sqlx.DB.Rebind so the same text runs on every driver.
package database
