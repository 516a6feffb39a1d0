// Package db carries the SQL migrations so binaries run without a checkout.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
