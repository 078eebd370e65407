// Package types holds the wire shapes shared by the router's HTTP handlers
// and middleware: the error envelope, its machine-readable codes, and the
// JSON response helpers.
package types
