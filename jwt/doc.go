// Package jwt issues and verifies signed session tokens carrying user, role and
// session identifiers.
package jwt
