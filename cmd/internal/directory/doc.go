// Package directory holds user accounts and the role/permission tables.
//
// The in-memory implementation exists for development and tests; production
// deployments are expected to swap in a real identity backend behind the same
// interface. Passwords are stored as bcrypt hashes only.
package directory
