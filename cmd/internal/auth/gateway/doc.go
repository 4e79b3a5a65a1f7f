// Package gateway implements the authentication flows: login, refresh,
// logout, and administrative revocation.
//
// It composes the user directory, the token codec, the session store, and the
// audit recorder. Handlers stay thin; every rule about credentials, sessions,
// and permissions lives here.
package gateway
