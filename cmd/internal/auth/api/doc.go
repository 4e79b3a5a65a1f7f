// Package api exposes the authentication flows over HTTP.
//
// Handlers validate and decode requests, call the gateway, and translate its
// sentinel errors to status codes and stable error codes. No auth rules live
// here.
package api
