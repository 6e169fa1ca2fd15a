// Package profile is a SQL-backed business identity store. It knows nothing
// about credentials; the auth core reaches it only through the profile
// collaborator interface.
package profile
