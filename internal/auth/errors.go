package auth

import "errors"

// Errors reported by the authentication provider. The first four are shown to end
// users verbatim, so they carry the German product copy.
var (
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("E-Mail-Adresse oder Passwort ist falsch.")
	// ErrEmailInUse indicates an account already exists for the address.
	ErrEmailInUse = errors.New("Diese E-Mail-Adresse wird bereits verwendet.")
	// ErrWeakPassword indicates the password is shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("Das Passwort muss mindestens 6 Zeichen lang sein.")
	// ErrInvalidEmail indicates the address could not be parsed.
	ErrInvalidEmail = errors.New("Die E-Mail-Adresse ist ungültig.")
	// ErrAccountNotFound indicates the directory has no matching account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrSessionNotFound indicates the provided refresh token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrInvalidToken indicates an access token that is malformed, forged or expired.
	ErrInvalidToken = errors.New("invalid access token")
)
