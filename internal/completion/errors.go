// ABOUTME: Typed error taxonomy for the completion client
// ABOUTME: Every transport failure maps to one of these, carrying the user-facing French message

package completion

import "fmt"

// UserFacing marks errors whose message is localized and safe to show in
// the chat thread. All taxonomy errors in this package implement it.
type UserFacing interface {
	error
	UserFacingMessage() string
}

// ConfigurationError means no API key is configured; the user must act.
// Raised before any network call is attempted.
type ConfigurationError struct{}

func (e *ConfigurationError) Error() string {
	return "Clé API Perplexity manquante. Veuillez la configurer dans les paramètres."
}

// AuthenticationError means the service rejected the key (HTTP 401)
type AuthenticationError struct{}

func (e *AuthenticationError) Error() string {
	return "Clé API invalide. Vérifiez votre clé Perplexity dans les paramètres."
}

// RateLimitError means the service throttled the request (HTTP 429).
// Transient; the user may retry later. The client never retries on its own.
type RateLimitError struct{}

func (e *RateLimitError) Error() string {
	return "Limite de requêtes atteinte. Veuillez réessayer plus tard."
}

// ConnectivityError means the request never reached the service
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return "Erreur de connexion. Vérifiez votre connexion internet."
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// EmptyResponseError means the service answered with zero choices
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string {
	return "Aucune réponse reçue de l'API"
}

// UnknownServiceError wraps any other unexpected HTTP status
type UnknownServiceError struct {
	StatusCode int
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("Erreur lors de la communication avec l'IA (code %d). Réessayez plus tard.", e.StatusCode)
}

func (e *ConfigurationError) UserFacingMessage() string  { return e.Error() }
func (e *AuthenticationError) UserFacingMessage() string { return e.Error() }
func (e *RateLimitError) UserFacingMessage() string      { return e.Error() }
func (e *ConnectivityError) UserFacingMessage() string   { return e.Error() }
func (e *EmptyResponseError) UserFacingMessage() string  { return e.Error() }
func (e *UnknownServiceError) UserFacingMessage() string { return e.Error() }
