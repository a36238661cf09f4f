// Package webchat exposes the chat service over HTTP for the browser
// frontend.
//
// # Endpoints
//
//	GET  /health                                          liveness probe
//	GET  /api/conversations                               conversation list
//	POST /api/conversations/{id}/select                   switch active conversation
//	GET  /api/conversations/{id}/messages                 message history
//	POST /api/conversations/{id}/messages                 send a message
//	POST /api/conversations/{id}/messages/{mid}/reactions toggle a reaction
//	GET  /api/conversations/{id}/events                   SSE stream of live messages
//	GET  /api/settings, PUT /api/settings                 read/replace settings
//	PUT  /api/settings/{profile,ai,preferences}           per-group saves
//	GET  /api/voices                                      synthesis voices
//
// # Idempotency
//
// POST message requests may carry an Idempotency-Key header. A retry with
// the same key within the dedupe window replays the original message
// instead of creating a duplicate.
//
// Assistant replies are markdown; the API renders them to HTML in the
// body_html field so the frontend does not need its own renderer.
package webchat
