// Package dedupe implements idempotency-key handling for the webchat API,
// remembering the message each key produced within a configurable window.
package dedupe
