// Package conversation provides the session-level chat service.
//
// # Overview
//
// The Service sits between the HTTP surface and the lower layers (store,
// reply pipeline, speech bridge), providing the send orchestration and
// live message fan-out.
//
// # Send flow
//
// Key principle: record first, then act. The outgoing message is appended
// to the store before the reply pipeline runs, so there is a record even
// if the completion backend fails:
//
//  1. AppendMessage stores the outgoing message (delivery state "sent")
//  2. The message is published to subscribers
//  3. The pipeline produces exactly one incoming reply asynchronously
//  4. The reply is published too, and optionally spoken aloud when the
//     auto-speech preference is enabled
//
// # Broadcasting
//
// EventBroadcaster is in-memory pub/sub keyed by conversation ID:
//
//	ch, subID := svc.Subscribe(ctx, "1")
//
// Delivery is non-blocking; slow subscribers lose messages rather than
// stalling the send path.
package conversation
