// Package webhook implements the public WhatsApp Cloud API webhook endpoint.
//
// # Request Flow
//
//  1. GET with hub.mode=subscribe and a matching hub.verify_token echoes
//     hub.challenge (403 otherwise)
//  2. POST body read once under max_body_size (413 above the limit)
//  3. X-Hub-Signature-256 verified with HMAC-SHA256 over the raw body
//     (401 on mismatch, or when no app secret is configured and
//     require_signature is on)
//  4. 200 "OK" returned to Meta
//  5. Body handed to the Processor on a detached context bounded by
//     process_timeout
//
// The Relay processor resolves each message sender, claims the provider
// message id, then stores the event and posts the Slack notification
// concurrently before recording the delivery outcome. Nothing after step 4
// can change the response, so every failure there is reported through logs.
//
// # Error Responses
//
// - 401 Unauthorized: signature missing or invalid (plain text, no details)
// - 403 Forbidden: failed verification handshake
// - 413 Payload Too Large: body exceeds max_body_size
package webhook
