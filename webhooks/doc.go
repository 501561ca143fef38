// Package webhooks shapes canonical events for webhook subscribers.
//
// Events are produced once in the canonical API version. Each subscription
// pins the version it was created with, and the Shaper runs the response
// transformer down to that version before handing the payload to a Sender.
package webhooks
