// Package webhooks turns provider webhook payloads into canonical events and
// delivers them to registered handlers.
//
// An Engine is unusable until Setup hands it the signing secret and the
// provider Translator. Handle validates every translated event before any
// handler runs, so a payload is dispatched completely or not at all.
// Handlers of all events start together under DispatchConcurrent and run in
// registration order under DispatchSequential.
package webhooks
