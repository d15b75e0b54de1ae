// Package core contains the provider-independent contracts shared by the
// transport, auth and webhooks packages: the Result type, the typed error
// taxonomy, failure classification, canonical webhook events and resources,
// and configuration. Core must not depend on transport or provider adapters.
package core
