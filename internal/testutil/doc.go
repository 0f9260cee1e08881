// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate: wire frames, endpoint envelopes, scripted transports
// and a fake oracle HTTP server. They are not intended for production usage.
package testutil
