// Package ferry provides a composable webhook event delivery engine for Go.
//
// Ferry is a library — not a service. Import it into your application to get
// a webhook endpoint registry, dynamic event type definitions, signed
// at-least-once delivery with retry backoff, per-endpoint rate limiting, and
// a queryable append-only attempt ledger.
//
// Key features:
//   - Endpoint registry with per-endpoint auth, retry and rate limit policies
//   - Dynamic, persisted event type definitions with JSON Schema validation
//   - HMAC signature headers on every delivery (sha256/sha512/sha1)
//   - Linear or exponential backoff with Retry-After support
//   - Automatic pause of endpoints with sustained delivery failures
//   - Composable store pattern with multiple backends (Memory, Postgres, Redis)
//
// Quick start:
//
//	f, err := ferry.New(
//	    ferry.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := f.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	f.RegisterEventType(ctx, catalog.Definition{
//	    Name:    "invoice.created",
//	    Version: "2025-01-01",
//	})
//
//	f.Publish(ctx, &event.Event{
//	    Type: "invoice.created",
//	    Data: map[string]any{"invoice_id": "inv_01h..."},
//	})
package ferry
