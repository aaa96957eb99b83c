// Package domain holds the core types shared across the relay pipeline:
// raw change-feed events, enriched display events, per-subscriber filters,
// and the pure account-color derivation.
package domain
