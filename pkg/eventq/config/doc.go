/*
Package config provides type-safe extraction of queue settings from
map[string]any, usually decoded from a YAML or JSON file.

# Basic Usage

	cfg, err := config.FromFile("queues.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	incoming := cfg.Sub("incoming")
	retries := incoming.Int("retries", 1)
	drain := incoming.Duration("drain_interval", 2*time.Second)

A file for the event engine looks like:

	incoming:
	  retries: 1
	  drain_interval: 2s
	outgoing:
	  retries: 2
	  max_concurrency: 64
	  backoff:
	    initial: 50ms
	    max: 2s
	    factor: 2

# Type Coercion

Duration accepts a Go duration string ("250ms", "2s") or a bare number,
which is read as milliseconds. Int accepts float64 values without a
fractional part, which is what the JSON decoder produces.

Every accessor returns its default when the key is missing or cannot be
converted.

# Thread Safety

Config is safe for concurrent reads. The underlying map is never
modified after creation.
*/
package config
