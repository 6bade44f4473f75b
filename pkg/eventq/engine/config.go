package engine

import (
	"github.com/randalmurphal/eventq/pkg/eventq"
	"github.com/randalmurphal/eventq/pkg/eventq/config"
)

// OptionsFromConfig builds engine options from a config section:
//
//	validate_events: true
//	incoming:
//	  retries: 1
//	outgoing:
//	  retries: 3
//	  backoff: {initial: 100ms, max: 5s, factor: 2}
//
// The incoming and outgoing sections accept the keys of
// eventq.OptionsFromConfig.
func OptionsFromConfig(cfg config.Config) []Option {
	var opts []Option
	if cfg.Has("validate_events") {
		opts = append(opts, WithEventValidation(cfg.Bool("validate_events", true)))
	}
	if cfg.Has("incoming") {
		opts = append(opts, WithIncomingOptions(eventq.OptionsFromConfig(cfg.Sub("incoming"))...))
	}
	if cfg.Has("outgoing") {
		opts = append(opts, WithOutgoingOptions(eventq.OptionsFromConfig(cfg.Sub("outgoing"))...))
	}
	return opts
}

// OptionsFromFile loads a YAML or JSON file and calls OptionsFromConfig.
func OptionsFromFile(path string) ([]Option, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	return OptionsFromConfig(cfg), nil
}
