// Package config provides loading and environment overlay for broker
// configuration. It exposes a Default() baseline, JSON/YAML file loading,
// and a QUERN_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/quern.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    // reject startup
//	}
package config
