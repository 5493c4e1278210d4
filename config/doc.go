// Package config loads and validates reqgateway's startup configuration:
// the broker connection, the HTTP listener, sweep timing, the entity
// route table, and TLS/security settings.
//
// Grounded on the teacher's config package (SafeConfig's RWMutex-guarded
// clone-on-read pattern, Validate() before an update is accepted), scaled
// down from a component-registry platform config to this system's much
// smaller surface, and loaded from YAML instead of layered JSON since
// there is no NATS KV-backed dynamic reconfiguration here.
//
// # Basic usage
//
//	cfg, err := config.LoadFile("gateway.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	safe := config.NewSafeConfig(cfg)
package config
