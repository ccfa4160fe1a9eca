// Package config handles loading and validating espsink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (ESPSINK_SECTION_KEY)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Credentials (broker password, database password) should be set via
//     environment variables rather than the config file
//   - The config file should have restricted permissions (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.DBName)
package config
