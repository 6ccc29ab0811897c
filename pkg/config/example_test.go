package config_test

import (
	"fmt"
	"log"
	"time"

	"github.com/ajitpratap0/deltashare/pkg/config"
)

// ExampleDefault demonstrates the default client configuration.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Timeout: %s\n", cfg.HTTP.Timeout)
	fmt.Printf("Retries: %d\n", cfg.HTTP.NumRetries)
	fmt.Printf("Max Concurrency: %d\n", cfg.Reader.MaxConcurrency)

	// Output:
	// Timeout: 30s
	// Retries: 3
	// Max Concurrency: 8
}

// ExampleClientConfig_Validate shows how to validate a configuration
// before using it.
func ExampleClientConfig_Validate() {
	cfg := config.Default()
	cfg.HTTP.Timeout = 2 * time.Minute
	cfg.Reader.MaxConcurrency = 32

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	cfg.Reader.MaxConcurrency = 0
	fmt.Println(cfg.Validate())

	// Output:
	// Configuration is valid!
	// config: reader.max_concurrency must be positive
}
