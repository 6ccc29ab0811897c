// Package config provides configuration for the deltashare client.
//
// A single ClientConfig drives every component: the HTTP transport, the
// table reader, the object store openers, logging and tracing.
//
// # Usage
//
//	cfg, err := config.Load("deltashare.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Load starts from Default(), overlays the file and validates the result, so
// a file only needs the keys it changes.
//
// # Environment Variable Substitution
//
//	# deltashare.yaml
//	profile: ${HOME}/.deltashare/open-datasets.share
//	http:
//	  timeout: 45s
//	  num_retries: 5
//	storage:
//	  s3:
//	    enabled: true
//	    region: ${AWS_REGION}
//
// The CLI additionally binds flags and DELTASHARE_* environment variables on
// top of the file through viper.
package config
