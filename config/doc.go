// Package config loads bytepipe configuration.
//
// Values come from a YAML file, a .env file and BYTEPIPE_-prefixed
// environment variables, merged by Viper. Underscore-separated variable names
// map onto nested keys, so BYTEPIPE_STREAM_HIGH_WATER_MARK sets
// stream.high_water_mark.
//
// # Usage
//
//	cfg, err := config.Load(config.WithConfigFile("bytepipe.yml"))
//	if err != nil {
//	    return err
//	}
//	splitter, err := cfg.Stream.Splitter()
package config
