// Package logger provides the structured logging interface used across the harvester.
//
// It wraps zerolog behind a small Logger interface so workers can carry
// region and shard fields without depending on zerolog directly, and so
// tests can substitute TestLogger to assert on what was reported.
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//
//	log := logger.GetLogger().WithFields(map[string]interface{}{
//	    "component": "ladder_worker",
//	    "shard":     "euw1",
//	})
//	log.Info("cycle started")
//	log.WithError(err).Warn("page abandoned")
//
// Output is a colored console writer by default, plain JSON when
// Format is "json", and additionally a JSON file when File is set.
package logger
