// Package config holds the settings of a mock server process.
//
// Settings come from three layers, later layers winning:
//   - DefaultServerConfiguration
//   - a JSON or YAML file loaded with LoadFromFile
//   - MOCKSERVER_* environment variables applied with ApplyEnv
//
// A configuration file looks like:
//
//	ports: [1080, 1081]
//	logLevel: debug
//	maxLogEntries: 10000
//	forwardTimeout: 20s
//	initializationFiles:
//	  - expectations/**/*.json
//	matching:
//	  caseInsensitive: false
//
// Initialization files hold expectations, in the same JSON shape accepted by
// PUT /expectation or its YAML equivalent, and are registered at startup.
package config
