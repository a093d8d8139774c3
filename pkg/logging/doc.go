// Package logging sets up the operational logger of the mock server.
//
// Operational logs are for whoever runs the server: listeners bound,
// expectations dumped via /dumpToLog, forward failures. They are distinct
// from the request log, which records every data-plane request for
// retrieval and verification.
//
// # Usage
//
//	log, closer := logging.New(logging.Config{
//	    Level:  logging.ParseLevel("debug"),
//	    Format: logging.FormatJSON,
//	})
//	defer closer.Close()
//
//	log.Info("listener bound", "port", 1080)
//
// Setting Config.PushURL additionally batches records to a Loki-compatible
// push endpoint.
//
// Components accept a *slog.Logger through an option and fall back to
// Nop() when none is given.
package logging
