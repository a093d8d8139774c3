// Package engine implements the mock server: the expectation registry, the
// action executor, the control-plane dispatcher and the listeners.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          Server                               │
//	│   listeners on every bound port, all sharing one Handler      │
//	├──────────────────────────────────────────────────────────────┤
//	│                          Handler                              │
//	│                                                               │
//	│   PUT /reset, /clear, /expectation, /verify, /status, ...     │
//	│        CONTROL PLANE: mutate or inspect state                 │
//	│                                                               │
//	│   anything else                                               │
//	│        DATA PLANE: log, match, execute                        │
//	├──────────────────────┬──────────────────┬────────────────────┤
//	│  Registry            │  requestlog      │  ActionHandler      │
//	│  ordered expectations│  arrival-ordered │  respond, forward,  │
//	│  Times and TTL       │  request history │  error, callback    │
//	└──────────────────────┴──────────────────┴────────────────────┘
//
// Every port serves the same surface: control commands and mocked traffic
// share the listeners. With TLS enabled a port accepts both TLS and
// plaintext connections. Metrics, when enabled, get a listener of their own.
//
// # Usage
//
//	srv := engine.NewServer(config.DefaultServerConfiguration(),
//	    engine.WithLogger(log),
//	)
//	if _, err := srv.Bind(ctx, []int{1080}); err != nil {
//	    return err
//	}
//	srv.Registry().When(mock.NewRequest().WithPath("/hello"), mock.TimesUnlimited(), mock.TTLUnlimited()).
//	    ThenRespond(mock.NewResponse().WithBody(mock.StringBody("world")))
//	...
//	srv.Stop(ctx)
package engine
