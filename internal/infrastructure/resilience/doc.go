/*
Package resilience provides a circuit breaker for background polling.

# Overview

The headless host polls worker scripts for changes. When the origin goes
away, the breaker stops the poller from hammering it: after a run of
consecutive failures it opens, rejects calls for a cooldown, then admits a
single probe.

# Usage

	breaker := resilience.New("worker-poll", resilience.Settings{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	})

	err := breaker.Execute(func() error {
		return poll(ctx)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// skip this tick
	}

# States

	Closed --[threshold failures]-> Open --[cooldown]-> Half-Open --[probe ok]-> Closed
	                                                        |
	                                                 [probe failed]
	                                                        v
	                                                      Open
*/
package resilience
