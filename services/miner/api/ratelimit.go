// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Client bucket housekeeping. Idle buckets are evicted so one-off
// clients do not grow the map forever.
const (
	limiterSweepInterval = time.Minute
	limiterIdleTTL       = 3 * time.Minute
)

// clientBucket is the token bucket for one client address.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter hands out one token bucket per client address.
//
// Thread Safety: ClientLimiter is safe for concurrent use.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewClientLimiter creates a per-client token bucket limiter refilling
// at rps tokens per second with the given burst, and starts the idle
// bucket sweeper. Call Stop when done with the limiter.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	l := &ClientLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow reports whether the client may proceed, consuming one token
// when it may.
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// Stop halts the idle sweeper and waits for it to exit.
func (l *ClientLimiter) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

// sweep drops buckets that have not been touched for limiterIdleTTL.
func (l *ClientLimiter) sweep() {
	defer close(l.doneCh)

	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterIdleTTL)
			l.mu.Lock()
			for client, b := range l.clients {
				if b.lastSeen.Before(cutoff) {
					delete(l.clients, client)
				}
			}
			l.mu.Unlock()
		}
	}
}

// RateLimit is gin middleware enforcing the per-client token bucket.
// Liveness and metrics probes bypass the limit so monitoring keeps
// working while a client is throttled.
func RateLimit(limiter *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}
		if !limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
