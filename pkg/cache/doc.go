/*
Package cache provides a unified caching interface with multiple backend support.

Supported backends:
  - Memory: In-memory cache for testing
  - Redis: Distributed cache

InstrumentedCache wraps either backend with OTel tracing and debug logging.
*/
package cache
