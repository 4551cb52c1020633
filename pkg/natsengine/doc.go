// Package natsengine exposes a NATS subject as a queryable, writable table.
//
// An Engine owns a dedicated event-loop goroutine, a single consumer
// connection, a fixed-size consumer pool, and a background streaming driver
// that drains consumer queues into dependent materialized views for as long
// as any are attached. Reads and writes go through Engine.Read/Engine.Write.
package natsengine
