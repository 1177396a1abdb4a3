/*
Package stress implements the load-generation phase of a reliability run.

# Overview

A Generator subjects an HTTP target to a configurable burst of synthetic
traffic and measures latency and error-rate distributions while the resource
sampler captures system and process consumption alongside.

# Design

The phase runs in four steps:

 1. Optional warmup: single shots 50 ms apart, results discarded, so
    connection pools and caches are primed before measurement.
 2. The resource sampler (internal/monitor) starts on its own goroutine
    before the timed loop and is joined, with a bounded wait, after it.
 3. The timed loop paces shot launches at the configured rate with a token
    limiter while a weighted semaphore caps in-flight shots at the
    concurrency bound. This is a continuously-refilled pool: the achieved
    rate stays close to target even when individual shots are slow, as long
    as latency does not exceed concurrency/rate seconds. Past that point the
    semaphore throttles launches and the achieved rate drops below target.
 4. All outcomes, including failed shots, are folded into a Result. Failed
    shots enter the latency sample set as a non-finite sentinel; percentiles
    cover the finite subset only.

Shots in flight when the duration elapses are not aborted. They run to their
own timeout and are counted, which bounds phase length at roughly
warmup + duration + shot timeout.

# Concurrency

The shooter's HTTP client is shared across all workers and pooled for the
concurrency bound. Shot results flow through a channel to one collector
goroutine, so no aggregation state is shared between workers. The resource
series are owned by the sampler until its stop is acknowledged and read only
afterwards.
*/
package stress
