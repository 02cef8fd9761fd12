/*
Package strom turns raw, device-specific, multiplexed hardware readings into
uniform, time-indexed, multi-channel sample streams that any number of
consumers can read concurrently without stalling acquisition.

Concept

Every logical stream is driven by a Worker: a goroutine running a paced
fetch - reshape - publish loop against one hardware source (or a co-acquired
pair of sources). The worker is the only writer of its stream queue; live
displays, disk writers and trigger detectors attach read handles and pull
published samples at their own pace.

	Source - hardware unit delivering raw scans;
	Worker - fetches, demultiplexes and publishes whole time points;
	Queue  - append-only, time-indexed buffer with gap-free index space;
	Monitor - samples device FIFO occupancy and escalates backpressure.

Reshaping

Hardware delivers scans in batch layouts that rarely align with time point
boundaries. A worker carries the incomplete tail of a fetch into the next
cycle, transposes multiplexed scan groups into channel-major order, averages
oversampled auxiliary channels, and packs digital lines of a device pair
into shared 16-bit words.

Execution

Workers of one run are held by a Run. Start releases all workers in the same
logical instant, Stop unwinds them deterministically, and Update pauses a
single unit for live reconfiguration while the rest of the run continues,
zero-filling the paused span to keep every index space contiguous. Any fatal
condition funnels into one error which stops the whole run.
*/
package strom
