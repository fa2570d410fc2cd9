// Package jobmanager orchestrates repository-analysis jobs.
//
// A Job represents one client-initiated request for a streamed, externally
// executed analysis. The Manager accepts a Request, decides between serving
// a precomputed cached artifact and launching the analyzer worker process,
// merges worker output and timeout handling into a single ordered event
// sequence, and resolves a final structured result from the worker's exit
// status and the artifact it wrote to disk.
//
// No job outlives its originating client connection: cancelling the
// submission context kills the worker, stops all readers, and tears the job
// down silently.
package jobmanager
