// Package indexer runs scans: it discovers images under watched folders,
// extracts their metadata, renders their thumbnails and writes the results to
// the index.
//
// Start returns as soon as a scan is registered; the work runs in the
// background and reports through the event publisher under the scan's token:
// a 0% discovery event, one event per processed file with the percent done,
// then exactly one terminal event. A file whose content hash matches its
// record and whose thumbnail is cached is only marked as seen.
//
// Per-file failures are logged and skipped. Failures of the index itself end
// the scan. After a successful scan, records of files that were not seen
// under the scanned folders are removed, and a scan of every watched folder
// also prunes orphaned thumbnails.
package indexer
