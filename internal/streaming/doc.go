// Package streaming writes Server-Sent Events.
//
// An [EventWriter] owns a response for the lifetime of a stream: it sets the
// event-stream headers, frames each message, flushes after every write and
// bounds each write with a deadline so a stalled client cannot hold a
// handler forever. [Pump] drains a channel into an EventWriter, emitting
// heartbeat comments while the channel is quiet, until the channel closes or
// the client goes away.
//
//	ew, err := streaming.NewEventWriter(w, streaming.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	return streaming.Pump(r.Context(), ew, sub.Events(), encode)
package streaming
