// Package event provides the notification primitives used to stream state
// changes to out-of-band subscribers (WebSocket clients, MQTT relays).
//
// # ClientEvent
//
// ClientEvent is a broadcast signal with per-subscriber state. Each
// subscriber loop waits on its own flag, reads whatever is new, and clears
// its flag. Producers call Set without tracking who is listening; a
// subscriber that stops clearing its flag is dropped once the flag has been
// stale for the timeout passed to Set.
//
// # Stream
//
// Stream pairs a ClientEvent with a bounded, sequence-numbered history of
// Messages. Emit appends and signals; subscribers call Next with the last
// sequence number they saw.
//
//	ctx = owner.Fresh(ctx)
//	var cursor uint64
//	for {
//	    msgs, next, err := stream.Next(ctx, cursor, time.Second)
//	    if err != nil {
//	        return err
//	    }
//	    cursor = next
//	    send(msgs)
//	}
package event
