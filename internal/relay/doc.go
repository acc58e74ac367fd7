// Package relay fans action state out of the process and lets MQTT clients
// drive the action pool.
//
// Outbound, every snapshot an Action reports (state transitions, progress,
// data) becomes an actionStatus message on the event Stream. A background
// worker mirrors the same snapshots to a retained MQTT topic and writes one
// InfluxDB point per finished action. Inbound, the relay subscribes to the
// action command and task stop topics.
//
// # Usage
//
//	r, err := relay.New(relay.Options{
//	    Pool:     pool,
//	    Registry: registry,
//	    Stream:   stream,
//	    MQTT:     mqttClient, // optional
//	    Metrics:  influx,     // optional
//	    Logger:   log,
//	})
//	pool.AddObserver(r.Observe)
//	if err := r.Start(ctx); err != nil {
//	    return err
//	}
//	defer r.Stop()
package relay
