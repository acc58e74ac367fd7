// Package mqtt provides MQTT client connectivity for the LabThings server.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Command routes, restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is an optional second front door onto the action pool. Clients that
// cannot hold an HTTP request open publish to a command topic, and every
// task's status is mirrored to a retained topic so late subscribers see the
// current state.
//
//	Lab clients ↔ MQTT Broker ↔ LabThings server ↔ HTTP clients
//
// # Topics
//
//	labthings/command/action/{name}    invoke an action (payload: input JSON)
//	labthings/command/task/{id}/stop   stop a running task
//	labthings/task/{id}/status         retained task snapshot
//	labthings/thing/{id}/status        retained Thing online/offline (LWT)
//
// # Security Considerations
//
//   - TLS should be enabled outside the lab network (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Thing.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Route(mqtt.Topics{}.AllActionCommands(),
//	    func(topic string, payload []byte) error {
//	        name, _ := mqtt.Topics{}.ParseActionCommand(topic)
//	        ...
//	    })
//
//	client.PublishJSON(mqtt.Topics{}.TaskStatus(id), snapshot, true)
package mqtt
