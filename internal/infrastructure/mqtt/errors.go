package mqtt

import "errors"

// Errors returned by the MQTT front door. Match with errors.Is.
var (
	// ErrNoThingID is returned by Connect without a Thing to speak for.
	ErrNoThingID = errors.New("mqtt: thing id required")

	// ErrNotConnected is returned while the broker connection is down.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned when the initial connect fails.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed is returned when a task or event update is not accepted.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrStatusPublishFailed is returned when the Thing's presence status
	// is not accepted.
	ErrStatusPublishFailed = errors.New("mqtt: thing status publish failed")

	// ErrSubscribeFailed is returned when a command route is not acknowledged.
	ErrSubscribeFailed = errors.New("mqtt: command route failed")

	// ErrUnsubscribeFailed is returned when removing a command route fails.
	ErrUnsubscribeFailed = errors.New("mqtt: command unroute failed")

	// ErrNotCommandTopic is returned when routing a topic outside
	// labthings/command/.
	ErrNotCommandTopic = errors.New("mqtt: not a command topic")

	// ErrInvalidQoS is returned for QoS levels other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty publish topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
