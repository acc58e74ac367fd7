package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every LabThings topic.
const TopicPrefix = "labthings"

// Topics provides builders for LabThings MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.TaskStatus("4f1c...")
//	// Returns: "labthings/task/4f1c.../status"
type Topics struct{}

// =============================================================================
// Command Topics (inbound)
// =============================================================================

// ActionCommand returns the topic that invokes the named action. The payload
// is the action input as JSON.
//
// Example: labthings/command/action/average_data
func (Topics) ActionCommand(name string) string {
	return fmt.Sprintf("%s/command/action/%s", TopicPrefix, name)
}

// TaskStop returns the topic that stops a running task.
//
// Example: labthings/command/task/4f1c.../stop
func (Topics) TaskStop(id string) string {
	return fmt.Sprintf("%s/command/task/%s/stop", TopicPrefix, id)
}

// =============================================================================
// State Topics (outbound)
// =============================================================================

// TaskStatus returns the retained status topic for a task.
//
// Example: labthings/task/4f1c.../status
func (Topics) TaskStatus(id string) string {
	return fmt.Sprintf("%s/task/%s/status", TopicPrefix, id)
}

// Event returns the topic for a named Thing event.
//
// Example: labthings/event/peak_found
func (Topics) Event(name string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, name)
}

// ThingStatus returns the retained online/offline topic for a Thing.
//
// Example: labthings/thing/spectrometer-1/status
func (Topics) ThingStatus(thingID string) string {
	return fmt.Sprintf("%s/thing/%s/status", TopicPrefix, thingID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllActionCommands matches every action invocation.
//
// Pattern: labthings/command/action/+
func (Topics) AllActionCommands() string {
	return fmt.Sprintf("%s/command/action/+", TopicPrefix)
}

// AllTaskStops matches every task stop command.
//
// Pattern: labthings/command/task/+/stop
func (Topics) AllTaskStops() string {
	return fmt.Sprintf("%s/command/task/+/stop", TopicPrefix)
}

// =============================================================================
// Parsers
// =============================================================================

// ParseActionCommand extracts the action name from an ActionCommand topic.
func (Topics) ParseActionCommand(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "command" || parts[2] != "action" || parts[3] == "" {
		return "", false
	}
	return parts[3], true
}

// ParseTaskStop extracts the task ID from a TaskStop topic.
func (Topics) ParseTaskStop(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicPrefix || parts[1] != "command" || parts[2] != "task" || parts[4] != "stop" || parts[3] == "" {
		return "", false
	}
	return parts[3], true
}
