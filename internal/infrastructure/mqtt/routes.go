package mqtt

import (
	"fmt"
	"strings"
)

// commandRoot is the prefix every inbound command topic shares.
const commandRoot = TopicPrefix + "/command/"

// Route subscribes handler to a command topic pattern.
//
// Only topics under labthings/command/ are routable; state topics are
// outbound. Patterns may use MQTT wildcards, for example
// Topics{}.AllActionCommands(). Routing the same pattern again replaces its
// handler. Routes are restored after every reconnect.
//
// Returns:
//   - error: ErrNotCommandTopic, ErrNotConnected, or ErrSubscribeFailed if
//     the broker did not acknowledge the subscription
func (c *Client) Route(pattern string, handler MessageHandler) error {
	if !strings.HasPrefix(pattern, commandRoot) || len(pattern) == len(commandRoot) {
		return fmt.Errorf("%w: %q", ErrNotCommandTopic, pattern)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s: nil handler", ErrSubscribeFailed, pattern)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.routeMu.Lock()
	previous, replaced := c.routes[pattern]
	c.routes[pattern] = handler
	c.routeMu.Unlock()

	token := c.client.Subscribe(pattern, commandQoS, c.wrapHandler(handler))
	var err error
	switch {
	case !token.WaitTimeout(defaultPublishTimeout):
		err = fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, pattern, defaultPublishTimeout)
	case token.Error() != nil:
		err = fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, pattern, token.Error())
	default:
		return nil
	}

	c.routeMu.Lock()
	if replaced {
		c.routes[pattern] = previous
	} else {
		delete(c.routes, pattern)
	}
	c.routeMu.Unlock()
	return err
}

// Unroute stops delivering a command pattern. Messages already in flight may
// still reach the old handler.
//
// Returns:
//   - error: ErrNotCommandTopic, ErrNotConnected, or ErrUnsubscribeFailed
func (c *Client) Unroute(pattern string) error {
	if !strings.HasPrefix(pattern, commandRoot) {
		return fmt.Errorf("%w: %q", ErrNotCommandTopic, pattern)
	}

	// Forget the route first so a reconnect does not bring it back.
	c.routeMu.Lock()
	delete(c.routes, pattern)
	c.routeMu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(pattern)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrUnsubscribeFailed, pattern, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, pattern, err)
	}
	return nil
}
