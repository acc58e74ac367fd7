package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/labthings-core/internal/infrastructure/config"
)

// Client is the MQTT front door of one Thing.
//
// It announces the Thing's presence on its retained status topic, routes
// inbound command topics to handlers and publishes task and event updates.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Command routes survive reconnection; the broker forgets them with the
//     clean session, so they are re-registered on every connect.
type Client struct {
	client  pahomqtt.Client
	cfg     config.MQTTConfig
	thingID string

	// routes maps a command topic pattern to its handler.
	routes  map[string]MessageHandler
	routeMu sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the logging surface the client needs.
// Satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler handles one inbound command.
//
// Handlers run on paho's goroutines and should hand long work off. A
// returned error is logged; the message is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Connect connects the Thing identified by thingID to the broker.
//
// The broker is told to publish an offline status for the Thing if the
// connection drops without a clean Close. Once connected, the Thing's online
// status is published and any command routes are re-registered.
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrNoThingID, or ErrConnectionFailed if the broker cannot be
//     reached within the connect timeout
func Connect(cfg config.MQTTConfig, thingID string) (*Client, error) {
	if thingID == "" {
		return nil, ErrNoThingID
	}

	c := &Client{
		cfg:     cfg,
		thingID: thingID,
		routes:  make(map[string]MessageHandler),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, thingID, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: %s: timeout after %v", ErrConnectionFailed, thingID, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, thingID, err)
	}

	// The connect handler runs asynchronously; mark connected now so callers
	// can register routes straight away.
	c.setConnected(true)
	return c, nil
}

// ThingID returns the Thing this client speaks for.
func (c *Client) ThingID() string { return c.thingID }

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.restoreRoutes()

	if err := c.publishThingStatus(buildOnlinePayload(c.thingID, c.cfg.Broker.ClientID)); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("publishing thing online status failed", "thing_id", c.thingID, "error", err)
		}
	}

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreRoutes re-registers every command route after a reconnect. Each
// acknowledgement is awaited off the paho callback goroutine.
func (c *Client) restoreRoutes() {
	c.routeMu.RLock()
	defer c.routeMu.RUnlock()

	for pattern, handler := range c.routes {
		token := c.client.Subscribe(pattern, commandQoS, c.wrapHandler(handler))
		go func() {
			if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Warn("restoring command route failed",
						"thing_id", c.thingID,
						"topic", pattern,
						"error", token.Error(),
					)
				}
			}
		}()
	}
}

// publishThingStatus publishes a retained presence payload on the Thing's
// status topic and waits for the broker to accept it.
func (c *Client) publishThingStatus(payload string) error {
	token := c.client.Publish(Topics{}.ThingStatus(c.thingID), byte(c.cfg.QoS), true, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrStatusPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrStatusPublishFailed, err)
	}
	return nil
}

// Close announces a graceful offline status for the Thing and disconnects.
//
// Returns:
//   - error: ErrStatusPublishFailed if the offline status was not accepted.
//     The client is disconnected regardless.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	var err error
	if c.IsConnected() {
		err = c.publishThingStatus(buildOfflinePayload(c.thingID, c.cfg.Broker.ClientID))
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return err
}

// HealthCheck reports ErrNotConnected while the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w: thing %s", ErrNotConnected, c.thingID)
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback run on the initial connect and every
// reconnect, after command routes are restored.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for handler failures. Without one they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adds panic recovery and logging to a command handler.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("command handler panic recovered",
						"thing_id", c.thingID,
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("command rejected",
					"thing_id", c.thingID,
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
