// Package mqtt connects the gate controller to an MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
)

// Topic suffixes under "<device id>/".
const (
	topicStatus      = "beninca/status"
	topicLock        = "beninca/lock"
	topicResponse    = "beninca/response"
	topicCommand     = "beninca/command"
	topicLockCommand = "beninca/lock/command"
	topicAvailable   = "beninca/available"
)

// Availability payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// Topics are the device's MQTT topics.
type Topics struct {
	Status      string
	Lock        string
	Response    string
	Command     string
	LockCommand string
	Available   string
}

// NewTopics builds the topic set for a device id.
func NewTopics(deviceID string) Topics {
	p := deviceID + "/"
	return Topics{
		Status:      p + topicStatus,
		Lock:        p + topicLock,
		Response:    p + topicResponse,
		Command:     p + topicCommand,
		LockCommand: p + topicLockCommand,
		Available:   p + topicAvailable,
	}
}

// Handler receives an inbound message.
type Handler func(topic string, payload []byte)

// Client publishes to and subscribes on an MQTT broker.
type Client interface {
	// Publish sends a message. Returns error if publishing fails (should not
	// crash the process).
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// Subscribe registers handler for topic. Subscriptions survive
	// reconnects.
	Subscribe(topic string, qos byte, handler Handler) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// Command is an inbound request on the command topic.
type Command struct {
	Cmd   string `json:"cmd"`
	ReqID int    `json:"req_id"`
}

// Response answers a Command on the response topic.
type Response struct {
	ReqID int    `json:"req_id"`
	Cmd   string `json:"cmd"`
	Resp  bool   `json:"resp"`
}

// ErrNoCommand is returned for a payload without a cmd field.
var ErrNoCommand = errors.New("mqtt: no cmd in payload")

// ParseCommand decodes a command payload. A missing req_id is -1.
func ParseCommand(payload []byte) (Command, error) {
	cmd := Command{ReqID: -1}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, err
	}
	if cmd.Cmd == "" {
		return Command{}, ErrNoCommand
	}
	return cmd, nil
}

// FormatResponse creates the JSON payload for a command response.
func FormatResponse(r Response) []byte {
	data, _ := json.Marshal(r)
	return data
}
