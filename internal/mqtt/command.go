package mqtt

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/gate-controller/internal/logic"
)

// Command names accepted on the command topic.
const (
	CmdStopPush    = "stop_push"
	CmdStopHold    = "stop_hold"
	CmdStopRelease = "stop_release"
	CmdPPPush      = "pp_push"
	CmdGetStatus   = "get_status"
)

// commandTimeout bounds how long a handler waits for the service loop.
const commandTimeout = 2 * time.Second

// Gate runs fn on the goroutine that owns the controller.
type Gate interface {
	Do(ctx context.Context, fn func(c *logic.Controller)) error
}

// Commander turns inbound command and lock messages into controller calls.
type Commander struct {
	gate   Gate
	client Client
	topics Topics
	pub    *StatusPublisher
	log    *zap.Logger
}

// NewCommander creates a Commander.
func NewCommander(gate Gate, client Client, topics Topics, pub *StatusPublisher, log *zap.Logger) *Commander {
	if log == nil {
		log = zap.NewNop()
	}
	return &Commander{gate: gate, client: client, topics: topics, pub: pub, log: log}
}

// Subscribe registers the command and lock handlers on the client.
func (c *Commander) Subscribe() error {
	if err := c.client.Subscribe(c.topics.Command, 1, c.HandleCommand); err != nil {
		return err
	}
	return c.client.Subscribe(c.topics.LockCommand, 1, c.HandleLock)
}

// HandleCommand executes a command and publishes the response.
func (c *Commander) HandleCommand(_ string, payload []byte) {
	cmd, err := ParseCommand(payload)
	if err != nil {
		c.log.Info("no cmd in payload", zap.ByteString("payload", payload), zap.Error(err))
		return
	}

	ok := true
	switch cmd.Cmd {
	case CmdStopPush:
		ok = c.run(func(ctl *logic.Controller) { ctl.StopPush() })
	case CmdStopHold:
		ok = c.run(func(ctl *logic.Controller) { ctl.StopHold() })
	case CmdStopRelease:
		ok = c.run(func(ctl *logic.Controller) { ctl.StopRelease() })
	case CmdPPPush:
		ok = c.run(func(ctl *logic.Controller) { ctl.PPPush() })
	case CmdGetStatus:
		c.pub.PublishNow()
	default:
		c.log.Warn("unknown command", zap.String("cmd", cmd.Cmd))
		ok = false
	}

	resp := FormatResponse(Response{ReqID: cmd.ReqID, Cmd: cmd.Cmd, Resp: ok})
	if err := c.client.Publish(c.topics.Response, 1, false, resp); err != nil {
		c.log.Warn("error publishing response", zap.Error(err))
	}
}

// HandleLock holds or releases STOP for an "ON" or "OFF" payload (case
// insensitive prefix). The current lock state is republished when the
// payload is invalid or the state did not change.
func (c *Commander) HandleLock(_ string, payload []byte) {
	msg := strings.ToLower(string(payload))

	var action func(ctl *logic.Controller)
	var want bool
	switch {
	case strings.HasPrefix(msg, "on"):
		action, want = (*logic.Controller).StopHold, true
	case strings.HasPrefix(msg, "off"):
		action, want = (*logic.Controller).StopRelease, false
	default:
		c.log.Warn("invalid lock payload", zap.ByteString("payload", payload))
		c.pub.PublishLock()
		return
	}

	var was bool
	if !c.run(func(ctl *logic.Controller) {
		was = ctl.Status().Control.StopHold
		action(ctl)
	}) {
		return
	}
	if was == want {
		c.pub.PublishLock()
	}
}

func (c *Commander) run(fn func(ctl *logic.Controller)) bool {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.gate.Do(ctx, fn); err != nil {
		c.log.Error("command not executed", zap.Error(err))
		return false
	}
	return true
}
