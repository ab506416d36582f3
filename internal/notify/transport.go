// Delivery transports for rendered notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var deliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification delivery attempts by transport and outcome.",
	},
	[]string{"transport", "outcome"},
)

func init() {
	prometheus.MustRegister(deliveries)
}

// Dispatcher resolves merged settings into a transport and delivers
// messages. The zero value is not usable; construct with NewDispatcher.
type Dispatcher struct {
	// Global holds the instance-wide default settings; per-recipient
	// overrides are merged on top per delivery.
	Global Settings

	client *http.Client
	binary string
}

// NewDispatcher builds a Dispatcher around the global channel settings.
func NewDispatcher(global Settings, client *http.Client) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Dispatcher{Global: global, client: client, binary: "apprise"}
}

// Send merges user settings onto the global defaults and delivers msg. The
// returned string is transport diagnostic output (combined stdout+stderr for
// the local transport, empty for HTTP). A non-nil error means the message
// was not accepted; the caller decides what that implies, and the notified
// flag of the triggering price row is never rolled back.
func (d *Dispatcher) Send(ctx context.Context, user Settings, msg Message) (string, error) {
	settings := Merge(d.Global, user)
	if msg.Tags == "" {
		msg.Tags = settings.Tags
	}

	if settings.Token == LocalToken {
		out, err := d.sendLocal(ctx, settings, msg)
		d.count("local", err)
		return out, err
	}
	err := d.sendHTTP(ctx, settings, msg)
	d.count("http", err)
	return "", err
}

func (d *Dispatcher) count(transport string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	deliveries.WithLabelValues(transport, outcome).Inc()
}

// sendLocal invokes the apprise binary. Success is a zero exit code; the
// combined output is returned as diagnostic text either way.
func (d *Dispatcher) sendLocal(ctx context.Context, s Settings, msg Message) (string, error) {
	bin := d.binary
	if bin == "" {
		bin = "apprise"
	}
	cmd := exec.CommandContext(ctx, bin, s.URL, "-t", msg.Title, "-b", msg.Body, "-g", msg.Tags)
	out, err := cmd.CombinedOutput()
	diag := strings.TrimSpace(string(out))
	if err != nil {
		log.Error().Str("output", diag).Err(err).Msg("notify: local apprise delivery failed")
		return diag, fmt.Errorf("notify: local apprise delivery: %w", err)
	}
	return diag, nil
}

// sendHTTP posts the message to the apprise API. Success is any 2xx
// response.
func (d *Dispatcher) sendHTTP(ctx context.Context, s Settings, msg Message) error {
	payload, err := json.Marshal(map[string]string{
		"title": msg.Title,
		"body":  msg.Body,
		"tags":  msg.Tags,
	})
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(s), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: post notification: status %d", resp.StatusCode)
	}
	return nil
}

// endpoint builds the apprise notify URL. A configured token addresses a
// persistent apprise configuration under /notify/<token>; without one the
// base URL is used as-is (stateless payload mode).
func endpoint(s Settings) string {
	if s.Token == "" {
		return s.URL
	}
	return strings.TrimRight(s.URL, "/") + "/notify/" + s.Token
}
