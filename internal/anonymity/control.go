package anonymity

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"regexp"
	"strconv"

	"github.com/cretz/bine/control"
)

// Controller is the proxy's control port.
type Controller interface {
	// BootstrapProgress returns the bootstrap percentage (0-100).
	BootstrapProgress(ctx context.Context) (int, error)
	// NewIdentity asks for fresh circuits for new connections.
	NewIdentity(ctx context.Context) error
	Close() error
}

// ControllerDialer opens an authenticated control connection.
type ControllerDialer func(ctx context.Context, addr, password string) (Controller, error)

var progressPattern = regexp.MustCompile(`PROGRESS=(\d+)`)

type torController struct {
	conn *control.Conn
}

// DialController connects to the control port and authenticates.
func DialController(ctx context.Context, addr, password string) (Controller, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial control port %s: %w", addr, err)
	}
	conn := control.NewConn(textproto.NewConn(nc))
	if err := conn.Authenticate(password); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("authenticate control port: %w", err)
	}
	return &torController{conn: conn}, nil
}

func (c *torController) BootstrapProgress(_ context.Context) (int, error) {
	kvs, err := c.conn.GetInfo("status/bootstrap-phase")
	if err != nil {
		return 0, fmt.Errorf("get bootstrap phase: %w", err)
	}
	for _, kv := range kvs {
		if kv.Key == "status/bootstrap-phase" {
			return ParseProgress(kv.Val)
		}
	}
	return 0, fmt.Errorf("bootstrap phase missing from reply")
}

func (c *torController) NewIdentity(_ context.Context) error {
	return c.conn.Signal("NEWNYM")
}

func (c *torController) Close() error {
	return c.conn.Close()
}

// ParseProgress extracts PROGRESS=n from a bootstrap status line.
func ParseProgress(status string) (int, error) {
	m := progressPattern.FindStringSubmatch(status)
	if m == nil {
		return 0, fmt.Errorf("no progress in %q", status)
	}
	return strconv.Atoi(m[1])
}
