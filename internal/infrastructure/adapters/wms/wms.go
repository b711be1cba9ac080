package wms

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/application/pipeline"
)

// Adapter wraps the Warehouse Management System's line-oriented TCP
// protocol: connect, send "ADD_PACKAGE|{order_id}\n", read one line, and
// classify the reply by its OK|/ACK| prefix.
type Adapter struct {
	addr    string
	timeout time.Duration
}

func NewAdapter(host string, port int, timeout time.Duration) *Adapter {
	return &Adapter{addr: fmt.Sprintf("%s:%d", host, port), timeout: timeout}
}

func (a *Adapter) Execute(ctx context.Context, orderID string) (pipeline.StageResult, error) {
	conn, err := net.DialTimeout("tcp", a.addr, a.timeout)
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("wms tcp dial failed: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(a.timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return pipeline.StageResult{}, fmt.Errorf("wms: set deadline failed: %w", err)
	}

	zlog.Debug().Str("order_id", orderID).Str("addr", a.addr).Msg("wms: sending ADD_PACKAGE")

	if _, err := fmt.Fprintf(conn, "ADD_PACKAGE|%s\n", orderID); err != nil {
		return pipeline.StageResult{}, fmt.Errorf("wms tcp send failed: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return pipeline.StageResult{}, fmt.Errorf("wms tcp read failed: %w", err)
	}
	reply = strings.TrimSpace(reply)

	if !strings.HasPrefix(reply, "OK|") && !strings.HasPrefix(reply, "ACK|") {
		return pipeline.StageResult{}, fmt.Errorf("wms replied with unexpected response: %q", reply)
	}

	return pipeline.StageResult{}, nil
}
