package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/marmos91/rpmsgsock/internal/logger"
	"github.com/marmos91/rpmsgsock/rpmsgsock"
	"github.com/marmos91/rpmsgsock/rpmsgsock/config"
	"github.com/marmos91/rpmsgsock/rpmsgsock/metrics"
	"github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus/simbus"
)

var (
	demoConfigPath string
	demoCPUServer  string
	demoCPUClient  string
	demoEndpoint   string
	demoMessage    string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Bind a listener, connect a client, echo one message, print stats",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().StringVar(&demoConfigPath, "config", "", "path to an rpmsgsock config file (optional)")
	demoCmd.Flags().StringVar(&demoCPUServer, "server-cpu", "cpuB", "simulated CPU name the listener binds on")
	demoCmd.Flags().StringVar(&demoCPUClient, "client-cpu", "cpuA", "simulated CPU name the client connects from")
	demoCmd.Flags().StringVar(&demoEndpoint, "endpoint", "echo", "logical RPMsg endpoint name")
	demoCmd.Flags().StringVar(&demoMessage, "message", "hello from rpmsgsock-demo", "message the client sends")
}

func runDemo(cmd *cobra.Command, args []string) error {
	traceID := uuid.NewString()
	ctx := logger.WithContext(context.Background(), logger.NewLogContext("").WithTrace(traceID, ""))

	serverCfg, err := loadDemoConfig(demoConfigPath, demoCPUServer)
	if err != nil {
		return err
	}
	clientCfg, err := loadDemoConfig(demoConfigPath, demoCPUClient)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)

	hub := simbus.NewHub(simbus.DefaultMaxPayloadSize)
	busServer := hub.NewBus(demoCPUServer)
	busClient := hub.NewBus(demoCPUClient)

	listener, err := rpmsgsock.Bind(busServer, serverCfg, rpmsgsock.SockStream, "", demoEndpoint)
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	listener.SetMetrics(collectors)
	if err := listener.Listen(4); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer listener.Close()

	accepted := make(chan *rpmsgsock.Connection, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept(ctx)
		if err != nil {
			acceptErr <- err
			return
		}
		conn.SetMetrics(collectors)
		accepted <- conn
	}()

	logger.InfoCtx(ctx, "connecting client", "server_cpu", demoCPUServer, "client_cpu", demoCPUClient, "endpoint", demoEndpoint)
	client, err := rpmsgsock.Connect(ctx, busClient, clientCfg, rpmsgsock.SockStream, demoCPUServer, demoEndpoint)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	client.SetMetrics(collectors)
	defer client.Close()

	var server *rpmsgsock.Connection
	select {
	case server = <-accepted:
	case err := <-acceptErr:
		return fmt.Errorf("accept: %w", err)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("accept: timed out")
	}
	defer server.Close()

	go echoOneMessage(ctx, server)

	start := time.Now()
	n, err := client.Send(ctx, []byte(demoMessage))
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	logger.DebugCtx(ctx, "client sent", "bytes", n)

	reply := make([]byte, len(demoMessage))
	total := 0
	for total < len(reply) {
		n, _, err := client.Recv(ctx, reply[total:])
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("recv: peer closed before full echo arrived")
		}
		total += n
	}
	elapsed := time.Since(start)

	fmt.Fprintf(cmd.OutOrStdout(), "sent:     %q\n", demoMessage)
	fmt.Fprintf(cmd.OutOrStdout(), "received: %q\n", string(reply))
	fmt.Fprintf(cmd.OutOrStdout(), "round trip: %s\n", elapsed)

	return printMetrics(cmd.OutOrStdout(), reg)
}

// echoOneMessage reads whatever the peer sends and writes it straight back,
// stopping once the peer disappears.
func echoOneMessage(ctx context.Context, conn *rpmsgsock.Connection) {
	buf := make([]byte, 4096)
	for {
		n, _, err := conn.Recv(ctx, buf)
		if err != nil {
			return
		}
		if n == 0 {
			return // EOF
		}
		if _, err := conn.Send(ctx, buf[:n]); err != nil {
			return
		}
	}
}

func loadDemoConfig(path, localCPU string) (rpmsgsock.Config, error) {
	if path == "" {
		return rpmsgsock.DefaultConfig(localCPU), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return rpmsgsock.Config{}, err
	}
	cfg.LocalCPU = localCPU
	return cfg, nil
}

func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Fprintln(w, "metrics:")
	for _, mf := range families {
		for _, m := range mf.Metric {
			var value float64
			switch {
			case m.Counter != nil:
				value = m.Counter.GetValue()
			case m.Gauge != nil:
				value = m.Gauge.GetValue()
			default:
				continue
			}
			fmt.Fprintf(w, "  %s%s = %g\n", mf.GetName(), labelsString(m.Label), value)
		}
	}
	return nil
}

func labelsString(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	s := "{"
	for i, l := range labels {
		if i > 0 {
			s += ","
		}
		s += l.GetName() + "=" + l.GetValue()
	}
	return s + "}"
}
