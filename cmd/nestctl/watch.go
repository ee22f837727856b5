package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/birbparty/nestlink/internal/events"
	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/birbparty/nestlink/sdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var (
		metricsAddr string
		signal      string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow connectivity from NATS, replay the queue and stream events",
		Long: `watch keeps a client running. Connectivity signals published on the
NATS connectivity subject switch the client online or offline; going online
replays the offline queue. Every client event is mirrored to NATS and every
event seen on NATS, from any client, is printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bridgeCfg := events.NewBridgeConfigFromEnv()
			bridgeCfg.URL = flagOrEnv(cmd, "nats-url", "NATS_URL", bridgeCfg.URL)

			if signal != "" {
				return sendSignal(cmd, bridgeCfg, signal)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())

			client, _, err := flags.newClient(cmd, sdk.WithMetrics(reg))
			if err != nil {
				return err
			}
			defer flags.close(client)

			log := telemetry.NewClientLogger(flags.verbose, cmd.ErrOrStderr())

			// The bridge mirrors a bus of its own that the client feeds
			bus := events.NewBus(log)
			client.On(sdk.EventAny, bus.Emit)

			bridge, err := events.NewNATSBridge(bridgeCfg, bus, log)
			if err != nil {
				return err
			}
			defer bridge.Close()

			bridge.PublishEvents()
			if err := bridge.WatchConnectivity(client.SetOnline); err != nil {
				return err
			}
			if err := bridge.Stream(func(env events.Envelope) {
				line := fmt.Sprintf("%s %-16s %s", env.Timestamp.Format(time.RFC3339), env.Name, env.Payload)
				if env.Error != "" {
					line += " error=" + env.Error
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "👀 watching %s (connectivity on %s)\n", bridgeCfg.URL, bridgeCfg.ConnectivitySubject)

			g, ctx := errgroup.WithContext(cmd.Context())
			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           telemetry.RegistryHandler(reg),
					ReadHeaderTimeout: 5 * time.Second,
				}
				g.Go(func() error {
					fmt.Fprintf(cmd.ErrOrStderr(), "📊 metrics on http://%s/metrics\n", metricsAddr)
					if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}
			g.Go(func() error {
				<-ctx.Done()
				return nil
			})

			return g.Wait()
		},
	}

	cmd.Flags().String("nats-url", "", "NATS server URL (env NATS_URL)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9091")
	cmd.Flags().StringVar(&signal, "signal", "", "publish a connectivity signal (online or offline) and exit")
	return cmd
}

// sendSignal publishes one connectivity signal for running watchers
func sendSignal(cmd *cobra.Command, cfg *events.BridgeConfig, signal string) error {
	online, err := events.ParseConnectivity([]byte(signal))
	if err != nil {
		return err
	}

	log := telemetry.NewClientLogger(false, nil)
	bridge, err := events.NewNATSBridge(cfg, events.NewBus(log), log)
	if err != nil {
		return err
	}
	defer bridge.Close()

	if err := bridge.SignalConnectivity(online); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signalled %s on %s\n", signal, cfg.ConnectivitySubject)
	return nil
}
