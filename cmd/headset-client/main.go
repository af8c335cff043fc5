package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alvr-go/headset-client/internal/config"
	"github.com/alvr-go/headset-client/internal/coreapi"
	"github.com/alvr-go/headset-client/internal/device"
	"github.com/alvr-go/headset-client/internal/identity"
	"github.com/alvr-go/headset-client/internal/logging"
	"github.com/alvr-go/headset-client/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	cfgFile    string
	deviceFile string
	logLevel   string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "headset-client",
	Short: "ALVR-compatible VR headset streaming client",
	Long:  `headset-client connects to a streaming server, negotiates a session, and carries video, audio, haptics, and tracking traffic for a VR headset.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a streaming server and run the session loop",
	Run: func(cmd *cobra.Command, args []string) {
		runClient()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("headset-client v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/alvr-client/headset-client.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&deviceFile, "device-file", "", "YAML device descriptor (defaults to a generic HMD profile)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config, mirroring the
// teacher's stdout/rotating-file tee.
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logging.Init(cfg.LogFormat, level, output)
	log = logging.L("main")
}

// nopConsumer logs a decoded NAL unit instead of feeding a platform
// decoder, for a standalone run with no video sink attached.
type nopConsumer struct{}

func (nopConsumer) Fill(buf coreapi.InputBuffer, frameIndex uint64, nal []byte, isConfig bool) error {
	log.Debug("nop consumer dropped NAL unit", "frameIndex", frameIndex, "bytes", len(nal), "isConfig", isConfig)
	return nil
}

func runClient() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	initLogging(cfg)
	log.Info("starting headset-client", "version", version, "hostname", cfg.Hostname)

	devFile := deviceFile
	if devFile == "" {
		devFile = cfg.DeviceFile
	}
	var dev device.Device
	if devFile != "" {
		dev, err = device.LoadFixture(devFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load device fixture: %v\n", err)
			os.Exit(1)
		}
	} else {
		dev = device.Device{
			Name:           "headset-client",
			RefreshRatesHz: []float32{72, 90},
			LeftEyeFov:     device.DefaultEyeFov,
			RightEyeFov:    device.DefaultEyeFov,
			IPD:            device.DefaultIPD,
		}
	}
	adapter := device.StaticAdapter{Dev: dev}

	var id *identity.Identity
	if cfg.CertificateFile != "" && cfg.KeyFile != "" {
		certPEM, err := os.ReadFile(cfg.CertificateFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read certificate file: %v\n", err)
			os.Exit(1)
		}
		keyPEM, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read key file: %v\n", err)
			os.Exit(1)
		}
		id = &identity.Identity{
			Hostname:       cfg.Hostname,
			CertificatePEM: string(certPEM),
			KeyPEM:         string(keyPEM),
		}
		if id.IsExpired() {
			log.Warn("client identity certificate has expired, continuing anonymously")
			id = nil
		}
	}

	orch := orchestrator.New(cfg, id, adapter, nopConsumer{}, nil, nil, nil)
	orch.Subscribe(loggingObserver{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := orch.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		cancel()
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down headset-client")
	orch.Disconnect()
	cancel()
}

// loggingObserver reports connection lifecycle transitions to the
// structured logger; a real platform integration would subscribe its own
// observer instead (e.g. to drive a UI state machine).
type loggingObserver struct{}

func (loggingObserver) OnEvent(ev coreapi.ConnectionEvent) {
	switch ev.Kind {
	case coreapi.EventError:
		log.Error("connection event", "kind", ev.Kind, "error", ev.Err)
	case coreapi.EventServerFound:
		log.Info("connection event", "kind", ev.Kind, "serverIP", ev.ServerIP)
	default:
		log.Info("connection event", "kind", ev.Kind)
	}
}
