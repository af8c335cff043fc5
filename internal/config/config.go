package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for the headset streaming client.
// Fields mirror the teacher's Default()/Load() shape: a typed struct
// populated by viper over the hard-coded defaults from Default(). An
// ALVR_CLIENT_-prefixed environment variable overrides the YAML file's
// value for a key the file sets; keys the file does not set keep their
// Default() value.
type Config struct {
	Hostname        string `mapstructure:"hostname"`
	CertificateFile string `mapstructure:"certificate_file"`
	KeyFile         string `mapstructure:"key_file"`
	DeviceFile      string `mapstructure:"device_file"`

	// Discovery & handshake
	DiscoveryPort                   int `mapstructure:"discovery_port"`
	ControlPort                     int `mapstructure:"control_port"`
	ClientHandshakeResendIntervalMs int `mapstructure:"client_handshake_resend_interval_ms"`
	SetUpStreamTimeoutSeconds       int `mapstructure:"set_up_stream_timeout_seconds"`
	MinReconnectIntervalMs          int `mapstructure:"min_reconnect_interval_ms"`

	// Media pipeline
	FecPercentage               int  `mapstructure:"fec_percentage"`
	EnableFec                   bool `mapstructure:"enable_fec"`
	DecoderWorkerQueueLimit     int  `mapstructure:"decoder_worker_queue_limit"`
	LatencyActionQueueSize      int  `mapstructure:"latency_action_queue_size"`
	VideoCodec                  string `mapstructure:"video_codec"`
	ClientRequestRealtimeDecoder bool  `mapstructure:"client_request_realtime_decoder"`

	// Stream transport
	StreamPort     int    `mapstructure:"stream_port"`
	StreamProtocol string `mapstructure:"stream_protocol"`

	// Audio
	EnableGameAudio         bool `mapstructure:"enable_game_audio"`
	GameAudioBatchMs        int  `mapstructure:"game_audio_batch_ms"`
	GameAudioAvgBufferingMs int  `mapstructure:"game_audio_avg_buffering_ms"`
	EnableMicrophone        bool `mapstructure:"enable_microphone"`
	MicrophoneSampleRate    int  `mapstructure:"microphone_sample_rate"`

	// Foveated rendering hint, forwarded to the server as negotiated
	// parameters (see coreapi.ConnectionSettings / the Connected event).
	FoveatedRenderingEnabled   bool    `mapstructure:"foveated_rendering_enabled"`
	FoveationCenterSizeX       float32 `mapstructure:"foveation_center_size_x"`
	FoveationCenterSizeY       float32 `mapstructure:"foveation_center_size_y"`

	ClientsidePrediction bool `mapstructure:"clientside_prediction"`
	ClientDarkMode       bool `mapstructure:"client_dark_mode"`

	// Control-plane loop cadences
	TrackingSendRateHz          int `mapstructure:"tracking_send_rate_hz"`
	PlayspaceSyncIntervalMs     int `mapstructure:"playspace_sync_interval_ms"`
	KeepaliveIntervalMs         int `mapstructure:"keepalive_interval_ms"`

	// Logging
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		DiscoveryPort:                   9943,
		ControlPort:                     9944,
		ClientHandshakeResendIntervalMs: 1000,
		SetUpStreamTimeoutSeconds:       5,
		MinReconnectIntervalMs:          1000,

		FecPercentage:                5,
		EnableFec:                    true,
		DecoderWorkerQueueLimit:      128,
		LatencyActionQueueSize:       64,
		VideoCodec:                   "h264",
		ClientRequestRealtimeDecoder: true,

		StreamPort:     9944,
		StreamProtocol: "udp",

		EnableGameAudio:         true,
		GameAudioBatchMs:        10,
		GameAudioAvgBufferingMs: 50,
		EnableMicrophone:        false,
		MicrophoneSampleRate:    44100,

		FoveatedRenderingEnabled: false,
		FoveationCenterSizeX:     0.4,
		FoveationCenterSizeY:     0.35,

		TrackingSendRateHz:      360,
		PlayspaceSyncIntervalMs: 500,
		KeepaliveIntervalMs:     1000,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("headset-client")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ALVR_CLIENT")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// GetDataDir returns the platform-specific data directory for the client.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "AlvrClient", "data")
	case "darwin":
		return "/Library/Application Support/AlvrClient/data"
	default:
		return "/var/lib/alvr-client"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "AlvrClient")
	case "darwin":
		return "/Library/Application Support/AlvrClient"
	default:
		return "/etc/alvr-client"
	}
}
