package config

import (
	"fmt"
	"strings"

	"github.com/alvr-go/headset-client/internal/logging"
)

var log = logging.L("config")

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"warning": true,
	"error": true,
}

// ValidationResult separates fatal misconfigurations (block startup) from
// warnings (logged, then the value is clamped to a safe default).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just want
// a flat list to log.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. Values that would
// cause a panic or a nonsensical protocol state (zero queue sizes, a
// negative FEC percentage) are clamped and reported as warnings; values
// that make streaming structurally impossible are fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535 {
		result.Fatals = append(result.Fatals, fmt.Errorf("discovery_port %d is out of range", c.DiscoveryPort))
	}
	if c.ControlPort <= 0 || c.ControlPort > 65535 {
		result.Fatals = append(result.Fatals, fmt.Errorf("control_port %d is out of range", c.ControlPort))
	}
	if c.ControlPort == c.DiscoveryPort {
		result.Fatals = append(result.Fatals, fmt.Errorf("control_port and discovery_port must differ"))
	}

	if c.FecPercentage < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("fec_percentage %d is negative, clamping to 0", c.FecPercentage))
		c.FecPercentage = 0
	} else if c.FecPercentage > 200 {
		result.Warnings = append(result.Warnings, fmt.Errorf("fec_percentage %d exceeds maximum 200, clamping", c.FecPercentage))
		c.FecPercentage = 200
	}

	if c.DecoderWorkerQueueLimit < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("decoder_worker_queue_limit %d is below minimum 1, clamping", c.DecoderWorkerQueueLimit))
		c.DecoderWorkerQueueLimit = 1
	}

	if c.LatencyActionQueueSize < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("latency_action_queue_size %d is below minimum 1, clamping", c.LatencyActionQueueSize))
		c.LatencyActionQueueSize = 1
	}

	if c.TrackingSendRateHz < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("tracking_send_rate_hz %d is below minimum 1, clamping to 60", c.TrackingSendRateHz))
		c.TrackingSendRateHz = 60
	}

	if c.ClientHandshakeResendIntervalMs < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("client_handshake_resend_interval_ms %d is below minimum 1, clamping to 1000", c.ClientHandshakeResendIntervalMs))
		c.ClientHandshakeResendIntervalMs = 1000
	}

	if c.StreamPort <= 0 || c.StreamPort > 65535 {
		result.Fatals = append(result.Fatals, fmt.Errorf("stream_port %d is out of range", c.StreamPort))
	}

	proto := strings.ToLower(strings.TrimSpace(c.StreamProtocol))
	if proto != "udp" && proto != "tcp" {
		result.Warnings = append(result.Warnings, fmt.Errorf("stream_protocol %q is not valid (use udp or tcp), defaulting to udp", c.StreamProtocol))
		c.StreamProtocol = "udp"
	} else {
		c.StreamProtocol = proto
	}

	codec := strings.ToLower(strings.TrimSpace(c.VideoCodec))
	if codec != "h264" && codec != "h265" {
		result.Warnings = append(result.Warnings, fmt.Errorf("video_codec %q is not valid (use h264 or h265), defaulting to h264", c.VideoCodec))
		c.VideoCodec = "h264"
	} else {
		c.VideoCodec = codec
	}

	if c.GameAudioBatchMs < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("game_audio_batch_ms %d is below minimum 1, clamping to 10", c.GameAudioBatchMs))
		c.GameAudioBatchMs = 10
	}
	if c.GameAudioAvgBufferingMs < c.GameAudioBatchMs {
		result.Warnings = append(result.Warnings, fmt.Errorf("game_audio_avg_buffering_ms %d is below game_audio_batch_ms %d, clamping", c.GameAudioAvgBufferingMs, c.GameAudioBatchMs))
		c.GameAudioAvgBufferingMs = c.GameAudioBatchMs
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return result
}
