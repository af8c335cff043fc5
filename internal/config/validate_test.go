package config

import (
	"fmt"
	"testing"
)

func TestValidateTieredBadDiscoveryPortIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DiscoveryPort = 70000
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("out-of-range discovery_port should be fatal")
	}
}

func TestValidateTieredClashingPortsIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ControlPort = cfg.DiscoveryPort
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("control_port == discovery_port should be fatal")
	}
}

func TestValidateTieredNegativeFecPercentageIsWarning(t *testing.T) {
	cfg := Default()
	cfg.FecPercentage = -5
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped fec_percentage should be a warning, not fatal: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for negative fec_percentage")
	}
	if cfg.FecPercentage != 0 {
		t.Fatalf("FecPercentage = %d, want 0 (clamped)", cfg.FecPercentage)
	}
}

func TestValidateTieredHighFecPercentageIsWarning(t *testing.T) {
	cfg := Default()
	cfg.FecPercentage = 9999
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped fec_percentage should be a warning: %v", result.Fatals)
	}
	if cfg.FecPercentage != 200 {
		t.Fatalf("FecPercentage = %d, want 200 (clamped)", cfg.FecPercentage)
	}
}

func TestValidateTieredDecoderQueueLimitClamping(t *testing.T) {
	cfg := Default()
	cfg.DecoderWorkerQueueLimit = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped decoder_worker_queue_limit should be a warning: %v", result.Fatals)
	}
	if cfg.DecoderWorkerQueueLimit != 1 {
		t.Fatalf("DecoderWorkerQueueLimit = %d, want 1", cfg.DecoderWorkerQueueLimit)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.ControlPort = cfg.DiscoveryPort // fatal
	cfg.LogFormat = "xml"               // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("valid config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("valid config has warnings: %v", result.Warnings)
	}
}

func TestValidateTieredBadStreamPortIsFatal(t *testing.T) {
	cfg := Default()
	cfg.StreamPort = -1
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("out-of-range stream_port should be fatal")
	}
}

func TestValidateTieredBadStreamProtocolDefaultsToUDP(t *testing.T) {
	cfg := Default()
	cfg.StreamProtocol = "quic"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("bad stream_protocol should be a warning: %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid stream_protocol")
	}
	if cfg.StreamProtocol != "udp" {
		t.Fatalf("StreamProtocol = %q, want udp (clamped)", cfg.StreamProtocol)
	}
}

func TestValidateTieredVideoCodecNormalized(t *testing.T) {
	cfg := Default()
	cfg.VideoCodec = "H265"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("unexpected fatals: %v", result.Fatals)
	}
	if cfg.VideoCodec != "h265" {
		t.Fatalf("VideoCodec = %q, want normalized h265", cfg.VideoCodec)
	}
}

func TestValidateTieredGameAudioBufferingClampedToBatch(t *testing.T) {
	cfg := Default()
	cfg.GameAudioBatchMs = 20
	cfg.GameAudioAvgBufferingMs = 5
	result := cfg.ValidateTiered()
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for buffering below batch size")
	}
	if cfg.GameAudioAvgBufferingMs != 20 {
		t.Fatalf("GameAudioAvgBufferingMs = %d, want clamped to 20", cfg.GameAudioAvgBufferingMs)
	}
}

