package config

import (
	"fmt"
	"log"
	"time"

	"github.com/LingByte/EchoClass/pkg/constants"
	apperrors "github.com/LingByte/EchoClass/pkg/errors"
	"github.com/LingByte/EchoClass/pkg/logger"
	"github.com/LingByte/EchoClass/pkg/utils"
)

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// WebRTCConfig configures the host side of every transport leg.
type WebRTCConfig struct {
	ICEServers    []string `json:"ice_servers"`
	ICEUsername   string   `json:"ice_username"`
	ICECredential string   `json:"-"`
	UDPPortMin    int      `json:"udp_port_min"`
	UDPPortMax    int      `json:"udp_port_max"`
	Codec         string   `json:"codec"`
}

// ClassroomConfig bounds room behaviour.
type ClassroomConfig struct {
	MaxParticipants int           `json:"max_participants"`
	DisconnectGrace time.Duration `json:"disconnect_grace"`
}

// DevicesConfig selects the host capture and playback collaborators.
type DevicesConfig struct {
	CaptureKind  string `json:"capture_kind"`
	CaptureFile  string `json:"capture_file"`
	PlaybackKind string `json:"playback_kind"`
	PlaybackFile string `json:"playback_file"`
}

// SignalingConfig tunes the websocket hub.
type SignalingConfig struct {
	PongWait       time.Duration `json:"pong_wait"`
	WriteWait      time.Duration `json:"write_wait"`
	MaxMessageSize int64         `json:"max_message_size"`
	OfferTTL       time.Duration `json:"offer_ttl"`
}

var GlobalConfig *Config

// Config System common config
type Config struct {
	Server     ServerConfig
	Log        logger.LogConfig
	WebRTC     WebRTCConfig
	Classroom  ClassroomConfig
	Devices    DevicesConfig
	Signaling  SignalingConfig
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	ServerName string `env:"SERVER_NAME"`
}

var defaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

func Load() error {
	mode := utils.GetStringOrDefault("MODE", "development")
	if err := utils.LoadEnv(mode); err != nil {
		log.Printf("Note: .env file not loaded: %v (using default values)", err)
	}

	cfg := FromEnv(mode)
	if err := cfg.Validate(); err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// FromEnv reads every key with its default. It does not touch GlobalConfig.
func FromEnv(mode string) *Config {
	return &Config{
		Server: ServerConfig{
			ReadTimeout:  utils.GetDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: utils.GetDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  utils.GetDurationOrDefault("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Log: logger.LogConfig{
			Level:      utils.GetStringOrDefault("LOG_LEVEL", "info"),
			Filename:   utils.GetStringOrDefault("LOG_FILENAME", "./logs/echoclass.log"),
			MaxSize:    utils.GetIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     utils.GetIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: utils.GetIntOrDefault("LOG_MAX_BACKUPS", 7),
			Daily:      utils.GetBoolOrDefault("LOG_DAILY", false),
		},
		WebRTC: WebRTCConfig{
			ICEServers:    utils.GetListOrDefault("ICE_SERVERS", defaultICEServers),
			ICEUsername:   utils.GetEnv("ICE_USERNAME"),
			ICECredential: utils.GetEnv("ICE_CREDENTIAL"),
			UDPPortMin:    utils.GetIntOrDefault("WEBRTC_UDP_PORT_MIN", 0),
			UDPPortMax:    utils.GetIntOrDefault("WEBRTC_UDP_PORT_MAX", 0),
			Codec:         utils.GetStringOrDefault("AUDIO_CODEC", constants.CodecPCMU),
		},
		Classroom: ClassroomConfig{
			MaxParticipants: utils.GetIntOrDefault("CLASSROOM_MAX_PARTICIPANTS", 0),
			DisconnectGrace: utils.GetDurationOrDefault("CLASSROOM_DISCONNECT_GRACE", 5*time.Second),
		},
		Devices: DevicesConfig{
			CaptureKind:  utils.GetStringOrDefault("CAPTURE_KIND", constants.CaptureSilence),
			CaptureFile:  utils.GetEnv("CAPTURE_FILE"),
			PlaybackKind: utils.GetStringOrDefault("PLAYBACK_KIND", constants.PlaybackDiscard),
			PlaybackFile: utils.GetEnv("PLAYBACK_FILE"),
		},
		Signaling: SignalingConfig{
			PongWait:       utils.GetDurationOrDefault("SIGNALING_PONG_WAIT", 60*time.Second),
			WriteWait:      utils.GetDurationOrDefault("SIGNALING_WRITE_WAIT", 10*time.Second),
			MaxMessageSize: int64(utils.GetIntOrDefault("SIGNALING_MAX_MESSAGE", 64*1024)),
			OfferTTL:       utils.GetDurationOrDefault("SIGNALING_OFFER_TTL", 10*time.Minute),
		},
		Mode:       mode,
		Addr:       utils.GetStringOrDefault("ADDR", ":7072"),
		ServerName: utils.GetStringOrDefault("SERVER_NAME", "EchoClass"),
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.NewAppErrorf(apperrors.ErrCodeInvalidConfig, format, args...)
	}

	if !constants.IsSupportedCodec(c.WebRTC.Codec) {
		return invalid("unsupported AUDIO_CODEC %q", c.WebRTC.Codec)
	}
	switch c.Devices.CaptureKind {
	case constants.CaptureSilence, constants.CaptureDevice:
	case constants.CaptureWAV:
		if c.Devices.CaptureFile == "" {
			return invalid("CAPTURE_KIND=wav requires CAPTURE_FILE")
		}
	default:
		return invalid("unknown CAPTURE_KIND %q", c.Devices.CaptureKind)
	}
	switch c.Devices.PlaybackKind {
	case constants.PlaybackDiscard, constants.PlaybackDevice:
	case constants.PlaybackWAV:
		if c.Devices.PlaybackFile == "" {
			return invalid("PLAYBACK_KIND=wav requires PLAYBACK_FILE")
		}
	default:
		return invalid("unknown PLAYBACK_KIND %q", c.Devices.PlaybackKind)
	}
	if err := validatePortRange(c.WebRTC.UDPPortMin, c.WebRTC.UDPPortMax); err != nil {
		return invalid("%v", err)
	}
	if c.Classroom.MaxParticipants < 0 {
		return invalid("CLASSROOM_MAX_PARTICIPANTS must not be negative")
	}
	if c.Classroom.DisconnectGrace < 0 {
		return invalid("CLASSROOM_DISCONNECT_GRACE must not be negative")
	}
	if c.Signaling.PongWait <= 0 || c.Signaling.WriteWait <= 0 {
		return invalid("signaling timeouts must be positive")
	}
	return nil
}

func validatePortRange(min, max int) error {
	if min == 0 && max == 0 {
		return nil
	}
	if min <= 0 || max > 65535 || min > max {
		return fmt.Errorf("invalid UDP port range %d-%d", min, max)
	}
	return nil
}
