package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"github.com/LingByte/EchoClass/pkg/config"
	"github.com/LingByte/EchoClass/pkg/logger"
	"go.uber.org/zap"
)

// LogConfigInfo Print global configuration information
func LogConfigInfo(cfg *config.Config) {
	logger.Info("system config load finished",
		zap.String("mode", cfg.Mode),
		zap.String("addr", cfg.Addr),
	)

	logger.Info("log config",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_filename", cfg.Log.Filename),
		zap.Int("log_max_size", cfg.Log.MaxSize),
		zap.Int("log_max_age", cfg.Log.MaxAge),
		zap.Int("log_max_backups", cfg.Log.MaxBackups),
	)

	logger.Info("webrtc config",
		zap.String("codec", cfg.WebRTC.Codec),
		zap.Strings("ice_servers", cfg.WebRTC.ICEServers),
		zap.Bool("turn_credentials", cfg.WebRTC.ICEUsername != ""),
		zap.Int("udp_port_min", cfg.WebRTC.UDPPortMin),
		zap.Int("udp_port_max", cfg.WebRTC.UDPPortMax),
	)

	logger.Info("classroom config",
		zap.Int("max_participants", cfg.Classroom.MaxParticipants),
		zap.Duration("disconnect_grace", cfg.Classroom.DisconnectGrace),
		zap.String("capture", cfg.Devices.CaptureKind),
		zap.String("playback", cfg.Devices.PlaybackKind),
		zap.Duration("offer_ttl", cfg.Signaling.OfferTTL),
	)
}

// EnsureBannerFile writes defaultText as the banner if filename is missing.
func EnsureBannerFile(filename string, defaultText string) error {
	if _, err := os.Stat(filename); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(filename, []byte(defaultText+"\n"), 0o644)
}

// PrintBannerFromFile Read file and print, auto-generate if file doesn't exist
func PrintBannerFromFile(filename string, defaultText string) error {
	if err := EnsureBannerFile(filename, defaultText); err != nil {
		return fmt.Errorf("failed to ensure banner file: %w", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;165m",
		"\x1b[38;5;189m",
		"\x1b[38;5;207m",
		"\x1b[38;5;219m",
		"\x1b[38;5;225m",
		"\x1b[38;5;231m",
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
