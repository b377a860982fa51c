package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/esplayer/internal/config"
	"github.com/jmylchreest/esplayer/internal/player"
	"github.com/jmylchreest/esplayer/internal/player/nativeplayer"
	"github.com/jmylchreest/esplayer/internal/player/tsprovider"
	"github.com/jmylchreest/esplayer/internal/version"
	"github.com/jmylchreest/esplayer/pkg/format"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Play a transport stream through the controller",
	Long: `Run drives a player.PlayerController against a transport-stream
file using the reference tsprovider.Provider and a logging
NativePlayer, for smoke-testing the playback controller end to end
without a vendor decoder binding.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("input", "", "path to an MPEG transport stream file to play")
	runCmd.Flags().Duration("play-for", 0, "stop after this long (0 = run until EOS or interrupted)")

	mustBindPFlag("player.input", runCmd.Flags().Lookup("input"))
	mustBindPFlag("player.play_for", runCmd.Flags().Lookup("play-for"))
}

// loggingClient is a player.PlayerClient that logs every notification; it
// stands in for an application's UI layer in the reference run command.
type loggingClient struct {
	logger *slog.Logger
	done   chan struct{}
}

func (c *loggingClient) OnStateChanged(state player.PlayerState) {
	c.logger.Info("state changed", slog.String("state", state.String()))
	if state == player.StateCompleted || state == player.StateError {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
}

func (c *loggingClient) OnBufferStatus(stream player.StreamKind, status player.BufferStatus) {
	c.logger.Warn("buffer status", slog.String("stream", stream.String()), slog.String("status", status.String()))
}

func (c *loggingClient) OnBufferingProgress(percent int) {
	c.logger.Info("buffering progress", slog.Int("percent", percent))
}

func (c *loggingClient) OnDRMInitDataFound(stream player.StreamKind, initData []byte) {
	c.logger.Info("drm init data found", slog.String("stream", stream.String()), slog.Int("bytes", len(initData)))
}

func (c *loggingClient) OnError(err error) {
	c.logger.Error("player error", slog.String("error", err.Error()))
}

func (c *loggingClient) OnSeekStarted(position time.Duration) {
	c.logger.Info("seek started", slog.Duration("position", position))
}

func (c *loggingClient) OnSeekCompleted(position time.Duration) {
	c.logger.Info("seek completed", slog.Duration("position", position))
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	inputPath := viper.GetString("player.input")
	if inputPath == "" {
		return fmt.Errorf("--input is required")
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	provider := tsprovider.New(f)
	native := nativeplayer.NewLoggingPlayer(logger)
	defer native.Close()

	client := &loggingClient{logger: logger, done: make(chan struct{})}

	playerCfg := player.Config{
		PreBufferDuration:   cfg.Player.PreBufferDuration.Duration(),
		TargetBufferDepth:   cfg.Player.TargetBufferDepth.Duration(),
		ClockPollInterval:   cfg.Player.ClockPollInterval.Duration(),
		BufferEventInterval: cfg.Player.BufferEventInterval.Duration(),
		MaxVariantBytes:     cfg.Player.MaxVariantBytes.Bytes(),
		TargetBitrate:       cfg.Player.TargetBitrate.Bytes(),
		Logger:              logger,
	}
	controller := player.NewPlayerController(playerCfg, native, provider, client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if playFor := viper.GetDuration("player.play_for"); playFor > 0 {
		go func() {
			select {
			case <-time.After(playFor):
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	logger.Info("esplayer starting", slog.String("version", version.Version), slog.String("input", inputPath))

	if err := controller.Prepare(ctx); err != nil {
		return fmt.Errorf("preparing: %w", err)
	}
	if err := controller.Play(ctx); err != nil {
		return fmt.Errorf("playing: %w", err)
	}

	go logBufferStats(ctx, logger, controller)

	select {
	case <-ctx.Done():
	case <-client.done:
	}

	return controller.Stop(context.Background())
}

// logBufferStats periodically logs each stream's queued-packet backlog in
// human-readable form, until ctx is cancelled.
func logBufferStats(ctx context.Context, logger *slog.Logger, controller *player.PlayerController) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for kind, stats := range controller.BufferStats() {
				logger.Debug("buffer stats",
					slog.String("stream", kind.String()),
					slog.String("queued", format.Bytes(stats.Bytes)),
					slog.Duration("span", stats.Duration),
				)
			}
		}
	}
}
