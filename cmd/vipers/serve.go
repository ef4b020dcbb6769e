package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/vipers-surveillance/vipers/internal/capture"
	"github.com/vipers-surveillance/vipers/internal/capture/cvsource"
	"github.com/vipers-surveillance/vipers/internal/cascade"
	"github.com/vipers-surveillance/vipers/internal/config"
	"github.com/vipers-surveillance/vipers/internal/logger"
	"github.com/vipers-surveillance/vipers/internal/metrics"
	"github.com/vipers-surveillance/vipers/internal/recorder"
	"github.com/vipers-surveillance/vipers/internal/webmonitor"
	"github.com/vipers-surveillance/vipers/pkg/types"
)

var serveOpts struct {
	addr      string
	video     string
	live      bool
	camera    int
	autoStart bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the surveillance dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr = serveOpts.addr
		}
		if flags.Changed("video") {
			cfg.VideoPath = serveOpts.video
		}
		if flags.Changed("live") {
			cfg.LiveEnabled = serveOpts.live
		}
		if flags.Changed("camera") {
			cfg.CameraDevice = serveOpts.camera
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", ":8080", "HTTP server address")
	serveCmd.Flags().StringVar(&serveOpts.video, "video", "", "Drone footage for playback mode")
	serveCmd.Flags().BoolVar(&serveOpts.live, "live", false, "Enable live camera mode")
	serveCmd.Flags().IntVar(&serveOpts.camera, "camera", 0, "Camera device index for live mode")
	serveCmd.Flags().BoolVar(&serveOpts.autoStart, "autostart", false, "Start a playback session immediately")
	rootCmd.AddCommand(serveCmd)
}

// detectorModels returns the cascade files to load. The face model is only
// needed when live mode is enabled.
func detectorModels(c config.Config) cascade.Models {
	models := cascade.Models{types.KindBody: c.BodyCascade}
	if c.LiveEnabled {
		models[types.KindFace] = c.FaceCascade
	}
	return models
}

func newSelector(c config.Config) *capture.Selector {
	openFile, openDevice := cvsource.Backends(c.PlaybackRealtime)
	return &capture.Selector{
		VideoPath:   c.VideoPath,
		Device:      c.CameraDevice,
		LiveEnabled: c.LiveEnabled,
		MaxWidth:    c.MaxWidth,
		OpenFile:    openFile,
		OpenDevice:  openDevice,
	}
}

func runServe(ctx context.Context, c config.Config) (err error) {
	detector, err := cascade.New(c.Params(), detectorModels(c))
	if err != nil {
		return fmt.Errorf("load cascades: %w", err)
	}
	defer func() { err = multierr.Append(err, detector.Close()) }()

	m := metrics.New()
	server, err := webmonitor.NewServer(webmonitor.ConfigFrom(c), webmonitor.Deps{
		Opener:   newSelector(c),
		Detector: detector,
		EventLog: openEventLog(),
		Recorder: recorder.NewRecorder(c.RecordingOutputPath),
		Metrics:  m,
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, server.Close()) }()
	server.Start(ctx)

	if c.MetricsAddr != "" {
		go func() {
			if err := m.StartServer(c.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Main", "Metrics server error: %v", err)
			}
		}()
	}

	if serveOpts.autoStart {
		if err := server.Session().Start(types.ModePlayback); err != nil {
			logger.Warn("Main", "Autostart failed: %v", err)
		}
	}

	httpServer := &http.Server{
		Addr:              c.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Main", "VIPERS dashboard listening on %s", c.Addr)
		logger.Info("Main", "Video: %s, live mode: %v, event log: %s", c.VideoPath, c.LiveEnabled, c.LogPath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Main", "Shutting down...")
	// Streams never end on their own; stop them before the HTTP drain.
	closeErr := server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return multierr.Append(closeErr, httpServer.Shutdown(shutdownCtx))
}
