package main

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/vipers-surveillance/vipers/internal/capture"
	"github.com/vipers-surveillance/vipers/internal/cascade"
	"github.com/vipers-surveillance/vipers/internal/config"
	"github.com/vipers-surveillance/vipers/internal/detectloop"
	"github.com/vipers-surveillance/vipers/internal/logger"
	"github.com/vipers-surveillance/vipers/internal/recorder"
	"github.com/vipers-surveillance/vipers/internal/vision"
	"github.com/vipers-surveillance/vipers/pkg/types"
)

var runOpts struct {
	mode   string
	video  string
	camera int
	fast   bool
	record string
	noBar  bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one detection session in the terminal",
	Long: "Run one detection session without the dashboard. Playback ends at the end\n" +
		"of the video; live sessions run until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := types.ParseMode(runOpts.mode)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("video") {
			cfg.VideoPath = runOpts.video
		}
		if flags.Changed("camera") {
			cfg.CameraDevice = runOpts.camera
		}
		if mode == types.ModeLive {
			cfg.LiveEnabled = true
		}
		if runOpts.fast {
			cfg.PlaybackRealtime = false
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runHeadless(cmd.Context(), cfg, mode)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.mode, "mode", "m", "playback", "Session mode (playback or live)")
	runCmd.Flags().StringVarP(&runOpts.video, "video", "i", "", "Drone footage for playback mode")
	runCmd.Flags().IntVar(&runOpts.camera, "camera", 0, "Camera device index for live mode")
	runCmd.Flags().BoolVar(&runOpts.fast, "fast", false, "Process playback as fast as possible instead of at the video frame rate")
	runCmd.Flags().StringVar(&runOpts.record, "record", "", "Write the annotated frames to an MJPEG file in this directory")
	runCmd.Flags().BoolVar(&runOpts.noBar, "no-progress", false, "Disable the progress bar")
	rootCmd.AddCommand(runCmd)
}

// terminalSink advances the progress bar and optionally records frames.
type terminalSink struct {
	bar     *progressbar.ProgressBar
	rec     *recorder.Recorder
	quality int
}

func (s *terminalSink) Render(frame *types.Frame) {
	if s.rec != nil {
		if data, err := vision.EncodeJPEG(frame.Image, s.quality); err == nil {
			s.rec.SendFrame(data)
		} else {
			logger.Warn("Run", "JPEG encode failed for frame %d: %v", frame.Number, err)
		}
	}
	if s.bar != nil {
		_ = s.bar.Add(1)
	}
}

func newProgressBar(mode types.Mode) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("VIPERS %s", mode)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
	)
}

func runHeadless(ctx context.Context, c config.Config, mode types.Mode) (err error) {
	detector, err := cascade.New(c.Params(), cascade.Models{mode.Target(): modelFor(c, mode)})
	if err != nil {
		return fmt.Errorf("load cascade: %w", err)
	}
	defer func() { err = multierr.Append(err, detector.Close()) }()

	sink := &terminalSink{quality: c.JPEGQuality}
	if !runOpts.noBar {
		sink.bar = newProgressBar(mode)
		defer func() { _ = sink.bar.Finish() }()
	}
	if runOpts.record != "" {
		sink.rec = recorder.NewRecorder(runOpts.record)
		file, startErr := sink.rec.Start()
		if startErr != nil {
			return startErr
		}
		logger.Info("Run", "Recording to %s", file)
		defer func() { err = multierr.Append(err, sink.rec.Close()) }()
	}

	selector := newSelector(c)
	opener := capture.OpenerFunc(func(ctx context.Context, m types.Mode) (capture.Source, error) {
		src, err := selector.Open(ctx, m)
		if err != nil {
			return nil, err
		}
		if fc, ok := src.(capture.FrameCounter); ok && sink.bar != nil {
			if n := fc.FrameCount(); n > 0 {
				sink.bar.ChangeMax(n)
			}
		}
		return src, nil
	})

	_, sum, err := detectloop.Run(ctx, detectloop.LoopState{}, detectloop.Session{
		Mode:     mode,
		Opener:   opener,
		Detector: detector,
		Log:      openEventLog(),
		Sink:     sink,
		Stop:     detectloop.NewStopToken(),
		Style:    c.Style(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n%s session ended (%s): %d frames, %d detections, logged=%v, %d log errors\n",
		mode, sum.Reason, sum.Frames, sum.Detections, sum.Logged, sum.LogErrors)
	return nil
}

func modelFor(c config.Config, mode types.Mode) string {
	if mode.Target() == types.KindFace {
		return c.FaceCascade
	}
	return c.BodyCascade
}
