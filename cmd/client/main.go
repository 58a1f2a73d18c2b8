package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HMasataka/logging"
	"github.com/HMasataka/meeting/internal/mediafile"
	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/HMasataka/meeting/pkg/rtc"
	"github.com/HMasataka/meeting/pkg/signaling"
	"github.com/jessevdk/go-flags"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	Config  string `long:"config" description:"Config file (TOML)"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable debug logging"`
}

type JoinCommand struct {
	AppID     string `long:"app-id" description:"Application ID"`
	MeetingID string `long:"meeting" description:"Meeting ID" required:"true"`
	Title     string `long:"title" description:"Meeting title"`
	Channel   string `long:"channel" description:"Media channel name" required:"true"`
	Token     string `long:"token" description:"Channel token"`
	UID       string `long:"uid" description:"Local user ID" required:"true"`
	ViewOnly  bool   `long:"view-only" description:"Join without publishing"`
	End       bool   `long:"end" description:"End the meeting for everyone on exit"`
	Video     string `long:"video" description:"IVF file used as the camera"`
	Audio     string `long:"audio" description:"Ogg/Opus file used as the microphone"`
	Screen    string `long:"screen" description:"IVF file shared as the screen"`
}

func (cmd *JoinCommand) Execute(args []string) error {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}

	engine, err := rtc.NewEngine(cfg.RTC, rtc.MediaSources{
		Camera:     cmd.Video != "",
		Microphone: cmd.Audio != "",
		Screen:     cmd.Screen != "",
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	sig, err := signaling.NewClient(cfg.Signaling, nil)
	if err != nil {
		return fmt.Errorf("failed to create signaling client: %w", err)
	}

	ctrl := meeting.NewController(engine, sig, cfg.Meeting)
	ctrl.Session().OnChange(logState)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cred := meeting.Credentials{
		AppID:        cmd.AppID,
		Channel:      cmd.Channel,
		Token:        cmd.Token,
		UID:          cmd.UID,
		MeetingID:    cmd.MeetingID,
		MeetingTitle: cmd.Title,
		ViewOnly:     cmd.ViewOnly,
	}

	if err := ctrl.Join(ctx, cred, func(err error) {
		slog.Warn("meeting error", "error", err)
	}); err != nil {
		return fmt.Errorf("join failed: %w", err)
	}

	tracks := ctrl.Tracks()
	go feed(ctx, "camera", tracks.CameraTrack(), cmd.Video)
	go feed(ctx, "microphone", tracks.MicrophoneTrack(), cmd.Audio)

	if cmd.Screen != "" && !cmd.ViewOnly {
		if err := ctrl.StartScreenShare(ctx); err != nil {
			slog.Warn("failed to start screen share", "error", err)
		} else {
			go func() {
				feed(ctx, "screen", tracks.ScreenTrack(), cmd.Screen)
				if err := ctrl.StopScreenShare(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("failed to stop screen share", "error", err)
				}
			}()
		}
	}

	<-ctx.Done()
	slog.Info("leaving meeting...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	leave := ctrl.Leave
	if cmd.End {
		leave = ctrl.End
	}
	if err := leave(shutdownCtx, cmd.MeetingID); err != nil {
		slog.Error("failed to leave meeting", "error", err)
	}
	ctrl.Close(shutdownCtx)

	return nil
}

// feed はファイルの内容をトラックに流します。トラックかファイルが無ければ何もしません。
func feed(ctx context.Context, label string, track meeting.LocalTrack, path string) {
	if path == "" {
		return
	}

	w, ok := track.(mediafile.SampleWriter)
	if !ok {
		return
	}

	if err := mediafile.Play(ctx, path, w); err != nil &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, rtc.ErrTrackStopped) {
		slog.Error("media file playback failed", "track", label, "path", path, "error", err)
		return
	}

	slog.Info("media file finished", "track", label, "path", path)
}

func logState(st meeting.State) {
	slog.Info("session changed",
		slog.String("join", st.JoinState.String()),
		slog.String("main_video", st.MainVideo.String()),
		slog.String("speaker", st.ActiveSpeaker),
		slog.String("screen_share", st.ActiveScreenShareUID),
		slog.Int("participants", st.Participants.Len()),
		slog.Bool("video", st.VideoEnabled),
		slog.Bool("audio", st.AudioEnabled))
}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		level := slog.LevelInfo
		if opts.Verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(logging.NewHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))))

		return command.Execute(args)
	}

	if _, err := parser.AddCommand("join", "Join a meeting", "", &JoinCommand{}); err != nil {
		log.Fatal(err)
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		log.Fatal(err)
	}
}
