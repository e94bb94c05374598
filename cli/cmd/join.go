package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/cli/internal/config"
	"github.com/BioHazard786/Huddle/cli/internal/session"
	"github.com/BioHazard786/Huddle/cli/internal/ui"
	"github.com/BioHazard786/Huddle/cli/internal/webrtc"
)

const (
	mediaSilence = "silence"
	mediaNone    = "none"
)

var (
	flagName     string
	flagMedia    string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join a room",
	Long: `Join a room, link up with everyone in it and chat.

Type a message and press enter to send it. Commands: /mute, /unmute,
/video, /novideo, /quit. Esc also leaves the room.

Examples:
  huddle join R7X2KQ9P --name Alice
  huddle join https://huddle.example/room/R7X2KQ9P
  huddle join R7X2KQ9P --media none
  huddle join R7X2KQ9P --turn turn.example.com --turn-user u --turn-pass p --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		if flagMedia != mediaSilence && flagMedia != mediaNone {
			return fmt.Errorf("unknown --media %q, want %s or %s", flagMedia, mediaSilence, mediaNone)
		}
		return joinRoom(roomID)
	},
}

func joinRoom(roomID string) error {
	cfg, err := loadConfig(config.Options{
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := session.Options{
		ServerURL: cfg.WebSocketURL,
		RoomID:    roomID,
		Name:      flagName,
		Logger:    logger,
	}

	var media *webrtc.LocalMedia
	if flagMedia == mediaSilence {
		media, err = webrtc.NewSilenceMedia(logger)
		if err != nil {
			ui.PrintWarning("No local media, joining for chat only: " + err.Error())
		} else {
			media.Start(ctx)
			opts.Media = media
		}
	}

	factory, err := webrtc.NewFactory(cfg, media, logger)
	if err != nil {
		return session.NewError("set up WebRTC", err)
	}
	opts.Factory = factory

	spin := ui.NewSpinner("Connecting to " + cfg.Server + "...")
	spin.Start()
	sess, err := session.Join(ctx, opts)
	if err != nil {
		spin.Fail("Could not join room " + roomID)
		return err
	}
	spin.Stop()

	uiErr := ui.RunRoom(sess)

	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	leaveErr := sess.Leave(leaveCtx)

	stats := sess.Stats()
	logger.Info().Int("created", stats.Created).Int("retries", stats.Retries).Msg("session finished")

	switch {
	case sess.Err() != nil:
		return sess.Err()
	case uiErr != nil:
		return uiErr
	case leaveErr != nil:
		return leaveErr
	}

	ui.PrintSuccessf("Left room %s", roomID)
	return nil
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name (the server picks one when empty)")
	joinCmd.Flags().StringVarP(&flagMedia, "media", "m", mediaSilence, "Local media: silence or none")
	joinCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	joinCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
}
