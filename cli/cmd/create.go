package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/cli/internal/config"
	"github.com/BioHazard786/Huddle/cli/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c", "new"},
	Short:   "Create a new room",
	Long: `Ask the signaling server for a fresh room ID and print a link others can join.

Examples:
  huddle create
  huddle create --server huddle.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}
		return createRoom(cmd.Context(), cfg)
	},
}

func createRoom(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	spin := ui.NewSpinner("Creating room...")
	spin.Start()
	info, err := newAPIClient(cfg.APIURL).CreateRoom(ctx)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	link := info.URL
	if link == "" {
		link = cfg.GetRoomLink(info.RoomID)
	}

	logger.Info().Str("room_id", info.RoomID).Msg("room created")
	fmt.Println(ui.RoomInfoView(info.RoomID, link))
	return nil
}

func init() {
	rootCmd.AddCommand(createCmd)
}
