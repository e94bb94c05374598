package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/cli/internal/config"
	"github.com/BioHazard786/Huddle/cli/internal/ui"
)

var whoCmd = &cobra.Command{
	Use:   "who <room-id|url>",
	Short: "List who is in a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}
		return listRoom(cmd.Context(), cfg, roomID)
	},
}

func listRoom(ctx context.Context, cfg *config.Config, roomID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	info, err := newAPIClient(cfg.APIURL).Room(ctx, roomID)
	if errors.Is(err, errRoomNotFound) {
		ui.PrintInfof("Nobody is in room %s", roomID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up room: %w", err)
	}

	fmt.Println(ui.RosterTable(info.RoomID, info.Participants))
	return nil
}

func init() {
	rootCmd.AddCommand(whoCmd)
}
