package command

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/mindconnect/internal/config"
	"github.com/BioHazard786/mindconnect/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history <roomId>",
	Short: "Print the stored chat of a room's session",
	Example: `  mindconnect history room-3f2a...
  mindconnect history demo-91c0... --server wss://relay.example.com/ws`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{}, slog.LevelError)
		if err != nil {
			return err
		}
		api := newAPIClient(cfg.APIBaseURL())
		ctx := cmd.Context()

		stop := ui.RunSpinner("Loading history...")
		defer stop()

		session, err := api.SessionByRoom(ctx, args[0])
		if err != nil {
			return NewError("find session", err)
		}
		msgs, err := api.SessionMessages(ctx, session.ID)
		if err != nil {
			return NewError("load messages", err)
		}
		stop()

		fmt.Println(ui.TitleStyle.Render(fmt.Sprintf("%s %s (%s)", ui.IconChat, session.RoomID, session.Status)))
		fmt.Println(ui.ChatHistoryView(msgs))
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions [userId]",
	Short: "List a user's consultation sessions, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{}, slog.LevelError)
		if err != nil {
			return err
		}
		user := cfg.Client.UserID
		if len(args) == 1 {
			user = args[0]
		}
		if user == "" {
			return ErrNoUser
		}

		stop := ui.RunSpinner("Loading sessions...")
		defer stop()
		sessions, err := newAPIClient(cfg.APIBaseURL()).UserSessions(cmd.Context(), user)
		if err != nil {
			return NewError("list sessions", err)
		}
		stop()

		fmt.Println(ui.SessionsView(sessions))
		return nil
	},
}

var iceCmd = &cobra.Command{
	Use:   "ice",
	Short: "Show the ICE servers the relay hands out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{}, slog.LevelError)
		if err != nil {
			return err
		}
		stop := ui.RunSpinner("Fetching ICE servers...")
		defer stop()
		servers, err := newAPIClient(cfg.APIBaseURL()).ICEServers(cmd.Context())
		if err != nil {
			return NewError("fetch ice servers", err)
		}
		stop()

		fmt.Println(ui.ICEServersView(servers))
		return nil
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Provision a demo patient and a scheduled session in a fresh room",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{}, slog.LevelError)
		if err != nil {
			return err
		}
		sp := ui.NewSpinner("Creating demo room...")
		sp.Start()
		demo, err := newAPIClient(cfg.APIBaseURL()).DemoRoom(cmd.Context())
		if err != nil {
			sp.Error("Demo room not created")
			return NewError("create demo room", err)
		}
		sp.Success("Demo room created")

		info := ui.RoomInfo{RoomID: demo.RoomID}
		if demo.Session != nil {
			info.SessionID = demo.Session.ID
			info.JoinHint = fmt.Sprintf("mindconnect join %s --user %s", demo.RoomID, demo.Session.PatientID)
		}
		fmt.Println(info.View())
		return nil
	},
}
