package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newIslandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "islands",
		Short: "List islands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result IslandList

			if err := client.Get(cmd.Context(), "/api/v1/islands", &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newIslandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "island",
		Short: "Island commands",
	}

	cmd.AddCommand(newIslandGetCmd())
	cmd.AddCommand(newIslandCreateCmd())

	return cmd
}

func newIslandGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <island-id>",
		Short: "Show one island",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Island

			if err := client.Get(cmd.Context(), "/api/v1/islands/"+url.PathEscape(args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newIslandCreateCmd() *cobra.Command {
	var (
		x, y, z    float64
		radius     float64
		islandType string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an island and announce it to connected players",
		Long: `Create an island at the given position. The server fills in a radius of 50
and the "default" type when they are not given.

Requires --admin-token when the server is configured with an admin token hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := CreateIslandRequest{
				Position: Vec3{X: x, Y: y, Z: z},
				Type:     islandType,
			}
			if cmd.Flags().Changed("radius") {
				if radius <= 0 {
					return fmt.Errorf("--radius must be positive")
				}
				req.Radius = &radius
			}

			var result Island
			if err := client.Post(cmd.Context(), "/api/v1/admin/islands", req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().Float64Var(&x, "x", 0, "X coordinate")
	cmd.Flags().Float64Var(&y, "y", 0, "Y coordinate")
	cmd.Flags().Float64Var(&z, "z", 0, "Z coordinate")
	cmd.Flags().Float64Var(&radius, "radius", 0, "Island radius (server default 50)")
	cmd.Flags().StringVar(&islandType, "type", "", "Island type (server default \"default\")")

	return cmd
}

func newLeaderboardCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top players for each counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/leaderboard"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}

			var result Leaderboard
			if err := client.Get(cmd.Context(), path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Entries per counter (server default when unset)")

	return cmd
}

func newMessagesCmd() *cobra.Command {
	var (
		messageType string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Show recent chat messages, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("type", messageType)
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			var result MessageList
			if err := client.Get(cmd.Context(), "/api/v1/messages?"+q.Encode(), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&messageType, "type", "global", "Message type")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of messages (1-100)")

	return cmd
}
