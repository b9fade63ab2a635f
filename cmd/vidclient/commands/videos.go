package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/vidclient/internal/app"
)

func videosCommand() *cli.Command {
	return &cli.Command{
		Name:  "videos",
		Usage: "list the dashboard",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withClient(ctx, cmd, func(c *app.Client) error {
				videos, err := c.Backend.Videos(ctx)
				if err != nil {
					return failed(err, "Could not load videos")
				}

				w := cmd.Root().Writer
				if len(videos) == 0 {
					fmt.Fprintln(w, "No videos yet")
					return nil
				}

				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE")
				for _, v := range videos {
					fmt.Fprintf(tw, "%s\t%s\n", v.ID, v.Title)
				}
				return tw.Flush()
			})
		},
	}
}

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "resolve the player URL of a video",
		ArgsUsage: "<video-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			videoID := cmd.Args().First()
			if videoID == "" {
				return errors.New("missing video id")
			}

			return withClient(ctx, cmd, func(c *app.Client) error {
				stream, err := c.Backend.Play(ctx, videoID)
				if err != nil {
					return failed(err, "Could not start playback")
				}

				w := cmd.Root().Writer
				fmt.Fprintln(w, stream.PlayerURL())
				if stream.WatchURL != nil && *stream.WatchURL != "" {
					fmt.Fprintf(w, "watch: %s\n", *stream.WatchURL)
				}
				return nil
			})
		},
	}
}
