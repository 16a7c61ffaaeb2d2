package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/storylineapp/storyline-core/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show playback state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var loadCmd = &cobra.Command{
	Use:   "load [book-id]",
	Short: "Load a book for playback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var state api.PlaybackStateResponse
		if err := c.post("/api/v1/playback/load", map[string]any{"book_id": args[0]}, &state); err != nil {
			return err
		}
		return printState(state)
	},
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start playback",
	Args:  cobra.NoArgs,
	RunE:  simplePlaybackAction("/api/v1/playback/play"),
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback",
	Args:  cobra.NoArgs,
	RunE:  simplePlaybackAction("/api/v1/playback/pause"),
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle play/pause",
	Args:  cobra.NoArgs,
	RunE:  simplePlaybackAction("/api/v1/playback/toggle"),
}

var seekCmd = &cobra.Command{
	Use:   "seek [section] [entry]",
	Short: "Seek to a timing entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		section, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("section must be a number: %w", err)
		}
		entry, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("entry must be a number: %w", err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		var state api.PlaybackStateResponse
		if err := c.post("/api/v1/playback/seek", map[string]any{"section": section, "entry": entry}, &state); err != nil {
			return err
		}
		return printState(state)
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip [seconds]",
	Short: "Skip forward or backward",
	Long:  "Skips the given number of seconds; negative values skip backward.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("seconds must be a number: %w", err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		var state api.PlaybackStateResponse
		if err := c.post("/api/v1/playback/skip", map[string]any{"seconds": seconds}, &state); err != nil {
			return err
		}
		return printState(state)
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate [multiplier]",
	Short: "Set the playback rate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rate, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("rate must be a number: %w", err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		var state api.PlaybackStateResponse
		if err := c.post("/api/v1/playback/rate", map[string]any{"rate": rate}, &state); err != nil {
			return err
		}
		return printState(state)
	},
}

var volumeCmd = &cobra.Command{
	Use:   "volume [level]",
	Short: "Set the volume (0 to 1)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		volume, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("volume must be a number: %w", err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		var state api.PlaybackStateResponse
		if err := c.post("/api/v1/playback/volume", map[string]any{"volume": volume}, &state); err != nil {
			return err
		}
		return printState(state)
	},
}

var (
	sleepChapter bool

	sleepCmd = &cobra.Command{
		Use:   "sleep [minutes]",
		Short: "Arm, inspect or cancel the sleep timer",
		Long: `With no arguments, shows the current sleep timer.
With a minute count, arms a fixed timer; 0 uses the configured default.
With --chapter, pauses at the end of the current chapter.
Use "sleep off" to cancel.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSleep,
	}
)

func init() {
	sleepCmd.Flags().BoolVar(&sleepChapter, "chapter", false, "pause at the end of the current chapter")

	rootCmd.AddCommand(statusCmd, loadCmd, playCmd, pauseCmd, toggleCmd,
		seekCmd, skipCmd, rateCmd, volumeCmd, sleepCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var state api.PlaybackStateResponse
	if err := c.get("/api/v1/playback", &state); err != nil {
		return err
	}
	return printState(state)
}

func runSleep(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var status struct {
		Mode             string `json:"mode"`
		RemainingSeconds int    `json:"remaining_seconds"`
	}

	switch {
	case len(args) == 0 && !sleepChapter:
		if err := c.get("/api/v1/sleep", &status); err != nil {
			return err
		}
	case len(args) == 1 && args[0] == "off":
		if err := c.do(http.MethodDelete, "/api/v1/sleep", nil, &status); err != nil {
			return err
		}
	default:
		body := map[string]any{"at_chapter_end": sleepChapter}
		if len(args) == 1 {
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("minutes must be a number: %w", err)
			}
			body["minutes"] = minutes
		}
		if err := c.post("/api/v1/sleep", body, &status); err != nil {
			return err
		}
	}

	switch status.Mode {
	case "off":
		fmt.Println("sleep timer off")
	case "chapter":
		fmt.Println("sleeping at chapter end")
	default:
		fmt.Printf("sleeping in %s\n", fmtDuration(float64(status.RemainingSeconds)))
	}
	return nil
}

func simplePlaybackAction(path string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var state api.PlaybackStateResponse
		if err := c.post(path, nil, &state); err != nil {
			return err
		}
		return printState(state)
	}
}

func printState(state api.PlaybackStateResponse) error {
	if !state.Loaded || state.Snapshot == nil {
		fmt.Println("no book loaded")
		return nil
	}

	snap := state.Snapshot
	verb := "paused"
	if snap.IsPlaying {
		verb = "playing"
	}

	fmt.Printf("%s  %s\n", verb, snap.Title)
	if snap.ChapterLabel != "" {
		fmt.Printf("  chapter: %s (%s / %s)\n", snap.ChapterLabel,
			fmtDuration(snap.ChapterElapsed), fmtDuration(snap.ChapterTotal))
	}
	fmt.Printf("  book:    %s / %s\n", fmtDuration(snap.BookElapsed), fmtDuration(snap.BookTotal))
	fmt.Printf("  rate %.2gx, volume %.0f%%\n", snap.Rate, snap.Volume*100)
	return nil
}
