// Package main provides the player control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/nextwave/internal/api/connect"
	"github.com/osa030/nextwave/internal/domain/track"
)

var (
	app    = kingpin.New("nextwave-playerctl", "nextwave player control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Player token (or set PLAYER_TOKEN env)").Envar("PLAYER_TOKEN").String()

	statusCmd           = app.Command("status", "Show player status")
	statusCheckResolver = statusCmd.Flag("check-resolver", "Also check the resolver health").Bool()

	playCmd   = app.Command("play", "Start or resume playback")
	pauseCmd  = app.Command("pause", "Pause playback")
	toggleCmd = app.Command("toggle", "Toggle play/pause")
	nextCmd   = app.Command("next", "Skip to the next track")
	prevCmd   = app.Command("prev", "Go back to the previous track").Alias("previous")

	seekCmd      = app.Command("seek", "Seek within the current track")
	seekPosition = seekCmd.Arg("seconds", "Position in seconds").Required().Float64()

	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume between 0 and 1").Required().Float64()

	enqueueCmd      = app.Command("enqueue", "Add a track to the queue").Alias("add")
	enqueueID       = enqueueCmd.Arg("track-id", "Track ID").Required().String()
	enqueueTitle    = enqueueCmd.Flag("title", "Track title").String()
	enqueueArtist   = enqueueCmd.Flag("artist", "Track artist").String()
	enqueueDuration = enqueueCmd.Flag("duration", "Track duration in seconds").Float64()

	selectCmd   = app.Command("select", "Play the track at a queue index")
	selectIndex = selectCmd.Arg("index", "Queue index (0-based)").Required().Int()

	removeCmd = app.Command("remove", "Remove a track from the queue")
	removeID  = removeCmd.Arg("track-id", "Track ID").Required().String()

	shuffleCmd     = app.Command("shuffle", "Enable or disable shuffle")
	shuffleEnabled = shuffleCmd.Arg("enabled", "on or off").Required().Enum("on", "off")

	repeatCmd  = app.Command("repeat", "Set the repeat mode, or cycle it when no mode is given")
	repeatMode = repeatCmd.Arg("mode", "none, all or one").Enum("none", "all", "one")

	searchCmd   = app.Command("search", "Search tracks")
	searchQuery = searchCmd.Arg("query", "Search query").Required().String()
	searchLimit = searchCmd.Flag("limit", "Maximum number of results").Default("10").Int()

	watchCmd = app.Command("watch", "Stream player notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewPlayerClient(http.DefaultClient, *server)
	header := http.Header{}
	if *token != "" {
		header.Set(apiconnect.PlayerTokenHeader, *token)
	}

	ctx := context.Background()

	switch command {
	case statusCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServiceGetStatusProcedure,
			map[string]any{"check_resolver": *statusCheckResolver}))
	case playCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServicePlayProcedure, nil))
	case pauseCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServicePauseProcedure, nil))
	case toggleCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServiceToggleProcedure, nil))
	case nextCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServiceNextProcedure, nil))
	case prevCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServicePreviousProcedure, nil))
	case seekCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServiceSeekProcedure,
			map[string]any{"position_sec": *seekPosition}))
	case volumeCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServiceSetVolumeProcedure,
			map[string]any{"volume": *volumeLevel}))
	case enqueueCmd.FullCommand():
		enqueue(ctx, client, header)
	case selectCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServiceSelectProcedure,
			map[string]any{"index": *selectIndex}))
	case removeCmd.FullCommand():
		res := call(ctx, client, header, apiconnect.PlayerServiceRemoveProcedure, map[string]any{"id": *removeID})
		if removed, _ := res["removed"].(bool); removed {
			fmt.Printf("Removed %s\n", *removeID)
		} else {
			fmt.Printf("%s is not in the queue\n", *removeID)
		}
	case shuffleCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServiceSetShuffleProcedure,
			map[string]any{"enabled": *shuffleEnabled == "on"}))
	case repeatCmd.FullCommand():
		printStatus(call(ctx, client, header, apiconnect.PlayerServiceSetRepeatModeProcedure,
			map[string]any{"mode": *repeatMode}))
	case searchCmd.FullCommand():
		search(ctx, client, header)
	case watchCmd.FullCommand():
		watch(ctx, client, header)
	}
}

func call(ctx context.Context, client *apiconnect.PlayerClient, header http.Header, procedure string, msg map[string]any) map[string]any {
	res, err := client.Call(ctx, procedure, msg, header)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return res
}

func enqueue(ctx context.Context, client *apiconnect.PlayerClient, header http.Header) {
	res := call(ctx, client, header, apiconnect.PlayerServiceEnqueueProcedure, map[string]any{
		"id":           *enqueueID,
		"title":        *enqueueTitle,
		"artist":       *enqueueArtist,
		"duration_sec": *enqueueDuration,
	})

	if added, _ := res["added"].(bool); !added {
		fmt.Printf("Rejected [%v]: %v\n", res["code"], res["message"])
		return
	}
	fmt.Printf("Success: %v\n", res["message"])
	if started, _ := res["started"].(bool); started {
		fmt.Println("Playback started")
	}
	if msg, ok := res["error"]; ok {
		fmt.Printf("Failed to start playback: %v\n", msg)
	}
}

func search(ctx context.Context, client *apiconnect.PlayerClient, header http.Header) {
	res := call(ctx, client, header, apiconnect.PlayerServiceSearchProcedure, map[string]any{
		"query": *searchQuery,
		"limit": *searchLimit,
	})

	results, _ := res["results"].([]any)
	if len(results) == 0 {
		fmt.Println("No results")
		return
	}
	for i, r := range results {
		item, _ := r.(map[string]any)
		fmt.Printf("%2d. %-12v %6s  %v\n", i+1, item["id"], duration(item["duration_sec"]), item["title"])
	}
}

func watch(ctx context.Context, client *apiconnect.PlayerClient, header http.Header) {
	stream, err := client.Subscribe(ctx, nil, header)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Watching player notifications. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		os.Exit(0)
	}()

	for stream.Receive() {
		printNotification(stream.Msg().AsMap())
	}

	if err := stream.Err(); err != nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printNotification(n map[string]any) {
	fmt.Printf("\n[Sequence: %v] ", n["sequence_no"])
	payload, _ := n["payload"].(map[string]any)

	switch n["type"] {
	case "status":
		if initial, _ := payload["initial"].(bool); initial {
			fmt.Println("=== INITIAL STATE ===")
		} else {
			fmt.Println("=== STATUS ===")
		}
		printStatus(payload)
	case "command":
		fmt.Printf("=== COMMAND ===\n  %v %v %v\n", payload["action"], payload["backend"], payload["source"])
	case "error":
		fmt.Printf("=== ERROR ===\n  %v\n", payload["error"])
	default:
		fmt.Printf("=== UNKNOWN EVENT (%v) ===\n", n["type"])
	}
}

func printStatus(s map[string]any) {
	fmt.Println("\n=== PLAYER STATUS ===")
	fmt.Printf("State: %s\n", formatState(s["state"]))
	fmt.Printf("Backend: %v\n", s["backend"])
	fmt.Printf("Volume: %v\n", s["volume"])
	fmt.Printf("Shuffle: %v  Repeat: %v\n", s["shuffle"], s["repeat_mode"])
	if r, ok := s["resolver"]; ok {
		fmt.Printf("Resolver: %v\n", r)
	}

	if t, ok := s["track"].(map[string]any); ok {
		fmt.Println("\nCurrent Track:")
		fmt.Printf("  Track ID: %v\n", t["id"])
		fmt.Printf("  Title: %v\n", t["title"])
		if artist, _ := t["artist"].(string); artist != "" {
			fmt.Printf("  Artist: %s\n", artist)
		}
		fmt.Printf("  URL: %v\n", t["url"])
		if total := seconds(s["total_sec"]); total > 0 {
			fmt.Printf("  Position: %s / %s\n", duration(s["elapsed_sec"]), duration(s["total_sec"]))
		}
	} else {
		fmt.Println("\nNo track loaded")
	}
	if msg, ok := s["error"]; ok {
		fmt.Printf("Error: %v\n", msg)
	}

	queue, _ := s["queue"].([]any)
	if len(queue) > 0 {
		current := int(seconds(s["current_index"]))
		preloaded, _ := s["preloaded_track"].(string)
		fmt.Printf("\nQueue (%d):\n", len(queue))
		for i, q := range queue {
			t, _ := q.(map[string]any)
			marker := "  "
			if i == current {
				marker = "> "
			}
			suffix := ""
			if preloaded != "" && t["id"] == preloaded {
				suffix = " (preloaded)"
			}
			fmt.Printf("%s%2d. %-12v %6s  %v%s\n", marker, i, t["id"], duration(t["duration_sec"]), t["title"], suffix)
		}
	}
	fmt.Println()
}

func formatState(state any) string {
	switch state {
	case "idle":
		return "⏹  Idle"
	case "loading":
		return "⏳ Loading"
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "ended":
		return "🔚 Ended"
	case "error":
		return "⚠️  Error"
	default:
		return "❓ Unknown"
	}
}

func seconds(v any) float64 {
	f, _ := v.(float64)
	return f
}

func duration(v any) string {
	return track.FormatDuration(time.Duration(seconds(v) * float64(time.Second)))
}
