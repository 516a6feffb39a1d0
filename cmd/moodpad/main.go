// Command moodpad is a terminal editor for moodpad documents. It loads and
// saves through cmd/api, rewrites through its /api/rewrite route and joins
// collaboration rooms over the websocket relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"moodpad/internal/collab"
	"moodpad/internal/discovery"
	"moodpad/internal/document"
	"moodpad/internal/editor"
	"moodpad/internal/rewrite"
	"moodpad/internal/storage"
	"moodpad/internal/transport"
	"moodpad/internal/util"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "relays" {
		if err := listRelays(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	var (
		server   = flag.String("server", envOr("MOODPAD_SERVER", "http://localhost:8787"), "moodpad API base URL")
		mode     = flag.String("mode", "happy", "page mode: happy or sad")
		room     = flag.String("room", "", "collaboration room to join")
		view     = flag.Bool("view", false, "join the room read-only")
		discover = flag.Bool("discover", false, "find the server on the local network")
		logFile  = flag.String("log", "", "write logs to this file")
	)
	flag.Parse()

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	} else {
		log.SetOutput(io.Discard)
	}

	tone, err := rewrite.ParseTone(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	base := *server
	if *discover {
		relay, err := firstRelay(3 * time.Second)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		base = fmt.Sprintf("http://%s:%d", relay.Host, relay.Port)
	}
	api := newAPIClient(base)

	key := storage.EditorKey(tone.Mode())
	roomID := ""
	if *room != "" {
		roomID = collab.RoomID(tone.Mode(), *room)
		key = storage.CollabKey(tone.Mode(), *room)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	doc, err := api.document(ctx, key)
	cancel()
	ui := &uiState{}
	if err != nil {
		doc = document.Default()
		ui.setError(fmt.Errorf("could not load %s, starting empty: %w", key, err))
	}

	role := "editor"
	if *view {
		role = "viewer"
	}
	rewriter := rewrite.NewClient(base, rewrite.DefaultTimeout)
	peerID := util.NewID("peer")
	token := ""
	if roomID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		token, err = api.roomToken(ctx, roomID, peerID, role)
		cancel()
		if err != nil {
			ui.setError(fmt.Errorf("join %s: %w", roomID, err))
		} else {
			rewriter = rewriter.InRoom(roomID, token)
		}
	}

	ed := editor.New(doc, editor.Options{
		Tone:     tone,
		Rewriter: rewriter,
		ReadOnly: *view && roomID != "",
		OnError:  ui.setError,
		OnStatus: func(s collab.Status) { ui.link = s },
	})
	defer ed.Close()
	if err := ed.MoveToEnd(); err != nil {
		ui.setError(err)
	}

	if token != "" {
		if err := ed.JoinRoom(context.Background(), roomID, transport.NewWebSocket(api.relayURL(), token), peerID); err != nil {
			ui.setError(fmt.Errorf("join %s: %w", roomID, err))
		}
	}

	p := tea.NewProgram(newModel(ed, api, key, tone.Mode(), *room, ui), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func listRelays(args []string) error {
	fs := flag.NewFlagSet("relays", flag.ExitOnError)
	wait := fs.Duration("wait", 3*time.Second, "how long to listen")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()
	relays, err := discovery.Browse(ctx)
	if err != nil {
		return err
	}
	if len(relays) == 0 {
		fmt.Println("no relays found")
		return nil
	}
	for _, r := range relays {
		fmt.Printf("%s\t%s\t%s\n", r.Instance, r.URL(), r.Version)
	}
	return nil
}

func firstRelay(wait time.Duration) (discovery.Relay, error) {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	relays, err := discovery.Browse(ctx)
	if err != nil {
		return discovery.Relay{}, err
	}
	if len(relays) == 0 {
		return discovery.Relay{}, fmt.Errorf("no moodpad server found on the local network")
	}
	return relays[0], nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
