package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/xiangqi-server/internal/wsclient"
	"github.com/park285/xiangqi-server/pkg/xqdto"
)

func main() {
	url := flag.String("url", envOr("XQ_WS_URL", "ws://localhost:8080/ws"), "game socket URL")
	identity := flag.String("id", envOr("XQ_IDENTITY", "xqcheck"), "identity to authenticate as")
	room := flag.String("room", os.Getenv("XQ_ROOM"), "room to join; empty creates one")
	window := flag.Duration("window", 10*time.Second, "how long to print frames")
	flag.Parse()

	c := wsclient.New(*url, wsclient.WithReconnect(3))
	c.OnStateChange(func(s wsclient.State) { log.Printf("WS state: %s", s) })
	c.OnMessage(func(env xqdto.Envelope) {
		if env.Type == xqdto.FrameGameState {
			var st xqdto.GameState
			if err := json.Unmarshal(env.Payload, &st); err == nil {
				fmt.Printf("%s room=%s status=%s turn=%s moves=%d fen=%s\n", env.Type, env.RoomID, st.Status, st.Turn, st.MoveCount, st.FEN)
				return
			}
		}
		fmt.Printf("%s room=%s %s\n", env.Type, env.RoomID, env.Payload)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	if err := c.Send(ctx, xqdto.IntentAuth, *room, xqdto.AuthRequest{Identity: *identity, Name: *identity, RoomID: *room}); err != nil {
		log.Printf("auth send error: %v", err)
		return
	}
	if *room == "" {
		if err := c.Send(ctx, xqdto.IntentCreateRoom, "", xqdto.CreateRoomRequest{}); err != nil {
			log.Printf("create_room send error: %v", err)
			return
		}
	}

	t := time.NewTimer(*window)
	<-t.C
	_ = c.Close(context.Background())
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
