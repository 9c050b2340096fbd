// Command eventclient tails the event feed of a running session and prints
// each event as indented JSON. Useful for watching a live session from a
// terminal while rounds are generated elsewhere.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courtmix/courtmix/scheduler"
)

var (
	flagAddr    = flag.String("addr", "ws://127.0.0.1:8080", "courtmix server WebSocket address")
	flagSession = flag.String("session", "", "Session UUID to watch")
)

var logger = log.New(os.Stdout, "[eventclient] ", log.LstdFlags|log.Lmsgprefix)

func main() {
	flag.Parse()
	if *flagSession == "" {
		logger.Fatal("missing -session")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	url := fmt.Sprintf("%s/v1/sessions/%s/events", *flagAddr, *flagSession)
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		logger.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()
	logger.Printf("Watching session %s", *flagSession)

	go func() {
		<-sigCh
		logger.Println("Received interrupt signal, closing connection...")
		conn.Close()
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Fatalf("Read error: %v", err)
		}

		var evt scheduler.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			logger.Printf("Skipping undecodable message: %v", err)
			continue
		}
		pretty, err := json.MarshalIndent(evt, "", "  ")
		if err != nil {
			logger.Fatalf("Marshal error: %v", err)
		}
		fmt.Println(string(pretty))
	}
}
