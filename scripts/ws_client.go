// Package main runs a demo WebSocket client: it subscribes to /ws/plans,
// requests a generated plan and prints its events until it completes.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type planEvent struct {
	Type string `json:"type"`
	Plan struct {
		ID         string  `json:"id"`
		Routes     int     `json:"routes"`
		Assigned   int     `json:"assigned"`
		Unassigned int     `json:"unassigned"`
		DistanceM  float64 `json:"distanceM"`
	} `json:"plan"`
	Error string `json:"error"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	count := "40"
	if len(os.Args) > 1 {
		count = os.Args[1]
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws/plans"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	send := func(m wsMessage) {
		if err := c.WriteJSON(m); err != nil {
			log.Fatal(err)
		}
	}
	send(wsMessage{Type: "connection_init"})
	send(wsMessage{Type: "subscribe", ID: "1", Payload: []byte(`{}`)})
	send(wsMessage{Type: "ping"})

	// wait for the pong so the subscription is live before planning
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Fatal(err)
		}
		if m.Type == "pong" {
			break
		}
	}

	body := []byte(fmt.Sprintf(`{"generate":{"count":%s,"seed":%d}}`, count, time.Now().Unix()))
	resp, err := http.Post("http://localhost:"+port+"/v1/plans?async=true", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	var accepted struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&accepted)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("plan request failed: %s", resp.Status)
	}
	log.Printf("Plan ID: %s", accepted.ID)

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Minute))
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Fatal(err)
		}
		switch m.Type {
		case "ping":
			send(wsMessage{Type: "pong"})
		case "next":
			var evt planEvent
			if err := json.Unmarshal(m.Payload, &evt); err != nil {
				log.Printf("bad event: %v", err)
				continue
			}
			if evt.Plan.ID != accepted.ID {
				continue
			}
			log.Printf("%s routes=%d assigned=%d unassigned=%d distance=%.0fm %s",
				evt.Type, evt.Plan.Routes, evt.Plan.Assigned, evt.Plan.Unassigned, evt.Plan.DistanceM, evt.Error)
			if evt.Type == "plan.completed" || evt.Type == "plan.failed" {
				send(wsMessage{Type: "complete", ID: "1"})
				return
			}
		}
	}
}
