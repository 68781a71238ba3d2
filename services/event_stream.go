// services/event_stream.go
package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"stake-escrow/escrow"

	"github.com/gofiber/fiber/v2"
)

// StreamMatchEvents streams the events of one match as server-sent events.
// The stream starts after ?after= (default: from the beginning) and ends
// after the winner_declared event or when the client disconnects.
func (s *EscrowService) StreamMatchEvents(c *fiber.Ctx) error {
	gameID, err := gameIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	cursor := uint64(c.QueryInt("after", 0))
	interval := s.StreamInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx := c.Context()

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			events, err := s.Backend.Events(ctx, EventQuery{GameID: &gameID, AfterSeq: cursor, Limit: maxEventLimit})
			if err != nil {
				log.Printf("[ESCROW_SSE] query error for game %d: %v", gameID, err)
			}
			finished := false
			for _, e := range events {
				payload, _ := json.Marshal(e)
				fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Type, payload)
				cursor = e.Seq
				if e.Type == escrow.EventWinnerDeclared {
					finished = true
				}
			}
			if len(events) == 0 {
				w.WriteString(": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				// Client disconnected
				return
			}
			if finished {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	})
	return nil
}
