package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"fontshelf/internal/collection"
	"fontshelf/internal/fontcache"
)

const eventsHeartbeat = 30 * time.Second

type fontEvent struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type fontsChangedEvent struct {
	Updated []string `json:"updated,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
}

// Events streams sample text changes, decode results and collection
// changes as server-sent events.
func (h *Handler) Events(c echo.Context) error {
	texts, stopText := h.text.Subscribe()
	defer stopText()
	fonts, stopFonts := h.registry.Subscribe()
	defer stopFonts()

	changes := make(chan collection.Change, 16)
	removeListener := h.store.AddListener(func(ch collection.Change) {
		select {
		case changes <- ch:
		default:
		}
	})
	defer removeListener()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	send := func(event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	if err := send("sample-text", map[string]string{"text": h.text.Text()}); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil
		case t, ok := <-texts:
			if !ok {
				return nil
			}
			err = send("sample-text", map[string]string{"text": t})
		case ev, ok := <-fonts:
			if !ok {
				return nil
			}
			switch ev.State {
			case fontcache.StateReady:
				err = send("font-ready", fontEvent{ID: ev.ID})
			case fontcache.StateFailed:
				msg := ""
				if ev.Err != nil {
					msg = ev.Err.Error()
				}
				err = send("font-failed", fontEvent{ID: ev.ID, Error: msg})
			}
		case ch := <-changes:
			err = send("fonts-changed", fontsChangedEvent{Updated: ch.Updated, Deleted: ch.Deleted})
		case <-heartbeat.C:
			_, err = fmt.Fprint(res, ": ping\n\n")
			res.Flush()
		}
		if err != nil {
			return nil
		}
	}
}
