package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/NordCoder/Herald/internal/services/inappbus"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	// Subscribe only hears publishes from this process; the dispatcher and scheduler
	// binaries append to the shared log without signalling, so the stream also polls.
	wsPollPeriod = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type gapBody struct {
	Error    string `json:"error"`
	Earliest int64  `json:"earliest"`
}

func queryInt(r *http.Request, key string) (int64, bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", notification.ErrInvalid, key, err)
	}
	return n, true, nil
}

// readInbox pages a consumer group. Without after it continues from the committed offset.
func (s *Server) readInbox(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	userID := r.URL.Query().Get("user_id")
	limit, _, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	after, hasAfter, err := queryInt(r, "after")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var page inappbus.Page
	if hasAfter {
		page, err = s.deps.Bus.ReadSince(r.Context(), group, after, int(limit), userID)
	} else {
		page, err = s.deps.Bus.Next(r.Context(), group, int(limit), userID)
	}
	if gap, ok := inappbus.IsGap(err); ok {
		writeJSON(w, http.StatusConflict, gapBody{Error: gap.Error(), Earliest: gap.Earliest})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type wsFrame struct {
	Type     string       `json:"type"`
	Entry    *inapp.Entry `json:"entry,omitempty"`
	Earliest int64        `json:"earliest,omitempty"`
}

// streamInbox pushes new entries for the group as they are published. A group that falls
// behind eviction gets a resync frame and continues from the earliest retained entry.
func (s *Server) streamInbox(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	userID := r.URL.Query().Get("user_id")
	if group == "" {
		s.fail(w, r, fmt.Errorf("%w: group is required", notification.ErrInvalid))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()
	log := s.log.With(zap.String("group", group), zap.String("user_id", userID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the client sends nothing useful; reading keeps pongs flowing and notices close
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("websocket read", zap.Error(err))
				}
				return
			}
		}
	}()

	signal, unsubscribe := s.deps.Bus.Subscribe(group)
	defer unsubscribe()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	poll := time.NewTicker(wsPollPeriod)
	defer poll.Stop()

	write := func(f wsFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(f)
	}

	for {
		if err := s.drain(ctx, group, userID, write); err != nil {
			log.Warn("inbox stream stopped", zap.Error(err))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stream failed"), time.Now().Add(wsWriteWait))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-signal:
		case <-poll.C:
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain reads the group until it stops advancing.
func (s *Server) drain(ctx context.Context, group, userID string, write func(wsFrame) error) error {
	prev := int64(-1)
	for ctx.Err() == nil {
		page, err := s.deps.Bus.Next(ctx, group, 0, userID)
		if gap, ok := inappbus.IsGap(err); ok {
			if err := write(wsFrame{Type: "resync", Earliest: gap.Earliest}); err != nil {
				return err
			}
			if err := s.deps.Bus.Reset(ctx, group, gap.Earliest-1); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		for i := range page.Entries {
			if err := write(wsFrame{Type: "entry", Entry: &page.Entries[i]}); err != nil {
				return err
			}
		}
		if page.Next == prev {
			return nil
		}
		prev = page.Next
	}
	return nil
}
