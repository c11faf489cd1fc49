package operations

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
	"github.com/louisbranch/opsroom/internal/platform/requestctx"
	"github.com/louisbranch/opsroom/internal/platform/timeouts"
)

// watch streams live encounter events over a websocket until the client
// leaves or falls behind.
func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	encounterID := r.PathValue("encounterID")
	if h.live == nil {
		h.writeError(w, r, apperrors.New(apperrors.CodeUnknown, "live feed is not configured"))
		return
	}
	ctx, cancel := h.withTimeout(r)
	err := h.service.AuthorizeWatch(ctx, encounterID, requestctx.UserIDFromContext(r.Context()))
	cancel()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.WarnContext(r.Context(), "accept live watcher", slog.String("encounter_id", encounterID), slog.Any("err", err))
		return
	}
	defer conn.CloseNow()

	sub := h.live.Subscribe(encounterID)
	defer sub.Close()
	h.logger.DebugContext(r.Context(), "live watcher joined", slog.String("encounter_id", encounterID))

	// Watchers only receive; CloseRead handles control frames and cancels
	// streamCtx when the peer goes away.
	streamCtx := conn.CloseRead(r.Context())
	for {
		select {
		case <-streamCtx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusTryAgainLater, "live feed closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(streamCtx, timeouts.LiveWrite)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				h.logger.DebugContext(r.Context(), "live watcher write failed", slog.String("encounter_id", encounterID), slog.Any("err", err))
				return
			}
		}
	}
}
