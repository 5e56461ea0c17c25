package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"

	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/portal"
)

const defaultHeartbeat = 25 * time.Second

// LiveHandler streams an instance's live collection views as server-sent events.
// Every state change of the view is pushed as one "snapshot" event carrying the
// full data set.
type LiveHandler struct {
	Heartbeat time.Duration
}

// Stream handles GET /api/v1/live/{collection}.
func (h LiveHandler) Stream(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	collection := r.PathValue("collection")
	source, err := inst.Live(collection)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondMessage(ctx, w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	changes := source.Changes(ctx)

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	logger.Info("live stream opened", "collection", collection)
	defer logger.Info("live stream closed", "collection", collection)

	var seq uint64
	send := func(event string, data any) bool {
		seq++
		if err := sse.Encode(w, sse.Event{Event: event, Id: strconv.FormatUint(seq, 10), Data: data}); err != nil {
			logger.Warn("write live event", "collection", collection, "error", err)
			return false
		}
		flusher.Flush()
		return true
	}

	if !send("snapshot", source.Frame()) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-inst.Context().Done():
			return
		case _, ok := <-changes:
			if !ok {
				send("closed", map[string]string{"collection": collection})
				return
			}
			if !send("snapshot", source.Frame()) {
				return
			}
		case <-ticker.C:
			if !send("ping", map[string]int64{"time": time.Now().Unix()}) {
				return
			}
		}
	}
}
