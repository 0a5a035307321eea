package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"photo-indexer/internal/events"
	"photo-indexer/internal/indexer"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/streaming"
)

// StartScan launches a scan and answers 202 with its token.
func (h *Handlers) StartScan(w http.ResponseWriter, r *http.Request) {
	var req indexer.ScanRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	token, err := h.lib.StartScan(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/scans/"+token)
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"token": token})
}

func (h *Handlers) ListScans(w http.ResponseWriter, _ *http.Request) {
	active := h.lib.ActiveScans()
	if active == nil {
		active = []indexer.Summary{}
	}
	writeJSONStatus(w, http.StatusOK, active)
}

func (h *Handlers) GetScan(w http.ResponseWriter, r *http.Request) {
	sum, err := h.lib.ScanStatus(mux.Vars(r)["token"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, sum)
}

func (h *Handlers) CancelScan(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.CancelScan(mux.Vars(r)["token"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ScanEvents streams a scan's progress as Server-Sent Events. The stream
// starts with the latest event and ends after the terminal one.
func (h *Handlers) ScanEvents(w http.ResponseWriter, r *http.Request) {
	sub, err := h.lib.Subscribe(mux.Vars(r)["token"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer sub.Close()

	ew, err := streaming.NewEventWriter(w, h.stream)
	if err != nil {
		writeError(w, r, err)
		return
	}

	seq := 0
	err = streaming.Pump(r.Context(), ew, sub.Events(), func(ev events.Event) (streaming.Message, error) {
		seq++
		data, err := json.Marshal(ev)
		return streaming.Message{ID: strconv.Itoa(seq), Event: string(ev.Kind), Data: data}, err
	})
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logging.Warn("Event stream for %s ended: %v", sub.Token(), err)
	}
}
