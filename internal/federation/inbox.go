package federation

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"quasiboard/internal/followers"
	"quasiboard/internal/httpsig"
	"quasiboard/internal/ledger"
)

type inboxResponse struct {
	LedgerEntry int    `json:"ledger_entry"`
	EntryHash   string `json:"entry_hash"`
}

// inboxHandler implements POST /quasi-board/inbox: verification,
// activity dispatch, and publication of the resulting ledger entry to
// followers.
func inboxHandler(cfg Config, delivery *deliveryManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := bodyBytes(r)

		if r.Header.Get("Signature") != "" {
			headers := r.Header.Clone()
			headers.Set("Host", r.Host)
			err := cfg.Sig.Verify(r.Context(), httpsig.VerifyInput{
				Method:  r.Method,
				Path:    r.URL.EscapedPath(),
				Headers: headers,
				Body:    body,
			})
			if err != nil {
				writeError(w, handleError(err))
				return
			}
		} else if !isLoopback(r) {
			writeError(w, newAPIError(http.StatusUnauthorized, "auth_error", "unsigned activities are only accepted from loopback", nil))
			return
		}

		act, err := parseActivity(body)
		if err != nil {
			writeError(w, handleError(err))
			return
		}

		switch act.typ() {
		case "Announce":
			handleAnnounce(w, r, cfg, delivery, act)
		case "Create":
			handleCreateCompletion(w, r, cfg, delivery, act)
		case "Follow":
			handleFollow(w, r, cfg, delivery, act)
		case "Undo":
			handleUndo(w, cfg, act)
		default:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		}
	}
}

func handleAnnounce(w http.ResponseWriter, r *http.Request, cfg Config, delivery *deliveryManager, act activity) {
	taskID := act.str("quasi:taskId")
	if taskID == "" {
		writeError(w, handleError(&ValidationError{Reason: "Announce missing quasi:taskId"}))
		return
	}
	agent := act.actorOf()
	if agent == "" {
		writeError(w, handleError(&ValidationError{Reason: "Announce missing actor"}))
		return
	}
	ts := parseActivityTimestamp(act.str("published"))

	entry, err := cfg.Ledger.AppendClaim(agent, taskID, ts)
	if err != nil {
		writeError(w, handleError(err))
		return
	}
	publish(cfg, delivery, entry)
	writeJSON(w, http.StatusOK, inboxResponse{LedgerEntry: entry.ID, EntryHash: entry.EntryHash})
}

func handleCreateCompletion(w http.ResponseWriter, r *http.Request, cfg Config, delivery *deliveryManager, act activity) {
	if act.str("quasi:type") != "completion" {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	taskID := act.str("quasi:taskId")
	commitHash := act.str("quasi:commitHash")
	prURL := act.str("quasi:prUrl")
	agent := act.actorOf()
	if taskID == "" || commitHash == "" || agent == "" {
		writeError(w, handleError(&ValidationError{Reason: "completion missing quasi:taskId, quasi:commitHash, or actor"}))
		return
	}
	ts := parseActivityTimestamp(act.str("published"))

	entry, err := cfg.Ledger.AppendCompletion(agent, taskID, commitHash, prURL, nil, ts)
	if err != nil {
		writeError(w, handleError(err))
		return
	}
	publish(cfg, delivery, entry)
	writeJSON(w, http.StatusOK, inboxResponse{LedgerEntry: entry.ID, EntryHash: entry.EntryHash})
}

func handleFollow(w http.ResponseWriter, r *http.Request, cfg Config, delivery *deliveryManager, act activity) {
	actorID := act.actorOf()
	if actorID == "" {
		writeError(w, handleError(&ValidationError{Reason: "Follow missing actor"}))
		return
	}
	resolved, err := ResolveActor(r.Context(), cfg.HTTPClient, actorID)
	if err != nil {
		writeError(w, handleError(err))
		return
	}
	rec := followers.Record{
		ActorID:      actorID,
		InboxURL:     resolved.InboxURL,
		PublicKeyPEM: resolved.PublicKeyPEM,
		AddedAt:      time.Now().UTC(),
	}
	if err := cfg.Followers.Add(rec); err != nil {
		writeError(w, handleError(&ledger.StorageError{Err: err}))
		return
	}
	delivery.enqueue(rec, buildAcceptActivity(cfg.actorURL(), act))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func handleUndo(w http.ResponseWriter, cfg Config, act activity) {
	inner := act.objectOf()
	if inner == nil || inner.typ() != "Follow" {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	actorID := inner.actorOf()
	if actorID == "" {
		actorID = act.actorOf()
	}
	if err := cfg.Followers.Remove(actorID); err != nil {
		log.Printf("federation: removing follower %s failed: %v", actorID, err)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func parseActivityTimestamp(published string) time.Time {
	if published == "" {
		return time.Now().UTC()
	}
	ts, err := ledger.ParseTimestamp(published)
	if err != nil {
		return time.Now().UTC()
	}
	return ts
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	type statusError interface {
		GetStatus() int
	}
	status := http.StatusInternalServerError
	if se, ok := err.(statusError); ok {
		status = se.GetStatus()
	}
	var body apiErrorBody
	if ae, ok := err.(*apiError); ok {
		body = ae.Body
	} else {
		body = apiErrorBody{Code: defaultCodeForStatus(status), Message: err.Error()}
	}
	writeJSON(w, status, map[string]apiErrorBody{"error": body})
}
