package federation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"
)

type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Merged         bool   `json:"merged"`
		MergeCommitSHA string `json:"merge_commit_sha"`
		HTMLURL        string `json:"html_url"`
		Body           string `json:"body"`
		Title          string `json:"title"`
		User           struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"pull_request"`
}

var (
	contributionAgentRe = regexp.MustCompile(`(?m)^Contribution-Agent:\s*(.+)$`)
	taskRe              = regexp.MustCompile(`(?m)^Task:\s*(\S+)`)
	verificationRe      = regexp.MustCompile(`(?m)^Verification:\s*(.+)$`)
)

// webhookHandler implements POST /quasi-board/github-webhook: HMAC
// verification, the pull_request-event and merged-PR filters, and
// footer parsing.
func webhookHandler(cfg Config, delivery *deliveryManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := bodyBytes(r)

		if !verifyWebhookSignature(cfg.WebhookSecret, r.Header.Get("X-Hub-Signature-256"), body) {
			log.Printf("webhook: signature mismatch, rejecting delivery")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "signature mismatch"})
			return
		}

		if r.Header.Get("X-GitHub-Event") != "pull_request" {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		var payload pullRequestPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "malformed body"})
			return
		}

		if payload.Action != "closed" || !payload.PullRequest.Merged {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		agent, taskID, ok := parseFooter(payload.PullRequest.Body)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		metadata := map[string]string{}
		if payload.PullRequest.User.Login != "" {
			metadata["contributor_github"] = payload.PullRequest.User.Login
		}
		if payload.PullRequest.Title != "" {
			metadata["pr_title"] = payload.PullRequest.Title
		}
		metadata["verification"] = "ci-pass"

		entry, err := cfg.Ledger.AppendCompletion(agent, taskID, payload.PullRequest.MergeCommitSHA, payload.PullRequest.HTMLURL, metadata, time.Now().UTC())
		if err != nil {
			writeError(w, handleError(err))
			return
		}
		publish(cfg, delivery, entry)
		writeJSON(w, http.StatusAccepted, inboxResponse{LedgerEntry: entry.ID, EntryHash: entry.EntryHash})
	}
}

func verifyWebhookSignature(secret []byte, header string, body []byte) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	got := mac.Sum(nil)
	return hmac.Equal(want, got)
}

// parseFooter extracts the three required footer lines from a PR
// body: Contribution-Agent, Task, and a Verification line that reads
// exactly "ci-pass". Any missing line means the PR is silently
// ignored.
func parseFooter(prBody string) (agent, taskID string, ok bool) {
	am := contributionAgentRe.FindStringSubmatch(prBody)
	tm := taskRe.FindStringSubmatch(prBody)
	vm := verificationRe.FindStringSubmatch(prBody)
	if am == nil || tm == nil || vm == nil {
		return "", "", false
	}
	if strings.TrimSpace(vm[1]) != "ci-pass" {
		return "", "", false
	}
	return strings.TrimSpace(am[1]), strings.TrimSpace(tm[1]), true
}
