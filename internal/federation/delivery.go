package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"quasiboard/internal/followers"
	"quasiboard/internal/httpsig"
)

// backoffSchedule is the exponential backoff delay before each retry
// attempt. maxAttempts is the total number of POSTs attempted,
// including the first.
var backoffSchedule = []time.Duration{time.Second, 5 * time.Second, 25 * time.Second, 2 * time.Minute, 10 * time.Minute}

const maxAttempts = 5
const queueDepth = 256

type deliveryJob struct {
	inboxURL string
	body     []byte
	attempt  int
}

// deliveryManager runs one FIFO queue per follower so a slow or
// failing follower's retries never block delivery to others.
type deliveryManager struct {
	mu     sync.Mutex
	queues map[string]chan deliveryJob
	client *http.Client
	sig    httpsig.Engine
	keyID  string
}

func newDeliveryManager(cfg Config) *deliveryManager {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &deliveryManager{
		queues: make(map[string]chan deliveryJob),
		client: client,
		sig:    cfg.Sig,
		keyID:  cfg.KeyID,
	}
}

// enqueue appends one delivery job to follower's queue, starting its
// worker goroutine on first use.
func (m *deliveryManager) enqueue(follower followers.Record, activity map[string]any) {
	body, err := json.Marshal(activity)
	if err != nil {
		log.Printf("delivery: marshal activity for %s failed: %v", follower.ActorID, err)
		return
	}
	m.mu.Lock()
	ch, ok := m.queues[follower.ActorID]
	if !ok {
		ch = make(chan deliveryJob, queueDepth)
		m.queues[follower.ActorID] = ch
		go m.worker(follower.ActorID, follower.InboxURL, ch)
	}
	m.mu.Unlock()

	select {
	case ch <- deliveryJob{inboxURL: follower.InboxURL, body: body}:
	default:
		log.Printf("delivery: queue full for %s, dropping activity", follower.ActorID)
	}
}

// publishToAll enqueues one delivery per follower.
func (m *deliveryManager) publishToAll(all []followers.Record, activity map[string]any) {
	for _, f := range all {
		m.enqueue(f, activity)
	}
}

func (m *deliveryManager) worker(actorID, inboxURL string, jobs chan deliveryJob) {
	for job := range jobs {
		m.attempt(actorID, inboxURL, job)
	}
}

// attempt POSTs job; on transient failure it waits the backoff delay
// for the next attempt and retries on this follower's worker, so jobs
// enqueued later for the same follower wait behind it and per-follower
// FIFO order is preserved.
func (m *deliveryManager) attempt(actorID, inboxURL string, job deliveryJob) {
	for {
		status, err := m.post(inboxURL, job.body)
		if err == nil && status >= 200 && status < 300 {
			return
		}
		if err == nil && status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			log.Printf("delivery: %s rejected activity permanently (status %d), dropping", actorID, status)
			return
		}

		job.attempt++
		if job.attempt >= maxAttempts {
			log.Printf("delivery: %s exhausted %d attempts, giving up", actorID, maxAttempts)
			return
		}
		delay := backoffSchedule[job.attempt-1]
		log.Printf("delivery: %s attempt %d failed (status=%d err=%v), retrying in %s", actorID, job.attempt, status, err, delay)
		time.Sleep(delay)
	}
}

func (m *deliveryManager) requeue(actorID string, job deliveryJob) {
	m.mu.Lock()
	ch := m.queues[actorID]
	m.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- job:
	default:
		log.Printf("delivery: queue full for %s, dropping retried activity", actorID)
	}
}

func (m *deliveryManager) post(inboxURL string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := url.Parse(inboxURL)
	if err != nil {
		return 0, err
	}
	signed, err := m.sig.Sign(httpsig.SignInput{
		Method: http.MethodPost,
		Path:   u.EscapedPath(),
		Host:   u.Host,
		Body:   body,
		KeyID:  m.keyID,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inboxURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", signed.Date)
	req.Header.Set("Digest", signed.Digest)
	req.Header.Set("Signature", signed.Signature)

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
