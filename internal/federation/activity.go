package federation

import "encoding/json"

// activity is the loosely-typed shape every inbound ActivityPub
// activity is parsed into; only the fields this server recognizes are
// pulled out, everything else is ignored.
type activity map[string]any

func parseActivity(body []byte) (activity, error) {
	var a activity
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON body"}
	}
	return a, nil
}

func (a activity) str(key string) string {
	v, _ := a[key].(string)
	return v
}

func (a activity) typ() string { return a.str("type") }

// actorOf returns the activity's actor field, which may be a bare
// string or an embedded object with an "id".
func (a activity) actorOf() string {
	switch v := a["actor"].(type) {
	case string:
		return v
	case map[string]any:
		id, _ := v["id"].(string)
		return id
	default:
		return ""
	}
}

// objectOf mirrors actorOf for the "object" field, used by Undo.
func (a activity) objectOf() activity {
	switch v := a["object"].(type) {
	case map[string]any:
		return activity(v)
	case string:
		return activity{"type": "Follow", "actor": v}
	default:
		return nil
	}
}

func buildAnnounceActivity(actorURL, taskID, published string) map[string]any {
	return map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"type":         "Announce",
		"actor":        actorURL,
		"to":           []string{"https://www.w3.org/ns/activitystreams#Public"},
		"published":    published,
		"quasi:taskId": taskID,
	}
}

func buildCompletionActivity(actorURL, taskID, commitHash, prURL, published string) map[string]any {
	return map[string]any{
		"@context":         "https://www.w3.org/ns/activitystreams",
		"type":             "Create",
		"actor":            actorURL,
		"to":               []string{"https://www.w3.org/ns/activitystreams#Public"},
		"published":        published,
		"quasi:type":       "completion",
		"quasi:taskId":     taskID,
		"quasi:commitHash": commitHash,
		"quasi:prUrl":      prURL,
	}
}

func buildAcceptActivity(actorURL string, follow activity) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     "Accept",
		"actor":    actorURL,
		"object":   map[string]any(follow),
	}
}
