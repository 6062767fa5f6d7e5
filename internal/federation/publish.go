package federation

import "quasiboard/internal/ledger"

// publish generates the Create/Announce activity corresponding to a
// newly appended ledger entry and enqueues one delivery per follower.
func publish(cfg Config, delivery *deliveryManager, entry ledger.Entry) {
	actorURL := cfg.actorURL()
	var act map[string]any
	switch entry.Type {
	case ledger.TypeClaim:
		act = buildAnnounceActivity(actorURL, entry.Task, entry.Timestamp)
	case ledger.TypeCompletion:
		act = buildCompletionActivity(actorURL, entry.Task, entry.CommitHash, entry.PRUrl, entry.Timestamp)
	default:
		return
	}
	delivery.publishToAll(cfg.Followers.All(), act)
}
