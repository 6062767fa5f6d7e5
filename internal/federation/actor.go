package federation

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

type publicKeyBody struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type actorBody struct {
	Type              string        `json:"type"`
	ID                string        `json:"id"`
	PreferredUsername string        `json:"preferredUsername"`
	Inbox             string        `json:"inbox"`
	Outbox            string        `json:"outbox"`
	PublicKey         publicKeyBody `json:"publicKey"`
}

type actorOutput struct {
	Body actorBody
}

func registerActor(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "actor",
		Method:      http.MethodGet,
		Path:        "/quasi-board",
		Summary:     "Actor document",
	}, func(ctx context.Context, _ *struct{}) (*actorOutput, error) {
		actor := cfg.actorURL()
		return &actorOutput{Body: actorBody{
			Type:              "Service",
			ID:                actor,
			PreferredUsername: cfg.PreferredUsername,
			Inbox:             cfg.inboxURL(),
			Outbox:            actor + "/outbox",
			PublicKey: publicKeyBody{
				ID:           cfg.KeyID,
				Owner:        actor,
				PublicKeyPem: cfg.PublicKeyPEM,
			},
		}}, nil
	})
}
