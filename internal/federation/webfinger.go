package federation

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type webfingerBody struct {
	Subject string          `json:"subject"`
	Links   []webfingerLink `json:"links"`
}

type webfingerInput struct {
	Resource string `query:"resource"`
}

type webfingerOutput struct {
	Body webfingerBody
}

func registerWebfinger(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "webfinger",
		Method:      http.MethodGet,
		Path:        "/.well-known/webfinger",
		Summary:     "Actor discovery",
	}, func(ctx context.Context, in *webfingerInput) (*webfingerOutput, error) {
		if !strings.HasPrefix(in.Resource, "acct:") {
			return nil, handleError(&ValidationError{Reason: "resource must be an acct: URI"})
		}
		return &webfingerOutput{Body: webfingerBody{
			Subject: in.Resource,
			Links: []webfingerLink{{
				Rel:  "self",
				Type: "application/activity+json",
				Href: cfg.actorURL(),
			}},
		}}, nil
	})
}
