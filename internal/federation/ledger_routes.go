package federation

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"quasiboard/internal/ledger"
)

type ledgerBody struct {
	Chain               []ledger.Entry `json:"chain"`
	QuasiEntries        int            `json:"quasi:entries"`
	QuasiValid          bool           `json:"quasi:valid"`
	QuasiSlotsRemaining int            `json:"quasi:slotsRemaining"`
}

type ledgerOutput struct {
	Body ledgerBody
}

func registerLedger(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "ledger",
		Method:      http.MethodGet,
		Path:        "/quasi-board/ledger",
		Summary:     "Full ledger chain",
	}, func(ctx context.Context, _ *struct{}) (*ledgerOutput, error) {
		entries := cfg.Ledger.Entries(0, 0)
		result := cfg.Ledger.VerifyChain()
		return &ledgerOutput{Body: ledgerBody{
			Chain:               entries,
			QuasiEntries:        len(entries),
			QuasiValid:          result.Valid,
			QuasiSlotsRemaining: cfg.Ledger.SlotsRemaining(),
		}}, nil
	})
}

type verifyOutput struct {
	Body ledger.VerifyResult
}

func registerVerify(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "ledger-verify",
		Method:      http.MethodGet,
		Path:        "/quasi-board/ledger/verify",
		Summary:     "Verify chain integrity",
	}, func(ctx context.Context, _ *struct{}) (*verifyOutput, error) {
		return &verifyOutput{Body: cfg.Ledger.VerifyChain()}, nil
	})
}
