// Package provider models the out-of-scope upstream collaborator: a typed
// set of calls against the "diamond-proxy" style gateway and its
// alternatives. nil payloads mean "responded, no content" and are distinct
// from a transport error.
package provider

import "context"

// PriorityMarketRequest is the payload for the one write-through endpoint.
type PriorityMarketRequest struct {
	SportID    int    `json:"sportId"`
	ID         string `json:"id"`
	MarketName string `json:"marketName"`
	MName      string `json:"mname"`
	GType      string `json:"gtype"`
}

// Client is the ProviderClient port: every call returns (payload, error);
// payload is raw JSON bytes (opaque to the core per spec — match/market
// shapes are pass-through DTOs owned elsewhere).
type Client interface {
	GetAllSports(ctx context.Context) ([]byte, error)
	GetMatchList(ctx context.Context, sportID int) ([]byte, error)
	GetMatchOdds(ctx context.Context, gameID string, sportID int) ([]byte, error)
	GetMatchDetails(ctx context.Context, sportID int, gameID string) ([]byte, error)
	GetLiveTvScore(ctx context.Context, gameID string, sportID int) ([]byte, error)
	GetVirtualTv(ctx context.Context, gameID string) ([]byte, error)
	GetResults(ctx context.Context, sportID int, gameID string) ([]byte, error)
	GetSidebarTree(ctx context.Context) ([]byte, error)
	GetTopEvents(ctx context.Context) ([]byte, error)
	GetBanners(ctx context.Context) ([]byte, error)
	PostPriorityMarket(ctx context.Context, req PriorityMarketRequest) ([]byte, error)
}
