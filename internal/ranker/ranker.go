// Package ranker implements the Opportunity Ranker (C5): a thin, stateless
// adapter around an external decision engine reachable over gRPC, with an
// in-process fallback heuristic for when that engine is unavailable.
package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"trading-core/internal/strategy"
)

// jsonCodecName is registered with grpc's encoding package so calls can be
// made without a generated protobuf service client: the decision engine
// speaks JSON request/response bodies framed by ordinary gRPC, not proto
// wire format.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec (Marshal/Unmarshal/Name) over
// encoding/json so the real google.golang.org/grpc transport can be used
// without hand-authored .pb.go stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                    { return jsonCodecName }

// rankMethod is the fully qualified gRPC method the decision engine serves.
const rankMethod = "/decisionengine.DecisionService/Rank"

// rankRequest/rankResponse are the wire types exchanged with the decision
// engine. They mirror the shape of strategy.Opportunity without exposing
// the payload, which is opaque to anything outside the core.
type rankRequest struct {
	Opportunities []wireOpportunity `json:"opportunities"`
}

type wireOpportunity struct {
	Index          int     `json:"index"`
	UserID         string  `json:"user_id"`
	StrategyName   string  `json:"strategy_name"`
	Action         string  `json:"action"`
	ExpectedProfit float64 `json:"expected_profit"`
}

type rankResponse struct {
	Approved []approvedEntry `json:"approved"`
}

type approvedEntry struct {
	Index    int    `json:"index"`
	RiskTier string `json:"risk_tier"`
}

// Decision is an Opportunity alongside the Ranker's verdict.
type Decision struct {
	Opportunity strategy.Opportunity
	RiskTier    string
}

// Ranker calls the external decision engine and falls back to a local
// heuristic if the engine is unreachable or returns an error. It is
// stateless: every call carries its own full context.
type Ranker struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// New dials the decision engine at addr. An empty addr disables the gRPC
// path entirely; Rank then always uses the fallback heuristic.
func New(addr string, timeout time.Duration) (*Ranker, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if addr == "" {
		return &Ranker{timeout: timeout}, nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial decision engine: %w", err)
	}
	return &Ranker{conn: conn, timeout: timeout}, nil
}

// Close releases the underlying gRPC connection, if any.
func (r *Ranker) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Rank returns the subset of opportunities approved for execution, each
// tagged with a risk tier, in the order the decision engine (or fallback)
// determines. On any gRPC-layer failure it falls back to the local
// heuristic rather than propagating the error — the Ranker must never stall
// the Trade Queue on an external dependency outage.
func (r *Ranker) Rank(ctx context.Context, opportunities []strategy.Opportunity) []Decision {
	if r.conn == nil {
		return fallbackRank(opportunities)
	}

	decisions, err := r.rankRemote(ctx, opportunities)
	if err != nil {
		return fallbackRank(opportunities)
	}
	return decisions
}

func (r *Ranker) rankRemote(ctx context.Context, opportunities []strategy.Opportunity) ([]Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := &rankRequest{Opportunities: make([]wireOpportunity, len(opportunities))}
	for i, o := range opportunities {
		req.Opportunities[i] = wireOpportunity{
			Index:          i,
			UserID:         o.UserID,
			StrategyName:   o.StrategyName,
			Action:         o.Action,
			ExpectedProfit: o.ExpectedProfit,
		}
	}

	resp := &rankResponse{}
	err := r.conn.Invoke(ctx, rankMethod, req, resp, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return nil, fmt.Errorf("rank rpc: %w", err)
	}

	decisions := make([]Decision, 0, len(resp.Approved))
	for _, entry := range resp.Approved {
		if entry.Index < 0 || entry.Index >= len(opportunities) {
			continue
		}
		decisions = append(decisions, Decision{
			Opportunity: opportunities[entry.Index],
			RiskTier:    entry.RiskTier,
		})
	}
	return decisions, nil
}

// fallbackRank approves every opportunity, ordered by descending expected
// profit, classifying risk by profit magnitude. It is a local, synchronous
// substitute for the decision engine, not a competing scoring model.
func fallbackRank(opportunities []strategy.Opportunity) []Decision {
	ordered := make([]strategy.Opportunity, len(opportunities))
	copy(ordered, opportunities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExpectedProfit > ordered[j].ExpectedProfit
	})

	decisions := make([]Decision, len(ordered))
	for i, o := range ordered {
		decisions[i] = Decision{Opportunity: o, RiskTier: classifyRisk(o.ExpectedProfit)}
	}
	return decisions
}

func classifyRisk(expectedProfit float64) string {
	switch {
	case expectedProfit >= 1_000_000: // lamports; ~0.001 SOL
		return "high"
	case expectedProfit >= 100_000:
		return "medium"
	default:
		return "low"
	}
}
