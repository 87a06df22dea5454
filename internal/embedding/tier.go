package embedding

// Tier names an embedding cost/quality level. Each tier maps to one model
// with one output width; a deployment must not mix widths within a persisted
// set, since the downstream index assumes a fixed vector dimension.
type Tier struct {
	Name       string
	Model      string
	Dimensions int
}

var (
	// TierLocal runs on the in-house Ollama node; free, used for bulk loads.
	TierLocal = Tier{Name: "local", Model: "nomic-embed-text", Dimensions: 768}

	// TierStandard is the mid-cost hosted model.
	TierStandard = Tier{Name: "standard", Model: "text-embedding-004", Dimensions: 768}

	// TierPremium is the highest-quality hosted model.
	TierPremium = Tier{Name: "premium", Model: "gemini-embedding-001", Dimensions: 3072}
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// AutoSelect picks a tier from chunk volume and submission priority.
// High priority always buys premium; very large batches drop to the local
// tier to keep cost flat; mid-size batches take the standard model.
func AutoSelect(count int, priority Priority, forceLocal bool) Tier {
	if forceLocal {
		return TierLocal
	}
	if priority == PriorityHigh {
		return TierPremium
	}
	switch {
	case count > 1000:
		return TierLocal
	case count > 100:
		return TierStandard
	default:
		return TierPremium
	}
}
