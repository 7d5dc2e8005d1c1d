package counter

// EvolutionWindow is the number of most recent points kept in the evolution series.
const EvolutionWindow = 20

// EvolutionPoint is one sample of the counter evolution series.
type EvolutionPoint struct {
	Value int64 `json:"value"`
	Index int   `json:"index"`
}

// AggregateView is the set of statistics derived from a full event snapshot.
type AggregateView struct {
	TotalChanges int `json:"total_changes"`
	Increases    int `json:"increases"`
	Decreases    int `json:"decreases"`
	Resets       int `json:"resets"`
	Sets         int `json:"sets"`

	IncreasePct float64 `json:"increase_pct"`
	DecreasePct float64 `json:"decrease_pct"`
	ResetPct    float64 `json:"reset_pct"`
	SetPct      float64 `json:"set_pct"`

	UniqueUsers    int              `json:"unique_users"`
	AveragePerUser float64          `json:"average_per_user"`
	Evolution      []EvolutionPoint `json:"evolution"`
}

// Classified is the number of events that landed in a reason bucket.
func (v AggregateView) Classified() int {
	return v.Increases + v.Decreases + v.Resets + v.Sets
}

// Aggregate folds a complete event snapshot into an AggregateView.
func Aggregate(events []RawEvent, newestFirst bool) AggregateView {
	return Summarize(Normalize(events, newestFirst))
}

// Summarize builds the AggregateView from chronologically ordered events.
func Summarize(events []NormalizedEvent) AggregateView {
	view := AggregateView{
		TotalChanges: len(events),
		Evolution:    []EvolutionPoint{},
	}
	users := map[string]struct{}{}

	start := len(events) - EvolutionWindow
	if start < 0 {
		start = 0
	}

	for i, ev := range events {
		switch ev.Reason {
		case Increase:
			view.Increases++
		case Decrease:
			view.Decreases++
		case Reset:
			view.Resets++
		case Set:
			view.Sets++
		}
		if ev.Caller != "" {
			users[ev.Caller] = struct{}{}
		}
		if i >= start {
			view.Evolution = append(view.Evolution, EvolutionPoint{Value: ev.Resolved(), Index: i})
		}
	}

	if sum := view.Classified(); sum > 0 {
		view.IncreasePct = percent(view.Increases, sum)
		view.DecreasePct = percent(view.Decreases, sum)
		view.ResetPct = percent(view.Resets, sum)
		view.SetPct = percent(view.Sets, sum)
	}

	view.UniqueUsers = len(users)
	if view.UniqueUsers > 0 {
		view.AveragePerUser = float64(view.TotalChanges) / float64(view.UniqueUsers)
	}
	return view
}

func percent(n, total int) float64 {
	return float64(n) / float64(total) * 100
}
