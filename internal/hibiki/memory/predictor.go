package memory

import "sort"

// DefaultHistoryWindow is how many recent commands feed the predictor.
const DefaultHistoryWindow = 50

// MinConfidence is the share of observed successors a prediction must exceed.
const MinConfidence = 0.4

// minHistory is the shortest history worth learning from.
const minHistory = 5

// Prediction is the most likely next action after some action.
type Prediction struct {
	Action     string
	Confidence float64
	Hint       string
}

// Predictor counts action-to-action transitions over a command history.
// It is not safe for concurrent use; build a fresh one per history snapshot.
type Predictor struct {
	transitions map[string]map[string]int
	totals      map[string]int
}

// NewPredictor learns transitions from actions in chronological order.
// Histories shorter than five commands teach nothing.
func NewPredictor(actions []string) *Predictor {
	p := &Predictor{
		transitions: make(map[string]map[string]int),
		totals:      make(map[string]int),
	}
	if len(actions) < minHistory {
		return p
	}
	for i := 0; i+1 < len(actions); i++ {
		cur, next := actions[i], actions[i+1]
		if p.transitions[cur] == nil {
			p.transitions[cur] = make(map[string]int)
		}
		p.transitions[cur][next]++
		p.totals[cur]++
	}
	return p
}

// Predict returns the most frequent successor of current when its share of
// all observed successors is above MinConfidence. Ties go to the
// alphabetically first action so results are stable.
func (p *Predictor) Predict(current string) (Prediction, bool) {
	next := p.transitions[current]
	if len(next) == 0 {
		return Prediction{}, false
	}
	candidates := make([]string, 0, len(next))
	for a := range next {
		candidates = append(candidates, a)
	}
	sort.Strings(candidates)

	best := candidates[0]
	for _, a := range candidates[1:] {
		if next[a] > next[best] {
			best = a
		}
	}
	confidence := float64(next[best]) / float64(p.totals[current])
	if confidence <= MinConfidence {
		return Prediction{}, false
	}
	return Prediction{Action: best, Confidence: confidence, Hint: hintFor(best)}, true
}

var hints = map[string]string{
	"open_app":              "You usually open an application next. Shall I do that?",
	"search_google":         "I can turn the search results into a new document.",
	"youtube_search":        "Remember to switch on focus mode while listening.",
	"send_telegram_message": "Shall I update the report once the message is sent?",
}

func hintFor(action string) string {
	if h, ok := hints[action]; ok {
		return h
	}
	return "Planning the next step: " + action + "."
}
