package assembler

import "time"

// DefaultSilenceDelay is how long the mobile policy waits after the last
// recognizer event before treating the turn as complete.
const DefaultSilenceDelay = 2 * time.Second

// Policy selects how completion of an utterance is detected.
type Policy int

const (
	// Desktop dispatches on the first event that carries final text.
	Desktop Policy = iota
	// Mobile accumulates final text and dispatches after a silence delay.
	Mobile
)

func (p Policy) String() string {
	if p == Mobile {
		return "mobile"
	}
	return "desktop"
}

// Segment is one recognizer alternative inside a result event.
type Segment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Result is a single recognizer event, in arrival order.
type Result struct {
	Segments []Segment `json:"segments"`
}

// FinalText merges the event's final segments.
func (r Result) FinalText() string {
	out := ""
	for _, s := range r.Segments {
		if s.Final {
			out = Merge(out, s.Text)
		}
	}
	return out
}

// InterimText merges the event's interim segments.
func (r Result) InterimText() string {
	out := ""
	for _, s := range r.Segments {
		if !s.Final {
			out = Merge(out, s.Text)
		}
	}
	return out
}

// Action tells the owner of an Assembler what to do after Feed.
type Action int

const (
	ActionNone Action = iota
	// ActionDispatch means Outcome.Text is the finished utterance.
	ActionDispatch
	// ActionArmSilence means the silence timer must be (re)armed.
	ActionArmSilence
)

type Outcome struct {
	Action  Action
	Text    string // utterance, set with ActionDispatch
	Interim string // latest interim text for live display
	Pending string // accumulated final text not yet dispatched
}

// Assembler holds the transcript state of one capture session. It is not
// safe for concurrent use; the capture controller owns it from its event loop.
type Assembler struct {
	policy  Policy
	base    string
	interim string
	done    bool
}

func New(policy Policy) *Assembler {
	return &Assembler{policy: policy}
}

func (a *Assembler) Policy() Policy { return a.policy }

// Feed applies one recognizer event.
func (a *Assembler) Feed(r Result) Outcome {
	if a.done {
		return Outcome{Action: ActionNone}
	}
	final := r.FinalText()
	a.interim = r.InterimText()

	if a.policy == Desktop {
		if final == "" {
			return Outcome{Action: ActionNone, Interim: a.interim}
		}
		a.done = true
		a.interim = ""
		return Outcome{Action: ActionDispatch, Text: final}
	}

	if final != "" {
		a.base = Merge(a.base, final)
	}
	return Outcome{Action: ActionArmSilence, Interim: a.interim, Pending: a.base}
}

// Flush returns the pending text merged with the trailing interim text and
// marks the turn as dispatched. It reports false when there is nothing to
// send or the turn was already dispatched.
func (a *Assembler) Flush() (string, bool) {
	if a.done {
		return "", false
	}
	text := Merge(a.base, a.interim)
	if text == "" {
		return "", false
	}
	a.done = true
	return text, true
}

// Pending is the accumulated final text.
func (a *Assembler) Pending() string { return a.base }

// Interim is the latest interim text.
func (a *Assembler) Interim() string { return a.interim }

// Done reports whether this turn has already produced its utterance.
func (a *Assembler) Done() bool { return a.done }

// Reset clears all transcript state for a new session.
func (a *Assembler) Reset() {
	a.base = ""
	a.interim = ""
	a.done = false
}
