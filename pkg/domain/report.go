package domain

import "time"

// Result is the outcome of one node within a run.
type Result struct {
	NodeID      string             `json:"node_id"`
	DisplayName string             `json:"display_name"`
	Kind        NodeKind           `json:"kind"`
	Status      NodeState          `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	Error       string             `json:"error,omitempty"`
	Duration    time.Duration      `json:"duration"`
	Invocations []InvocationResult `json:"invocations,omitempty"`
	Children    []*Result          `json:"children,omitempty"`
}

// InvocationResult is the outcome of one template invocation.
type InvocationResult struct {
	Index       int           `json:"index"`
	DisplayName string        `json:"display_name"`
	Status      NodeState     `json:"status"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Find returns the result for nodeID in the subtree rooted at r.
func (r *Result) Find(nodeID string) *Result {
	if r == nil {
		return nil
	}
	if r.NodeID == nodeID {
		return r
	}
	for _, c := range r.Children {
		if found := c.Find(nodeID); found != nil {
			return found
		}
	}
	return nil
}

// Report is the outcome of one run.
type Report struct {
	RunID      string    `json:"run_id"`
	Plan       string    `json:"plan,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Root       *Result   `json:"root"`
}

// Summary counts executed units.
// Tests and invocations are counted by outcome. Containers and templates only add a failure
// when their own setup or teardown failed. A skipped subtree counts once.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Aborted    int `json:"aborted"`
	Skipped    int `json:"skipped"`
}

// Summary aggregates the results of the whole report.
func (r *Report) Summary() Summary {
	var s Summary
	if r == nil || r.Root == nil {
		return s
	}
	var visit func(res *Result)
	visit = func(res *Result) {
		if res.Status == StateSkipped {
			s.add(StateSkipped)
			return
		}
		switch res.Kind {
		case KindTest:
			s.add(res.Status)
		default:
			if res.Status == StateFailed {
				s.add(StateFailed)
			}
		}
		for _, inv := range res.Invocations {
			s.add(inv.Status)
		}
		for _, c := range res.Children {
			visit(c)
		}
	}
	visit(r.Root)
	return s
}

// Passed reports whether nothing failed.
func (r *Report) Passed() bool {
	return r.Summary().Failed == 0
}

func (s *Summary) add(status NodeState) {
	s.Total++
	switch status {
	case StateSuccessful:
		s.Successful++
	case StateFailed:
		s.Failed++
	case StateAborted:
		s.Aborted++
	case StateSkipped:
		s.Skipped++
	}
}
