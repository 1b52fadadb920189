package negotiation

import "github.com/1ureka/drift/internal/protocol"

// candidateQueue holds remote candidates that arrived before the remote
// description, in receipt order.
type candidateQueue struct {
	items []protocol.Candidate
}

func (q *candidateQueue) push(c protocol.Candidate) { q.items = append(q.items, c) }
func (q *candidateQueue) len() int                  { return len(q.items) }
func (q *candidateQueue) clear()                    { q.items = nil }

// drain removes and returns every queued candidate. Each candidate is
// returned exactly once.
func (q *candidateQueue) drain() []protocol.Candidate {
	items := q.items
	q.items = nil
	return items
}
