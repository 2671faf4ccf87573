package revision

import (
	"container/heap"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// historyOrder lists every commit reachable from tip so that a commit always
// precedes its parents. Among commits whose children have all been listed,
// the newest committer time goes first and the hash breaks ties, so the order
// is a pure function of the commit graph.
func historyOrder(repo *git.Repository, tip plumbing.Hash) ([]*object.Commit, error) {
	commits := make(map[plumbing.Hash]*object.Commit)
	children := make(map[plumbing.Hash]int)

	stack := []plumbing.Hash{tip}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := commits[h]; seen {
			continue
		}

		c, err := repo.CommitObject(h)
		if err != nil {
			return nil, err
		}
		commits[h] = c
		for _, p := range c.ParentHashes {
			children[p]++
			stack = append(stack, p)
		}
	}

	order := make([]*object.Commit, 0, len(commits))
	ready := &commitQueue{commits[tip]}
	for ready.Len() > 0 {
		c := heap.Pop(ready).(*object.Commit)
		order = append(order, c)
		for _, p := range c.ParentHashes {
			children[p]--
			if children[p] == 0 {
				heap.Push(ready, commits[p])
			}
		}
	}
	return order, nil
}

// commitQueue is a max-heap on committer time.
type commitQueue []*object.Commit

func (q commitQueue) Len() int { return len(q) }

func (q commitQueue) Less(i, j int) bool {
	ti, tj := q[i].Committer.When, q[j].Committer.When
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return q[i].Hash.String() < q[j].Hash.String()
}

func (q commitQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *commitQueue) Push(x any) { *q = append(*q, x.(*object.Commit)) }

func (q *commitQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}
