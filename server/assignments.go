package server

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"
)

// activeAssignment is one participant currently running the experiment.
type activeAssignment struct {
	Group     int   `json:"group"`
	Timestamp int64 `json:"timestamp"` // unix seconds
}

// assignmentState is the on-disk assignment ledger. Completed counts are
// keyed by the group index as a string.
type assignmentState struct {
	Active    map[string]activeAssignment `json:"active"`
	Completed map[string]int              `json:"completed"`
}

// AssignmentStore balances participants across experiment groups. Sessions
// that do not complete within the timeout are pruned as abandoned.
type AssignmentStore struct {
	path    string
	groups  int
	timeout time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewAssignmentStore creates a store persisting to path.
func NewAssignmentStore(path string, groups int, timeout time.Duration, rng *rand.Rand) *AssignmentStore {
	return &AssignmentStore{
		path:    path,
		groups:  groups,
		timeout: timeout,
		rng:     rng,
		now:     time.Now,
	}
}

// Assign returns the least-loaded group for a participant, creating or
// refreshing their active session. Status is "existing" when the
// participant already holds a fresh assignment.
func (s *AssignmentStore) Assign(participantID string) (group int, status string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return 0, "", err
	}
	s.prune(state)

	if a, ok := state.Active[participantID]; ok {
		return a.Group, "existing", s.save(state)
	}

	// Load per group: completed plus active.
	counts := make([]int, s.groups)
	for g, n := range state.Completed {
		if idx, err := strconv.Atoi(g); err == nil && idx >= 0 && idx < s.groups {
			counts[idx] += n
		}
	}
	for _, a := range state.Active {
		if a.Group >= 0 && a.Group < s.groups {
			counts[a.Group]++
		}
	}

	minLoad := counts[0]
	for _, c := range counts[1:] {
		if c < minLoad {
			minLoad = c
		}
	}
	var candidates []int
	for g, c := range counts {
		if c == minLoad {
			candidates = append(candidates, g)
		}
	}
	group = candidates[s.rng.Intn(len(candidates))]

	state.Active[participantID] = activeAssignment{
		Group:     group,
		Timestamp: s.now().Unix(),
	}
	return group, "new", s.save(state)
}

// Complete marks a participant's session finished and counts it toward
// their group's completed total. Unknown participants are ignored.
func (s *AssignmentStore) Complete(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	a, ok := state.Active[participantID]
	if !ok {
		return nil
	}
	delete(state.Active, participantID)
	state.Completed[strconv.Itoa(a.Group)]++
	return s.save(state)
}

// Counts returns completed-per-group totals for reporting.
func (s *AssignmentStore) Counts() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(state.Completed))
	for k, v := range state.Completed {
		out[k] = v
	}
	return out, nil
}

// prune drops active sessions older than the timeout.
func (s *AssignmentStore) prune(state *assignmentState) {
	cutoff := s.now().Add(-s.timeout).Unix()
	for id, a := range state.Active {
		if a.Timestamp < cutoff {
			delete(state.Active, id)
		}
	}
}

func (s *AssignmentStore) load() (*assignmentState, error) {
	state := &assignmentState{
		Active:    map[string]activeAssignment{},
		Completed: map[string]int{},
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading assignments: %w", err)
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing assignments: %w", err)
	}
	if state.Active == nil {
		state.Active = map[string]activeAssignment{}
	}
	if state.Completed == nil {
		state.Completed = map[string]int{}
	}
	return state, nil
}

func (s *AssignmentStore) save(state *assignmentState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling assignments: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing assignments: %w", err)
	}
	return nil
}
