package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type contract struct {
	stakes      map[string]int64
	released    map[string]bool
	eliminated  map[int]string
	tasks       map[string]int
	distributed []Payout
}

// Call records one operation the Memory ledger applied.
type Call struct {
	Op      string
	Ref     string
	Address string
	Amount  int64
	Week    int
}

// Memory is an in-process ledger used for local runs and tests. Failures can be
// injected per operation with FailNext.
type Memory struct {
	mu        sync.Mutex
	contracts map[string]*contract
	calls     []Call
	failures  map[string][]error
}

func NewMemory() *Memory {
	return &Memory{
		contracts: make(map[string]*contract),
		failures:  make(map[string][]error),
	}
}

// FailNext makes the next call of op return err without applying it.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// SetStake overwrites a participant's recorded stake, for simulating out-of-band ledger changes.
func (m *Memory) SetStake(ref, address string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contracts[ref]; ok {
		c.stakes[address] = amount
	}
}

func (m *Memory) Distribution(ref string) []Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contracts[ref]; ok {
		return append([]Payout(nil), c.distributed...)
	}
	return nil
}

func (m *Memory) injected(op string) error {
	errs := m.failures[op]
	if len(errs) == 0 {
		return nil
	}
	m.failures[op] = errs[1:]
	return errs[0]
}

func (m *Memory) lookup(op, ref string) (*contract, error) {
	c, ok := m.contracts[ref]
	if !ok {
		return nil, &Error{Op: op, Outcome: Rejected, Err: fmt.Errorf("unknown contract %q", ref)}
	}
	return c, nil
}

func newTx() TxRef { return TxRef(uuid.NewString()) }

func (m *Memory) Deploy(ctx context.Context, req DeployRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("deploy"); err != nil {
		return "", err
	}
	ref := "mem-" + uuid.NewString()
	m.contracts[ref] = &contract{
		stakes:     make(map[string]int64),
		released:   make(map[string]bool),
		eliminated: make(map[int]string),
		tasks:      make(map[string]int),
	}
	m.calls = append(m.calls, Call{Op: "deploy", Ref: ref, Amount: req.StakeAmount})
	return ref, nil
}

func (m *Memory) Stake(ctx context.Context, ref, address string, amount int64) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("stake"); err != nil {
		return "", err
	}
	c, err := m.lookup("stake", ref)
	if err != nil {
		return "", err
	}
	if _, ok := c.stakes[address]; ok {
		return "", &Error{Op: "stake", Outcome: Rejected, Err: errors.New("address already staked")}
	}
	c.stakes[address] = amount
	m.calls = append(m.calls, Call{Op: "stake", Ref: ref, Address: address, Amount: amount})
	return newTx(), nil
}

func (m *Memory) Release(ctx context.Context, ref, address string) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("release"); err != nil {
		return "", err
	}
	c, err := m.lookup("release", ref)
	if err != nil {
		return "", err
	}
	if _, ok := c.stakes[address]; !ok {
		return "", &Error{Op: "release", Outcome: Rejected, Err: errors.New("address not staked")}
	}
	c.released[address] = true
	m.calls = append(m.calls, Call{Op: "release", Ref: ref, Address: address})
	return newTx(), nil
}

func (m *Memory) RecordTaskCompletion(ctx context.Context, ref, address, taskID string) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("record_task"); err != nil {
		return "", err
	}
	c, err := m.lookup("record_task", ref)
	if err != nil {
		return "", err
	}
	c.tasks[address]++
	m.calls = append(m.calls, Call{Op: "record_task", Ref: ref, Address: address})
	return newTx(), nil
}

func (m *Memory) Eliminate(ctx context.Context, ref string, week int, address string) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("eliminate"); err != nil {
		return "", err
	}
	c, err := m.lookup("eliminate", ref)
	if err != nil {
		return "", err
	}
	if _, ok := c.eliminated[week]; ok {
		return "", &Error{Op: "eliminate", Outcome: Rejected, Err: fmt.Errorf("week %d already eliminated", week)}
	}
	c.eliminated[week] = address
	m.calls = append(m.calls, Call{Op: "eliminate", Ref: ref, Address: address, Week: week})
	return newTx(), nil
}

func (m *Memory) Distribute(ctx context.Context, ref string, payouts []Payout) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("distribute"); err != nil {
		return "", err
	}
	c, err := m.lookup("distribute", ref)
	if err != nil {
		return "", err
	}
	if c.distributed != nil {
		return "", &Error{Op: "distribute", Outcome: Rejected, Err: errors.New("already distributed")}
	}
	c.distributed = append([]Payout{}, payouts...)
	var total int64
	for _, p := range payouts {
		total += p.Amount
	}
	m.calls = append(m.calls, Call{Op: "distribute", Ref: ref, Amount: total})
	return newTx(), nil
}

// AggregateStake sums every stake ever placed. Released stakes stay in the pool.
func (m *Memory) AggregateStake(ctx context.Context, ref string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("aggregate_stake"); err != nil {
		return 0, err
	}
	c, err := m.lookup("aggregate_stake", ref)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, amount := range c.stakes {
		total += amount
	}
	return total, nil
}
