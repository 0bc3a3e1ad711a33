package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/portfolioviz/internal/contracts"
	"github.com/wonny/portfolioviz/pkg/logger"
)

// Kind names one of the two datasets
type Kind string

const (
	KindValues  Kind = "values"
	KindWeights Kind = "weights"
)

// Freshness classifies a response at arrival
type Freshness int

const (
	Fresh Freshness = iota
	Stale
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "stale"
}

// Tag identifies the request that produced a dataset
type Tag struct {
	Generation uint64           `json:"generation"`
	Params     contracts.Params `json:"params"`
}

// Response is one settled fetch, stamped with the tag it was issued under
type Response struct {
	Tag     Tag
	Kind    Kind
	Values  []contracts.ValuePoint
	Weights []contracts.WeightRecord
	Err     error
}

// Status is the per-dataset indicator shown next to each chart
type Status struct {
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ValueState is the accepted value series
type ValueState struct {
	Tag    Tag                    `json:"tag"`
	Points []contracts.ValuePoint `json:"points"`
	Status Status                 `json:"status"`
}

// WeightState is the accepted weight series
type WeightState struct {
	Tag     Tag                      `json:"tag"`
	Records []contracts.WeightRecord `json:"records"`
	Status  Status                   `json:"status"`
}

// Snapshot is the orchestrator's visible state
type Snapshot struct {
	Current Tag         `json:"current"`
	Values  ValueState  `json:"values"`
	Weights WeightState `json:"weights"`
}

// Update is delivered to OnUpdate whenever visible state changes
type Update struct {
	Kind     Kind // empty when a new tuple was issued
	Snapshot Snapshot
}

// Orchestrator keeps both datasets in step with the latest issued tuple
// ⭐ SSOT: 두 데이터셋의 유일한 writer. 현재 generation 과 일치하는 응답만 반영
type Orchestrator struct {
	fetcher  contracts.SeriesFetcher
	logger   *logger.Logger
	onUpdate func(Update)
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	generation uint64
	current    contracts.Params
	values     ValueState
	weights    WeightState

	// deliverMu keeps OnUpdate calls in the order the state changed
	deliverMu sync.Mutex
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithOnUpdate sets the update callback; it runs synchronously and must not call Issue
func WithOnUpdate(fn func(Update)) Option {
	return func(o *Orchestrator) { o.onUpdate = fn }
}

// WithClock overrides time.Now for status timestamps
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator; Close releases it
func New(parent context.Context, fetcher contracts.SeriesFetcher, log *logger.Logger, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(parent)
	o := &Orchestrator{
		fetcher:  fetcher,
		logger:   log.Component("pipeline"),
		onUpdate: func(Update) {},
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		values:   ValueState{Points: []contracts.ValuePoint{}},
		weights:  WeightState{Records: []contracts.WeightRecord{}},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Issue makes p the current tuple and starts both fetches in parallel.
// It returns the generation stamped on the two requests.
func (o *Orchestrator) Issue(p contracts.Params) uint64 {
	o.deliverMu.Lock()
	o.mu.Lock()
	o.generation++
	tag := Tag{Generation: o.generation, Params: p}
	o.current = p
	o.values.Status.Loading = true
	o.weights.Status.Loading = true
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.onUpdate(Update{Snapshot: snap})
	o.deliverMu.Unlock()

	o.logger.WithFields(map[string]interface{}{
		"generation": tag.Generation,
		"params":     p.String(),
	}).Debug("Issuing fetches")

	o.wg.Add(2)
	go o.run(tag, KindValues)
	go o.run(tag, KindWeights)

	return tag.Generation
}

// run performs one fetch and hands the tagged response to apply
func (o *Orchestrator) run(tag Tag, kind Kind) {
	defer o.wg.Done()

	resp := Response{Tag: tag, Kind: kind}
	func() {
		defer func() {
			if r := recover(); r != nil {
				resp.Err = fmt.Errorf("%s fetch panicked: %v", kind, r)
			}
		}()

		switch kind {
		case KindValues:
			resp.Values, resp.Err = o.fetcher.FetchValues(o.ctx, tag.Params)
		case KindWeights:
			resp.Weights, resp.Err = o.fetcher.FetchWeights(o.ctx, tag.Params)
		}
	}()

	o.Apply(resp)
}

// Apply classifies resp against the current generation and, if fresh, applies it.
// Stale responses are dropped without touching state.
func (o *Orchestrator) Apply(resp Response) Freshness {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	if resp.Tag.Generation != o.generation {
		o.mu.Unlock()
		o.logger.WithFields(map[string]interface{}{
			"kind":       resp.Kind,
			"generation": resp.Tag.Generation,
			"params":     resp.Tag.Params.String(),
		}).Debug("Dropped stale response")
		return Stale
	}

	now := o.now()
	switch resp.Kind {
	case KindValues:
		o.values.Status = statusFor(resp.Err, now)
		if resp.Err == nil {
			o.values.Tag = resp.Tag
			o.values.Points = nonNilValues(resp.Values)
		}
	case KindWeights:
		o.weights.Status = statusFor(resp.Err, now)
		if resp.Err == nil {
			o.weights.Tag = resp.Tag
			o.weights.Records = nonNilWeights(resp.Weights)
		}
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	if resp.Err != nil {
		// 이전 데이터는 그대로 유지
		o.logger.WithError(resp.Err).WithFields(map[string]interface{}{
			"kind":       resp.Kind,
			"generation": resp.Tag.Generation,
			"params":     resp.Tag.Params.String(),
		}).Warn("Fetch failed, keeping previous data")
	}

	o.onUpdate(Update{Kind: resp.Kind, Snapshot: snap})
	return Fresh
}

// Republish emits the current snapshot again without issuing fetches, in order with
// every other update
func (o *Orchestrator) Republish() {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.onUpdate(Update{Snapshot: snap})
}

// Snapshot returns the visible state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Generation returns the current generation
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Wait blocks until every fetch issued so far has settled
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels in-flight fetches; their responses still arrive and are classified
func (o *Orchestrator) Close() {
	o.cancel()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		Current: Tag{Generation: o.generation, Params: o.current},
		Values:  o.values,
		Weights: o.weights,
	}
}

func statusFor(err error, now time.Time) Status {
	if err != nil {
		return Status{Error: err.Error(), UpdatedAt: now}
	}
	return Status{UpdatedAt: now}
}

func nonNilValues(v []contracts.ValuePoint) []contracts.ValuePoint {
	if v == nil {
		return []contracts.ValuePoint{}
	}
	return v
}

func nonNilWeights(w []contracts.WeightRecord) []contracts.WeightRecord {
	if w == nil {
		return []contracts.WeightRecord{}
	}
	return w
}
