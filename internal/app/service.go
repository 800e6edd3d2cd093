// Package service wires the store, the ranking engines and the idempotency
// guard into the operations the HTTP API and CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/charsort/internal/adapters/repository"
	"github.com/okian/charsort/internal/domain/dedupe"
	"github.com/okian/charsort/internal/domain/model"
	"github.com/okian/charsort/internal/domain/ranking"
	"github.com/okian/charsort/pkg/logger"
	"github.com/okian/charsort/pkg/metrics"
)

// Entry is one row of a rendered list, best first.
type Entry struct {
	Rank       int               `json:"rank"`
	ID         model.CharacterID `json:"id"`
	Name       string            `json:"name"`
	Fandom     string            `json:"fandom,omitempty"`
	Annotation string            `json:"annotation,omitempty"`
}

// ListView is everything a client needs to render a list.
type ListView struct {
	List     model.CharacterList `json:"list"`
	Entries  []Entry             `json:"entries"`
	Progress string              `json:"progress,omitempty"`
	Next     *model.Matchup      `json:"next,omitempty"`
	Done     bool                `json:"done"`
	Graph    *ranking.Graph      `json:"graph,omitempty"`
}

// Service implements list management and ranking on top of a Store.
type Service struct {
	mu sync.RWMutex

	store   repository.Store
	deduper dedupe.Deduper
	engines map[model.Algorithm]ranking.Engine

	confidenceBoost int
	seed            int64
	dedupeSize      int
	clock           func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConfidenceBoost sets how many times the Glicko engine replays each record.
func WithConfidenceBoost(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.confidenceBoost = n
		}
	}
}

// WithSeed seeds matchup selection. Zero keeps a time-based seed.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithDedupeSize bounds the idempotency key cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithClock sets the engines' notion of now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs a Service. Call Start before use.
func New(opts ...Option) *Service {
	s := &Service{
		confidenceBoost: ranking.DefaultConfidenceBoost,
		dedupeSize:      dedupe.DefaultMaxKeys,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the engines and the idempotency guard. A memory store is used
// when none was configured.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "no store configured, using memory store")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxKeys(s.dedupeSize))

	engineOpts := []ranking.Option{
		ranking.WithClock(s.clock),
		ranking.WithConfidenceBoost(s.confidenceBoost),
	}
	if s.seed != 0 {
		engineOpts = append(engineOpts, ranking.WithSeed(s.seed))
	}
	s.engines = make(map[model.Algorithm]ranking.Engine, len(model.Algorithms))
	for _, alg := range model.Algorithms {
		e, err := ranking.New(alg, s.store, engineOpts...)
		if err != nil {
			return fmt.Errorf("engine for %s: %w", alg.Name(), err)
		}
		s.engines[alg] = e
	}

	s.started = true
	s.refreshGauges(ctx)
	s.logger.Info(ctx, "ranking service started",
		logger.Int("confidenceBoost", s.confidenceBoost),
		logger.Int64("seed", s.seed),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "ranking service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) refreshGauges(ctx context.Context) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Warn(ctx, "reading store stats failed", logger.Error(err))
		return
	}
	metrics.UpdateListsTotal(st.Lists)
	metrics.UpdateCharactersTotal(st.Characters)
}

// Lists returns every list.
func (s *Service) Lists(ctx context.Context) ([]model.CharacterList, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Lists(ctx)
}

// CreateList adds a list ranked by alg.
func (s *Service) CreateList(ctx context.Context, title string, alg model.Algorithm) (model.CharacterList, error) {
	if err := s.ready(); err != nil {
		return model.CharacterList{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return model.CharacterList{}, fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
	}
	if _, ok := s.engines[alg]; !ok {
		return model.CharacterList{}, fmt.Errorf("%w: %w: %q", ErrInvalidInput, model.ErrUnknownAlgorithm, alg)
	}
	l, err := s.store.CreateList(ctx, title, alg)
	if err != nil {
		return model.CharacterList{}, err
	}
	s.refreshGauges(ctx)
	s.logger.Info(ctx, "list created",
		logger.Int64("listID", int64(l.ID)),
		logger.String("algorithm", alg.Name()),
	)
	return l, nil
}

// AddCharacter adds a member to a list.
func (s *Service) AddCharacter(ctx context.Context, listID model.ListID, name, fandom string) (model.Character, error) {
	if err := s.ready(); err != nil {
		return model.Character{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Character{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	c, err := s.store.AddCharacter(ctx, listID, name, strings.TrimSpace(fandom))
	if err != nil {
		return model.Character{}, err
	}
	s.refreshGauges(ctx)
	return c, nil
}

// engineFor resolves the engine of a list.
func (s *Service) engineFor(ctx context.Context, listID model.ListID) (ranking.Engine, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	e, ok := s.engines[l.Algorithm]
	if !ok {
		return nil, fmt.Errorf("list %d: %w: %q", listID, model.ErrUnknownAlgorithm, l.Algorithm)
	}
	return e, nil
}

// observe records latency and reports invariant violations.
func (s *Service) observe(ctx context.Context, e ranking.Engine, op string, listID model.ListID, start time.Time, err error) {
	alg := string(e.Algorithm())
	metrics.RecordEngineLatency(alg, op, float64(time.Since(start).Microseconds())/1000)
	if err == nil {
		return
	}
	if errors.Is(err, ranking.ErrInvariant) {
		metrics.RecordInvariantViolation(alg)
		metrics.RecordErrorByComponent("ranking", "invariant")
		s.logger.Error(ctx, "ranking invariant violated",
			logger.Int64("listID", int64(listID)),
			logger.String("operation", op),
			logger.Error(err),
		)
	}
}

// Summary renders a list from one snapshot.
func (s *Service) Summary(ctx context.Context, listID model.ListID) (ListView, error) {
	e, err := s.engineFor(ctx, listID)
	if err != nil {
		return ListView{}, err
	}
	start := time.Now()
	sum, err := e.Summarize(ctx, listID)
	s.observe(ctx, e, "summary", listID, start, err)
	if err != nil {
		return ListView{}, err
	}
	byID := make(map[model.CharacterID]model.Character, len(sum.Characters))
	for _, c := range sum.Characters {
		byID[c.ID] = c
	}

	view := ListView{
		List:     sum.List,
		Entries:  make([]Entry, len(sum.Order)),
		Progress: sum.Progress,
		Next:     sum.Next,
		Done:     sum.Next == nil,
		Graph:    sum.Graph,
	}
	for i, id := range sum.Order {
		c := byID[id]
		view.Entries[i] = Entry{
			Rank:       i + 1,
			ID:         id,
			Name:       c.Name,
			Fandom:     c.Fandom,
			Annotation: sum.Annotations[id],
		}
	}
	return view, nil
}

// Next returns the next matchup worth asking about; ok is false when none.
func (s *Service) Next(ctx context.Context, listID model.ListID) (model.Matchup, bool, error) {
	e, err := s.engineFor(ctx, listID)
	if err != nil {
		return model.Matchup{}, false, err
	}
	start := time.Now()
	m, ok, err := e.NextComparison(ctx, listID)
	s.observe(ctx, e, "next", listID, start, err)
	return m, ok, err
}

// Register records a verdict. When key is not empty it is an idempotency
// key: a repeated key returns duplicate=true without appending again.
func (s *Service) Register(ctx context.Context, listID model.ListID, a, b model.CharacterID, value int, key string) (rec model.ComparisonRecord, duplicate bool, err error) {
	e, err := s.engineFor(ctx, listID)
	if err != nil {
		return model.ComparisonRecord{}, false, err
	}
	var dk string
	if key != "" {
		dk = dedupe.Key(int64(listID), key)
		if s.deduper.SeenAndRecord(ctx, dk) {
			metrics.RecordDuplicateSubmission()
			s.logger.Debug(ctx, "duplicate submission dropped",
				logger.Int64("listID", int64(listID)),
				logger.String("key", key),
			)
			return model.ComparisonRecord{}, true, nil
		}
		defer func() {
			if err != nil {
				s.deduper.Unrecord(ctx, dk)
			}
		}()
	}

	start := time.Now()
	rec, err = e.RegisterComparison(ctx, listID, a, b, value)
	s.observe(ctx, e, "register", listID, start, err)
	if err != nil {
		if isValidation(err) {
			return model.ComparisonRecord{}, false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return model.ComparisonRecord{}, false, err
	}
	if dk != "" {
		s.deduper.Bind(ctx, dk, rec.ID)
	}
	metrics.RecordComparison(string(e.Algorithm()), value)
	s.logger.Info(ctx, "comparison registered",
		logger.Int64("listID", int64(listID)),
		logger.Int64("recordID", rec.ID),
		logger.Int64("a", int64(a)),
		logger.Int64("b", int64(b)),
		logger.Int("value", value),
	)
	return rec, false, nil
}

func isValidation(err error) bool {
	return errors.Is(err, ranking.ErrInvalidComparison) ||
		errors.Is(err, repository.ErrForeignCharacter) ||
		errors.Is(err, repository.ErrSelfComparison) ||
		errors.Is(err, repository.ErrInvalidValue)
}

// Undo removes the newest verdict of a list and returns it.
func (s *Service) Undo(ctx context.Context, listID model.ListID) (model.ComparisonRecord, error) {
	e, err := s.engineFor(ctx, listID)
	if err != nil {
		return model.ComparisonRecord{}, err
	}
	rec, err := s.store.DeleteMostRecent(ctx, listID)
	if err != nil {
		return model.ComparisonRecord{}, err
	}
	s.deduper.UnrecordByID(ctx, rec.ID)
	metrics.RecordUndo(string(e.Algorithm()))
	s.logger.Info(ctx, "comparison undone",
		logger.Int64("listID", int64(listID)),
		logger.Int64("recordID", rec.ID),
	)
	return rec, nil
}

// Graph returns the bar chart of a list whose engine draws one.
func (s *Service) Graph(ctx context.Context, listID model.ListID) (ranking.Graph, error) {
	e, err := s.engineFor(ctx, listID)
	if err != nil {
		return ranking.Graph{}, err
	}
	gr, ok := e.(ranking.GraphReporter)
	if !ok {
		return ranking.Graph{}, fmt.Errorf("list %d (%s): %w", listID, e.Algorithm().Name(), ErrNoGraph)
	}
	start := time.Now()
	g, ok, err := gr.GraphInfo(ctx, listID)
	s.observe(ctx, e, "graph", listID, start, err)
	if err != nil {
		return ranking.Graph{}, err
	}
	if !ok {
		return ranking.Graph{}, fmt.Errorf("list %d: %w", listID, ErrNoGraph)
	}
	return g, nil
}
