package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
)

// Memory implementa Store em memória. Cada partida tem um lock próprio
// (canal de capacidade 1, para respeitar o ctx); o mutex global só protege
// os mapas durante cópias curtas e o commit.
type Memory struct {
	mu        sync.RWMutex
	matches   map[string]domain.Match
	bets      map[string]domain.Bet
	byMatch   map[string][]string
	byBettor  map[string][]string
	activeNGS map[string]string // bettor|match -> betID
	changes   map[string][]domain.BetChange
	balances  map[string]domain.Balance
	intents   []domain.CustodyIntent
	intentIdx map[string]int

	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

// NewMemory cria um backend vazio
func NewMemory() *Memory {
	return &Memory{
		matches:   make(map[string]domain.Match),
		bets:      make(map[string]domain.Bet),
		byMatch:   make(map[string][]string),
		byBettor:  make(map[string][]string),
		activeNGS: make(map[string]string),
		changes:   make(map[string][]domain.BetChange),
		balances:  make(map[string]domain.Balance),
		intentIdx: make(map[string]int),
		locks:     make(map[string]chan struct{}),
	}
}

func ngsKey(bettorID, matchID string) string { return bettorID + "|" + matchID }

func (m *Memory) matchLock(id string) chan struct{} {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[id] = l
	}
	return l
}

// InTx serializa por partida e aplica as escritas em bloco no commit
func (m *Memory) InTx(ctx context.Context, matchID string, fn func(Tx) error) error {
	l := m.matchLock(matchID)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l }()

	tx := &memTx{
		s:        m,
		matchID:  matchID,
		bets:     make(map[string]domain.Bet),
		expected: make(map[string]domain.BetStatus),
		deltas:   make(map[string]domain.BalanceDelta),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	s       *Memory
	matchID string

	match    *domain.Match
	bets     map[string]domain.Bet
	newBets  []string
	expected map[string]domain.BetStatus // status lido, para o CAS no commit
	changes  []domain.BetChange
	deltas   map[string]domain.BalanceDelta
	intents  []domain.CustodyIntent
}

func (t *memTx) Match(_ context.Context) (domain.Match, error) {
	if t.match != nil {
		return *t.match, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	mt, ok := t.s.matches[t.matchID]
	if !ok {
		return domain.Match{}, domain.ErrNotFound
	}
	return cloneMatch(mt), nil
}

func (t *memTx) SaveMatch(_ context.Context, mt domain.Match) error {
	mt.ID = t.matchID
	mt.UpdatedAt = time.Now().UTC()
	mt = cloneMatch(mt)
	t.match = &mt
	return nil
}

func (t *memTx) Bet(_ context.Context, id string) (domain.Bet, error) {
	if b, ok := t.bets[id]; ok {
		return b, nil
	}
	t.s.mu.RLock()
	b, ok := t.s.bets[id]
	t.s.mu.RUnlock()
	if !ok || b.MatchID != t.matchID {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (t *memTx) MatchBets(_ context.Context) ([]domain.Bet, error) {
	t.s.mu.RLock()
	ids := append([]string(nil), t.s.byMatch[t.matchID]...)
	out := make([]domain.Bet, 0, len(ids)+len(t.newBets))
	for _, id := range ids {
		if b, ok := t.bets[id]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, t.s.bets[id])
	}
	t.s.mu.RUnlock()
	for _, id := range t.newBets {
		out = append(out, t.bets[id])
	}
	return out, nil
}

func (t *memTx) hasActiveNGS(bettorID string) bool {
	for _, b := range t.bets {
		if b.BettorID == bettorID && b.Kind == domain.KindNextGoalScorer && b.Status == domain.StatusActive {
			return true
		}
	}
	t.s.mu.RLock()
	id, ok := t.s.activeNGS[ngsKey(bettorID, t.matchID)]
	t.s.mu.RUnlock()
	if !ok {
		return false
	}
	// a aposta indexada pode ter mudado de status nesta transação
	if staged, ok := t.bets[id]; ok {
		return staged.Status == domain.StatusActive
	}
	return true
}

func (t *memTx) InsertBet(_ context.Context, b domain.Bet) error {
	if b.MatchID != t.matchID {
		return domain.ErrNotFound
	}
	if b.Kind == domain.KindNextGoalScorer && b.Status == domain.StatusActive && t.hasActiveNGS(b.BettorID) {
		return domain.ErrExistingActiveBet
	}
	t.bets[b.ID] = b
	t.newBets = append(t.newBets, b.ID)
	return nil
}

func (t *memTx) UpdateBet(ctx context.Context, b domain.Bet, expected domain.BetStatus) error {
	cur, err := t.Bet(ctx, b.ID)
	if err != nil {
		return err
	}
	if cur.Status != expected {
		return domain.ErrConflict
	}
	if _, seen := t.expected[b.ID]; !seen {
		t.expected[b.ID] = expected
	}
	t.bets[b.ID] = b
	return nil
}

func (t *memTx) AppendChange(_ context.Context, c domain.BetChange) error {
	t.changes = append(t.changes, c)
	return nil
}

func (t *memTx) ApplyBalance(_ context.Context, bettorID string, d domain.BalanceDelta) error {
	next := t.deltas[bettorID].Add(d)
	t.s.mu.RLock()
	base := t.s.balances[bettorID]
	t.s.mu.RUnlock()
	if _, err := base.Apply(next); err != nil {
		return err
	}
	t.deltas[bettorID] = next
	return nil
}

func (t *memTx) Enqueue(_ context.Context, in domain.CustodyIntent) error {
	t.intents = append(t.intents, in)
	return nil
}

// commit revalida CAS, unicidade e saldos com o lock global e só então aplica tudo
func (t *memTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, exp := range t.expected {
		if cur, ok := s.bets[id]; ok && cur.Status != exp {
			return domain.ErrConflict
		}
	}
	for _, id := range t.newBets {
		b := t.bets[id]
		if _, dup := s.bets[id]; dup {
			return domain.ErrConflict
		}
		if b.Kind == domain.KindNextGoalScorer && b.Status == domain.StatusActive {
			if _, taken := s.activeNGS[ngsKey(b.BettorID, b.MatchID)]; taken {
				return domain.ErrExistingActiveBet
			}
		}
	}
	next := make(map[string]domain.Balance, len(t.deltas))
	for bettor, d := range t.deltas {
		base, ok := s.balances[bettor]
		if !ok {
			base = domain.Balance{BettorID: bettor}
		}
		nb, err := base.Apply(d)
		if err != nil {
			return err
		}
		next[bettor] = nb
	}

	// daqui para baixo nada falha
	if t.match != nil {
		s.matches[t.matchID] = *t.match
	}
	for _, id := range t.newBets {
		b := t.bets[id]
		s.byMatch[b.MatchID] = append(s.byMatch[b.MatchID], id)
		s.byBettor[b.BettorID] = append(s.byBettor[b.BettorID], id)
	}
	for id, b := range t.bets {
		s.bets[id] = b
		k := ngsKey(b.BettorID, b.MatchID)
		if b.Kind != domain.KindNextGoalScorer {
			continue
		}
		if b.Status == domain.StatusActive {
			s.activeNGS[k] = id
		} else if s.activeNGS[k] == id {
			delete(s.activeNGS, k)
		}
	}
	for _, c := range t.changes {
		c.Seq = len(s.changes[c.BetID]) + 1
		s.changes[c.BetID] = append(s.changes[c.BetID], c)
	}
	for bettor, b := range next {
		s.balances[bettor] = b
	}
	for _, in := range t.intents {
		s.enqueueLocked(in)
	}
	return nil
}

func (m *Memory) enqueueLocked(in domain.CustodyIntent) {
	if _, dup := m.intentIdx[in.Key]; dup {
		return
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	m.intentIdx[in.Key] = len(m.intents)
	m.intents = append(m.intents, in)
}

func (m *Memory) Match(_ context.Context, id string) (domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.matches[id]
	if !ok {
		return domain.Match{}, domain.ErrNotFound
	}
	return cloneMatch(mt), nil
}

func (m *Memory) Bet(_ context.Context, id string) (domain.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (m *Memory) BetsByBettor(_ context.Context, bettorID string) ([]domain.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.byBettor[bettorID]), nil
}

func (m *Memory) BetsByMatch(_ context.Context, matchID string) ([]domain.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.byMatch[matchID]), nil
}

func (m *Memory) collect(ids []string) []domain.Bet {
	out := make([]domain.Bet, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.bets[id])
	}
	return out
}

func (m *Memory) Changes(_ context.Context, betID string) ([]domain.BetChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.BetChange(nil), m.changes[betID]...), nil
}

func (m *Memory) Balance(_ context.Context, bettorID string) (domain.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[bettorID]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return b, nil
}

func (m *Memory) EnsureBalance(_ context.Context, bettorID string, wallet domain.BalanceDelta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[bettorID]; ok {
		return false, nil
	}
	b, err := domain.Balance{BettorID: bettorID}.Apply(wallet)
	if err != nil {
		return false, err
	}
	m.balances[bettorID] = b
	return true, nil
}

func (m *Memory) Fund(_ context.Context, bettorID string, d domain.BalanceDelta) (domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base, ok := m.balances[bettorID]
	if !ok {
		base = domain.Balance{BettorID: bettorID}
	}
	nb, err := base.Apply(d)
	if err != nil {
		return base, err
	}
	m.balances[bettorID] = nb
	return nb, nil
}

func (m *Memory) PendingIntents(_ context.Context, limit int) ([]domain.CustodyIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CustodyIntent
	for _, in := range m.intents {
		if in.Sent {
			continue
		}
		out = append(out, in)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) MarkIntentSent(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intentIdx[key]
	if !ok {
		return domain.ErrNotFound
	}
	m.intents[i].Sent = true
	return nil
}

func (m *Memory) MarkIntentFailed(_ context.Context, key string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intentIdx[key]
	if !ok {
		return domain.ErrNotFound
	}
	m.intents[i].Attempts++
	if cause != nil {
		m.intents[i].LastError = cause.Error()
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func cloneMatch(mt domain.Match) domain.Match {
	mt.ConfirmedScorers = append([]string(nil), mt.ConfirmedScorers...)
	return mt
}
