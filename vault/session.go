package vault

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/0xn1ku/nexusvault/crypto"
	"github.com/0xn1ku/nexusvault/internal/util"
	"github.com/0xn1ku/nexusvault/payload"
	"github.com/0xn1ku/nexusvault/storage"
)

// Phase is the externally visible state of a Session.
type Phase int

const (
	PhaseLocked Phase = iota
	PhaseUnlocking
	PhaseUnlocked
	PhaseDenied
)

func (p Phase) String() string {
	switch p {
	case PhaseUnlocking:
		return "unlocking"
	case PhaseUnlocked:
		return "unlocked"
	case PhaseDenied:
		return "denied"
	default:
		return "locked"
	}
}

// state is one of the variants below. Only unlockedState carries a key,
// so an unlocked session without one cannot be built.
type state interface {
	phase() Phase
}

type lockedState struct{}

type unlockingState struct{}

type unlockedState struct {
	key     *crypto.DerivedKey
	secrets map[string][]byte
}

type deniedState struct {
	reason Reason
}

func (lockedState) phase() Phase    { return PhaseLocked }
func (unlockingState) phase() Phase { return PhaseUnlocking }
func (unlockedState) phase() Phase  { return PhaseUnlocked }
func (deniedState) phase() Phase    { return PhaseDenied }

type authenticator interface {
	Authenticate(ctx context.Context, passphrase string, p payload.Payload) (Outcome, error)
}

// Entry describes a revealable secret without its value.
type Entry struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Encrypted   bool   `json:"encrypted"`
	Revealed    bool   `json:"revealed"`
}

// Entry sources.
const (
	SourceBundle = "bundle"
	SourceRecord = "record"
)

// Session holds the state of one vault: the sealed payload, the key and
// bundle while unlocked, and the set of revealed values. Callers must Lock
// when done to wipe key material. A Session is safe for concurrent use.
type Session struct {
	gate    authenticator
	payload payload.Payload
	log     *slog.Logger

	mu       sync.Mutex
	state    state
	attempt  uint64
	records  map[string]storage.Secret
	revealed map[string][]byte
}

// NewSession returns a locked session for p. A nil gate uses NewGate().
func NewSession(gate authenticator, p payload.Payload, opts ...SessionOption) *Session {
	if gate == nil {
		gate = NewGate()
	}
	s := &Session{
		gate:     gate,
		payload:  p,
		log:      slog.New(slog.DiscardHandler),
		state:    lockedState{},
		records:  make(map[string]storage.Secret),
		revealed: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Unlock authenticates passphrase against the payload. Any key held from a
// previous unlock is destroyed first. Key derivation runs without the lock
// held; if another Unlock or Lock starts meanwhile, this attempt's result is
// destroyed and ErrSuperseded returned, so the newest call always wins.
func (s *Session) Unlock(ctx context.Context, passphrase string) error {
	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.clearLocked()
	s.state = unlockingState{}
	p := s.payload
	s.mu.Unlock()

	out, err := s.gate.Authenticate(ctx, passphrase, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt != s.attempt {
		if u, ok := out.(Unlocked); ok {
			u.Destroy()
		}
		return ErrSuperseded
	}
	if err != nil {
		s.state = lockedState{}
		return err
	}

	switch o := out.(type) {
	case Unlocked:
		s.state = unlockedState{key: o.Key, secrets: o.Secrets}
		s.log.Info("vault unlocked", "secrets", len(o.Secrets))
		return nil
	case Denied:
		s.state = deniedState{reason: o.Reason}
		s.log.Info("vault unlock denied", "reason", o.Reason.String())
		return o.Err()
	default:
		s.state = lockedState{}
		return fmt.Errorf("unexpected outcome %T", out)
	}
}

// Lock destroys the key and every decrypted value. It supersedes any
// in-flight Unlock and may be called in any phase.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt++
	wasUnlocked := s.state.phase() == PhaseUnlocked
	s.clearLocked()
	s.state = lockedState{}
	if wasUnlocked {
		s.log.Info("vault locked")
	}
}

func (s *Session) clearLocked() {
	if st, ok := s.state.(unlockedState); ok {
		Unlocked{Secrets: st.secrets, Key: st.key}.Destroy()
	}
	for id, v := range s.revealed {
		util.WipeBytes(v)
		delete(s.revealed, id)
	}
}

// Track attaches data-layer secret records so Reveal can find them by ID.
// Their values stay as stored until revealed.
func (s *Session) Track(records ...storage.Secret) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackLocked(records)
}

func (s *Session) trackLocked(records []storage.Secret) {
	for _, r := range records {
		id := r.ID.String()
		if old, ok := s.revealed[id]; ok && s.records[id].Value != r.Value {
			util.WipeBytes(old)
			delete(s.revealed, id)
		}
		s.records[id] = r
	}
}

// Untrack drops a record, wiping its revealed value if any.
func (s *Session) Untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	if v, ok := s.revealed[id]; ok {
		if _, bundled := s.bundleLocked()[id]; !bundled {
			util.WipeBytes(v)
			delete(s.revealed, id)
		}
	}
}

func (s *Session) bundleLocked() map[string][]byte {
	if st, ok := s.state.(unlockedState); ok {
		return st.secrets
	}
	return nil
}

// Reveal returns the plaintext for id: a bundle secret by name, or a tracked
// record by ID. Encrypted records are decrypted with the session key once
// and cached until Hide or Lock.
func (s *Session) Reveal(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state.(unlockedState)
	if !ok {
		return "", ErrLocked
	}
	if v, ok := s.revealed[id]; ok {
		return string(v), nil
	}
	if v, ok := st.secrets[id]; ok {
		s.revealed[id] = util.CopyBytes(v)
		return string(v), nil
	}

	rec, ok := s.records[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSecret, id)
	}
	if !rec.Encrypted {
		s.revealed[id] = []byte(rec.Value)
		return rec.Value, nil
	}
	plain, err := crypto.DecryptValue(rec.Value, st.key)
	if err != nil {
		return "", fmt.Errorf("revealing %s: %w", id, err)
	}
	s.revealed[id] = plain
	return string(plain), nil
}

// Hide forgets the revealed plaintext for id. Storage is untouched.
func (s *Session) Hide(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.revealed[id]; ok {
		util.WipeBytes(v)
		delete(s.revealed, id)
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.phase()
}

// Reason returns why the last attempt was denied, or ReasonNone.
func (s *Session) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state.(deniedState); ok {
		return st.reason
	}
	return ReasonNone
}

// Payload returns the sealed payload the session guards.
func (s *Session) Payload() payload.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload
}

// SecretNames returns the bundle's secret names in order, or nil while
// locked.
func (s *Session) SecretNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.(unlockedState)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(st.secrets))
	for name := range st.secrets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Secrets lists bundle entries followed by tracked records, without values.
func (s *Session) Secrets() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.(unlockedState)
	if !ok {
		return nil, ErrLocked
	}

	entries := make([]Entry, 0, len(st.secrets)+len(s.records))
	for name := range st.secrets {
		_, revealed := s.revealed[name]
		entries = append(entries, Entry{ID: name, Source: SourceBundle, Encrypted: true, Revealed: revealed})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })

	records := make([]Entry, 0, len(s.records))
	for id, r := range s.records {
		if _, shadowed := st.secrets[id]; shadowed {
			continue
		}
		_, revealed := s.revealed[id]
		records = append(records, Entry{
			ID:          id,
			Source:      SourceRecord,
			Category:    r.Category,
			Description: r.Description,
			Encrypted:   r.Encrypted,
			Revealed:    revealed,
		})
	}
	slices.SortFunc(records, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })
	return append(entries, records...), nil
}

// Revealed reports whether id is currently revealed.
func (s *Session) Revealed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revealed[id]
	return ok
}

// RevealedIDs returns the revealed IDs in order.
func (s *Session) RevealedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.revealed))
	for id := range s.revealed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
