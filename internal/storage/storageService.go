// Package storage implements the typed record store for palaces, guest
// credentials and capsules on top of the key-value store.
package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"crypto/rand"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/cuer-ai/memory-palace/internal/keyValStore"
	"github.com/cuer-ai/memory-palace/internal/shortid"
	"github.com/cuer-ai/memory-palace/pkg/types"
)

var (
	// ErrNotFound marks an absent record. Absence is its own outcome,
	// never reported as an invalid or untrusted record.
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict marks an insert that would violate a uniqueness rule,
	// such as a second active guest credential for the same agent name.
	ErrConflict = errors.New("storage: conflict")

	// ErrShortIDTaken marks a capsule insert whose short id is already
	// in use. The caller regenerates and retries.
	ErrShortIDTaken = errors.New("storage: short id taken")
)

// key prefixes, one record family each
const (
	prefixPalace      = "palace:"
	prefixCapsule     = "capsule:"     // capsule:<palaceID>:<shortID>
	prefixShortID     = "short:"       // short:<shortID> -> <palaceID>, global uniqueness index
	prefixAgent       = "agent:"       // agent:<palaceID>:<agentID>
	prefixAgentToken  = "agentToken:"  // agentToken:<guestKey> -> <palaceID>:<agentID>
	prefixAgentActive = "agentActive:" // agentActive:<palaceID>:<name> -> <agentID>, exists while active
)

// insertAttempts bounds the short-id regeneration loop. With 36^7 ids a
// second collision in a row already signals something badly wrong.
const insertAttempts = 5

type Storage struct {
	kv *keyValStore.KeyValStore
}

func New(kv *keyValStore.KeyValStore) *Storage {
	return &Storage{kv: kv}
}

// CreatePalace provisions a new tenant. The public key may be empty for
// palaces that only ever store plaintext or guest-key capsules.
func (s *Storage) CreatePalace(name, publicKeyHex string) (types.Palace, error) {
	palace := types.Palace{
		ID:        uuid.NewString(),
		Name:      name,
		PublicKey: publicKeyHex,
		CreatedAt: time.Now().UTC(),
	}
	if palace.Name == "" {
		palace.Name = "New Memory Palace"
	}

	value, err := json.Marshal(palace)
	if err != nil {
		return types.Palace{}, fmt.Errorf("storage: marshal palace: %w", err)
	}
	if err := s.kv.Write([]byte(prefixPalace+palace.ID), value); err != nil {
		return types.Palace{}, err
	}
	return palace, nil
}

func (s *Storage) GetPalace(id string) (types.Palace, error) {
	value, err := s.kv.Read([]byte(prefixPalace + id))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return types.Palace{}, ErrNotFound
	}
	if err != nil {
		return types.Palace{}, err
	}

	var palace types.Palace
	if err := json.Unmarshal(value, &palace); err != nil {
		return types.Palace{}, fmt.Errorf("storage: unmarshal palace %q: %w", id, err)
	}
	return palace, nil
}

// InsertCapsule writes a capsule whose short id is already set. The
// write is atomic with the global short-id index: a duplicate short id
// fails the whole insert with ErrShortIDTaken.
func (s *Storage) InsertCapsule(capsule *types.Capsule) error {
	value, err := json.Marshal(capsule)
	if err != nil {
		return fmt.Errorf("storage: marshal capsule: %w", err)
	}

	shortKey := []byte(prefixShortID + capsule.ShortID)
	recordKey := []byte(prefixCapsule + capsule.PalaceID + ":" + capsule.ShortID)

	return s.kv.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(shortKey); err == nil {
			return ErrShortIDTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(shortKey, []byte(capsule.PalaceID)); err != nil {
			return err
		}
		return txn.Set(recordKey, value)
	})
}

// StoreCapsule assigns the record id, short id and timestamp, then
// inserts, regenerating the short id on collision. The generator gives
// no uniqueness guarantee; this retry loop is where uniqueness is
// actually enforced.
func (s *Storage) StoreCapsule(capsule *types.Capsule) error {
	capsule.ID = uuid.NewString()
	capsule.CreatedAt = time.Now().UTC()

	for attempt := 0; attempt < insertAttempts; attempt++ {
		id, err := shortid.New()
		if err != nil {
			return err
		}
		capsule.ShortID = id

		err = s.InsertCapsule(capsule)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrShortIDTaken) {
			return err
		}
	}
	return fmt.Errorf("storage: %d short id collisions in a row", insertAttempts)
}

func (s *Storage) GetCapsuleByShortID(palaceID, shortID string) (types.Capsule, error) {
	value, err := s.kv.Read([]byte(prefixCapsule + palaceID + ":" + shortID))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return types.Capsule{}, ErrNotFound
	}
	if err != nil {
		return types.Capsule{}, err
	}
	return decodeCapsule(value)
}

// GetCapsulePublic resolves a capsule by short id alone, the lookup
// behind the public /q/{id} QR target.
func (s *Storage) GetCapsulePublic(shortID string) (types.Capsule, error) {
	palaceID, err := s.kv.Read([]byte(prefixShortID + shortID))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return types.Capsule{}, ErrNotFound
	}
	if err != nil {
		return types.Capsule{}, err
	}
	return s.GetCapsuleByShortID(string(palaceID), shortID)
}

// ListCapsules returns a palace's capsules newest first. limit <= 0
// returns all of them.
func (s *Storage) ListCapsules(palaceID string, limit int) ([]types.Capsule, error) {
	var capsules []types.Capsule
	prefix := []byte(prefixCapsule + palaceID + ":")
	err := s.kv.ReadPrefix(prefix, func(_, value []byte) error {
		capsule, err := decodeCapsule(value)
		if err != nil {
			return err
		}
		capsules = append(capsules, capsule)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(capsules, func(i, j int) bool {
		return capsules[i].CreatedAt.After(capsules[j].CreatedAt)
	})
	if limit > 0 && len(capsules) > limit {
		capsules = capsules[:limit]
	}
	return capsules, nil
}

// AttachImage sets the capsule's image URL, the only field mutable after
// insert. The attach is best effort and idempotent.
func (s *Storage) AttachImage(palaceID, shortID, imageURL string) error {
	capsule, err := s.GetCapsuleByShortID(palaceID, shortID)
	if err != nil {
		return err
	}
	capsule.ImageURL = imageURL

	value, err := json.Marshal(capsule)
	if err != nil {
		return fmt.Errorf("storage: marshal capsule: %w", err)
	}
	return s.kv.Write([]byte(prefixCapsule+palaceID+":"+shortID), value)
}

func decodeCapsule(value []byte) (types.Capsule, error) {
	var capsule types.Capsule
	if err := json.Unmarshal(value, &capsule); err != nil {
		return types.Capsule{}, fmt.Errorf("storage: unmarshal capsule: %w", err)
	}
	return capsule, nil
}

// CreateAgent issues a new guest credential. At most one active
// credential may exist per (palace, agent name); a second invite
// conflicts until the first is revoked.
func (s *Storage) CreateAgent(palaceID, name string, permissions types.Permission) (types.Agent, error) {
	token, err := newGuestKey()
	if err != nil {
		return types.Agent{}, err
	}

	agent := types.Agent{
		ID:          uuid.NewString(),
		PalaceID:    palaceID,
		Name:        name,
		GuestKey:    token,
		Permissions: permissions,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	value, err := json.Marshal(agent)
	if err != nil {
		return types.Agent{}, fmt.Errorf("storage: marshal agent: %w", err)
	}

	activeKey := []byte(prefixAgentActive + palaceID + ":" + name)
	err = s.kv.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(activeKey); err == nil {
			return ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(activeKey, []byte(agent.ID)); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixAgentToken+token), []byte(palaceID+":"+agent.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(prefixAgent+palaceID+":"+agent.ID), value)
	})
	if err != nil {
		return types.Agent{}, err
	}
	return agent, nil
}

// GetAgentByToken resolves a guest key to its credential record. Revoked
// credentials still resolve, with Active false, so callers can tell
// "revoked" apart from "never existed".
func (s *Storage) GetAgentByToken(token string) (types.Agent, error) {
	ref, err := s.kv.Read([]byte(prefixAgentToken + token))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return types.Agent{}, ErrNotFound
	}
	if err != nil {
		return types.Agent{}, err
	}

	value, err := s.kv.Read([]byte(prefixAgent + string(ref)))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return types.Agent{}, ErrNotFound
	}
	if err != nil {
		return types.Agent{}, err
	}

	var agent types.Agent
	if err := json.Unmarshal(value, &agent); err != nil {
		return types.Agent{}, fmt.Errorf("storage: unmarshal agent: %w", err)
	}
	return agent, nil
}

func (s *Storage) ListAgents(palaceID string, activeOnly bool) ([]types.Agent, error) {
	var agents []types.Agent
	prefix := []byte(prefixAgent + palaceID + ":")
	err := s.kv.ReadPrefix(prefix, func(_, value []byte) error {
		var agent types.Agent
		if err := json.Unmarshal(value, &agent); err != nil {
			return fmt.Errorf("storage: unmarshal agent: %w", err)
		}
		if activeOnly && !agent.Active {
			return nil
		}
		agents = append(agents, agent)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.After(agents[j].CreatedAt)
	})
	return agents, nil
}

// RevokeAgent deactivates the active credential for the given agent
// name. The record is kept, never deleted; only the active index entry
// goes away, freeing the name for a future invite.
func (s *Storage) RevokeAgent(palaceID, name string) (types.Agent, error) {
	activeKey := []byte(prefixAgentActive + palaceID + ":" + name)

	var revoked types.Agent
	err := s.kv.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(activeKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		agentID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		recordKey := []byte(prefixAgent + palaceID + ":" + string(agentID))
		record, err := txn.Get(recordKey)
		if err != nil {
			return err
		}
		value, err := record.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(value, &revoked); err != nil {
			return fmt.Errorf("storage: unmarshal agent: %w", err)
		}

		now := time.Now().UTC()
		revoked.Active = false
		revoked.RevokedAt = &now

		updated, err := json.Marshal(revoked)
		if err != nil {
			return fmt.Errorf("storage: marshal agent: %w", err)
		}
		if err := txn.Set(recordKey, updated); err != nil {
			return err
		}
		return txn.Delete(activeKey)
	})
	if err != nil {
		return types.Agent{}, err
	}
	return revoked, nil
}

func newGuestKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("storage: generate guest key: %w", err)
	}
	return "gk_" + hex.EncodeToString(buf), nil
}
