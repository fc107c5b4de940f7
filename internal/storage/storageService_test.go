package storage

import (
	"errors"
	"testing"

	"github.com/cuer-ai/memory-palace/internal/keyValStore"
	"github.com/cuer-ai/memory-palace/pkg/types"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := kv.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return New(kv)
}

func TestCreateAndGetPalace(t *testing.T) {
	store := newTestStorage(t)

	created, err := store.CreatePalace("my palace", "aabb")
	if err != nil {
		t.Fatalf("failed to create palace: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected palace id")
	}

	loaded, err := store.GetPalace(created.ID)
	if err != nil {
		t.Fatalf("failed to load palace: %v", err)
	}
	if loaded.Name != "my palace" || loaded.PublicKey != "aabb" {
		t.Fatalf("unexpected palace: %+v", loaded)
	}
}

func TestCreatePalaceDefaultsName(t *testing.T) {
	store := newTestStorage(t)

	created, err := store.CreatePalace("", "")
	if err != nil {
		t.Fatalf("failed to create palace: %v", err)
	}
	if created.Name != "New Memory Palace" {
		t.Fatalf("unexpected default name: %q", created.Name)
	}
}

func TestGetPalaceNotFound(t *testing.T) {
	store := newTestStorage(t)

	if _, err := store.GetPalace("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreCapsuleAssignsIdentity(t *testing.T) {
	store := newTestStorage(t)
	palace, err := store.CreatePalace("p", "")
	if err != nil {
		t.Fatalf("failed to create palace: %v", err)
	}

	capsule := types.Capsule{
		PalaceID:   palace.ID,
		Agent:      "claude",
		Ciphertext: "iv:tag:ct",
		Algorithm:  "Ed25519",
	}
	if err := store.StoreCapsule(&capsule); err != nil {
		t.Fatalf("failed to store capsule: %v", err)
	}
	if capsule.ID == "" || len(capsule.ShortID) != 7 || capsule.CreatedAt.IsZero() {
		t.Fatalf("identity not assigned: %+v", capsule)
	}

	loaded, err := store.GetCapsuleByShortID(palace.ID, capsule.ShortID)
	if err != nil {
		t.Fatalf("failed to load capsule: %v", err)
	}
	if loaded.Agent != "claude" || loaded.Ciphertext != "iv:tag:ct" {
		t.Fatalf("unexpected capsule: %+v", loaded)
	}
}

func TestInsertCapsuleRejectsDuplicateShortID(t *testing.T) {
	store := newTestStorage(t)
	palace, err := store.CreatePalace("p", "")
	if err != nil {
		t.Fatalf("failed to create palace: %v", err)
	}

	first := types.Capsule{ID: "1", ShortID: "abc1234", PalaceID: palace.ID}
	if err := store.InsertCapsule(&first); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	second := types.Capsule{ID: "2", ShortID: "abc1234", PalaceID: palace.ID}
	if err := store.InsertCapsule(&second); !errors.Is(err, ErrShortIDTaken) {
		t.Fatalf("expected ErrShortIDTaken, got %v", err)
	}
}

func TestGetCapsulePublicResolvesAcrossPalaces(t *testing.T) {
	store := newTestStorage(t)
	palace, err := store.CreatePalace("p", "")
	if err != nil {
		t.Fatalf("failed to create palace: %v", err)
	}

	capsule := types.Capsule{PalaceID: palace.ID, Agent: "claude", Ciphertext: "{}", Algorithm: "plaintext"}
	if err := store.StoreCapsule(&capsule); err != nil {
		t.Fatalf("failed to store capsule: %v", err)
	}

	loaded, err := store.GetCapsulePublic(capsule.ShortID)
	if err != nil {
		t.Fatalf("failed to resolve capsule: %v", err)
	}
	if loaded.PalaceID != palace.ID {
		t.Fatalf("unexpected palace id: %q", loaded.PalaceID)
	}

	if _, err := store.GetCapsulePublic("nope123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListCapsulesNewestFirstWithLimit(t *testing.T) {
	store := newTestStorage(t)
	palace, err := store.CreatePalace("p", "")
	if err != nil {
		t.Fatalf("failed to create palace: %v", err)
	}

	for i := 0; i < 5; i++ {
		capsule := types.Capsule{PalaceID: palace.ID, Ciphertext: "{}", Algorithm: "plaintext"}
		if err := store.StoreCapsule(&capsule); err != nil {
			t.Fatalf("failed to store capsule %d: %v", i, err)
		}
	}

	all, err := store.ListCapsules(palace.ID, 0)
	if err != nil {
		t.Fatalf("failed to list capsules: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 capsules, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatal("capsules are not sorted newest first")
		}
	}

	limited, err := store.ListCapsules(palace.ID, 2)
	if err != nil {
		t.Fatalf("failed to list capsules: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 capsules, got %d", len(limited))
	}
}

func TestAttachImage(t *testing.T) {
	store := newTestStorage(t)
	palace, err := store.CreatePalace("p", "")
	if err != nil {
		t.Fatalf("failed to create palace: %v", err)
	}

	capsule := types.Capsule{PalaceID: palace.ID, Ciphertext: "{}", Algorithm: "plaintext"}
	if err := store.StoreCapsule(&capsule); err != nil {
		t.Fatalf("failed to store capsule: %v", err)
	}

	if err := store.AttachImage(palace.ID, capsule.ShortID, "https://example.com/x.png"); err != nil {
		t.Fatalf("failed to attach image: %v", err)
	}

	loaded, err := store.GetCapsuleByShortID(palace.ID, capsule.ShortID)
	if err != nil {
		t.Fatalf("failed to load capsule: %v", err)
	}
	if loaded.ImageURL != "https://example.com/x.png" {
		t.Fatalf("unexpected image url: %q", loaded.ImageURL)
	}

	if err := store.AttachImage(palace.ID, "nope123", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAgentLifecycle(t *testing.T) {
	store := newTestStorage(t)
	palace, err := store.CreatePalace("p", "")
	if err != nil {
		t.Fatalf("failed to create palace: %v", err)
	}

	agent, err := store.CreateAgent(palace.ID, "scout", types.PermissionWrite)
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}
	if agent.GuestKey == "" || agent.GuestKey[:3] != "gk_" {
		t.Fatalf("unexpected guest key: %q", agent.GuestKey)
	}
	if !agent.Active {
		t.Fatal("new agent should be active")
	}

	// Second invite under the same name conflicts while the first is
	// still active.
	if _, err := store.CreateAgent(palace.ID, "scout", types.PermissionRead); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	resolved, err := store.GetAgentByToken(agent.GuestKey)
	if err != nil {
		t.Fatalf("failed to resolve token: %v", err)
	}
	if resolved.ID != agent.ID || !resolved.Permissions.CanWrite() {
		t.Fatalf("unexpected agent: %+v", resolved)
	}

	revoked, err := store.RevokeAgent(palace.ID, "scout")
	if err != nil {
		t.Fatalf("failed to revoke agent: %v", err)
	}
	if revoked.Active || revoked.RevokedAt == nil {
		t.Fatalf("agent not revoked: %+v", revoked)
	}

	// The token still resolves so revocation can be told apart from a
	// key that never existed.
	resolved, err = store.GetAgentByToken(agent.GuestKey)
	if err != nil {
		t.Fatalf("failed to resolve revoked token: %v", err)
	}
	if resolved.Active {
		t.Fatal("revoked agent should be inactive")
	}

	// The name is free again.
	if _, err := store.CreateAgent(palace.ID, "scout", types.PermissionRead); err != nil {
		t.Fatalf("re-invite after revoke failed: %v", err)
	}

	if _, err := store.RevokeAgent(palace.ID, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAgentsActiveFilter(t *testing.T) {
	store := newTestStorage(t)
	palace, err := store.CreatePalace("p", "")
	if err != nil {
		t.Fatalf("failed to create palace: %v", err)
	}

	if _, err := store.CreateAgent(palace.ID, "alpha", types.PermissionRead); err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}
	if _, err := store.CreateAgent(palace.ID, "beta", types.PermissionRead); err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}
	if _, err := store.RevokeAgent(palace.ID, "beta"); err != nil {
		t.Fatalf("failed to revoke agent: %v", err)
	}

	all, err := store.ListAgents(palace.ID, false)
	if err != nil {
		t.Fatalf("failed to list agents: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(all))
	}

	active, err := store.ListAgents(palace.ID, true)
	if err != nil {
		t.Fatalf("failed to list agents: %v", err)
	}
	if len(active) != 1 || active[0].Name != "alpha" {
		t.Fatalf("unexpected active agents: %+v", active)
	}
}
