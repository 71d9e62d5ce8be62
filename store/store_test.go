package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/vouchermacro/macro"
)

// runStoreTests exercises the Store contract. Each subtest gets a fresh store.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("templates", func(t *testing.T) { testTemplates(t, newStore(t)) })
	t.Run("fragments", func(t *testing.T) { testFragments(t, newStore(t)) })
	t.Run("businesses", func(t *testing.T) { testBusinesses(t, newStore(t)) })
	t.Run("ledgers", func(t *testing.T) { testLedgers(t, newStore(t)) })
	t.Run("artifacts", func(t *testing.T) { testArtifacts(t, newStore(t)) })
	t.Run("delete cascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("concurrent ledgers", func(t *testing.T) { testConcurrentLedgers(t, newStore(t)) })
}

func testTemplates(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.GetTemplate(ctx, "temp.macro"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTemplate() on empty store error = %v, want ErrNotFound", err)
	}

	if err := s.PutTemplate(ctx, "temp.macro", "v1"); err != nil {
		t.Fatalf("PutTemplate() failed: %v", err)
	}
	if err := s.PutTemplate(ctx, "temp.macro", "v2"); err != nil {
		t.Fatalf("PutTemplate() overwrite failed: %v", err)
	}

	got, err := s.GetTemplate(ctx, "temp.macro")
	if err != nil {
		t.Fatalf("GetTemplate() failed: %v", err)
	}
	if got != "v2" {
		t.Errorf("GetTemplate() = %q, want %q", got, "v2")
	}
}

func testFragments(t *testing.T, s Store) {
	ctx := context.Background()

	if err := s.PutFragment(ctx, macro.FragmentAmount, 3, "amount-3"); err != nil {
		t.Fatalf("PutFragment() failed: %v", err)
	}
	if err := s.PutFragment(ctx, macro.FragmentCode, 9, "code-9"); err != nil {
		t.Fatalf("PutFragment() failed: %v", err)
	}
	if err := s.PutFragment(ctx, macro.FragmentCode, 9, "code-9b"); err != nil {
		t.Fatalf("PutFragment() overwrite failed: %v", err)
	}

	for _, index := range []int{0, 10} {
		if err := s.PutFragment(ctx, macro.FragmentCode, index, "x"); !errors.Is(err, macro.ErrInvalidInput) {
			t.Errorf("PutFragment(index %d) error = %v, want ErrInvalidInput", index, err)
		}
	}

	got, err := s.Fragments(ctx)
	if err != nil {
		t.Fatalf("Fragments() failed: %v", err)
	}
	want := macro.FragmentSet{
		{Kind: macro.FragmentAmount, Index: 3}: "amount-3",
		{Kind: macro.FragmentCode, Index: 9}:   "code-9b",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fragments() mismatch (-want +got):\n%s", diff)
	}
}

func testBusinesses(t *testing.T, s Store) {
	ctx := context.Background()

	b := &Business{Name: "Cafe Uno", Identity: "owner@example.com"}
	if err := s.UpsertBusiness(ctx, b); err != nil {
		t.Fatalf("UpsertBusiness() failed: %v", err)
	}
	if b.CreatedAt.IsZero() || b.UpdatedAt.IsZero() {
		t.Error("UpsertBusiness() should set timestamps")
	}
	created := b.CreatedAt

	time.Sleep(10 * time.Millisecond)

	update := &Business{Name: "Cafe Uno", Identity: "new@example.com", Policy: "amount > 0"}
	if err := s.UpsertBusiness(ctx, update); err != nil {
		t.Fatalf("UpsertBusiness() update failed: %v", err)
	}

	got, err := s.GetBusiness(ctx, "Cafe Uno")
	if err != nil {
		t.Fatalf("GetBusiness() failed: %v", err)
	}
	if got.Identity != "new@example.com" || got.Policy != "amount > 0" {
		t.Errorf("GetBusiness() = %+v, want updated identity and policy", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want preserved %v", got.CreatedAt, created)
	}
	if !got.UpdatedAt.After(created) {
		t.Error("UpdatedAt should advance on update")
	}

	if err := s.UpsertBusiness(ctx, &Business{Name: "Alpha", Identity: "a@example.com"}); err != nil {
		t.Fatalf("UpsertBusiness() failed: %v", err)
	}
	list, err := s.ListBusinesses(ctx)
	if err != nil {
		t.Fatalf("ListBusinesses() failed: %v", err)
	}
	var names []string
	for _, b := range list {
		names = append(names, b.Name)
	}
	if diff := cmp.Diff([]string{"Alpha", "Cafe Uno"}, names); diff != "" {
		t.Errorf("ListBusinesses() names mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetBusiness(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBusiness(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteBusiness(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteBusiness(missing) error = %v, want ErrNotFound", err)
	}
}

func testLedgers(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.EnsureLedger(ctx, "nobody", 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("EnsureLedger() for unknown business error = %v, want ErrNotFound", err)
	}

	if err := s.UpsertBusiness(ctx, &Business{Name: "Shop", Identity: "s@example.com"}); err != nil {
		t.Fatalf("UpsertBusiness() failed: %v", err)
	}

	first, err := s.EnsureLedger(ctx, "Shop", 20)
	if err != nil {
		t.Fatalf("EnsureLedger() failed: %v", err)
	}
	if first.FileReference == "" {
		t.Fatal("EnsureLedger() should assign a file reference")
	}

	again, err := s.EnsureLedger(ctx, "Shop", 20)
	if err != nil {
		t.Fatalf("EnsureLedger() second call failed: %v", err)
	}
	if again.FileReference != first.FileReference {
		t.Errorf("FileReference = %s, want stable %s", again.FileReference, first.FileReference)
	}

	for _, d := range []int{100, 5} {
		if _, err := s.EnsureLedger(ctx, "Shop", d); err != nil {
			t.Fatalf("EnsureLedger(%d) failed: %v", d, err)
		}
	}
	if _, err := s.EnsureLedger(ctx, "Shop", 0); !errors.Is(err, macro.ErrInvalidInput) {
		t.Errorf("EnsureLedger(0) error = %v, want ErrInvalidInput", err)
	}

	ledgers, err := s.ListLedgers(ctx, "Shop")
	if err != nil {
		t.Fatalf("ListLedgers() failed: %v", err)
	}
	var denoms []int
	for _, l := range ledgers {
		denoms = append(denoms, l.Denomination)
	}
	if diff := cmp.Diff([]int{5, 20, 100}, denoms); diff != "" {
		t.Errorf("ListLedgers() denominations mismatch (-want +got):\n%s", diff)
	}

	other, err := s.ListLedgers(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListLedgers() failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("ListLedgers(nobody) returned %d ledgers, want 0", len(other))
	}
}

func testArtifacts(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.PutArtifact(ctx, "nobody", macro.DefaultArtifactName, []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("PutArtifact() for unknown business error = %v, want ErrNotFound", err)
	}

	if err := s.UpsertBusiness(ctx, &Business{Name: "Shop", Identity: "s@example.com"}); err != nil {
		t.Fatalf("UpsertBusiness() failed: %v", err)
	}

	first, err := s.PutArtifact(ctx, "Shop", macro.DefaultArtifactName, []byte("one"))
	if err != nil {
		t.Fatalf("PutArtifact() failed: %v", err)
	}
	second, err := s.PutArtifact(ctx, "Shop", macro.DefaultArtifactName, []byte("two"))
	if err != nil {
		t.Fatalf("PutArtifact() overwrite failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("artifact ID changed on overwrite: %s -> %s", first.ID, second.ID)
	}

	got, err := s.GetArtifact(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetArtifact() failed: %v", err)
	}
	if string(got.Content) != "two" {
		t.Errorf("Content = %q, want %q", got.Content, "two")
	}
	if got.Business != "Shop" || got.Name != macro.DefaultArtifactName {
		t.Errorf("GetArtifact() = %s/%s, want Shop/%s", got.Business, got.Name, macro.DefaultArtifactName)
	}

	other, err := s.PutArtifact(ctx, "Shop", "other.macro", []byte("three"))
	if err != nil {
		t.Fatalf("PutArtifact() failed: %v", err)
	}
	if other.ID == first.ID {
		t.Error("different names should get different artifact IDs")
	}

	if _, err := s.GetArtifact(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetArtifact(unknown) error = %v, want ErrNotFound", err)
	}
}

func testDeleteCascades(t *testing.T, s Store) {
	ctx := context.Background()

	if err := s.UpsertBusiness(ctx, &Business{Name: "Shop", Identity: "s@example.com"}); err != nil {
		t.Fatalf("UpsertBusiness() failed: %v", err)
	}
	if _, err := s.EnsureLedger(ctx, "Shop", 10); err != nil {
		t.Fatalf("EnsureLedger() failed: %v", err)
	}
	a, err := s.PutArtifact(ctx, "Shop", macro.DefaultArtifactName, []byte("doc"))
	if err != nil {
		t.Fatalf("PutArtifact() failed: %v", err)
	}

	if err := s.DeleteBusiness(ctx, "Shop"); err != nil {
		t.Fatalf("DeleteBusiness() failed: %v", err)
	}

	if _, err := s.GetBusiness(ctx, "Shop"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBusiness() after delete error = %v, want ErrNotFound", err)
	}
	ledgers, err := s.ListLedgers(ctx, "Shop")
	if err != nil {
		t.Fatalf("ListLedgers() failed: %v", err)
	}
	if len(ledgers) != 0 {
		t.Errorf("ListLedgers() after delete returned %d ledgers, want 0", len(ledgers))
	}
	if _, err := s.GetArtifact(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetArtifact() after delete error = %v, want ErrNotFound", err)
	}
}

func testConcurrentLedgers(t *testing.T, s Store) {
	ctx := context.Background()

	if err := s.UpsertBusiness(ctx, &Business{Name: "Shop", Identity: "s@example.com"}); err != nil {
		t.Fatalf("UpsertBusiness() failed: %v", err)
	}

	const workers = 10
	refs := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := s.EnsureLedger(ctx, "Shop", 50)
			if err != nil {
				errs[i] = err
				return
			}
			refs[i] = l.FileReference
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: EnsureLedger() failed: %v", i, err)
		}
	}
	for i := 1; i < workers; i++ {
		if refs[i] != refs[0] {
			t.Fatalf("concurrent EnsureLedger() returned different references: %s vs %s", refs[0], refs[i])
		}
	}
}

func TestInMemoryStore(t *testing.T) {
	runStoreTests(t, func(*testing.T) Store { return NewInMemoryStore() })
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if err := s.UpsertBusiness(ctx, &Business{Name: "Shop", Identity: "s@example.com"}); err != nil {
		t.Fatalf("UpsertBusiness() failed: %v", err)
	}
	b, _ := s.GetBusiness(ctx, "Shop")
	b.Identity = "mutated@example.com"

	again, _ := s.GetBusiness(ctx, "Shop")
	if again.Identity != "s@example.com" {
		t.Error("mutating a returned business should not change the store")
	}

	content := []byte("doc")
	a, err := s.PutArtifact(ctx, "Shop", "x.macro", content)
	if err != nil {
		t.Fatalf("PutArtifact() failed: %v", err)
	}
	content[0] = 'X'

	got, _ := s.GetArtifact(ctx, a.ID)
	if string(got.Content) != "doc" {
		t.Errorf("Content = %q, want %q", got.Content, "doc")
	}
}
