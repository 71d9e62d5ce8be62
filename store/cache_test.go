package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liamcoop/vouchermacro/macro"
)

// countingStore counts loads. When a gate is set, loads read the store and
// then block until the gate is released.
type countingStore struct {
	*InMemoryStore
	templateLoads atomic.Int32
	fragmentLoads atomic.Int32
	gate          chan struct{}
	fragmentGate  chan struct{}
}

func newCountingStore() *countingStore {
	return &countingStore{InMemoryStore: NewInMemoryStore()}
}

func (s *countingStore) GetTemplate(ctx context.Context, name string) (string, error) {
	s.templateLoads.Add(1)
	content, err := s.InMemoryStore.GetTemplate(ctx, name)
	if s.gate != nil {
		<-s.gate
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return content, err
}

func (s *countingStore) Fragments(ctx context.Context) (macro.FragmentSet, error) {
	s.fragmentLoads.Add(1)
	set, err := s.InMemoryStore.Fragments(ctx)
	if s.fragmentGate != nil {
		<-s.fragmentGate
	}
	return set, err
}

func waitForLoads(counter *atomic.Int32, n int32) {
	for counter.Load() < n {
		time.Sleep(time.Millisecond)
	}
}

func TestTemplateCacheHit(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	_ = s.PutTemplate(ctx, "temp.macro", "v1")

	c := NewTemplateCache(s, 0)
	for i := 0; i < 3; i++ {
		got, err := c.Template(ctx, "temp.macro")
		if err != nil {
			t.Fatalf("Template() failed: %v", err)
		}
		if got != "v1" {
			t.Errorf("Template() = %q, want %q", got, "v1")
		}
	}

	if n := s.templateLoads.Load(); n != 1 {
		t.Errorf("store loads = %d, want 1", n)
	}
}

func TestTemplateCacheInvalidateAndReload(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	_ = s.PutTemplate(ctx, "temp.macro", "v1")

	c := NewTemplateCache(s, 0)
	if _, err := c.Template(ctx, "temp.macro"); err != nil {
		t.Fatalf("Template() failed: %v", err)
	}

	_ = s.PutTemplate(ctx, "temp.macro", "v2")
	if got, _ := c.Template(ctx, "temp.macro"); got != "v1" {
		t.Errorf("Template() before invalidation = %q, want cached %q", got, "v1")
	}

	got, err := c.ReloadTemplate(ctx, "temp.macro")
	if err != nil {
		t.Fatalf("ReloadTemplate() failed: %v", err)
	}
	if got != "v2" {
		t.Errorf("ReloadTemplate() = %q, want %q", got, "v2")
	}

	_ = s.PutTemplate(ctx, "temp.macro", "v3")
	c.InvalidateTemplate("temp.macro")
	if got, _ := c.Template(ctx, "temp.macro"); got != "v3" {
		t.Errorf("Template() after invalidation = %q, want %q", got, "v3")
	}
}

func TestTemplateCacheTTL(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	_ = s.PutTemplate(ctx, "temp.macro", "v1")

	c := NewTemplateCache(s, 20*time.Millisecond)
	if _, err := c.Template(ctx, "temp.macro"); err != nil {
		t.Fatalf("Template() failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := c.Template(ctx, "temp.macro"); err != nil {
		t.Fatalf("Template() failed: %v", err)
	}

	if n := s.templateLoads.Load(); n != 2 {
		t.Errorf("store loads = %d, want 2 after expiry", n)
	}
}

func TestTemplateCacheMissingTemplate(t *testing.T) {
	c := NewTemplateCache(NewInMemoryStore(), 0)
	if _, err := c.Template(context.Background(), "temp.macro"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Template() error = %v, want ErrNotFound", err)
	}
}

func TestTemplateCacheCoalescesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	_ = s.PutTemplate(ctx, "temp.macro", "v1")
	s.gate = make(chan struct{})

	c := NewTemplateCache(s, 0)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Template(ctx, "temp.macro")
		}(i)
	}

	// Let every caller reach the shared load before releasing it.
	waitForLoads(&s.templateLoads, 1)
	time.Sleep(20 * time.Millisecond)
	close(s.gate)
	wg.Wait()

	for i, r := range results {
		if r != "v1" {
			t.Errorf("caller %d got %q, want %q", i, r, "v1")
		}
	}
	if n := s.templateLoads.Load(); n != 1 {
		t.Errorf("store loads = %d, want 1", n)
	}
}

func TestTemplateCacheFragments(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	_ = s.PutFragment(ctx, macro.FragmentAmount, 1, "a1")

	c := NewTemplateCache(s, 0)
	set, err := c.Fragments(ctx)
	if err != nil {
		t.Fatalf("Fragments() failed: %v", err)
	}
	if text, ok := set.Fragment(macro.FragmentAmount, 1); !ok || text != "a1" {
		t.Errorf("Fragment(amount, 1) = %q, %v; want a1, true", text, ok)
	}

	_ = s.PutFragment(ctx, macro.FragmentAmount, 1, "a1b")
	_, _ = c.Fragments(ctx)
	if n := s.fragmentLoads.Load(); n != 1 {
		t.Errorf("fragment loads = %d, want 1 while cached", n)
	}

	c.InvalidateFragments()
	set, _ = c.Fragments(ctx)
	if text, _ := set.Fragment(macro.FragmentAmount, 1); text != "a1b" {
		t.Errorf("Fragment(amount, 1) after invalidation = %q, want a1b", text)
	}
}

func TestTemplateCacheInvalidationDuringLoad(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	_ = s.PutTemplate(ctx, "temp.macro", "old")
	s.gate = make(chan struct{})

	c := NewTemplateCache(s, 0)

	done := make(chan string)
	go func() {
		got, _ := c.Template(ctx, "temp.macro")
		done <- got
	}()

	// The load has read "old" and is blocked when the upload lands.
	waitForLoads(&s.templateLoads, 1)
	_ = s.PutTemplate(ctx, "temp.macro", "new")
	c.InvalidateTemplate("temp.macro")
	close(s.gate)

	if got := <-done; got != "old" {
		t.Errorf("in-flight Template() = %q, want %q", got, "old")
	}
	got, err := c.Template(ctx, "temp.macro")
	if err != nil {
		t.Fatalf("Template() failed: %v", err)
	}
	if got != "new" {
		t.Errorf("Template() after invalidation = %q, want %q", got, "new")
	}
}

func TestTemplateCacheFragmentInvalidationDuringLoad(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	_ = s.PutFragment(ctx, macro.FragmentAmount, 1, "old")
	s.fragmentGate = make(chan struct{})

	c := NewTemplateCache(s, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Fragments(ctx)
	}()

	waitForLoads(&s.fragmentLoads, 1)
	_ = s.PutFragment(ctx, macro.FragmentAmount, 1, "new")
	c.InvalidateFragments()
	close(s.fragmentGate)
	<-done

	set, err := c.Fragments(ctx)
	if err != nil {
		t.Fatalf("Fragments() failed: %v", err)
	}
	if text, _ := set.Fragment(macro.FragmentAmount, 1); text != "new" {
		t.Errorf("Fragment(amount, 1) = %q, want %q", text, "new")
	}
}

func TestTemplateCacheLoadSurvivesCallerCancellation(t *testing.T) {
	s := newCountingStore()
	_ = s.PutTemplate(context.Background(), "temp.macro", "v1")
	s.gate = make(chan struct{})

	c := NewTemplateCache(s, 0)

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Template(firstCtx, "temp.macro")
		first <- err
	}()
	waitForLoads(&s.templateLoads, 1)

	type result struct {
		content string
		err     error
	}
	second := make(chan result, 1)
	go func() {
		content, err := c.Template(context.Background(), "temp.macro")
		second <- result{content, err}
	}()

	// Let the second caller join the shared load before cancelling the first.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(s.gate)

	if err := <-first; err != nil {
		t.Errorf("first caller error = %v, want nil", err)
	}
	r := <-second
	if r.err != nil || r.content != "v1" {
		t.Errorf("second caller = %q, %v; want %q, nil", r.content, r.err, "v1")
	}
	if n := s.templateLoads.Load(); n != 1 {
		t.Errorf("store loads = %d, want 1", n)
	}
}
