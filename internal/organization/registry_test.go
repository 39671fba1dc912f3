package organization

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOrCreateCreatesOnce(t *testing.T) {
	r := NewRegistry()

	first, created := r.FindOrCreate("acme")
	require.True(t, created)
	assert.Equal(t, "acme", first.Name)
	assert.Empty(t, first.Namespace)
	assert.Empty(t, first.Rooms)
	_, err := uuid.Parse(first.ID)
	require.NoError(t, err, "default ids are UUIDs")

	second, created := r.FindOrCreate("acme")
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, r.Len())
}

func TestFindOrCreateIsCaseSensitive(t *testing.T) {
	r := NewRegistry()

	lower, _ := r.FindOrCreate("acme")
	upper, created := r.FindOrCreate("ACME")
	assert.True(t, created)
	assert.NotEqual(t, lower.ID, upper.ID)
	assert.Equal(t, 2, r.Len())
}

func TestFindOrCreateConcurrentSameName(t *testing.T) {
	r := NewRegistry()

	const callers = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[string]int)
		created int
	)
	wg.Add(callers)
	for range callers {
		go func() {
			defer wg.Done()
			org, ok := r.FindOrCreate("acme")
			mu.Lock()
			defer mu.Unlock()
			ids[org.ID]++
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created, "exactly one caller creates")
	assert.Len(t, ids, 1, "every caller sees the same organization")
	assert.Equal(t, 1, r.Len())
}

func TestFindOrCreateRetriesTakenID(t *testing.T) {
	seq := []string{"org-1", "org-1", "", "org-2"}
	next := 0
	r := NewRegistry(WithIDGenerator(func() string {
		id := seq[next]
		next++
		return id
	}))

	a, _ := r.FindOrCreate("a")
	b, _ := r.FindOrCreate("b")
	assert.Equal(t, "org-1", a.ID)
	assert.Equal(t, "org-2", b.ID)
}

func TestFindOrCreatePanicsOnBrokenGenerator(t *testing.T) {
	r := NewRegistry(WithIDGenerator(func() string { return "same" }))
	r.FindOrCreate("a")
	assert.Panics(t, func() { r.FindOrCreate("b") })
}

func TestReturnedOrganizationIsACopy(t *testing.T) {
	r := NewRegistry()
	org, _ := r.FindOrCreate("acme")
	org.Rooms["general"] = struct{}{}
	org.Name = "changed"

	stored, ok := r.Get(org.ID)
	require.True(t, ok)
	assert.Equal(t, "acme", stored.Name)
	assert.Empty(t, stored.Rooms)
}

func TestGetUnknown(t *testing.T) {
	_, ok := NewRegistry().Get("nope")
	assert.False(t, ok)
}

func TestOrganizationJSON(t *testing.T) {
	org := Organization{ID: "id-1", Name: "acme", Rooms: RoomSet{}}
	data, err := json.Marshal(org)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id-1","name":"acme","namespace":"","rooms":[]}`, string(data))

	org.Rooms = RoomSet{"b": {}, "a": {}}
	data, err = json.Marshal(org)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"id-1","name":"acme","namespace":"","rooms":["a","b"]}`, string(data))

	var decoded Organization
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, org, decoded)
}

func TestManyNamesGetDistinctIDs(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]struct{})
	for i := range 200 {
		org, created := r.FindOrCreate(fmt.Sprintf("org-%d", i))
		require.True(t, created)
		_, dup := seen[org.ID]
		require.False(t, dup)
		seen[org.ID] = struct{}{}
	}
}
