package planner_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/planner"
)

func seededMemoryStore(t *testing.T, topics ...curriculum.Topic) *planner.MemoryStore {
	t.Helper()
	store := planner.NewMemoryStore()
	err := store.SyncCurriculum(context.Background(),
		[]curriculum.Course{{ID: testCourse, Name: "Data Structures"}},
		topics,
	)
	require.NoError(t, err)
	return store
}

func TestMemoryStore_TopicsAndEdges(t *testing.T) {
	ctx := context.Background()
	b := topic("B", 2, 3, 2, "A")
	b.Prerequisites.Recommended = []string{"C"}
	store := seededMemoryStore(t, topic("C", 3, 2, 1), b, topic("A", 1, 5, 4))

	topics, err := store.ListTopics(ctx, testCourse)
	require.NoError(t, err)
	require.Len(t, topics, 3)
	assert.Equal(t, "A", topics[0].ID)
	assert.Equal(t, "C", topics[2].ID)

	edges, err := store.ListRequiredEdges(ctx, testCourse)
	require.NoError(t, err)
	assert.Equal(t, []curriculum.Dependency{requires("B", "A")}, edges)

	deps, err := store.ListDependencies(ctx, "B")
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "Topic A", deps[0].PrerequisiteName)
	assert.Equal(t, curriculum.KindRecommended, deps[1].Kind)

	_, err = store.GetTopic(ctx, "missing")
	assert.ErrorIs(t, err, planner.ErrNotFound)
}

func TestMemoryStore_AddDependency(t *testing.T) {
	ctx := context.Background()
	store := seededMemoryStore(t, topic("A", 1, 5, 4), topic("B", 2, 3, 2))

	tests := []struct {
		name    string
		dep     curriculum.Dependency
		wantErr error
	}{
		{"valid", requires("B", "A"), nil},
		{"self loop", requires("A", "A"), planner.ErrInvalidDependency},
		{"unknown kind", curriculum.Dependency{TopicID: "B", PrerequisiteID: "A", Kind: "optional"}, planner.ErrInvalidDependency},
		{"missing ids", curriculum.Dependency{Kind: curriculum.KindRequired}, planner.ErrInvalidDependency},
		{"unknown topic", requires("B", "Z"), planner.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.AddDependency(ctx, tt.dep)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	edges, err := store.ListRequiredEdges(ctx, testCourse)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestMemoryStore_Progress(t *testing.T) {
	ctx := context.Background()
	store := seededMemoryStore(t, topic("A", 1, 5, 4))

	_, ok, err := store.GetProgress(ctx, "s1", "A")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UpsertProgress(ctx, status("A", planner.StatusInProgress, 2)))
	got, ok, err := store.GetProgress(ctx, "s1", "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, planner.StatusInProgress, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())

	assert.ErrorIs(t, store.UpsertProgress(ctx, status("Z", planner.StatusCompleted, 3)), planner.ErrNotFound)
	assert.ErrorIs(t, store.UpsertProgress(ctx, status("A", "done", 3)), planner.ErrInvalidProgress)
	assert.ErrorIs(t, store.UpsertProgress(ctx, status("A", planner.StatusCompleted, 6)), planner.ErrInvalidProgress)

	all, err := store.ListStudentProgress(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_ReplaceScheduleEntries(t *testing.T) {
	ctx := context.Background()
	store := seededMemoryStore(t, topic("A", 1, 5, 4), topic("B", 2, 3, 2))
	day1, day2 := mustDate(t, "2024-03-04"), mustDate(t, "2024-03-05")

	first := []planner.ScheduleEntry{
		{GenerationID: "g1", StudentID: "s1", CourseID: testCourse, TopicID: "A", Date: day1, Hours: 2, Priority: 6},
		{GenerationID: "g1", StudentID: "s1", CourseID: testCourse, TopicID: "A", Date: day2, Hours: 2, Priority: 6},
	}
	second := []planner.ScheduleEntry{
		{GenerationID: "g2", StudentID: "s1", CourseID: testCourse, TopicID: "B", Date: day1, Hours: 1, Priority: 4},
	}

	require.NoError(t, store.ReplaceScheduleEntries(ctx, "s1", testCourse, first))
	require.NoError(t, store.ReplaceScheduleEntries(ctx, "s1", testCourse, second))

	got, err := store.ListScheduleEntries(ctx, "s1", day1, day2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "g2", got[0].GenerationID)

	require.NoError(t, store.ReplaceScheduleEntries(ctx, "s1", testCourse, nil))
	got, err = store.ListScheduleEntries(ctx, "s1", day1, day2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_ReplaceIsNeverObservedHalfDone(t *testing.T) {
	ctx := context.Background()
	store := seededMemoryStore(t, topic("A", 1, 5, 4))
	start := mustDate(t, "2024-03-04")

	generation := func(id string) []planner.ScheduleEntry {
		entries := make([]planner.ScheduleEntry, 5)
		for i := range entries {
			entries[i] = planner.ScheduleEntry{
				GenerationID: id, StudentID: "s1", CourseID: testCourse,
				TopicID: "A", Date: start.AddDays(i), Hours: 1, Priority: 6,
			}
		}
		return entries
	}
	require.NoError(t, store.ReplaceScheduleEntries(ctx, "s1", testCourse, generation("g0")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 200 {
			_ = store.ReplaceScheduleEntries(ctx, "s1", testCourse, generation(string(rune('a'+i%26))))
		}
	}()

	for range 200 {
		got, err := store.ListScheduleEntries(ctx, "s1", start, start.AddDays(10))
		require.NoError(t, err)
		require.Len(t, got, 5)
		for _, e := range got {
			assert.Equal(t, got[0].GenerationID, e.GenerationID)
		}
	}
	wg.Wait()
}

func TestMemoryStore_ListScheduleEntriesAcrossCourses(t *testing.T) {
	ctx := context.Background()
	store := planner.NewMemoryStore()
	day := mustDate(t, "2024-03-04")

	require.NoError(t, store.ReplaceScheduleEntries(ctx, "s1", "MATH", []planner.ScheduleEntry{
		{StudentID: "s1", CourseID: "MATH", TopicID: "M1", Date: day, Hours: 1, Priority: 3},
	}))
	require.NoError(t, store.ReplaceScheduleEntries(ctx, "s1", testCourse, []planner.ScheduleEntry{
		{StudentID: "s1", CourseID: testCourse, TopicID: "A", Date: day, Hours: 1, Priority: 6},
		{StudentID: "s1", CourseID: testCourse, TopicID: "B", Date: day.AddDays(40), Hours: 1, Priority: 6},
	}))
	require.NoError(t, store.ReplaceScheduleEntries(ctx, "s2", testCourse, []planner.ScheduleEntry{
		{StudentID: "s2", CourseID: testCourse, TopicID: "A", Date: day, Hours: 1, Priority: 9},
	}))

	got, err := store.ListScheduleEntries(ctx, "s1", day, day.AddDays(30))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].TopicID)
	assert.Equal(t, "M1", got[1].TopicID)
}
