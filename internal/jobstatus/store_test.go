package jobstatus

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

type backing struct {
	name string
	new  func(t *testing.T) Store
}

func backings() []backing {
	return []backing{
		{name: "memory", new: func(t *testing.T) Store { return NewMemoryStore() }},
		{
			name: "sqlite",
			new: func(t *testing.T) Store {
				path := filepath.Join(t.TempDir(), "jobstatus.db")
				s, err := OpenSQLiteStore(path)
				require.NoError(t, err)
				t.Cleanup(func() { s.Close() })
				return s
			},
		},
	}
}

func TestStore_SetAndGetRoundTrip(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			store := b.new(t)
			now := time.Now().UTC().Truncate(time.Second)
			info := agentmodel.BackgroundJobStatusInfo{
				JobID:     "job-1",
				Type:      agentmodel.JobTypePlan,
				Status:    agentmodel.JobQueued,
				CreatedAt: now,
				Metadata:  map[string]string{"taskId": "o/r/issues/1"},
			}

			require.NoError(t, store.Set(context.Background(), info))

			got, found, err := store.Get(context.Background(), "job-1")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, info.JobID, got.JobID)
			assert.Equal(t, info.Type, got.Type)
			assert.Equal(t, info.Status, got.Status)
			assert.True(t, got.CreatedAt.Equal(now))
			assert.Equal(t, info.Metadata, got.Metadata)
		})
	}
}

func TestStore_GetUnknownReturnsNotFound(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			store := b.new(t)
			_, found, err := store.Get(context.Background(), "nope")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

// TestStore_SetPreservesCreatedAtAcrossUpdates matches spec §4.5: "Must preserve
// createdAt across updates."
func TestStore_SetPreservesCreatedAtAcrossUpdates(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			store := b.new(t)
			created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

			require.NoError(t, store.Set(context.Background(), agentmodel.BackgroundJobStatusInfo{
				JobID:     "job-1",
				Type:      agentmodel.JobTypePlan,
				Status:    agentmodel.JobQueued,
				CreatedAt: created,
			}))

			started := time.Now().UTC().Truncate(time.Second)
			require.NoError(t, store.Set(context.Background(), agentmodel.BackgroundJobStatusInfo{
				JobID:     "job-1",
				Type:      agentmodel.JobTypePlan,
				Status:    agentmodel.JobRunning,
				CreatedAt: time.Now().UTC(), // caller passes "now" naively; store must override it
				StartedAt: &started,
				Attempt:   1,
			}))

			got, found, err := store.Get(context.Background(), "job-1")
			require.NoError(t, err)
			require.True(t, found)
			assert.True(t, got.CreatedAt.Equal(created), "CreatedAt must be preserved from the first Set call")
			assert.Equal(t, agentmodel.JobRunning, got.Status)
			require.NotNil(t, got.StartedAt)
			assert.True(t, got.StartedAt.Equal(started))
			assert.Equal(t, 1, got.Attempt)
		})
	}
}

func TestStore_SetCompletedRecordsTerminalFields(t *testing.T) {
	for _, b := range backings() {
		t.Run(b.name, func(t *testing.T) {
			store := b.new(t)
			now := time.Now().UTC().Truncate(time.Second)

			require.NoError(t, store.Set(context.Background(), agentmodel.BackgroundJobStatusInfo{
				JobID: "job-1", Type: agentmodel.JobTypeExecute, Status: agentmodel.JobQueued, CreatedAt: now,
			}))
			require.NoError(t, store.Set(context.Background(), agentmodel.BackgroundJobStatusInfo{
				JobID: "job-1", Type: agentmodel.JobTypeExecute, Status: agentmodel.JobFailed,
				CreatedAt: now, CompletedAt: &now, LastError: "sandbox create failed", Attempt: 3,
				ResultData: []byte(`{"cause":"timeout"}`),
			}))

			got, found, err := store.Get(context.Background(), "job-1")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, agentmodel.JobFailed, got.Status)
			assert.Equal(t, "sandbox create failed", got.LastError)
			assert.Equal(t, 3, got.Attempt)
			require.NotNil(t, got.CompletedAt)
			assert.Equal(t, []byte(`{"cause":"timeout"}`), got.ResultData)
		})
	}
}
