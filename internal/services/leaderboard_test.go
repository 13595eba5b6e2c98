package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewtrack/backend/internal/config"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/directory"
	"github.com/crewtrack/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardRanking(t *testing.T) {
	db := setupTestDB(t)
	workspace := createTestWorkspace(t, db, true)

	createTestMember(t, db, workspace.ID, 1, "alice", nil)
	createTestMember(t, db, workspace.ID, 2, "bob", nil)
	createTestMember(t, db, workspace.ID, 3, "carol", nil)

	start := time.Now().UTC().Add(-3 * time.Hour)
	createClosedSession(t, db, workspace.ID, 1, start, 10, 0)
	createClosedSession(t, db, workspace.ID, 2, start, 10, 0)
	// carol has no sessions but is still ranked, at zero

	ranker := NewLeaderboardRanker(NewAggregator(nil), nil)
	board, err := ranker.Rank(context.Background(), workspace, 0, 3)
	require.NoError(t, err)

	require.Len(t, board.TopThree, 3)

	// alice and bob tie at 600s; the tie breaks by username
	assert.Equal(t, 1, board.TopThree[0].Position)
	assert.Equal(t, "alice", board.TopThree[0].Username)
	assert.Equal(t, int64(600), board.TopThree[0].Seconds)

	assert.Equal(t, 2, board.TopThree[1].Position)
	assert.Equal(t, "bob", board.TopThree[1].Username)
	assert.Equal(t, int64(600), board.TopThree[1].Seconds)

	assert.Equal(t, 3, board.TopThree[2].Position)
	assert.Equal(t, "carol", board.TopThree[2].Username)
	assert.Equal(t, int64(0), board.TopThree[2].Seconds)

	// Session counts attach to the top three
	require.NotNil(t, board.TopThree[0].SessionCount)
	assert.Equal(t, int64(1), *board.TopThree[0].SessionCount)
	require.NotNil(t, board.TopThree[2].SessionCount)
	assert.Equal(t, int64(0), *board.TopThree[2].SessionCount)

	// Viewer entry mirrors carol's ranked row
	require.NotNil(t, board.Viewer)
	assert.Equal(t, int64(3), board.Viewer.UserID)
	assert.Equal(t, 3, board.Viewer.Position)
}

func TestLeaderboardRankGate(t *testing.T) {
	db := setupTestDB(t)
	workspace := createTestWorkspace(t, db, true)

	// Directory stub: role 10 ranks above the gate, role 20 below
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"roles":[{"id":10,"rank":200},{"id":20,"rank":50}]}`)
	}))
	defer server.Close()

	// Rank cache writes go to a dead Redis address; failures there are
	// logged, not surfaced.
	previousRedis := database.Redis
	database.Redis = redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { database.Redis = previousRedis })

	staff := createTestRole(t, db, workspace.ID, "Staff", false, false)
	require.NoError(t, db.Model(staff).Update("directory_id", 10).Error)
	require.NoError(t, db.First(staff, staff.ID).Error)
	trainee := createTestRole(t, db, workspace.ID, "Trainee", false, false)
	require.NoError(t, db.Model(trainee).Update("directory_id", 20).Error)
	require.NoError(t, db.First(trainee, trainee.ID).Error)

	createTestMember(t, db, workspace.ID, 1, "alice", staff)
	createTestMember(t, db, workspace.ID, 2, "bob", staff)
	createTestMember(t, db, workspace.ID, 3, "carol", trainee)

	start := time.Now().UTC().Add(-3 * time.Hour)
	createClosedSession(t, db, workspace.ID, 1, start, 10, 0)
	createClosedSession(t, db, workspace.ID, 2, start, 10, 0)

	client := directory.NewClient(&config.Config{
		DirectoryBaseURL: server.URL,
		DirectoryTimeout: 2 * time.Second,
	})
	ranker := NewLeaderboardRanker(NewAggregator(nil), client)

	board, err := ranker.Rank(context.Background(), workspace, 100, 3)
	require.NoError(t, err)

	// carol is gated out entirely, not ranked last
	require.Len(t, board.TopThree, 2)
	names := []string{board.TopThree[0].Username, board.TopThree[1].Username}
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)
	assert.Equal(t, 1, board.TopThree[0].Position)
	assert.Equal(t, 2, board.TopThree[1].Position)
	assert.Nil(t, board.Viewer, "gated viewer has no entry")
}

func TestLeaderboardInGameOverlay(t *testing.T) {
	db := setupTestDB(t)
	workspace := createTestWorkspace(t, db, true)

	createTestMember(t, db, workspace.ID, 1, "alice", nil)
	createTestMember(t, db, workspace.ID, 2, "bob", nil)

	start := time.Now().UTC().Add(-2 * time.Hour)
	createClosedSession(t, db, workspace.ID, 1, start, 30, 0)
	require.NoError(t, db.Create(&models.ActivitySession{
		WorkspaceID: workspace.ID, UserID: 1,
		StartTime: time.Now().UTC().Add(-10 * time.Minute), Active: true,
	}).Error)

	ranker := NewLeaderboardRanker(NewAggregator(nil), nil)
	board, err := ranker.Rank(context.Background(), workspace, 0, 0)
	require.NoError(t, err)

	require.Len(t, board.TopThree, 2)
	assert.True(t, board.TopThree[0].InGame, "alice has an open session")
	assert.False(t, board.TopThree[1].InGame)
	assert.Nil(t, board.Viewer, "no viewer requested")
}

func TestLeaderboardExcludesInactiveMembers(t *testing.T) {
	db := setupTestDB(t)
	workspace := createTestWorkspace(t, db, true)

	createTestMember(t, db, workspace.ID, 1, "alice", nil)
	former := createTestMember(t, db, workspace.ID, 2, "bob", nil)
	require.NoError(t, db.Model(former).Update("is_active", false).Error)

	ranker := NewLeaderboardRanker(NewAggregator(nil), nil)
	board, err := ranker.Rank(context.Background(), workspace, 0, 0)
	require.NoError(t, err)

	require.Len(t, board.TopThree, 1)
	assert.Equal(t, "alice", board.TopThree[0].Username)
}
