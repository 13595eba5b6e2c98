package services

import (
	"context"
	"log"
	"sort"

	"github.com/crewtrack/backend/internal/apperr"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/directory"
	"github.com/crewtrack/backend/internal/models"
)

// LeaderboardEntry is one ranked member. SessionCount is only populated for
// the top three (the count query is kept narrow on purpose).
type LeaderboardEntry struct {
	Position     int    `json:"position"`
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	Seconds      int64  `json:"seconds"`
	InGame       bool   `json:"in_game"`
	SessionCount *int64 `json:"session_count,omitempty"`
}

// Leaderboard is the ranked view of a workspace's current period
type Leaderboard struct {
	TopThree []LeaderboardEntry `json:"top_three"`
	Viewer   *LeaderboardEntry  `json:"viewer,omitempty"`
}

// LeaderboardRanker ranks members by effective time since the last reset
type LeaderboardRanker struct {
	aggregator *Aggregator
	directory  *directory.Client
}

func NewLeaderboardRanker(aggregator *Aggregator, directoryClient *directory.Client) *LeaderboardRanker {
	return &LeaderboardRanker{aggregator: aggregator, directory: directoryClient}
}

// Rank builds the leaderboard. minRank > 0 gates out members whose
// directory role rank is below it; a directory failure degrades to no gate.
// viewerID != 0 adds the viewer's own entry even outside the top three.
func (r *LeaderboardRanker) Rank(ctx context.Context, workspace *models.Workspace, minRank int, viewerID int64) (*Leaderboard, error) {
	totals, err := r.aggregator.EffectiveMinutes(ctx, workspace)
	if err != nil {
		return nil, apperr.Internal("aggregate effective minutes", err)
	}

	var members []models.Member
	if err := database.DB.Preload("Role").
		Where("workspace_id = ? AND is_active = ?", workspace.ID, true).
		Find(&members).Error; err != nil {
		return nil, apperr.Internal("load members", err)
	}

	// Resolve the rank gate against the directory; fail open on error.
	var roleRanks map[int64]int
	if minRank > 0 {
		roleRanks, err = r.directory.RoleRanks(ctx, workspace.GroupID)
		if err != nil {
			log.Printf("Leaderboard: rank lookup failed for workspace %d, gate disabled: %v", workspace.ID, err)
			roleRanks = nil
		}
	}

	entries := make([]LeaderboardEntry, 0, len(members))
	for _, member := range members {
		if minRank > 0 && roleRanks != nil {
			if member.Role == nil {
				continue
			}
			if rank, ok := roleRanks[member.Role.DirectoryID]; !ok || rank < minRank {
				continue
			}
		}
		entries = append(entries, LeaderboardEntry{
			UserID:   member.UserID,
			Username: member.Username,
			Seconds:  totals[member.UserID] * 60,
		})
	}

	// Descending by seconds; ties break by username then user id so the
	// order is deterministic per invocation.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Seconds != entries[j].Seconds {
			return entries[i].Seconds > entries[j].Seconds
		}
		if entries[i].Username != entries[j].Username {
			return entries[i].Username < entries[j].Username
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Position = i + 1
	}

	r.overlayInGame(workspace.ID, entries)

	board := &Leaderboard{}
	topN := 3
	if len(entries) < topN {
		topN = len(entries)
	}
	board.TopThree = make([]LeaderboardEntry, topN)
	copy(board.TopThree, entries[:topN])

	r.attachSessionCounts(workspace.ID, board.TopThree)

	if viewerID != 0 {
		for _, entry := range entries {
			if entry.UserID == viewerID {
				viewer := entry
				board.Viewer = &viewer
				break
			}
		}
	}

	return board, nil
}

// overlayInGame flags every ranked member with a currently active,
// non-archived session
func (r *LeaderboardRanker) overlayInGame(workspaceID uint, entries []LeaderboardEntry) {
	if len(entries) == 0 {
		return
	}

	var activeUserIDs []int64
	if err := database.DB.Model(&models.ActivitySession{}).
		Where("workspace_id = ? AND active = ? AND archived = ?", workspaceID, true, false).
		Pluck("user_id", &activeUserIDs).Error; err != nil {
		log.Printf("Leaderboard: in-game overlay query failed for workspace %d: %v", workspaceID, err)
		return
	}

	active := make(map[int64]struct{}, len(activeUserIDs))
	for _, userID := range activeUserIDs {
		active[userID] = struct{}{}
	}
	for i := range entries {
		_, entries[i].InGame = active[entries[i].UserID]
	}
}

// attachSessionCounts runs the narrower per-user session count query for
// the top three only
func (r *LeaderboardRanker) attachSessionCounts(workspaceID uint, top []LeaderboardEntry) {
	if len(top) == 0 {
		return
	}

	userIDs := make([]int64, len(top))
	for i, entry := range top {
		userIDs[i] = entry.UserID
	}

	var counts []struct {
		UserID int64
		Total  int64
	}
	if err := database.DB.Model(&models.ActivitySession{}).
		Select("user_id, COUNT(*) as total").
		Where("workspace_id = ? AND archived = ? AND end_time IS NOT NULL AND user_id IN ?",
			workspaceID, false, userIDs).
		Group("user_id").
		Scan(&counts).Error; err != nil {
		log.Printf("Leaderboard: session count query failed for workspace %d: %v", workspaceID, err)
		return
	}

	byUser := make(map[int64]int64, len(counts))
	for _, row := range counts {
		byUser[row.UserID] = row.Total
	}
	for i := range top {
		total := byUser[top[i].UserID]
		top[i].SessionCount = &total
	}
}
