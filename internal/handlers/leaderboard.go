package handlers

import (
	"github.com/crewtrack/backend/internal/middleware"
	"github.com/crewtrack/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type LeaderboardHandler struct {
	ranker *services.LeaderboardRanker
}

func NewLeaderboardHandler(ranker *services.LeaderboardRanker) *LeaderboardHandler {
	return &LeaderboardHandler{ranker: ranker}
}

// Get returns the workspace leaderboard for the current period. min_rank
// gates out members below the given directory rank; the caller's own entry
// is always attached when ranked.
func (h *LeaderboardHandler) Get(c *fiber.Ctx) error {
	workspace, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	viewerID := middleware.GetCurrentUserID(c)

	minRank := c.QueryInt("min_rank", 0)
	if minRank < 0 {
		minRank = 0
	}

	board, err := h.ranker.Rank(c.Context(), workspace, minRank, viewerID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    board,
	})
}
