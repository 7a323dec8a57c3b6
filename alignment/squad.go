package alignment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// SquadCachePrefix covers every cached view of a squad, across dates.
func SquadCachePrefix(squadID string) string {
	return "squad:alignment:" + squadID + ":"
}

func squadCacheKey(squadID, date string) string {
	return SquadCachePrefix(squadID) + date
}

// MemberAlignment is one row of the squad view.
type MemberAlignment struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	AlignmentScore int    `json:"alignment_score"`
	FullyAligned   bool   `json:"fully_aligned"`
	CurrentStreak  int    `json:"current_streak"`
}

// SquadView aggregates today's alignment across a squad.
type SquadView struct {
	SquadID      string            `json:"squad_id"`
	Date         string            `json:"date"`
	AlignedCount int               `json:"aligned_count"`
	AverageScore int               `json:"average_score"`
	Members      []MemberAlignment `json:"members"`
}

// SquadAlignment returns the squad view for today, served from cache when possible.
func (e *Engine) SquadAlignment(ctx context.Context, squadID string) (*SquadView, error) {
	today := e.Today()
	key := squadCacheKey(squadID, today)
	if e.cache != nil {
		var cached SquadView
		if e.cache.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}

	members, err := e.store.SquadMembers(ctx, squadID)
	if err != nil {
		return nil, fmt.Errorf("load squad members: %w", err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}

	view := &SquadView{SquadID: squadID, Date: today, Members: make([]MemberAlignment, 0, len(members))}
	if len(ids) > 0 {
		alignments, err := e.store.AlignmentsOn(ctx, ids, today)
		if err != nil {
			return nil, fmt.Errorf("load squad alignments: %w", err)
		}
		summaries, err := e.store.Summaries(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load squad summaries: %w", err)
		}

		scores := make(map[string]int, len(alignments))
		aligned := make(map[string]bool, len(alignments))
		for _, a := range alignments {
			scores[a.UserID] = a.AlignmentScore
			aligned[a.UserID] = a.FullyAligned
		}
		streaks := make(map[string]int, len(summaries))
		for _, s := range summaries {
			streaks[s.UserID] = EffectiveStreak(s.CurrentStreak, s.LastAlignedDate, today)
		}

		total := 0
		for _, m := range members {
			row := MemberAlignment{
				UserID:         m.ID,
				Name:           strings.TrimSpace(m.FirstName + " " + m.LastName),
				AlignmentScore: scores[m.ID],
				FullyAligned:   aligned[m.ID],
				CurrentStreak:  streaks[m.ID],
			}
			if row.FullyAligned {
				view.AlignedCount++
			}
			total += row.AlignmentScore
			view.Members = append(view.Members, row)
		}
		view.AverageScore = total / len(members)
		sort.SliceStable(view.Members, func(i, j int) bool {
			return view.Members[i].AlignmentScore > view.Members[j].AlignmentScore
		})
	}

	if e.cache != nil {
		e.cache.SetJSON(ctx, key, view, squadCacheTTL)
		e.logger.Debug("squad alignment cached", zap.String("squad_id", squadID), zap.String("date", today))
	}
	return view, nil
}
