package services

import (
	"sort"

	"glimpseAPI/internal/types/story"

	"github.com/google/uuid"
)

// GroupByAuthor turns a flat visible-story list into per-author groups.
// Stories inside a group are ascending by creation time; groups are
// ordered by the creation time of their most recent story, newest group
// first. Pure function, deterministic for a given input.
func GroupByAuthor(stories []story.Story) []story.StoryGroup {
	byAuthor := make(map[uuid.UUID]*story.StoryGroup)
	order := make([]uuid.UUID, 0)

	for _, s := range stories {
		g, ok := byAuthor[s.AuthorID]
		if !ok {
			g = &story.StoryGroup{
				AuthorID: s.AuthorID,
				Author:   s.Author,
				Stories:  make([]story.Story, 0, 1),
			}
			byAuthor[s.AuthorID] = g
			order = append(order, s.AuthorID)
		}
		g.Stories = append(g.Stories, s)
	}

	groups := make([]story.StoryGroup, 0, len(order))
	for _, id := range order {
		g := byAuthor[id]
		sort.SliceStable(g.Stories, func(i, j int) bool {
			return g.Stories[i].CreatedAt.Before(g.Stories[j].CreatedAt)
		})
		g.StoryCount = len(g.Stories)
		groups = append(groups, *g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		latest := func(g story.StoryGroup) int {
			return len(g.Stories) - 1
		}
		return groups[i].Stories[latest(groups[i])].CreatedAt.
			After(groups[j].Stories[latest(groups[j])].CreatedAt)
	})

	return groups
}
