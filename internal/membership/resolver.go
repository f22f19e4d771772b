package membership

import (
	"context"
	"fmt"
	"strconv"

	"chat-sync/internal/models"
	"chat-sync/internal/session"
)

// GroupInfoFetcher loads the admin and members of a group.
type GroupInfoFetcher interface {
	GroupInfo(ctx context.Context, groupID string) (models.GroupInfo, error)
}

// Resolver computes the participant set used to address a group's streaming connection.
type Resolver struct {
	fetcher     GroupInfoFetcher
	localUserID int64
}

// NewResolver constructs a Resolver for the session user.
func NewResolver(fetcher GroupInfoFetcher, sess session.Session) *Resolver {
	return &Resolver{fetcher: fetcher, localUserID: sess.UserID}
}

// Resolve returns the group id followed by every admin and member id except the local user,
// each once, admin first then members in listed order.
func (r *Resolver) Resolve(ctx context.Context, groupID string) ([]string, error) {
	info, err := r.fetcher.GroupInfo(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("resolve members of %s: %w", groupID, err)
	}
	return ParticipantSet(groupID, info, r.localUserID), nil
}

// ParticipantSet builds the addressing list from group info.
func ParticipantSet(groupID string, info models.GroupInfo, self int64) []string {
	participants := []string{groupID}
	seen := map[int64]struct{}{self: {}}
	add := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		participants = append(participants, strconv.FormatInt(id, 10))
	}

	add(info.Admin.ID)
	for _, m := range info.Members {
		add(m.ID)
	}
	return participants
}
