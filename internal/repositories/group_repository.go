package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-sync/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts group lookups.
type GroupRepository interface {
	IsMember(ctx context.Context, groupID int64, userID int64) (bool, error)
	GetGroupInfo(ctx context.Context, groupID int64) (models.GroupInfo, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// IsMember checks membership. The admin counts as a member.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int64, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
        SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)
            OR EXISTS(SELECT 1 FROM groups WHERE id=$1 AND admin_id=$2)`, groupID, userID)
	return exists, err
}

// GetGroupInfo loads the admin and members of a group.
func (r *GroupRepo) GetGroupInfo(ctx context.Context, groupID int64) (models.GroupInfo, error) {
	var info models.GroupInfo
	err := r.db.GetContext(ctx, &info.Admin, `
        SELECT u.id, u.username FROM groups g INNER JOIN users u ON u.id = g.admin_id WHERE g.id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupInfo{}, ErrGroupNotFound
	}
	if err != nil {
		return models.GroupInfo{}, err
	}

	info.Members = []models.Member{}
	err = r.db.SelectContext(ctx, &info.Members, `
        SELECT u.id, u.username FROM group_members gm INNER JOIN users u ON u.id = gm.user_id
        WHERE gm.group_id=$1 ORDER BY gm.joined_at ASC, u.id ASC`, groupID)
	return info, err
}
