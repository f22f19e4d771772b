package models

// Member is a user as listed by the group-info endpoint.
type Member struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
}

// GroupInfo is the admin plus member list of a group.
type GroupInfo struct {
	Admin   Member   `json:"admin"`
	Members []Member `json:"members"`
}
