package model

import (
	"errors"
)

// FollowCounts are derived from the lengths of the profile's id arrays.
type FollowCounts struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// CountsOf returns the follow counts of a profile; a nil profile counts as empty.
func CountsOf(u *User) FollowCounts {
	if u == nil {
		return FollowCounts{}
	}
	return FollowCounts{Followers: len(u.Followers), Following: len(u.Following)}
}

// ProfileView is everything a profile screen renders for one user.
type ProfileView struct {
	User        *User        `json:"user"`
	Placeholder bool         `json:"placeholder"`
	Counts      FollowCounts `json:"counts"`
	IsSelf      bool         `json:"is_self"`
	IsFollowing bool         `json:"is_following"`
	Photos      []Photo      `json:"photos"`
}

var (
	ErrCannotFollowSelf = errors.New("cannot follow yourself")
)
