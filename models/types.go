package models

import (
	"math"
	"time"
)

// Poll status constants
const (
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusResolved = "resolved"
)

// Poll kinds. Live polls are short "battles" with a visible countdown.
const (
	KindStandard = "standard"
	KindLive     = "live"
)

// Vote confidence levels
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Notification kinds
const (
	NotifyNewFollower  = "new_follower"
	NotifyPollResolved = "poll_resolved"
	NotifyPollClosed   = "poll_closed"
)

func IsConfidence(c string) bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Request types

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// Login is either a username or an email address.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
}

type CreatePollRequest struct {
	Question        string   `json:"question"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Kind            string   `json:"kind"`
	Options         []string `json:"options"`
	DurationSeconds int64    `json:"duration_seconds"`
}

type CastVoteRequest struct {
	OptionID   string `json:"option_id"`
	Confidence string `json:"confidence"`
}

type ResolvePollRequest struct {
	CorrectOptionID string `json:"correct_option_id"`
}

type FeaturePollRequest struct {
	Featured bool `json:"featured"`
}

type AdjustReputationRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type BanUserRequest struct {
	Banned bool `json:"banned"`
}

// Response types

type AuthResponse struct {
	Token string      `json:"token"`
	User  UserProfile `json:"user"`
}

type FollowResponse struct {
	Following bool `json:"following"`
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ShareMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	SiteName    string `json:"site_name"`
	Locale      string `json:"locale"`
	Type        string `json:"type"`
}

// Domain types

type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"-"`
	DisplayName   string    `json:"display_name"`
	Bio           string    `json:"bio"`
	PasswordHash  string    `json:"-"` // Never expose in JSON
	Reputation    int       `json:"reputation"`
	VoteCount     int       `json:"vote_count"`
	CorrectCount  int       `json:"correct_count"`
	ResolvedCount int       `json:"resolved_count"`
	PollsCreated  int       `json:"polls_created"`
	IsAdmin       bool      `json:"is_admin"`
	IsBanned      bool      `json:"is_banned"`
	CreatedAt     time.Time `json:"created_at"`
}

type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Reputation  int    `json:"reputation"`
}

// UserStats feeds badge evaluation.
type UserStats struct {
	Reputation   int     `json:"reputation"`
	Votes        int     `json:"votes"`
	Correct      int     `json:"correct"`
	Resolved     int     `json:"resolved"`
	Accuracy     float64 `json:"accuracy"` // percentage, 0 when nothing resolved
	PollsCreated int     `json:"polls_created"`
	Followers    int     `json:"followers"`
	Following    int     `json:"following"`
}

type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

type UserProfile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	Tier        string    `json:"tier"`
	Stats       UserStats `json:"stats"`
	Badges      []Badge   `json:"badges"`
	IsAdmin     bool      `json:"is_admin,omitempty"`
	IsFollowing *bool     `json:"is_following,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID   string
	Username string
	IsAdmin  bool
	IsBanned bool
}

type Poll struct {
	ID              string     `json:"id"`
	CreatorID       string     `json:"creator_id"`
	Question        string     `json:"question"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	Kind            string     `json:"kind"`
	Status          string     `json:"status"`
	TotalVotes      int        `json:"total_votes"`
	IsFeatured      bool       `json:"is_featured"`
	CorrectOptionID *string    `json:"correct_option_id,omitempty"`
	EndsAt          time.Time  `json:"ends_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// EffectiveStatus reports an open poll whose deadline has passed as closed,
// even before the expiry worker has persisted the change.
func (p Poll) EffectiveStatus(now time.Time) string {
	if p.Status == StatusOpen && !now.Before(p.EndsAt) {
		return StatusClosed
	}
	return p.Status
}

// SecondsRemaining is the countdown shown for open polls; zero once ended.
func (p Poll) SecondsRemaining(now time.Time) int64 {
	if p.EffectiveStatus(now) != StatusOpen {
		return 0
	}
	return int64(math.Ceil(p.EndsAt.Sub(now).Seconds()))
}

type Option struct {
	ID        string `json:"id"`
	PollID    string `json:"poll_id"`
	Label     string `json:"label"`
	Position  int    `json:"position"`
	VoteCount int    `json:"vote_count"`
}

type ConfidenceBreakdown struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

func (c *ConfidenceBreakdown) Add(confidence string, n int) {
	switch confidence {
	case ConfidenceLow:
		c.Low += n
	case ConfidenceMedium:
		c.Medium += n
	case ConfidenceHigh:
		c.High += n
	}
}

type OptionView struct {
	Option
	Percentage float64             `json:"percentage"`
	Confidence ConfidenceBreakdown `json:"confidence"`
}

type MyVote struct {
	OptionID   string    `json:"option_id"`
	Confidence string    `json:"confidence"`
	IsCorrect  *bool     `json:"is_correct,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PollView struct {
	Poll
	Creator          UserSummary  `json:"creator"`
	Options          []OptionView `json:"options"`
	SecondsRemaining int64        `json:"seconds_remaining"`
	MyVote           *MyVote      `json:"my_vote,omitempty"`
}

// Tally is the realtime payload sent after every vote change.
type Tally struct {
	PollID     string         `json:"poll_id"`
	TotalVotes int            `json:"total_votes"`
	Options    map[string]int `json:"options"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	ActorID   *string   `json:"actor_id,omitempty"`
	PollID    *string   `json:"poll_id,omitempty"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type LeaderboardEntry struct {
	Rank              int         `json:"rank"`
	User              UserSummary `json:"user"`
	Score             int64       `json:"score"`
	ReputationDisplay string      `json:"reputation_display"`
	Tier              string      `json:"tier"`
}

type Leaderboard struct {
	Window      string             `json:"window"`
	Since       *time.Time         `json:"since,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
	Entries     []LeaderboardEntry `json:"entries"`
}

// Percentage returns count/total as a percentage rounded to one decimal.
func Percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(count)*1000/float64(total)) / 10
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
