package models

import (
	"errors"
	"time"
)

// Team format constants
const (
	FormatTwoTeam  = "two_team"
	FormatFourTeam = "four_team"
)

// Team position constants
const (
	PositionGovernment        = "government"
	PositionOpposition        = "opposition"
	PositionOpeningGovernment = "opening_government"
	PositionOpeningOpposition = "opening_opposition"
	PositionClosingGovernment = "closing_government"
	PositionClosingOpposition = "closing_opposition"
)

// Speaker role constants. Two-team positions share the generic roles;
// four-team positions use the named BP roles.
const (
	SpeakerRoleFirst  = "first_speaker"
	SpeakerRoleSecond = "second_speaker"
	SpeakerRoleReply  = "reply_speaker"

	SpeakerRolePM  = "prime_minister"
	SpeakerRoleDPM = "deputy_prime_minister"
	SpeakerRoleLO  = "leader_of_opposition"
	SpeakerRoleDLO = "deputy_leader_of_opposition"
	SpeakerRoleMG  = "member_of_government"
	SpeakerRoleGW  = "government_whip"
	SpeakerRoleMO  = "member_of_opposition"
	SpeakerRoleOW  = "opposition_whip"
)

// Allocation role constants
const (
	RoleSpeaker              = "speaker"
	RoleResource             = "resource"
	RoleVotingAdjudicator    = "voting_adjudicator"
	RoleNonVotingAdjudicator = "non_voting_adjudicator"
)

// Match status constants
const (
	StatusDraft      = "draft"
	StatusPublished  = "published"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Allocation history action constants
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionSwapped = "swapped"
)

// Speaker score bounds (inclusive). Half-point granularity.
const (
	MinSpeakerScore = 50.0
	MaxSpeakerScore = 100.0
)

var ErrInvalidIdentity = errors.New("exactly one of user_id or guest_name must be set")

// Identity is exactly one of a registered user or a free-text guest.
// Embedded in Allocation so the JSON fields stay flat.
type Identity struct {
	UserID    *string `json:"user_id,omitempty"`
	GuestName *string `json:"guest_name,omitempty"`
}

// Validate enforces the one-of invariant.
func (i Identity) Validate() error {
	if (i.UserID == nil) == (i.GuestName == nil) {
		return ErrInvalidIdentity
	}
	if i.UserID != nil && *i.UserID == "" {
		return ErrInvalidIdentity
	}
	if i.GuestName != nil && *i.GuestName == "" {
		return ErrInvalidIdentity
	}
	return nil
}

// IsGuest reports whether the identity is a free-text guest.
func (i Identity) IsGuest() bool {
	return i.UserID == nil
}

// Key returns a comparison key for duplicate detection within a match.
func (i Identity) Key() string {
	if i.UserID != nil {
		return "user:" + *i.UserID
	}
	if i.GuestName != nil {
		return "guest:" + *i.GuestName
	}
	return ""
}

// IsAdjudicatorRole reports whether role is one of the two adjudicator roles.
func IsAdjudicatorRole(role string) bool {
	return role == RoleVotingAdjudicator || role == RoleNonVotingAdjudicator
}

// ValidAllocationRole reports whether role is a known allocation role.
func ValidAllocationRole(role string) bool {
	switch role {
	case RoleSpeaker, RoleResource, RoleVotingAdjudicator, RoleNonVotingAdjudicator:
		return true
	}
	return false
}

// ValidMatchStatus reports whether status is a known match status.
func ValidMatchStatus(status string) bool {
	switch status {
	case StatusDraft, StatusPublished, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ValidStatusTransition reports whether a match may move between statuses.
// draft → published → in_progress → completed; cancelled is reachable from any
// non-terminal status. completed and cancelled are terminal.
func ValidStatusTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusDraft:
		return to == StatusPublished || to == StatusCancelled
	case StatusPublished:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

// TerminalStatus reports whether a match status blocks further allocation and
// ballot writes.
func TerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Domain types

type Series struct {
	ID                 string    `json:"id"`
	EventID            string    `json:"event_id"`
	Name               string    `json:"name"`
	Description        *string   `json:"description,omitempty"`
	RoundNumber        *int      `json:"round_number,omitempty"`
	TeamFormat         string    `json:"team_format"`
	AllowReplySpeeches bool      `json:"allow_reply_speeches"`
	IsBreakRound       bool      `json:"is_break_round"`
	CreatedBy          string    `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Match struct {
	ID               string     `json:"id"`
	SeriesID         string     `json:"series_id"`
	RoomName         *string    `json:"room_name,omitempty"`
	Motion           *string    `json:"motion,omitempty"`
	InfoSlide        *string    `json:"info_slide,omitempty"`
	Status           string     `json:"status"`
	ScheduledTime    *time.Time `json:"scheduled_time,omitempty"`
	ScoresReleased   bool       `json:"scores_released"`
	RankingsReleased bool       `json:"rankings_released"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Team struct {
	ID                 string    `json:"id"`
	MatchID            string    `json:"match_id"`
	Position           string    `json:"position"`
	TeamName           *string   `json:"team_name,omitempty"`
	Institution        *string   `json:"institution,omitempty"`
	FinalRank          *int      `json:"final_rank,omitempty"`
	TotalSpeakerPoints *float64  `json:"total_speaker_points,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Allocation struct {
	ID      string `json:"id"`
	MatchID string `json:"match_id"`
	Identity
	Role         string    `json:"role"`
	TeamID       *string   `json:"team_id,omitempty"`
	SpeakerRole  *string   `json:"speaker_role,omitempty"`
	IsChair      bool      `json:"is_chair"`
	WasCheckedIn bool      `json:"was_checked_in"`
	AllocatedBy  string    `json:"allocated_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AllocationHistory struct {
	ID                  string    `json:"id"`
	AllocationID        *string   `json:"allocation_id,omitempty"`
	MatchID             string    `json:"match_id"`
	UserID              *string   `json:"user_id,omitempty"`
	GuestName           *string   `json:"guest_name,omitempty"`
	Action              string    `json:"action"`
	PreviousRole        *string   `json:"previous_role,omitempty"`
	NewRole             *string   `json:"new_role,omitempty"`
	PreviousTeamID      *string   `json:"previous_team_id,omitempty"`
	NewTeamID           *string   `json:"new_team_id,omitempty"`
	PreviousSpeakerRole *string   `json:"previous_speaker_role,omitempty"`
	NewSpeakerRole      *string   `json:"new_speaker_role,omitempty"`
	ChangedBy           string    `json:"changed_by"`
	ChangedAt           time.Time `json:"changed_at"`
	Notes               *string   `json:"notes,omitempty"`
}

type Ballot struct {
	ID            string     `json:"id"`
	MatchID       string     `json:"match_id"`
	AdjudicatorID string     `json:"adjudicator_id"`
	IsVoting      bool       `json:"is_voting"`
	IsSubmitted   bool       `json:"is_submitted"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Request types

type CreateSeriesRequest struct {
	EventID            string  `json:"event_id"`
	Name               string  `json:"name"`
	Description        *string `json:"description,omitempty"`
	RoundNumber        *int    `json:"round_number,omitempty"`
	TeamFormat         string  `json:"team_format"`
	AllowReplySpeeches bool    `json:"allow_reply_speeches"`
	IsBreakRound       bool    `json:"is_break_round"`
}

type UpdateSeriesRequest struct {
	Name               *string `json:"name,omitempty"`
	Description        *string `json:"description,omitempty"`
	AllowReplySpeeches *bool   `json:"allow_reply_speeches,omitempty"`
	IsBreakRound       *bool   `json:"is_break_round,omitempty"`
}

type CreateMatchRequest struct {
	SeriesID      string     `json:"series_id"`
	RoomName      *string    `json:"room_name,omitempty"`
	Motion        *string    `json:"motion,omitempty"`
	InfoSlide     *string    `json:"info_slide,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

type UpdateMatchRequest struct {
	RoomName      *string    `json:"room_name,omitempty"`
	Motion        *string    `json:"motion,omitempty"`
	InfoSlide     *string    `json:"info_slide,omitempty"`
	Status        *string    `json:"status,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

type ReleaseRequest struct {
	ScoresReleased   *bool `json:"scores_released,omitempty"`
	RankingsReleased *bool `json:"rankings_released,omitempty"`
}

type UpdateTeamRequest struct {
	TeamName    *string `json:"team_name,omitempty"`
	Institution *string `json:"institution,omitempty"`
}

type CreateAllocationRequest struct {
	MatchID string `json:"match_id"`
	Identity
	Role        string  `json:"role"`
	TeamID      *string `json:"team_id,omitempty"`
	SpeakerRole *string `json:"speaker_role,omitempty"`
	IsChair     bool    `json:"is_chair"`
}

type UpdateAllocationRequest struct {
	Role        *string `json:"role,omitempty"`
	TeamID      *string `json:"team_id,omitempty"`
	SpeakerRole *string `json:"speaker_role,omitempty"`
	IsChair     *bool   `json:"is_chair,omitempty"`
}

type SwapAllocationsRequest struct {
	AllocationID1 string `json:"allocation_id_1"`
	AllocationID2 string `json:"allocation_id_2"`
}

type SpeakerScoreInput struct {
	AllocationID string  `json:"allocation_id"`
	Score        float64 `json:"score"`
	Feedback     *string `json:"feedback,omitempty"`
}

type TeamRankingInput struct {
	TeamID string `json:"team_id"`
	Rank   int    `json:"rank"`
}

type SubmitBallotRequest struct {
	Notes         *string             `json:"notes,omitempty"`
	SpeakerScores []SpeakerScoreInput `json:"speaker_scores"`
	TeamRankings  []TeamRankingInput  `json:"team_rankings"`
}

type SubmitFeedbackRequest struct {
	Notes string `json:"notes"`
}

// Response types

type SeriesResponse struct {
	Series
	MatchCount int `json:"match_count"`
}

type SeriesListResponse struct {
	Series     []SeriesResponse `json:"series"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

type SpeakerSlot struct {
	AllocationID string `json:"allocation_id"`
	Identity
	Username    string   `json:"username"`
	SpeakerRole string   `json:"speaker_role"`
	Score       *float64 `json:"score,omitempty"` // average; hidden until released for non-admins
}

type ResourceSlot struct {
	AllocationID string `json:"allocation_id"`
	Identity
	Username string `json:"username"`
}

type TeamResponse struct {
	ID                 string         `json:"id"`
	Position           string         `json:"position"`
	TeamName           *string        `json:"team_name,omitempty"`
	Institution        *string        `json:"institution,omitempty"`
	FinalRank          *int           `json:"final_rank,omitempty"`
	TotalSpeakerPoints *float64       `json:"total_speaker_points,omitempty"`
	Speakers           []SpeakerSlot  `json:"speakers"`
	Resources          []ResourceSlot `json:"resources"`
}

type AdjudicatorResponse struct {
	AllocationID string `json:"allocation_id"`
	Identity
	Username     string `json:"username"`
	IsVoting     bool   `json:"is_voting"`
	IsChair      bool   `json:"is_chair"`
	HasSubmitted bool   `json:"has_submitted"`
}

type MatchResponse struct {
	ID               string                `json:"id"`
	SeriesID         string                `json:"series_id"`
	SeriesName       string                `json:"series_name"`
	RoomName         *string               `json:"room_name,omitempty"`
	Motion           *string               `json:"motion,omitempty"`
	InfoSlide        *string               `json:"info_slide,omitempty"`
	Status           string                `json:"status"`
	ScheduledTime    *time.Time            `json:"scheduled_time,omitempty"`
	ScoresReleased   bool                  `json:"scores_released"`
	RankingsReleased bool                  `json:"rankings_released"`
	Teams            []TeamResponse        `json:"teams"`
	Adjudicators     []AdjudicatorResponse `json:"adjudicators"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

type MatchListResponse struct {
	Matches    []MatchResponse `json:"matches"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

type SpeakerScoreResponse struct {
	ID              string  `json:"id"`
	AllocationID    string  `json:"allocation_id"`
	SpeakerUsername string  `json:"speaker_username"`
	Score           float64 `json:"score"`
	Feedback        *string `json:"feedback,omitempty"`
}

type TeamRankingResponse struct {
	ID       string  `json:"id"`
	TeamID   string  `json:"team_id"`
	TeamName *string `json:"team_name,omitempty"`
	Rank     int     `json:"rank"`
	IsWinner bool    `json:"is_winner"`
}

type BallotResponse struct {
	ID                  string                 `json:"id"`
	MatchID             string                 `json:"match_id"`
	AdjudicatorID       string                 `json:"adjudicator_id"`
	AdjudicatorUsername string                 `json:"adjudicator_username"`
	IsVoting            bool                   `json:"is_voting"`
	IsSubmitted         bool                   `json:"is_submitted"`
	SubmittedAt         *time.Time             `json:"submitted_at,omitempty"`
	Notes               *string                `json:"notes,omitempty"`
	SpeakerScores       []SpeakerScoreResponse `json:"speaker_scores"`
	TeamRankings        []TeamRankingResponse  `json:"team_rankings"`
}

type CurrentAllocationInfo struct {
	MatchID  string  `json:"match_id"`
	RoomName *string `json:"room_name,omitempty"`
	Role     string  `json:"role"`
}

type CheckedInUser struct {
	UserID            string                 `json:"user_id"`
	Username          string                 `json:"username"`
	CheckedInAt       time.Time              `json:"checked_in_at"`
	IsAllocated       bool                   `json:"is_allocated"`
	CurrentAllocation *CurrentAllocationInfo `json:"current_allocation,omitempty"`
}

type AllocationPoolResponse struct {
	EventID        string          `json:"event_id"`
	SeriesID       string          `json:"series_id"`
	CheckedInUsers []CheckedInUser `json:"checked_in_users"`
	TotalCheckedIn int             `json:"total_checked_in"`
	TotalAllocated int             `json:"total_allocated"`
	TotalAvailable int             `json:"total_available"`
}

type AllocationHistoryResponse struct {
	History    []AllocationHistory `json:"history"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	TotalPages int                 `json:"total_pages"`
}

type RankCount struct {
	Rank  int `json:"rank"`
	Count int `json:"count"`
}

type PerformanceResponse struct {
	UserID              string      `json:"user_id"`
	Username            string      `json:"username"`
	TotalRounds         int         `json:"total_rounds"`
	RoundsAsSpeaker     int         `json:"rounds_as_speaker"`
	RoundsAsAdjudicator int         `json:"rounds_as_adjudicator"`
	AverageSpeakerScore *float64    `json:"average_speaker_score,omitempty"`
	TotalWins           int         `json:"total_wins"`
	TotalLosses         int         `json:"total_losses"`
	WinRate             *float64    `json:"win_rate,omitempty"`
	Rankings            []RankCount `json:"rankings"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
