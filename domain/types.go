package domain

import "time"

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

type RoomMode string

const (
	ModeTwoPlayer RoomMode = "two_player"
	ModeParty     RoomMode = "party"
)

type Role string

const (
	RolePsychic   Role = "psychic"
	RoleGuesser   Role = "guesser"
	RoleSpectator Role = "spectator"
)

type Room struct {
	Id           string     `json:"id"`
	Code         string     `json:"code"`
	HostToken    string     `json:"host_id"`
	Private      bool       `json:"is_private"`
	PasswordHash string     `json:"-"`
	Status       RoomStatus `json:"status"`
	Mode         RoomMode   `json:"mode"`
	MaxPlayers   int        `json:"max_players"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Player struct {
	Id       string    `json:"id"`
	RoomId   string    `json:"room_id"`
	Token    string    `json:"player_id"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	Score    int       `json:"score"`
	IsHost   bool      `json:"is_host"`
	JoinedAt time.Time `json:"joined_at"`
}

type Round struct {
	Id             string     `json:"id"`
	RoomId         string     `json:"room_id"`
	Number         int        `json:"round_number"`
	Phase          Phase      `json:"phase"`
	ClueGiverToken string     `json:"psychic_id"`
	GuesserToken   string     `json:"guesser_id"`
	LeftExtreme    string     `json:"left_extreme"`
	RightExtreme   string     `json:"right_extreme"`
	TargetCenter   float64    `json:"target_center"`
	TargetWidth    float64    `json:"target_width"`
	Clue           *string    `json:"clue"`
	Guess          *float64   `json:"guess_value"`
	Points         *int       `json:"points_awarded"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// Involves reports whether token plays clue-giver or guesser in the round.
func (r Round) Involves(token string) bool {
	return r.ClueGiverToken == token || r.GuesserToken == token
}

type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueueMatched   QueueStatus = "matched"
	QueueCancelled QueueStatus = "cancelled"
)

type QueueEntry struct {
	Id            string
	Token         string
	Name          string
	Status        QueueStatus
	MatchedRoomId string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type MatchStatus string

const (
	MatchWaiting MatchStatus = "waiting"
	MatchMatched MatchStatus = "matched"
)

type MatchResult struct {
	Status   MatchStatus
	RoomCode string
	RoomId   string
}
