package sportmonks

import (
	"encoding/json"
	"strconv"
	"strings"
)

// envelope is the v3 single-resource response wrapper.
type envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// Fixture is the subset of a v3 fixture this client reads.
type Fixture struct {
	ID                  int64         `json:"id"`
	Name                string        `json:"name"`
	LeagueID            int64         `json:"league_id"`
	StateID             int           `json:"state_id"`
	StartingAtTimestamp int64         `json:"starting_at_timestamp"`
	State               *State        `json:"state,omitempty"`
	League              *League       `json:"league,omitempty"`
	Participants        []Participant `json:"participants,omitempty"`
	Scores              []Score       `json:"scores,omitempty"`
	Odds                []Odd         `json:"odds,omitempty"`
}

// State is the fixture state include.
type State struct {
	ID            int    `json:"id"`
	State         string `json:"state"`
	Name          string `json:"name"`
	ShortName     string `json:"short_name"`
	DeveloperName string `json:"developer_name"`
}

// Label returns the first non-empty state name.
func (s *State) Label() string {
	if s == nil {
		return ""
	}
	for _, v := range []string{s.State, s.DeveloperName, s.ShortName} {
		if v != "" {
			return v
		}
	}
	return ""
}

// League is the league include.
type League struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Participant is one team of a fixture.
type Participant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Meta struct {
		Location string `json:"location"`
	} `json:"meta"`
}

// Score is one period score entry, e.g. description "CURRENT".
type Score struct {
	ParticipantID int64  `json:"participant_id"`
	Description   string `json:"description"`
	Score         struct {
		Goals       int    `json:"goals"`
		Participant string `json:"participant"`
	} `json:"score"`
}

// Odd is one bookmaker price.
type Odd struct {
	MarketID int64      `json:"market_id"`
	Label    string     `json:"label"`
	Value    flexString `json:"value"`
	Total    flexString `json:"total"`
	Name     string     `json:"name"`
}

// Team is a team with its latest fixtures.
type Team struct {
	ID     int64     `json:"id"`
	Name   string    `json:"name"`
	Latest []Fixture `json:"latest,omitempty"`
}

// flexString accepts JSON strings, numbers and null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

func (f flexString) Float() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(f)), 64)
	if err != nil {
		return 0
	}
	return v
}
