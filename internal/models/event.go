package models

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ticket-bazaar/internal/mapper"
)

const MaxSearchResults = 20

var ErrEmptyQuery = errors.New("query has no searchable terms")

type Venue struct {
	ID         int64
	Name       string
	Address    *string
	PostalCode *string
	City       string
	State      string
}

var VenueMapper = mapper.New[Venue](mapper.Schema{
	Kind:       "venue",
	Table:      "seatgeek_venue",
	Columns:    []string{"id", "name", "address", "postal_code", "city", "state"},
	SaveFields: []string{},
})

func (v *Venue) PKValue() any {
	if v == nil {
		return nil
	}
	return v.ID
}

func (v *Venue) FieldValue(string) any { return nil }

func (v *Venue) AdaptRow(direct mapper.Row, _ map[string]mapper.Row) error {
	rd := mapper.Read(direct)
	v.ID = rd.Int64("id")
	v.Name = rd.String("name")
	v.Address = rd.NullString("address")
	v.PostalCode = rd.NullString("postal_code")
	v.City = rd.String("city")
	v.State = rd.String("state")
	return rd.Err()
}

func (v *Venue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         int64   `json:"id"`
		Name       string  `json:"name"`
		Address    *string `json:"address"`
		PostalCode *string `json:"postal_code"`
		City       string  `json:"city"`
		State      string  `json:"state"`
	}{v.ID, v.Name, v.Address, v.PostalCode, v.City, v.State})
}

type Event struct {
	ID             int64
	Title          string
	PerformerNames []string
	PerformerImage *string
	Venue          *Venue
	DatetimeUTC    time.Time
	DatetimeLocal  time.Time
}

var EventMapper = mapper.New[Event](mapper.Schema{
	Kind:  "event",
	Table: "full_event_search",
	Columns: []string{
		"id", "title", "performer_names", "performer_image", "datetime_utc", "datetime_local",
		"venue__id", "venue__name", "venue__address", "venue__postal_code", "venue__city", "venue__state",
		"city__id", "search__terms",
	},
	Relations:  []string{"venue"},
	SaveFields: []string{},
})

func (e *Event) PKValue() any {
	if e == nil {
		return nil
	}
	return e.ID
}

func (e *Event) FieldValue(string) any { return nil }

func (e *Event) AdaptRow(direct mapper.Row, rels map[string]mapper.Row) error {
	rd := mapper.Read(direct)
	e.ID = rd.Int64("id")
	e.Title = rd.String("title")
	e.PerformerNames = rd.Strings("performer_names")
	e.PerformerImage = rd.NullString("performer_image")
	e.DatetimeUTC = rd.Time("datetime_utc")
	e.DatetimeLocal = rd.Time("datetime_local")
	if err := rd.Err(); err != nil {
		return err
	}
	var err error
	e.Venue, err = VenueMapper.Related(direct, rels, "venue")
	return err
}

func (e *Event) MarshalJSON() ([]byte, error) {
	names := e.PerformerNames
	if names == nil {
		names = []string{}
	}
	return json.Marshal(struct {
		ID             int64     `json:"id"`
		Title          string    `json:"title"`
		PerformerNames []string  `json:"performer_names"`
		PerformerImage *string   `json:"performer_image"`
		Venue          *Venue    `json:"venue"`
		DatetimeUTC    Timestamp `json:"datetime_utc"`
		DatetimeLocal  LocalTime `json:"datetime_local"`
	}{e.ID, e.Title, names, e.PerformerImage, e.Venue, Timestamp(e.DatetimeUTC), LocalTime(e.DatetimeLocal)})
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Tokenize splits on runs of non-word characters and lowercases the terms.
func Tokenize(q string) []string {
	var tokens []string
	for _, part := range nonWord.Split(q, -1) {
		if part != "" {
			tokens = append(tokens, strings.ToLower(part))
		}
	}
	return tokens
}

// TSQuery ANDs the tokens and prefix-matches the last one.
func TSQuery(tokens []string) string {
	return strings.Join(tokens, " & ") + ":*"
}

// SearchLimit caps the requested limit at MaxSearchResults; zero or less means the cap.
func SearchLimit(limit int) int {
	if limit <= 0 || limit > MaxSearchResults {
		return MaxSearchResults
	}
	return limit
}

func SearchEvents(ctx context.Context, db bun.IDB, city int64, tokens []string, limit int) ([]*Event, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyQuery
	}
	return EventMapper.FindAll(ctx, db, mapper.Query{
		Where:   "city__id = ? AND to_tsquery('english', ?) @@ search__terms",
		Params:  []any{city, TSQuery(tokens)},
		OrderBy: "datetime_utc",
		Limit:   SearchLimit(limit),
	})
}
