package handler

import (
	"bytes"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/dtroode/audience-server/internal/loader"
	"github.com/dtroode/audience-server/internal/model"
)

type ingestRequest struct {
	Data json.RawMessage `json:"data"`
}

type ingestResponse struct {
	Message   string `json:"message"`
	Action    string `json:"action"`
	ProfileID string `json:"profile_id"`
	Cohort    string `json:"cohort,omitempty"`
}

var actionMessages = map[model.ActionKind]string{
	model.ActionCreateNew:      "New user inserted successfully",
	model.ActionUpdateByCookie: "User updated successfully",
	model.ActionMergeByEmail:   "User email matched, profile merged and cohort snapshot stored",
}

func newIngestResponse(res model.Resolution) ingestResponse {
	resp := ingestResponse{
		Message:   actionMessages[res.Action],
		Action:    string(res.Action),
		ProfileID: res.Profile.ID.String(),
	}
	if res.Snapshot != nil {
		resp.Cohort = res.Snapshot.Cohort
	}
	return resp
}

type locationResponse struct {
	State   *string `json:"state"`
	Country *string `json:"country"`
	City    *string `json:"city"`
}

type demographicsResponse struct {
	Age       *int    `json:"age"`
	Gender    *string `json:"gender"`
	Income    *string `json:"income"`
	Education *string `json:"education"`
}

type fieldsResponse struct {
	Cookie       string               `json:"cookie"`
	Email        string               `json:"email"`
	PhoneNumber  *string              `json:"phone_number"`
	CreatedAt    *time.Time           `json:"created_at"`
	Location     locationResponse     `json:"location"`
	Demographics demographicsResponse `json:"demographics"`
	Interests    []string             `json:"interests"`
}

func newFieldsResponse(f model.FieldSet) fieldsResponse {
	return fieldsResponse{
		Cookie:      f.Cookie,
		Email:       f.Email,
		PhoneNumber: f.PhoneNumber,
		CreatedAt:   f.CreatedAt,
		Location: locationResponse{
			State:   f.Location.State,
			Country: f.Location.Country,
			City:    f.Location.City,
		},
		Demographics: demographicsResponse{
			Age:       f.Demographics.Age,
			Gender:    f.Demographics.Gender,
			Income:    f.Demographics.Income,
			Education: f.Demographics.Education,
		},
		Interests: f.Interests,
	}
}

type profileResponse struct {
	ID        string         `json:"id"`
	UpdatedAt time.Time      `json:"updated_at"`
	Data      fieldsResponse `json:"data"`
}

func newProfileResponse(p model.Profile) profileResponse {
	return profileResponse{
		ID:        p.ID.String(),
		UpdatedAt: p.UpdatedAt,
		Data:      newFieldsResponse(p.Fields),
	}
}

type snapshotResponse struct {
	ID         string         `json:"id"`
	ProfileID  string         `json:"profile_id"`
	Cohort     string         `json:"cohort"`
	RecordedAt time.Time      `json:"recorded_at"`
	Data       fieldsResponse `json:"data"`
}

type cohortResponse struct {
	Count int                `json:"count"`
	Users []snapshotResponse `json:"users"`
}

func newCohortResponse(snapshots []model.CohortSnapshot) cohortResponse {
	users := make([]snapshotResponse, 0, len(snapshots))
	for _, s := range snapshots {
		users = append(users, snapshotResponse{
			ID:         s.ID.String(),
			ProfileID:  s.ProfileID.String(),
			Cohort:     s.Cohort,
			RecordedAt: s.RecordedAt,
			Data:       newFieldsResponse(s.Fields),
		})
	}
	return cohortResponse{Count: len(users), Users: users}
}

type cohortQuery struct {
	Cookie    string   `form:"cookie"`
	Email     string   `form:"email"`
	Country   string   `form:"country"`
	Gender    string   `form:"gender"`
	Income    string   `form:"income"`
	Education string   `form:"education"`
	Cohort    string   `form:"cohort"`
	AgeMin    *int     `form:"age_min" binding:"omitempty,gte=0"`
	AgeMax    *int     `form:"age_max" binding:"omitempty,gte=0"`
	Interests []string `form:"interests"`
	Limit     int      `form:"limit" binding:"omitempty,gte=0"`
}

func (q cohortQuery) filter() model.CohortFilter {
	return model.CohortFilter{
		Cookie:    q.Cookie,
		Email:     q.Email,
		Country:   q.Country,
		Gender:    q.Gender,
		Income:    q.Income,
		Education: q.Education,
		Cohort:    q.Cohort,
		AgeMin:    q.AgeMin,
		AgeMax:    q.AgeMax,
		Interests: q.Interests,
		Limit:     q.Limit,
	}
}

// Attributes accepted inside "data", either flat or under their group object.
var groupAttributes = map[string][]string{
	"location":     {"state", "country", "city"},
	"demographics": {"age", "gender", "income", "education"},
}

var topLevelAttributes = []string{
	"cookie", "email", "phone_number", "created_at", "interests",
	"state", "country", "city", "age", "gender", "income", "education",
}

// decodeRecord maps the "data" object of an ingest request onto a raw record.
// Grouped attributes take precedence over flat ones. Unrecognized keys are kept in Extra.
func decodeRecord(data json.RawMessage) (model.RawRecord, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return model.RawRecord{}, &model.ValidationError{Field: "data", Tag: "object"}
	}

	d := &fieldDecoder{attrs: make(map[string]json.RawMessage, len(top))}
	extra := make(map[string]any)

	for key, raw := range top {
		switch {
		case groupAttributes[key] != nil:
		case slices.Contains(topLevelAttributes, key):
			d.attrs[key] = raw
		default:
			extra[key] = raw
		}
	}

	for _, group := range []string{"location", "demographics"} {
		raw, ok := top[group]
		if !ok || isNull(raw) {
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil {
			return model.RawRecord{}, &model.ValidationError{Field: group, Tag: "object"}
		}
		for key, v := range nested {
			if slices.Contains(groupAttributes[group], key) {
				d.attrs[key] = v
			} else {
				extra[group+"."+key] = v
			}
		}
	}

	rec := model.RawRecord{
		Source:      model.SourceHTTP,
		Payload:     data,
		Cookie:      d.key("cookie"),
		Email:       d.key("email"),
		PhoneNumber: d.text("phone_number"),
		CreatedAt:   d.text("created_at"),
		State:       d.text("state"),
		Country:     d.text("country"),
		City:        d.text("city"),
		Age:         d.number("age"),
		Gender:      d.text("gender"),
		Income:      d.text("income"),
		Education:   d.text("education"),
		Interests:   d.list("interests"),
	}
	if d.err != nil {
		return model.RawRecord{}, d.err
	}
	if len(extra) > 0 {
		rec.Extra = extra
	}

	return rec, nil
}

// fieldDecoder keeps the first type error so attributes can be read in sequence.
type fieldDecoder struct {
	attrs map[string]json.RawMessage
	err   error
}

func (d *fieldDecoder) fail(name, tag string) {
	if d.err == nil {
		d.err = &model.ValidationError{Field: name, Tag: tag}
	}
}

func (d *fieldDecoder) key(name string) string {
	if v := d.text(name); v != nil {
		return *v
	}
	return ""
}

// text accepts strings and numbers. Numbers keep their literal form, which matters for phone numbers.
func (d *fieldDecoder) text(name string) *string {
	raw, ok := d.attrs[name]
	if !ok || isNull(raw) {
		return nil
	}

	var s string
	switch kind(raw) {
	case '"':
		if err := json.Unmarshal(raw, &s); err != nil {
			d.fail(name, "string")
			return nil
		}
	case 'n':
		s = string(bytes.TrimSpace(raw))
	default:
		d.fail(name, "string")
		return nil
	}

	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// number accepts numbers and numeric strings. Unparsable strings decode as NaN
// and are dropped with a warning during normalization.
func (d *fieldDecoder) number(name string) *float64 {
	raw, ok := d.attrs[name]
	if !ok || isNull(raw) {
		return nil
	}

	var f float64
	switch kind(raw) {
	case 'n':
		if err := json.Unmarshal(raw, &f); err != nil {
			d.fail(name, "number")
			return nil
		}
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			d.fail(name, "number")
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			parsed = math.NaN()
		}
		f = parsed
	default:
		d.fail(name, "number")
		return nil
	}

	return &f
}

// list accepts an array of strings or a pipe-delimited string.
func (d *fieldDecoder) list(name string) []string {
	raw, ok := d.attrs[name]
	if !ok || isNull(raw) {
		return nil
	}

	switch kind(raw) {
	case '[':
		var items []string
		if err := json.Unmarshal(raw, &items); err != nil {
			d.fail(name, "list")
			return nil
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			d.fail(name, "list")
			return nil
		}
		return loader.SplitInterests(s)
	default:
		d.fail(name, "list")
		return nil
	}
}

// kind classifies a JSON value by its first byte. Numbers report 'n'.
func kind(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	switch c := trimmed[0]; {
	case c == '-' || (c >= '0' && c <= '9'):
		return 'n'
	default:
		return c
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
