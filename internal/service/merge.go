package service

import "github.com/dtroode/audience-server/internal/model"

// Merge overlays every field present in incoming onto base.
//
// Absent incoming fields keep base values. CreatedAt keeps the base value once set.
// Interests are replaced as a whole, never unioned.
func Merge(base, incoming model.FieldSet) model.FieldSet {
	out := base.Clone()
	in := incoming.Clone()

	if in.Cookie != "" {
		out.Cookie = in.Cookie
	}
	if in.Email != "" {
		out.Email = in.Email
	}
	overlay(&out.PhoneNumber, in.PhoneNumber)
	if out.CreatedAt == nil {
		out.CreatedAt = in.CreatedAt
	}

	overlay(&out.Location.State, in.Location.State)
	overlay(&out.Location.Country, in.Location.Country)
	overlay(&out.Location.City, in.Location.City)

	overlay(&out.Demographics.Age, in.Demographics.Age)
	overlay(&out.Demographics.Gender, in.Demographics.Gender)
	overlay(&out.Demographics.Income, in.Demographics.Income)
	overlay(&out.Demographics.Education, in.Demographics.Education)

	if in.Interests != nil {
		out.Interests = in.Interests
	}

	return out
}

// MergeByEmail merges like Merge and then adopts the incoming cookie.
func MergeByEmail(base, incoming model.FieldSet) model.FieldSet {
	out := Merge(base, incoming)
	out.Cookie = incoming.Cookie
	return out
}

func overlay[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}
