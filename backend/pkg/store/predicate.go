package store

import "go.mongodb.org/mongo-driver/bson"

// Predicate builds the filter half of a conditional update. Filters are kept
// as typed variants rather than raw bson.M so that the idempotence guards in
// package bankcore are checked by the compiler, not by eyeballing map keys.
type Predicate interface {
	filter() bson.M
}

// Eq matches documents where Field equals Value.
type Eq struct {
	Field string
	Value interface{}
}

func (p Eq) filter() bson.M { return bson.M{p.Field: p.Value} }

// Ne matches documents where Field does not equal Value, or the field is absent.
type Ne struct {
	Field string
	Value interface{}
}

func (p Ne) filter() bson.M { return bson.M{p.Field: bson.M{"$ne": p.Value}} }

// Lt matches documents where Field is strictly less than Value.
type Lt struct {
	Field string
	Value interface{}
}

func (p Lt) filter() bson.M { return bson.M{p.Field: bson.M{"$lt": p.Value}} }

// NotMember matches documents whose array Field does not contain Value.
type NotMember struct {
	Field string
	Value interface{}
}

func (p NotMember) filter() bson.M { return bson.M{p.Field: bson.M{"$ne": p.Value}} }

// Member matches documents whose array Field contains Value.
type Member struct {
	Field string
	Value interface{}
}

func (p Member) filter() bson.M { return bson.M{p.Field: p.Value} }

// And combines predicates with conjunction, merging into a single flat
// document since every predicate here targets a distinct field.
type And []Predicate

func (p And) filter() bson.M {
	out := bson.M{}
	for _, pred := range p {
		for k, v := range pred.filter() {
			out[k] = v
		}
	}
	return out
}

// ToBSON renders a Predicate to the bson.M the driver expects. A nil
// Predicate renders as the empty filter, matching every document.
func ToBSON(p Predicate) bson.M {
	if p == nil {
		return bson.M{}
	}
	return p.filter()
}
