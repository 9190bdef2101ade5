package store

import "go.mongodb.org/mongo-driver/bson"

// Mutation builds the update half of a conditional update. Like Predicate,
// it is a closed set of typed variants instead of a raw bson.M so a mutation
// that isn't one of the operators the store adapter actually supports fails
// to compile rather than fails at the database.
type Mutation interface {
	apply(bson.M)
}

// Mutations combines several single-field mutations into the one update
// document Mongo expects (e.g. $inc and $push in the same call).
type Mutations []Mutation

func (m Mutations) update() bson.M {
	out := bson.M{}
	for _, mut := range m {
		mut.apply(out)
	}
	return out
}

func mergeOp(doc bson.M, op, field string, value interface{}) {
	sub, ok := doc[op].(bson.M)
	if !ok {
		sub = bson.M{}
		doc[op] = sub
	}
	sub[field] = value
}

// Inc increments Field by By, which may be negative.
type Inc struct {
	Field string
	By    interface{}
}

func (m Inc) apply(doc bson.M) { mergeOp(doc, "$inc", m.Field, m.By) }

// Push appends Value to the array Field.
type Push struct {
	Field string
	Value interface{}
}

func (m Push) apply(doc bson.M) { mergeOp(doc, "$push", m.Field, m.Value) }

// Pull removes Value from the array Field.
type Pull struct {
	Field string
	Value interface{}
}

func (m Pull) apply(doc bson.M) { mergeOp(doc, "$pull", m.Field, m.Value) }

// Set unconditionally replaces Field with Value.
type Set struct {
	Field string
	Value interface{}
}

func (m Set) apply(doc bson.M) { mergeOp(doc, "$set", m.Field, m.Value) }

// CurrentDate stamps Field with the store's clock at write time.
type CurrentDate struct {
	Field string
}

func (m CurrentDate) apply(doc bson.M) { mergeOp(doc, "$currentDate", m.Field, true) }
