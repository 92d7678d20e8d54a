package taskdata

// Kind classifies an attribute's value semantics.
type Kind string

const (
	KindText         Kind = "text"
	KindLongText     Kind = "long-text"
	KindPerson       Kind = "person"
	KindPersonList   Kind = "person-list"
	KindDate         Kind = "date"
	KindBoolean      Kind = "boolean"
	KindSingleSelect Kind = "single-select"
	KindMultiSelect  Kind = "multi-select"
	KindOrderedList  Kind = "ordered-list"
	KindOperation    Kind = "operation"
	KindFlag         Kind = "flag"
)

// kindTraits declares per-kind behaviour. Order significance is declared
// here and never inferred from values.
var kindTraits = map[Kind]struct {
	multiValued      bool
	orderSignificant bool
}{
	KindText:         {multiValued: false, orderSignificant: true},
	KindLongText:     {multiValued: false, orderSignificant: true},
	KindPerson:       {multiValued: false, orderSignificant: true},
	KindPersonList:   {multiValued: true, orderSignificant: false},
	KindDate:         {multiValued: false, orderSignificant: true},
	KindBoolean:      {multiValued: false, orderSignificant: true},
	KindSingleSelect: {multiValued: false, orderSignificant: true},
	KindMultiSelect:  {multiValued: true, orderSignificant: false},
	KindOrderedList:  {multiValued: true, orderSignificant: true},
	KindOperation:    {multiValued: false, orderSignificant: true},
	KindFlag:         {multiValued: true, orderSignificant: false},
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindTraits[k]
	return ok
}

// MultiValued reports whether attributes of this kind may hold more than one value.
func (k Kind) MultiValued() bool {
	return kindTraits[k].multiValued
}

// OrderSignificant reports whether two value sequences of this kind differ
// when they hold the same members in a different order.
// Unknown kinds are treated as order significant.
func (k Kind) OrderSignificant() bool {
	t, ok := kindTraits[k]
	if !ok {
		return true
	}
	return t.orderSignificant
}
