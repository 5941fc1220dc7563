// Package codec provides the wire encoding for ImmutableMember records
// exchanged between nodes. The core treats encoding as opaque (§1); this
// package is one concrete choice among many that could satisfy
// domain.MemberCodec.
package codec

import (
	"encoding/json"

	"github.com/thirstycrow/atomix/internal/domain"
)

// JSON implements domain.MemberCodec over encoding/json.
type JSON struct{}

func (JSON) Encode(m domain.ImmutableMember) ([]byte, error) { return json.Marshal(m) }

func (JSON) Decode(b []byte) (domain.ImmutableMember, error) {
	var m domain.ImmutableMember
	err := json.Unmarshal(b, &m)
	return m, err
}

func (JSON) EncodeBatch(ms []domain.ImmutableMember) ([]byte, error) { return json.Marshal(ms) }

func (JSON) DecodeBatch(b []byte) ([]domain.ImmutableMember, error) {
	var ms []domain.ImmutableMember
	err := json.Unmarshal(b, &ms)
	return ms, err
}

func (JSON) EncodeBool(v bool) ([]byte, error) { return json.Marshal(v) }

func (JSON) DecodeBool(b []byte) (bool, error) {
	var v bool
	err := json.Unmarshal(b, &v)
	return v, err
}
