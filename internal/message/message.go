package message

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the two payload shapes a Record can carry.
type Kind string

const (
	KindText  Kind = "text"
	KindMedia Kind = "media"
)

// AllowedEmojis is the fixed set of reactions clients may toggle.
// Anything else is dropped without a response.
var AllowedEmojis = map[string]bool{
	"👍":  true,
	"❤️": true,
	"😂":  true,
	"😮":  true,
	"😢":  true,
	"🔥":  true,
}

// Record is one chat history entry. Text records carry only opaque
// client-encrypted payload (cipherText + iv) — the server never decodes
// either. Media records carry the URL pair produced by the upload endpoint.
type Record struct {
	ID    string `json:"id" bson:"id"`
	Kind  Kind   `json:"kind" bson:"kind"`
	Autor string `json:"autor" bson:"autor"`

	CipherText string `json:"cipherText,omitempty" bson:"cipherText,omitempty"`
	IV         string `json:"iv,omitempty" bson:"iv,omitempty"`

	URLFull      string `json:"urlFull,omitempty" bson:"urlFull,omitempty"`
	URLThumb     string `json:"urlThumb,omitempty" bson:"urlThumb,omitempty"`
	MimeType     string `json:"mimeType,omitempty" bson:"mimeType,omitempty"`
	ByteSize     int64  `json:"bytes,omitempty" bson:"bytes,omitempty"`
	OriginalName string `json:"originalName,omitempty" bson:"originalName,omitempty"`

	Fecha      string              `json:"fecha" bson:"fecha"`
	Reacciones map[string][]string `json:"reacciones,omitempty" bson:"reacciones,omitempty"`
}

// Incoming is the raw publish payload as sent over the wire, before
// normalization. Fields the client didn't send stay zero.
type Incoming struct {
	ID         string `json:"id"`
	CipherText string `json:"cipherText"`
	IV         string `json:"iv"`

	URLFull      string `json:"urlFull"`
	URLThumb     string `json:"urlThumb"`
	MimeType     string `json:"mimeType"`
	ByteSize     int64  `json:"bytes"`
	OriginalName string `json:"originalName"`

	Fecha      string              `json:"fecha"`
	Reacciones map[string][]string `json:"reacciones"`
}

// ErrInvalid marks a publish payload that cannot be normalized into a
// Record. Per the relay's fail-closed policy it is logged and dropped,
// never reported to the sender.
var ErrInvalid = errors.New("invalid message payload")

// Normalize canonicalizes a raw publish into a Record attributed to autor.
// Kind is inferred from the presence of cipherText: text payloads need both
// cipherText and iv, media payloads need at least a full URL.
func Normalize(raw Incoming, autor string) (Record, error) {
	rec := Record{
		ID:    raw.ID,
		Autor: autor,
		Fecha: raw.Fecha,
	}

	if raw.CipherText != "" {
		if raw.IV == "" {
			return Record{}, fmt.Errorf("%w: cipherText without iv", ErrInvalid)
		}
		rec.Kind = KindText
		rec.CipherText = raw.CipherText
		rec.IV = raw.IV
	} else {
		if raw.URLFull == "" {
			return Record{}, fmt.Errorf("%w: missing cipherText and urlFull", ErrInvalid)
		}
		rec.Kind = KindMedia
		rec.URLFull = raw.URLFull
		rec.URLThumb = raw.URLThumb
		rec.MimeType = raw.MimeType
		rec.ByteSize = raw.ByteSize
		rec.OriginalName = raw.OriginalName
	}

	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.Fecha == "" {
		rec.Fecha = time.Now().Format("15:04:05")
	}
	// Never alias caller-owned reaction state.
	rec.Reacciones = copyReactions(raw.Reacciones)
	return rec, nil
}

// NewID returns a unix-milli prefix plus a random hex suffix. Unique enough
// for message keys; collisions would need two IDs in the same millisecond
// with the same 32 random bits.
func NewID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}

// ToggleReaction flips reactor's presence in the emoji's reactor set and
// prunes the emoji when its set empties. Returns false (no state change)
// for disallowed emojis or empty arguments.
func (r *Record) ToggleReaction(emoji, reactor string) bool {
	emoji = strings.TrimSpace(emoji)
	reactor = strings.TrimSpace(reactor)
	if emoji == "" || reactor == "" || !AllowedEmojis[emoji] {
		return false
	}

	if r.Reacciones == nil {
		r.Reacciones = make(map[string][]string)
	}
	set := r.Reacciones[emoji]
	for i, who := range set {
		if who == reactor {
			set = append(set[:i], set[i+1:]...)
			if len(set) == 0 {
				delete(r.Reacciones, emoji)
			} else {
				r.Reacciones[emoji] = set
			}
			return true
		}
	}
	r.Reacciones[emoji] = append(set, reactor)
	return true
}

// Clone returns a deep copy; mutating the copy's reactions never touches
// the original.
func (r Record) Clone() Record {
	out := r
	out.Reacciones = copyReactions(r.Reacciones)
	return out
}

func copyReactions(src map[string][]string) map[string][]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]string, len(src))
	for emoji, who := range src {
		out[emoji] = append([]string(nil), who...)
	}
	return out
}
