package object

import "time"

// Signature identifies who authored or committed a change and when.
type Signature struct {
	Name  string
	Email string
	When  int64 // unix seconds
	// TZOffset is the offset east of UTC in minutes.
	TZOffset int
}

// NewSignature returns a signature stamped with t.
func NewSignature(name, email string, t time.Time) Signature {
	_, off := t.Zone()
	return Signature{Name: name, Email: email, When: t.Unix(), TZOffset: off / 60}
}

// Time returns the signature timestamp in its recorded zone.
func (s Signature) Time() time.Time {
	loc := time.FixedZone("", s.TZOffset*60)
	return time.Unix(s.When, 0).In(loc)
}

// Identity renders "Name <email>".
func (s Signature) Identity() string {
	if s.Email == "" {
		return s.Name
	}
	return s.Name + " <" + s.Email + ">"
}

// CommitSigningPayload is the serialized commit with its signature line
// removed: the bytes an SSH signature covers.
func CommitSigningPayload(c *CommitObj) []byte {
	if c == nil {
		return nil
	}
	unsigned := *c
	unsigned.Signature = ""
	return MarshalCommit(&unsigned)
}
