package membership

import (
	"bytes"
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var jsonNull = []byte("null")

// Field is a tri-state patch value distinguishing "leave alone" (absent
// from the payload), "clear the override" (explicit null), and "set this
// value". Encoding/json never calls UnmarshalJSON for absent keys, which
// is what makes the first state representable.
type Field struct {
	Present bool
	Value   *string
}

// Set returns a present field carrying a value.
func Set(v string) Field {
	return Field{Present: true, Value: &v}
}

// Clear returns a present field carrying null.
func Clear() Field {
	return Field{Present: true}
}

func (f *Field) UnmarshalJSON(data []byte) error {
	f.Present = true

	if bytes.Equal(data, jsonNull) {
		f.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	f.Value = &s
	return nil
}

func (f Field) MarshalJSON() ([]byte, error) {
	if !f.Present || f.Value == nil {
		return jsonNull, nil
	}
	return json.Marshal(*f.Value)
}

// ProfilePatch is the per-membership profile override payload.
type ProfilePatch struct {
	DisplayName Field `json:"display_name"`
	AvatarURL   Field `json:"avatar_url"`
	Instrument  Field `json:"instrument"`
	Bio         Field `json:"bio"`
}

// Empty reports whether the patch touches nothing.
func (p ProfilePatch) Empty() bool {
	for _, f := range p.fields() {
		if f.Present {
			return false
		}
	}
	return true
}

// Validate will run validation rules on present values
func (p ProfilePatch) Validate() error {
	rules := map[string]struct {
		field Field
		max   int
	}{
		"display_name": {p.DisplayName, 200},
		"avatar_url":   {p.AvatarURL, 500},
		"instrument":   {p.Instrument, 100},
		"bio":          {p.Bio, 2000},
	}

	errs := validation.Errors{}
	for name, r := range rules {
		if !r.field.Present || r.field.Value == nil {
			continue
		}
		if err := validation.Validate(*r.field.Value, validation.Required, validation.Length(1, r.max)); err != nil {
			errs[name] = err
		}
	}

	return errs.Filter()
}

func (p ProfilePatch) fields() map[string]Field {
	return map[string]Field{
		"display_name": p.DisplayName,
		"avatar_url":   p.AvatarURL,
		"instrument":   p.Instrument,
		"bio":          p.Bio,
	}
}
