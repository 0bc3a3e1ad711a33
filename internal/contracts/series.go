package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/portfolioviz/pkg/date"
)

// ErrMalformed marks a payload whose JSON shape is not what the backend contract promises
var ErrMalformed = errors.New("malformed payload")

// DateField is the reserved key of a weight record
const DateField = "date"

// ValuePoint is one point of the portfolio value series
type ValuePoint struct {
	Date   date.Date `json:"date"`
	Amount float64   `json:"amount"`
}

// UnmarshalJSON decodes amount from a JSON number or a decimal string
// The backend serialises DecimalField amounts as strings ("1000.000000").
func (v *ValuePoint) UnmarshalJSON(b []byte) error {
	var raw struct {
		Date   *date.Date       `json:"date"`
		Amount *decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: value point: %v", ErrMalformed, err)
	}
	if raw.Date == nil || raw.Amount == nil {
		return fmt.Errorf("%w: value point needs date and amount", ErrMalformed)
	}

	v.Date = *raw.Date
	v.Amount = raw.Amount.InexactFloat64()
	return nil
}

// WeightRecord is one date of the weight series: {date, <asset>: weight, ...}
// Keys keeps the asset keys in the order they appear in the JSON object.
type WeightRecord struct {
	Date   date.Date
	Keys   []string
	Values map[string]float64
}

// NewWeightRecord builds a record from ordered key/value pairs
func NewWeightRecord(on date.Date, pairs ...interface{}) WeightRecord {
	r := WeightRecord{Date: on, Values: make(map[string]float64, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		key := pairs[i].(string)
		r.set(key, pairs[i+1].(float64))
	}
	return r
}

func (r *WeightRecord) set(key string, value float64) {
	if _, seen := r.Values[key]; !seen {
		r.Keys = append(r.Keys, key)
	}
	r.Values[key] = value
}

// Weight returns the weight of key and whether the record carries it
func (r WeightRecord) Weight(key string) (float64, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// UnmarshalJSON decodes the object token by token to keep key order
func (r *WeightRecord) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: weight record: %v", ErrMalformed, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: weight record is not an object", ErrMalformed)
	}

	out := WeightRecord{Values: make(map[string]float64)}
	hasDate := false

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: weight record: %v", ErrMalformed, err)
		}
		key := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: weight record %q: %v", ErrMalformed, key, err)
		}

		if key == DateField {
			if err := json.Unmarshal(raw, &out.Date); err != nil {
				return fmt.Errorf("%w: weight record date: %v", ErrMalformed, err)
			}
			hasDate = true
			continue
		}

		var d decimal.Decimal
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("%w: weight %q is null", ErrMalformed, key)
		}
		if err := d.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("%w: weight %q: %v", ErrMalformed, key, err)
		}
		out.set(key, d.InexactFloat64())
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: weight record: %v", ErrMalformed, err)
	}
	if !hasDate {
		return fmt.Errorf("%w: weight record without date", ErrMalformed)
	}

	*r = out
	return nil
}

// MarshalJSON writes {"date": ..., <keys in order>} so the page gets chart rows verbatim
func (r WeightRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	dateJSON, err := json.Marshal(r.Date)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`"date":`)
	buf.Write(dateJSON)

	for _, key := range r.Keys {
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Values[key])
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
