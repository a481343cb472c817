package sources

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/rajasatyajit/brocante/internal/models"
)

// RawRecord is one record as delivered by an adapter, before
// canonicalization. The concrete types are TourismRecord and GeoFeature.
type RawRecord interface {
	// Origin names the source the record came from
	Origin() models.SourceName
	// Ref locates the record inside its source for logs and errors
	Ref() string
	sealed()
}

// TourismRecord is one entry of the file-indexed tourism dataset
type TourismRecord struct {
	File        string
	ID          string
	Label       string
	Comment     string
	Description string
	Types       []string
	Locations   []TourismLocation
	Periods     []TourismPeriod
	StartDates  []string
	EndDates    []string
	Phone       string
	Email       string
	Website     string
	Price       string
}

// TourismLocation is one "is located at" block
type TourismLocation struct {
	Latitude      string
	Longitude     string
	StreetAddress string
	City          string
	PostalCode    string
}

// TourismPeriod is one "takes place at" block. Dates and times are kept
// as delivered.
type TourismPeriod struct {
	StartDate string
	StartTime string
	EndDate   string
	EndTime   string
}

func (r *TourismRecord) Origin() models.SourceName { return models.SourceTourismData }
func (r *TourismRecord) Ref() string               { return r.File }
func (r *TourismRecord) sealed()                   {}

// GeoFeature is one feature of the geographic event feed
type GeoFeature struct {
	Index       int
	ID          string
	Coordinates []string
	Name        string
	Description string
	Type        string
	Start       string
	End         string
	Address     string
	City        string
	PostalCode  string
	Phone       string
	Email       string
	Website     string
	Price       string
}

func (f *GeoFeature) Origin() models.SourceName { return models.SourceGeoFeed }
func (f *GeoFeature) Ref() string {
	if f.ID != "" {
		return f.ID
	}
	return "#" + strconv.Itoa(f.Index)
}
func (f *GeoFeature) sealed() {}

// Text is a lenient JSON scalar. It accepts a string, number or boolean, a
// list (first non-empty element), a JSON-LD value object, or a language map
// (French, then English, then any language).
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	v, err := decodeAny(b)
	if err != nil {
		return err
	}
	*t = Text(flatten(v))
	return nil
}

func (t Text) String() string { return string(t) }

// TextList is like Text but keeps every non-empty value of a list.
type TextList []string

func (l *TextList) UnmarshalJSON(b []byte) error {
	v, err := decodeAny(b)
	if err != nil {
		return err
	}
	var out []string
	if arr, ok := v.([]any); ok {
		for _, e := range arr {
			if s := flatten(e); s != "" {
				out = append(out, s)
			}
		}
	} else if s := flatten(v); s != "" {
		out = append(out, s)
	}
	*l = out
	return nil
}

func decodeAny(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

var preferredKeys = []string{"@value", "fr", "en"}

func flatten(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case []any:
		for _, e := range x {
			if s := flatten(e); s != "" {
				return s
			}
		}
	case map[string]any:
		for _, k := range preferredKeys {
			if s := flatten(x[k]); s != "" {
				return s
			}
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			if !strings.HasPrefix(k, "@") {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		for _, k := range keys {
			if s := flatten(x[k]); s != "" {
				return s
			}
		}
	}
	return ""
}
