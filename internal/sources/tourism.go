package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
	"github.com/rajasatyajit/brocante/internal/logger"
	"github.com/rajasatyajit/brocante/internal/models"
)

// TourismSource reads a tourism open-data export: a JSON manifest listing
// one JSON-LD file per event.
type TourismSource struct {
	manifestPath string
	objectsDir   string
}

// NewTourismSource creates a source over manifestPath. Relative file
// references resolve against objectsDir, or the manifest's directory when
// objectsDir is empty.
func NewTourismSource(manifestPath, objectsDir string) *TourismSource {
	if objectsDir == "" {
		objectsDir = filepath.Dir(manifestPath)
	}
	return &TourismSource{manifestPath: manifestPath, objectsDir: objectsDir}
}

// Name returns the source name
func (s *TourismSource) Name() string {
	return string(models.SourceTourismData)
}

// Fetch walks the manifest, loading one record file per entry. A missing or
// unreadable file is yielded as a RecordError and the walk continues.
func (s *TourismSource) Fetch(ctx context.Context, _ Params) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		entries, err := s.readManifest()
		if err != nil {
			yield(nil, apperrors.PipelineError{
				Source: s.Name(),
				Stage:  "manifest",
				Err:    fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err),
			})
			return
		}

		logger.Debug("Tourism manifest loaded", "path", s.manifestPath, "entries", len(entries))

		for i, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield(nil, apperrors.PipelineError{Source: s.Name(), Stage: "fetch", Err: err})
				return
			}

			rec, err := s.readRecord(entry)
			if err != nil {
				ref := entry.File
				if ref == "" {
					ref = fmt.Sprintf("manifest[%d]", i)
				}
				if !yield(nil, apperrors.RecordError{Source: s.Name(), Ref: ref, Err: err}) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

type manifestEntry struct {
	Label string `json:"label"`
	File  string `json:"file"`
}

// UnmarshalJSON accepts either a bare file path or a {label, file} object
func (e *manifestEntry) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &e.File)
	}
	type plain manifestEntry
	return json.Unmarshal(b, (*plain)(e))
}

func (s *TourismSource) readManifest() ([]manifestEntry, error) {
	data, err := os.ReadFile(s.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("manifest %s is not a list of file references: %w", s.manifestPath, err)
	}
	return entries, nil
}

func (s *TourismSource) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(s.objectsDir, filepath.FromSlash(file))
}

func (s *TourismSource) readRecord(entry manifestEntry) (*TourismRecord, error) {
	if strings.TrimSpace(entry.File) == "" {
		return nil, fmt.Errorf("%w: manifest entry %q has no file", apperrors.ErrMalformedRecord, entry.Label)
	}

	data, err := os.ReadFile(s.resolve(entry.File))
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	var doc tourismDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
		}
		return nil, fmt.Errorf("parse record: %w", err)
	}

	return doc.toRecord(entry.File), nil
}

// oneOrMany decodes either a single JSON value or a list of them
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*o = nil
		return nil
	case len(b) > 0 && b[0] == '[':
		var many []T
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*o = many
		return nil
	default:
		var one T
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*o = []T{one}
		return nil
	}
}

type tourismDoc struct {
	ID           Text                       `json:"@id"`
	Identifier   Text                       `json:"dc:identifier"`
	Type         TextList                   `json:"@type"`
	Label        Text                       `json:"rdfs:label"`
	Comment      Text                       `json:"rdfs:comment"`
	Descriptions oneOrMany[tourismDescDoc]  `json:"hasDescription"`
	LocatedAt    oneOrMany[tourismPlaceDoc] `json:"isLocatedAt"`
	TakesPlaceAt oneOrMany[tourismTimeDoc]  `json:"takesPlaceAt"`
	StartDate    TextList                   `json:"schema:startDate"`
	EndDate      TextList                   `json:"schema:endDate"`
	Contacts     oneOrMany[tourismContact]  `json:"hasContact"`
	Offers       oneOrMany[tourismOfferDoc] `json:"offers"`
}

type tourismDescDoc struct {
	Short       Text `json:"shortDescription"`
	Description Text `json:"dc:description"`
}

type tourismPlaceDoc struct {
	Geo struct {
		Latitude  Text `json:"schema:latitude"`
		Longitude Text `json:"schema:longitude"`
	} `json:"schema:geo"`
	Address oneOrMany[struct {
		Street     TextList `json:"schema:streetAddress"`
		Locality   Text     `json:"schema:addressLocality"`
		PostalCode Text     `json:"schema:postalCode"`
	}] `json:"schema:address"`
}

type tourismTimeDoc struct {
	StartDate Text `json:"startDate"`
	StartTime Text `json:"startTime"`
	EndDate   Text `json:"endDate"`
	EndTime   Text `json:"endTime"`
}

type tourismContact struct {
	Phone    Text `json:"schema:telephone"`
	Email    Text `json:"schema:email"`
	Homepage Text `json:"foaf:homepage"`
}

type tourismOfferDoc struct {
	Prices oneOrMany[struct {
		Min      Text `json:"schema:minPrice"`
		Max      Text `json:"schema:maxPrice"`
		Currency Text `json:"schema:priceCurrency"`
	}] `json:"schema:priceSpecification"`
}

func (d *tourismDoc) toRecord(file string) *TourismRecord {
	rec := &TourismRecord{
		File:       file,
		ID:         firstText(d.Identifier, d.ID),
		Label:      string(d.Label),
		Comment:    string(d.Comment),
		Types:      d.Type,
		StartDates: d.StartDate,
		EndDates:   d.EndDate,
	}

	for _, desc := range d.Descriptions {
		if v := firstText(desc.Short, desc.Description); v != "" {
			rec.Description = v
			break
		}
	}

	for _, place := range d.LocatedAt {
		loc := TourismLocation{
			Latitude:  string(place.Geo.Latitude),
			Longitude: string(place.Geo.Longitude),
		}
		for _, addr := range place.Address {
			loc.StreetAddress = strings.Join(addr.Street, ", ")
			loc.City = string(addr.Locality)
			loc.PostalCode = string(addr.PostalCode)
			if loc.StreetAddress != "" || loc.City != "" {
				break
			}
		}
		rec.Locations = append(rec.Locations, loc)
	}

	for _, p := range d.TakesPlaceAt {
		rec.Periods = append(rec.Periods, TourismPeriod{
			StartDate: string(p.StartDate),
			StartTime: string(p.StartTime),
			EndDate:   string(p.EndDate),
			EndTime:   string(p.EndTime),
		})
	}

	for _, c := range d.Contacts {
		if rec.Phone == "" {
			rec.Phone = string(c.Phone)
		}
		if rec.Email == "" {
			rec.Email = string(c.Email)
		}
		if rec.Website == "" {
			rec.Website = string(c.Homepage)
		}
	}

	for _, o := range d.Offers {
		for _, p := range o.Prices {
			if rec.Price = formatPrice(string(p.Min), string(p.Max), string(p.Currency)); rec.Price != "" {
				break
			}
		}
		if rec.Price != "" {
			break
		}
	}

	return rec
}

func firstText(values ...Text) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

func formatPrice(lo, hi, currency string) string {
	var price string
	switch {
	case lo != "" && hi != "" && lo != hi:
		price = lo + "-" + hi
	case lo != "":
		price = lo
	case hi != "":
		price = hi
	default:
		return ""
	}
	if currency != "" {
		price += " " + currency
	}
	return price
}
