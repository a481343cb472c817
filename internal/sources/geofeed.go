package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
	"github.com/rajasatyajit/brocante/internal/logger"
	"github.com/rajasatyajit/brocante/internal/models"
	"github.com/rajasatyajit/brocante/pkg/utils"
)

const defaultGeoFeedLimit = 10000

// GeoFeedSource queries an HTTP event feed returning GeoJSON-like features.
// It makes one request per fetch and never retries.
type GeoFeedSource struct {
	url    string
	limit  int
	client *resty.Client
}

// NewGeoFeedSource creates a geo-feed source. timeout bounds the single
// request; limit caps the result count requested from the feed.
func NewGeoFeedSource(url string, limit int, timeout time.Duration) *GeoFeedSource {
	if limit <= 0 {
		limit = defaultGeoFeedLimit
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Brocante-Ingest/1.0")
	return &GeoFeedSource{url: url, limit: limit, client: client}
}

// Name returns the source name
func (s *GeoFeedSource) Name() string {
	return string(models.SourceGeoFeed)
}

// Fetch requests the features starting inside params.Window. A failed
// request yields one ErrSourceUnavailable error and no records.
func (s *GeoFeedSource) Fetch(ctx context.Context, params Params) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		features, err := s.request(ctx, params.Window)
		if err != nil {
			yield(nil, apperrors.PipelineError{
				Source: s.Name(),
				Stage:  "fetch",
				Err:    fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err),
			})
			return
		}

		logger.Debug("Geo feed fetched", "url", s.url, "features", len(features))

		for i, raw := range features {
			rec, err := decodeFeature(i, raw)
			if err != nil {
				if !yield(nil, apperrors.RecordError{Source: s.Name(), Ref: "#" + strconv.Itoa(i), Err: err}) {
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

func (s *GeoFeedSource) request(ctx context.Context, window models.Window) ([]json.RawMessage, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"start": window.Start.Format(time.RFC3339),
			"end":   window.End.Format(time.RFC3339),
			"limit": strconv.Itoa(s.limit),
		}).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("request geo feed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.Status())
	}

	features, shape, err := splitFeatures(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("parse geo feed: %w", err)
	}
	if shape != "" {
		logger.Warn("Geo feed returned an unsupported document, treating as empty",
			"url", s.url,
			"shape", shape,
		)
	}
	return features, nil
}

// splitFeatures accepts a feature collection or a bare array of features.
// Any other top-level shape yields no features and a non-empty description.
func splitFeatures(body []byte) ([]json.RawMessage, string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, "empty body", nil
	}
	if !json.Valid(body) {
		return nil, "", errors.New("response body is not valid JSON")
	}

	switch body[0] {
	case '[':
		var features []json.RawMessage
		if err := json.Unmarshal(body, &features); err != nil {
			return nil, "", err
		}
		return features, "", nil
	case '{':
		var fc struct {
			Features []json.RawMessage `json:"features"`
		}
		if err := json.Unmarshal(body, &fc); err != nil {
			return nil, "object with non-list features", nil
		}
		if fc.Features == nil {
			return nil, "object without features", nil
		}
		return fc.Features, "", nil
	default:
		return nil, "scalar", nil
	}
}

type geoFeatureDoc struct {
	ID       Text `json:"id"`
	Geometry *struct {
		Coordinates []Text `json:"coordinates"`
	} `json:"geometry"`
	Properties *geoPropsDoc `json:"properties"`
}

type geoPropsDoc struct {
	ID          Text     `json:"id"`
	UID         Text     `json:"uid"`
	Name        Text     `json:"name"`
	Title       Text     `json:"title"`
	Description Text     `json:"description"`
	Type        Text     `json:"type"`
	Category    Text     `json:"category"`
	When        whenSpan `json:"when"`
	Start       Text     `json:"start"`
	StartDate   Text     `json:"start_date"`
	End         Text     `json:"end"`
	EndDate     Text     `json:"end_date"`
	Address     Text     `json:"address"`
	City        Text     `json:"city"`
	Postcode    Text     `json:"postcode"`
	PostalCode  Text     `json:"postal_code"`
	Phone       Text     `json:"phone"`
	Email       Text     `json:"email"`
	URL         Text     `json:"url"`
	Website     Text     `json:"website"`
	Price       Text     `json:"price"`
}

// whenSpan is the feed's "when" property: a timestamp string, a
// {start, end} object, or a list of either (first wins).
type whenSpan struct {
	Start string
	End   string
}

func (w *whenSpan) UnmarshalJSON(b []byte) error {
	v, err := decodeAny(b)
	if err != nil {
		return err
	}
	w.fill(v)
	return nil
}

func (w *whenSpan) fill(v any) {
	switch x := v.(type) {
	case []any:
		if len(x) > 0 {
			w.fill(x[0])
		}
	case map[string]any:
		w.Start = utils.FirstNonEmpty(flatten(x["start"]), flatten(x["begin"]), flatten(x["from"]))
		w.End = utils.FirstNonEmpty(flatten(x["end"]), flatten(x["to"]))
	default:
		w.Start = flatten(v)
	}
}

func decodeFeature(index int, raw json.RawMessage) (*GeoFeature, error) {
	var doc geoFeatureDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
	}

	props := doc.Properties
	if props == nil {
		// bare arrays may carry the property bag at the top level
		props = &geoPropsDoc{}
		if err := json.Unmarshal(raw, props); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
		}
	}

	f := &GeoFeature{
		Index:       index,
		ID:          utils.FirstNonEmpty(string(doc.ID), string(props.ID), string(props.UID)),
		Name:        utils.FirstNonEmpty(string(props.Name), string(props.Title)),
		Description: string(props.Description),
		Type:        utils.FirstNonEmpty(string(props.Type), string(props.Category)),
		Start:       utils.FirstNonEmpty(string(props.Start), string(props.StartDate), props.When.Start),
		End:         utils.FirstNonEmpty(string(props.End), string(props.EndDate), props.When.End),
		Address:     string(props.Address),
		City:        string(props.City),
		PostalCode:  utils.FirstNonEmpty(string(props.Postcode), string(props.PostalCode)),
		Phone:       string(props.Phone),
		Email:       string(props.Email),
		Website:     utils.FirstNonEmpty(string(props.Website), string(props.URL)),
		Price:       string(props.Price),
	}
	if doc.Geometry != nil {
		for _, c := range doc.Geometry.Coordinates {
			f.Coordinates = append(f.Coordinates, string(c))
		}
	}
	return f, nil
}
