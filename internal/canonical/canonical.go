package canonical

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rajasatyajit/brocante/internal/classifier"
	"github.com/rajasatyajit/brocante/internal/models"
	"github.com/rajasatyajit/brocante/internal/sources"
	"github.com/rajasatyajit/brocante/pkg/utils"
)

// DefaultStartHour replaces a start time the source did not give
const DefaultStartHour = 6

// Classifier assigns a category to free text
type Classifier interface {
	Classify(text string) classifier.Verdict
}

// Result is either an accepted event or a rejection reason
type Result struct {
	Event  *models.CanonicalEvent
	Reason models.Reason
	Detail string
}

// Accepted wraps a canonical event
func Accepted(ev *models.CanonicalEvent) Result {
	return Result{Event: ev}
}

// Rejected records why a record was dropped
func Rejected(reason models.Reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

// OK reports whether the result carries an event
func (r Result) OK() bool {
	return r.Event != nil
}

// Options configures a Canonicalizer
type Options struct {
	Location         *time.Location
	DefaultStartHour int
	Now              func() time.Time
}

// Canonicalizer turns raw source records into canonical events
type Canonicalizer struct {
	classifier Classifier
	loc        *time.Location
	startHour  int
	now        func() time.Time
}

// New creates a canonicalizer
func New(c Classifier, opts Options) *Canonicalizer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultStartHour < 0 || opts.DefaultStartHour > 23 {
		opts.DefaultStartHour = DefaultStartHour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Canonicalizer{
		classifier: c,
		loc:        opts.Location,
		startHour:  opts.DefaultStartHour,
		now:        opts.Now,
	}
}

// draft is the source-independent view of a raw record
type draft struct {
	origin      models.SourceName
	sourceID    string
	title       string
	description string
	typeText    string
	lat, lon    string
	coordsFound int
	start       *stamp
	end         *stamp
	address     string
	city        string
	postalCode  string
	phone       string
	email       string
	website     string
	price       string
}

// Canonicalize maps rec to a canonical event or a rejection. Records whose
// dates fall entirely outside window are rejected.
func (c *Canonicalizer) Canonicalize(rec sources.RawRecord, window models.Window) Result {
	var d draft
	switch r := rec.(type) {
	case *sources.TourismRecord:
		d = c.fromTourism(r, window)
	case *sources.GeoFeature:
		d = c.fromGeoFeature(r)
	default:
		return Rejected(models.ReasonMalformed, "unsupported record type")
	}

	title := utils.StripHTML(d.title)
	if isPlaceholderTitle(title) {
		return Rejected(models.ReasonMissingTitle, d.title)
	}

	if d.coordsFound < 2 {
		return Rejected(models.ReasonInvalidCoordinates, "missing latitude or longitude")
	}
	lat, latOK := parseCoordinate(d.lat, 90)
	lon, lonOK := parseCoordinate(d.lon, 180)
	if !latOK || !lonOK {
		return Rejected(models.ReasonInvalidCoordinates, d.lat+","+d.lon)
	}

	if d.start == nil {
		return Rejected(models.ReasonMissingStart, "")
	}
	startAt, endAt := span(*d.start, d.end, c.startHour, c.loc)
	if !window.Overlaps(startAt, endAt) {
		return Rejected(models.ReasonOutOfWindow, startAt.Format(time.RFC3339))
	}

	address, city, postalCode := splitLocality(d.address, d.city, d.postalCode)

	description := utils.StripHTML(d.description)
	verdict := c.classifier.Classify(strings.Join([]string{title, description, d.typeText}, " "))
	if !verdict.Accepted() {
		return Rejected(verdict.Reason, verdict.Keyword)
	}

	return Accepted(&models.CanonicalEvent{
		SourceID:     string(d.origin) + ":" + d.sourceID,
		SourceName:   d.origin,
		Title:        title,
		Description:  description,
		Category:     verdict.Category,
		Latitude:     lat,
		Longitude:    lon,
		StartAt:      startAt,
		EndAt:        endAt,
		Address:      address,
		City:         city,
		PostalCode:   postalCode,
		Phone:        utils.CollapseSpace(d.phone),
		Email:        strings.TrimSpace(d.email),
		Website:      strings.TrimSpace(d.website),
		VisitorPrice: utils.CollapseSpace(d.price),
		Status:       models.StatusPendingReview,
		CreatedAt:    c.now().UTC(),
	})
}

func (c *Canonicalizer) fromTourism(r *sources.TourismRecord, window models.Window) draft {
	d := draft{
		origin:      models.SourceTourismData,
		sourceID:    utils.FirstNonEmpty(r.ID, r.File),
		title:       r.Label,
		description: utils.FirstNonEmpty(r.Comment, r.Description),
		phone:       r.Phone,
		email:       r.Email,
		website:     r.Website,
		price:       r.Price,
	}

	types := make([]string, 0, len(r.Types))
	for _, t := range r.Types {
		types = append(types, utils.SplitCamel(t))
	}
	d.typeText = strings.Join(types, " ")

	for _, loc := range r.Locations {
		found := countPresent(loc.Latitude, loc.Longitude)
		if found == 0 {
			continue
		}
		d.lat, d.lon, d.coordsFound = loc.Latitude, loc.Longitude, found
		break
	}
	for _, loc := range r.Locations {
		if loc.StreetAddress != "" || loc.City != "" || loc.PostalCode != "" {
			d.address, d.city, d.postalCode = loc.StreetAddress, loc.City, loc.PostalCode
			break
		}
	}

	d.start, d.end = c.tourismPeriod(r, window)
	return d
}

// tourismPeriod prefers "takes place at" blocks, which carry a time of day,
// over the bare start and end date lists. Among several periods the first
// one overlapping window wins, else the first that parses.
func (c *Canonicalizer) tourismPeriod(r *sources.TourismRecord, window models.Window) (*stamp, *stamp) {
	var firstStart, firstEnd *stamp
	for _, p := range r.Periods {
		start, ok := parseStamp(p.StartDate, c.loc)
		if !ok {
			continue
		}
		start = withClock(start, p.StartTime, c.loc)

		var end *stamp
		if e, ok := parseStamp(p.EndDate, c.loc); ok {
			e = withClock(e, p.EndTime, c.loc)
			end = &e
		} else if p.EndTime != "" {
			e := withClock(stamp{At: start.At}, p.EndTime, c.loc)
			if e.hasClock {
				end = &e
			}
		}

		startAt, endAt := span(start, end, c.startHour, c.loc)
		if window.Overlaps(startAt, endAt) {
			return &start, end
		}
		if firstStart == nil {
			firstStart, firstEnd = &start, end
		}
	}
	if firstStart != nil {
		return firstStart, firstEnd
	}

	var start, end *stamp
	for _, s := range r.StartDates {
		if st, ok := parseStamp(s, c.loc); ok {
			start = &st
			break
		}
	}
	for _, s := range r.EndDates {
		if e, ok := parseStamp(s, c.loc); ok {
			end = &e
			break
		}
	}
	return start, end
}

func (c *Canonicalizer) fromGeoFeature(f *sources.GeoFeature) draft {
	d := draft{
		origin:      models.SourceGeoFeed,
		sourceID:    f.Ref(),
		title:       f.Name,
		description: f.Description,
		typeText:    f.Type,
		address:     f.Address,
		city:        f.City,
		postalCode:  f.PostalCode,
		phone:       f.Phone,
		email:       f.Email,
		website:     f.Website,
		price:       f.Price,
	}

	// GeoJSON positions are [longitude, latitude]
	if len(f.Coordinates) >= 2 {
		d.lon, d.lat = f.Coordinates[0], f.Coordinates[1]
		d.coordsFound = countPresent(d.lat, d.lon)
	} else if len(f.Coordinates) == 1 {
		d.coordsFound = 1
	}

	if s, ok := parseStamp(f.Start, c.loc); ok {
		d.start = &s
	}
	if e, ok := parseStamp(f.End, c.loc); ok {
		d.end = &e
	}
	return d
}

var placeholderTitles = map[string]bool{
	"no title":   true,
	"untitled":   true,
	"sans titre": true,
	"sans nom":   true,
	"n a":        true,
}

func isPlaceholderTitle(title string) bool {
	n := utils.NormalizeText(title)
	return n == "" || placeholderTitles[n]
}

func countPresent(values ...string) int {
	n := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// parseCoordinate accepts dot or comma decimals and rejects non-finite or
// out of range values.
func parseCoordinate(s string, limit float64) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < -limit || v > limit {
		return 0, false
	}
	return v, true
}

var trailingLocality = regexp.MustCompile(`^(.*?)[,\s]+(\d{5})\s+([^,\d][^,]*)$`)

// splitLocality fills a missing city or postal code from a single-line
// address ending in "<postal code> <city>".
func splitLocality(address, city, postalCode string) (string, string, string) {
	address = utils.CollapseSpace(address)
	city = utils.CollapseSpace(city)
	postalCode = strings.TrimSpace(postalCode)
	if city != "" && postalCode != "" {
		return address, city, postalCode
	}
	m := trailingLocality.FindStringSubmatch(address)
	if m == nil {
		return address, city, postalCode
	}
	if postalCode == "" {
		postalCode = m[2]
	}
	if city == "" {
		city = strings.TrimSpace(m[3])
	}
	return strings.TrimSpace(m[1]), city, postalCode
}
