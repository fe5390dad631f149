package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

// Field is a canonical event attribute that bulk columns map onto.
type Field string

const (
	FieldID           Field = "id"
	FieldTitle        Field = "title"
	FieldCategory     Field = "category"
	FieldDescription  Field = "description"
	FieldOrganizer    Field = "organizer"
	FieldPricing      Field = "pricing"
	FieldWebsite      Field = "website"
	FieldImage        Field = "image"
	FieldTags         Field = "tags"
	FieldBeginDate    Field = "begin_date"
	FieldEndDate      Field = "end_date"
	FieldStartTime    Field = "start_time"
	FieldEndTime      Field = "end_time"
	FieldLocationName Field = "location_name"
	FieldAddress      Field = "address"
	FieldPostalCode   Field = "postal_code"
	FieldCity         Field = "city"
	FieldState        Field = "state"
	FieldCountry      Field = "country"
	FieldGeo          Field = "geo"
	FieldLatitude     Field = "latitude"
	FieldLongitude    Field = "longitude"
)

// DefaultColumns lists the French and English headers seen in published exports.
var DefaultColumns = map[Field][]string{
	FieldID:           {"identifiant", "id", "uid", "record_id", "recordid"},
	FieldTitle:        {"titre", "title", "nom", "name"},
	FieldCategory:     {"rubrique", "categorie", "category", "genre"},
	FieldDescription:  {"description", "descriptif", "resume"},
	FieldOrganizer:    {"organisateur", "organizer", "organiser"},
	FieldPricing:      {"tarif", "tarifs", "price", "pricing"},
	FieldWebsite:      {"lien", "url", "site", "website"},
	FieldImage:        {"image", "photo", "image_path"},
	FieldTags:         {"mots_cles", "mots-cles", "keywords", "tags"},
	FieldBeginDate:    {"date_debut", "datedebut", "debut", "start_date", "begin_date", "date"},
	FieldEndDate:      {"date_fin", "datefin", "fin", "end_date"},
	FieldStartTime:    {"horaire_debut", "heure_debut", "horaire", "horaires", "start_time"},
	FieldEndTime:      {"horaire_fin", "heure_fin", "end_time"},
	FieldLocationName: {"lieu", "nom_lieu", "location", "location_name", "venue"},
	FieldAddress:      {"adresse", "address", "rue", "street"},
	FieldPostalCode:   {"code_postal", "cp", "zipcode", "postal_code", "postcode"},
	FieldCity:         {"commune", "ville", "city", "locality"},
	FieldState:        {"departement", "department", "region", "state"},
	FieldCountry:      {"pays", "country"},
	FieldGeo:          {"geolocalisation", "geo_point", "geo_point_2d", "coordonnees", "coordinates"},
	FieldLatitude:     {"latitude", "lat"},
	FieldLongitude:    {"longitude", "lon", "lng"},
}

func mergeColumns(extra map[Field][]string) map[Field][]string {
	out := make(map[Field][]string, len(DefaultColumns))
	for f, aliases := range DefaultColumns {
		out[f] = append([]string(nil), aliases...)
	}
	for f, aliases := range extra {
		merged := make([]string, 0, len(aliases)+len(out[f]))
		for _, a := range aliases {
			merged = append(merged, ColumnKey(a))
		}
		out[f] = append(merged, out[f]...)
	}
	return out
}

// ColumnKey normalizes a header: trimmed, lowercased, BOM removed.
func ColumnKey(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// FromRow builds an event from one bulk row. Rows without a title are skipped.
func (n *Normalizer) FromRow(row map[string]string) (*domain.Event, error) {
	if len(row) == 0 {
		return nil, fmt.Errorf("%w: empty row", ErrSkipped)
	}
	get := func(f Field) string {
		for _, alias := range n.columns[f] {
			if v := strings.TrimSpace(row[alias]); v != "" {
				return v
			}
		}
		return ""
	}

	title := get(FieldTitle)
	if title == "" {
		return nil, fmt.Errorf("%w: row without title", ErrSkipped)
	}

	rawBegin := get(FieldBeginDate)
	city, postal := get(FieldCity), get(FieldPostalCode)
	if postal == "" {
		city, postal = SplitCityPostal(city)
	}
	organizer := get(FieldOrganizer)

	var uid string
	if id := get(FieldID); id != "" {
		uid = PrefixedUID(n.opts.BulkPrefix, id)
	} else {
		uid = RowUID(title, city, rawBegin, organizer)
	}

	country := get(FieldCountry)
	if country == "" {
		country = n.opts.DefaultCountry
	}

	ev := &domain.Event{
		UID:          uid,
		Title:        title,
		Category:     get(FieldCategory),
		Description:  get(FieldDescription),
		Organizer:    organizer,
		Pricing:      get(FieldPricing),
		Website:      get(FieldWebsite),
		ImagePath:    get(FieldImage),
		Tags:         splitTags(get(FieldTags)),
		LocationName: get(FieldLocationName),
		Address:      get(FieldAddress),
		PostalCode:   postal,
		City:         city,
		State:        get(FieldState),
		Country:      country,
		Source:       domain.SourceBulk,
	}

	today := n.today()
	ev.BeginDate = ParseDate(rawBegin, today)
	ev.EndDate = ParseDate(get(FieldEndDate), today)

	start, rangeEnd := ParseTimeRange(get(FieldStartTime))
	end, _ := ParseTimeRange(get(FieldEndTime))
	if end == "" {
		end = rangeEnd
	}
	ev.StartTime, ev.EndTime = start, end

	if lat, lon, ok := parseGeo(get(FieldGeo)); ok {
		ev.Latitude, ev.Longitude = &lat, &lon
	} else if lat, lon, ok := parseGeo(get(FieldLatitude) + "," + get(FieldLongitude)); ok {
		ev.Latitude, ev.Longitude = &lat, &lon
	}

	raw, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("%w: encode raw row: %v", ErrSkipped, err)
	}
	ev.Raw = raw
	return ev, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' }) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// parseGeo reads "lat,lon". Both halves must be numbers inside the valid ranges.
func parseGeo(s string) (lat, lon float64, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

// FlattenRecord turns a decoded JSON object into a bulk row. Nested geo objects
// ({"lat":..,"lon":..}) become "lat,lon"; arrays of scalars are joined with ",";
// other nested objects are flattened one level as "parent.child".
func FlattenRecord(rec map[string]any) map[string]string {
	row := make(map[string]string, len(rec))
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := ColumnKey(k)
		switch v := rec[k].(type) {
		case nil:
		case map[string]any:
			lat, latOK := toFloat(v["lat"])
			lon, lonOK := toFloat(v["lon"])
			if latOK && lonOK {
				row[key] = formatFloat(lat) + "," + formatFloat(lon)
				continue
			}
			for ck, cv := range v {
				if s, ok := scalarString(cv); ok {
					row[key+"."+ColumnKey(ck)] = s
				}
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := scalarString(item); ok {
					parts = append(parts, s)
				}
			}
			row[key] = strings.Join(parts, ",")
		default:
			if s, ok := scalarString(v); ok {
				row[key] = s
			}
		}
	}
	return row
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return formatFloat(t), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
