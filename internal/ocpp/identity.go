package ocpp

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gridfleet/gateway/internal/domain"
)

// Query parameter names recognized as carrying the charge point serial,
// compared case-insensitively, first match wins.
var serialQueryParams = []string{
	"cid",
	"chargepointid",
	"charge_point_id",
	"chargeboxid",
	"charge_box_id",
	"chargerid",
}

// serialPattern bounds the accepted serial charset and length. Vendors
// use alphanumerics plus separators; anything else is rejected.
var serialPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{1,47}$`)

const (
	identitySourceQuery = "query"
	identitySourceRoute = "route"
	identitySourcePath  = "path"
)

// IdentityError reports why a connection request carried no usable
// charge point serial. Source and RawQuery are retained so the
// rejection log line can say where the bad value came from.
type IdentityError struct {
	Source   string
	Value    string
	RawQuery string
}

func (e *IdentityError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("no charge point serial in request (query %q)", e.RawQuery)
	}
	return fmt.Sprintf("invalid charge point serial %q from %s (query %q)", e.Value, e.Source, e.RawQuery)
}

// ResolveIdentity extracts and validates the charge point serial from a
// connection request: recognized query parameters first, then the
// route-embedded identifier, then the last non-empty path segment. The
// returned serial is normalized for use as an identity key.
func ResolveIdentity(r *http.Request, routeSerial string) (string, error) {
	if serial, ok := serialFromQuery(r.URL.Query()); ok {
		return validateSerial(serial, identitySourceQuery, r.URL.RawQuery)
	}

	if routeSerial != "" {
		return validateSerial(routeSerial, identitySourceRoute, r.URL.RawQuery)
	}

	if serial := lastPathSegment(r.URL.Path); serial != "" {
		return validateSerial(serial, identitySourcePath, r.URL.RawQuery)
	}

	return "", &IdentityError{RawQuery: r.URL.RawQuery}
}

func serialFromQuery(query url.Values) (string, bool) {
	// url.Values keys are case-sensitive; devices are not.
	lowered := make(map[string]string, len(query))
	for key, values := range query {
		if len(values) > 0 && values[0] != "" {
			lower := strings.ToLower(key)
			if _, exists := lowered[lower]; !exists {
				lowered[lower] = values[0]
			}
		}
	}

	for _, name := range serialQueryParams {
		if value, ok := lowered[name]; ok {
			return value, true
		}
	}
	return "", false
}

func lastPathSegment(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			unescaped, err := url.PathUnescape(segments[i])
			if err != nil {
				return segments[i]
			}
			return unescaped
		}
	}
	return ""
}

func validateSerial(candidate, source, rawQuery string) (string, error) {
	if !serialPattern.MatchString(candidate) {
		return "", &IdentityError{Source: source, Value: candidate, RawQuery: rawQuery}
	}
	return domain.NormalizeSerial(candidate), nil
}
