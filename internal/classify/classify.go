// Package classify inspects an inbound HTTP request and determines its
// kind, upstream target, and — for FRL requests — its cache fingerprint.
// Classification is pure: it never touches the Durable Store.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"frlproxy/core/internal/infrastructure/validator"
	"frlproxy/core/internal/store"
)

// fieldValidator runs the struct-tag validation on activationBody; shared
// across calls since go-playground/validator's Validate is safe for
// concurrent use once built.
var fieldValidator = validator.NewPlayground()

// Kind mirrors store.Kind plus the non-journaled classes the Classifier
// alone produces.
type Kind string

const (
	KindFRLActivate   Kind = Kind(store.KindFRLActivate)
	KindFRLDeactivate Kind = Kind(store.KindFRLDeactivate)
	KindLogUpload     Kind = Kind(store.KindLogUpload)
	KindHealth        Kind = "HEALTH"
	KindControl       Kind = "CONTROL"
	KindUnknown       Kind = "UNKNOWN"
)

// Result is the Classifier's output for one request.
type Result struct {
	Kind        Kind
	Target      store.Target
	Fingerprint string // only set for FRL_ACTIVATE / FRL_DEACTIVATE
}

// activationPathPattern matches any path containing the activation/
// deactivation segment sequence, tolerating a leading doubled slash.
var activationPathPattern = regexp.MustCompile(`/asnp/frl_connected/values/[^/]+`)

// activationBody is the narrow schema extracted from an FRL_ACTIVATE body;
// everything else in the payload is treated as opaque bytes per spec.
type activationBody struct {
	NpdId        string `json:"npdId" validate:"required"`
	DeviceDetails struct {
		DeviceId string `json:"deviceId" validate:"required"`
		OsUserId string `json:"osUserId" validate:"required"`
	} `json:"deviceDetails" validate:"required"`
	AppDetails struct {
		NglAppId string `json:"nglAppId" validate:"required"`
	} `json:"appDetails" validate:"required"`
}

// Error signals a classification failure that must surface as HTTP 400
// without journaling.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Classify inspects method, path, headers, and body and returns the
// request's classification, or an *Error for malformed FRL input.
func Classify(method, path string, headers http.Header, body []byte) (Result, error) {
	normalized := normalizePath(path)

	switch {
	case normalized == "/status":
		if method == http.MethodGet {
			return Result{Kind: KindHealth}, nil
		}
	case strings.HasPrefix(normalized, "/control/"):
		return Result{Kind: KindControl}, nil
	}

	if activationPathPattern.MatchString(normalized) {
		switch method {
		case http.MethodPost:
			return classifyActivation(body)
		case http.MethodDelete:
			return classifyDeactivation(path)
		}
	}

	if method == http.MethodPost && strings.Contains(normalized, "/ulecs/v1") && headers.Get("X-Api-Key") != "" {
		return Result{Kind: KindLogUpload, Target: store.TargetLog}, nil
	}

	return Result{Kind: KindUnknown}, nil
}

// normalizePath collapses duplicate slashes so "//asnp/..." and "/asnp/..."
// classify identically.
func normalizePath(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path
}

func classifyActivation(body []byte) (Result, error) {
	var parsed activationBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, &Error{Message: "malformed JSON body for activation request"}
	}
	if err := fieldValidator.Validate(parsed); err != nil {
		return Result{}, &Error{Message: "missing required fields: " + fieldErrorSummary(fieldValidator.ToDetails(err))}
	}
	fp := Fingerprint(string(KindFRLActivate), parsed.NpdId, parsed.DeviceDetails.DeviceId, parsed.DeviceDetails.OsUserId, parsed.AppDetails.NglAppId)
	return Result{Kind: KindFRLActivate, Target: store.TargetLicense, Fingerprint: fp}, nil
}

func classifyDeactivation(rawPath string) (Result, error) {
	query := queryFromPath(rawPath)
	npdId := query.Get("npdId")
	deviceId := query.Get("deviceId")
	osUserId := query.Get("osUserId")
	if npdId == "" || deviceId == "" || osUserId == "" {
		return Result{}, &Error{Message: "missing required query parameters: npdId, deviceId, osUserId"}
	}
	appId := query.Get("nglAppId")
	// Fingerprint is tagged with KindFRLActivate, not KindFRLDeactivate: a
	// deactivation must land on the same cache key its matching activation
	// wrote, so cache invalidation (internal/handler.handleDeactivate) can
	// find it. The identity tuple — not the operation — is what the cache
	// keys on.
	fp := Fingerprint(string(KindFRLActivate), npdId, deviceId, osUserId, appId)
	return Result{Kind: KindFRLDeactivate, Target: store.TargetLicense, Fingerprint: fp}, nil
}

func fieldErrorSummary(fields []validator.FieldError) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field)
	}
	return strings.Join(names, ", ")
}

func queryFromPath(rawPath string) url.Values {
	idx := strings.IndexByte(rawPath, '?')
	if idx < 0 {
		return url.Values{}
	}
	values, err := url.ParseQuery(rawPath[idx+1:])
	if err != nil {
		return url.Values{}
	}
	return values
}

// Fingerprint computes the stable hash over (kind, npdId, deviceId,
// osUserId, appId) that caching keys on. Deliberately excludes
// timestamps, session ids, request ids, user agent, and currentAsnpId —
// the License Server's response is a function of this identity tuple
// alone.
func Fingerprint(kind, npdId, deviceId, osUserId, appId string) string {
	h := sha256.New()
	for _, part := range []string{kind, npdId, deviceId, osUserId, appId} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
