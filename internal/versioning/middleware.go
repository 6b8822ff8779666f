package versioning

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey struct{}

// Request headers a client may name its version in, in precedence order.
const (
	RequestVersionHeader = "X-API-Version"
	AcceptVersionHeader  = "Accept-Version"
)

// Response headers stamped on every request that passes negotiation.
const (
	ServedVersionHeader    = "X-API-Version"
	SupportedVersionHeader = "X-API-Supported-Versions"
)

// VersionMiddleware resolves the API version a request speaks and rejects
// requests the server cannot serve.
type VersionMiddleware struct {
	logger *logrus.Logger
}

func NewVersionMiddleware(logger *logrus.Logger) *VersionMiddleware {
	return &VersionMiddleware{logger: logger}
}

// VersionHandler negotiates the version for one request. Requests that name
// no version at all are served at the current version.
func (vm *VersionMiddleware) VersionHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested := vm.requestedVersion(r)

		w.Header().Set(SupportedVersionHeader, SupportedRange())

		if !Supported(requested) {
			vm.reject(w, r, requested)
			return
		}

		w.Header().Set(ServedVersionHeader, requested.String())

		ctx := context.WithValue(r.Context(), contextKey{}, requested)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestedVersion reads the client's version from the headers, then the
// path. A malformed version string is ignored rather than rejected; the
// client is then served at whatever the next source names.
func (vm *VersionMiddleware) requestedVersion(r *http.Request) Version {
	for _, header := range []string{RequestVersionHeader, AcceptVersionHeader} {
		raw := r.Header.Get(header)
		if raw == "" {
			continue
		}
		v, err := Parse(raw)
		if err != nil {
			vm.logger.WithFields(logrus.Fields{
				"header": header,
				"value":  raw,
			}).Warn("Ignoring unparseable version header")
			continue
		}
		return v
	}

	if v := versionFromPath(r.URL.Path); !v.IsZero() {
		return v
	}
	return Current
}

// versionFromPath finds a /vN/ or /vN.N/ segment in the request path.
func versionFromPath(path string) Version {
	for _, segment := range strings.Split(path, "/") {
		if len(segment) < 2 || segment[0] != 'v' {
			continue
		}
		if v, err := Parse(segment[1:]); err == nil {
			return v
		}
	}
	return Version{}
}

func (vm *VersionMiddleware) reject(w http.ResponseWriter, r *http.Request, requested Version) {
	status := http.StatusUpgradeRequired
	message := "API version " + requested.String() + " is no longer supported"
	if requested.Major > Current.Major {
		status = http.StatusNotImplemented
		message = "API version " + requested.String() + " does not exist yet"
	}

	vm.logger.WithFields(logrus.Fields{
		"requested_version": requested.String(),
		"current_version":   Current.String(),
		"path":              r.URL.Path,
		"method":            r.Method,
	}).Warn("Rejected request with unsupported API version")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VERSION_UNSUPPORTED",
			"message": message,
		},
		"current_version":    Current.String(),
		"supported_versions": SupportedRange(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		vm.logger.WithError(err).Error("Failed to encode version rejection")
	}
}

// FromContext returns the version negotiated for this request.
func FromContext(ctx context.Context) (Version, bool) {
	v, ok := ctx.Value(contextKey{}).(Version)
	return v, ok
}
