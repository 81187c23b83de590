package server

import (
	"net/http"

	"github.com/Masterminds/semver/v3"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/common/httpx"
)

// ServerVersion is the admitd build version.
const ServerVersion = admitcommon.ServerVersion

// ApiVersion is the wire API version served by this build.
const ApiVersion = admitcommon.ApiVersion

// ApiVersionHeader is the header in which clients announce their API version.
const ApiVersionHeader = "X-AdmitAPI-Version"

// versionConstraint defines the compatible client version range. Exact match
// while the API is pre-1.0.
var versionConstraint *semver.Constraints

func init() {
	var err error
	versionConstraint, err = semver.NewConstraint("=" + ApiVersion)
	if err != nil {
		panic(err)
	}
}

// IsVersionCompatible reports whether a client version is compatible with
// this server. Invalid version strings are incompatible.
func IsVersionCompatible(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return versionConstraint.Check(v)
}

// VersionCheck rejects requests whose announced API version is incompatible.
// Requests without the header pass; scanning apps built against a different
// wire version get a clear error instead of a confusing handler failure.
func VersionCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get(ApiVersionHeader); v != "" && !IsVersionCompatible(v) {
			httpx.ErrInvalidRequest("incompatible API version " + v + "; server speaks " + ApiVersion).Send(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
