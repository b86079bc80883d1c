package handlers

import (
	"net/http"
)

// VersionResponse reports the build of the running photo service
type VersionResponse struct {
	Version string `json:"version"`
	API     string `json:"api"`
}

// APIVersion is the version of the REST contract served under /api
const APIVersion = "v1"

// VersionHandler answers GET /api/version
func VersionHandler(version string) http.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, VersionResponse{Version: version, API: APIVersion})
	}
}
