package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Journal entries are small; 1 MiB is generous.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// reflectTimeout controls the maximum duration a /reflect request may run
// before timing out. Zero means no additional timeout beyond
// server/connection timeouts.
var reflectTimeout = int64(0) // seconds

// SetReflectTimeoutSeconds sets the reflect timeout in seconds (0 disables).
func SetReflectTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	reflectTimeout = sec
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server. The journal
// UI runs on a different local origin in development.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
