package api

import "github.com/gin-gonic/gin"

// defaultAuthor is used when no forwarded-identity header is present, the
// same fallback the teacher's echo-based extractAuthor uses for
// unauthenticated internal callers.
const defaultAuthor = "api-client"

// extractAuthor reads the reviewer identity forwarded by the edge proxy in
// front of this service, falling back to defaultAuthor for direct/internal
// calls (e.g. the scheduler's own trigger path never goes through this
// layer, so this only matters for human-decision endpoints).
func extractAuthor(c *gin.Context) string {
	if u := c.GetHeader("X-Forwarded-User"); u != "" {
		return u
	}
	if e := c.GetHeader("X-Forwarded-Email"); e != "" {
		return e
	}
	return defaultAuthor
}
